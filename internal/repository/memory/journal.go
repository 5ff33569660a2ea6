package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
)

type usageRepo struct{ s *Store }

func (r *usageRepo) Open(ctx context.Context, interval *models.UsageInterval) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := *interval
	stored.ID = newID()
	r.s.usage = append(r.s.usage, &stored)
	interval.ID = stored.ID
	return nil
}

func (r *usageRepo) CloseOpen(ctx context.Context, fileID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.usage {
		if u.FileID == fileID && u.EffectiveTo == nil {
			closed := at
			u.EffectiveTo = &closed
		}
	}
	return nil
}

type journal struct{ s *Store }

func (j *journal) Record(ctx context.Context, task *models.CascadeTask) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	now := j.s.now()
	for _, t := range j.s.tasks {
		if t.CompletedAt == nil && t.Kind == task.Kind && t.NodeID == task.NodeID && t.Recipient == task.Recipient {
			t.Attempts++
			t.LastError = task.LastError
			t.UpdatedAt = now
			*task = *t
			return nil
		}
	}

	stored := *task
	stored.ID = newID()
	stored.Attempts = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	j.s.tasks[stored.ID] = &stored
	*task = stored
	return nil
}

func (j *journal) ListPending(ctx context.Context, limit int) ([]models.CascadeTask, error) {
	j.s.mu.RLock()
	defer j.s.mu.RUnlock()

	out := []models.CascadeTask{}
	for _, t := range j.s.tasks {
		if t.CompletedAt == nil {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (j *journal) Complete(ctx context.Context, id string) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	t, ok := j.s.tasks[id]
	if !ok || t.CompletedAt != nil {
		return fmt.Errorf("cascade task %s: %w", id, domain.ErrNotFound)
	}
	now := j.s.now()
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}
