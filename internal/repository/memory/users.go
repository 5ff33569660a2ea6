package memory

import (
	"context"
	"fmt"
	"strings"

	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
)

type userRepo struct{ s *Store }

func (r *userRepo) Ensure(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if existing, ok := r.s.users[user.ID]; ok {
		existing.Email = user.Email
		existing.DisplayName = user.DisplayName
		existing.UpdatedAt = now
		*user = *existing
		return nil
	}

	stored := *user
	stored.StorageUsed = 0
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.s.users[stored.ID] = &stored
	*user = stored
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	out := *u
	return &out, nil
}

func (r *userRepo) GetByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.User{}
	for id := range idSet(ids) {
		if u, ok := r.s.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
}

func (r *userRepo) SetPublicKey(ctx context.Context, id, publicKey string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	u.PublicKey = publicKey
	u.UpdatedAt = r.s.now()
	return nil
}

func (r *userRepo) ReserveStorage(ctx context.Context, id string, bytes int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok || u.StorageUsed+bytes > u.StorageLimit {
		return false, nil
	}
	u.StorageUsed += bytes
	return true, nil
}

func (r *userRepo) ReleaseStorage(ctx context.Context, id string, bytes int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if u, ok := r.s.users[id]; ok {
		u.StorageUsed = max(u.StorageUsed-bytes, 0)
	}
	return nil
}
