package repositories

import (
	"context"

	"sealdrive/internal/domain/models"
)

// CascadeJournal records cascades that need a replay
type CascadeJournal interface {
	// Record upserts a pending task keyed by (kind, node, recipient) and bumps attempts
	Record(ctx context.Context, task *models.CascadeTask) error

	// ListPending lists incomplete tasks, oldest first
	ListPending(ctx context.Context, limit int) ([]models.CascadeTask, error)

	// Complete marks a task done
	Complete(ctx context.Context, id string) error
}
