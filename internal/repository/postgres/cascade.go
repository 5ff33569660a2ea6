package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
)

const cascadeColumns = "id, kind, owner_id, node_id, recipient, attempts, last_error, completed_at, created_at, updated_at"

// PostgresCascadeJournal implements the CascadeJournal interface
type PostgresCascadeJournal struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewCascadeJournal creates a new cascade journal
func NewCascadeJournal(config *RepositoryConfig) repositories.CascadeJournal {
	return &PostgresCascadeJournal{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Record upserts the pending task for (kind, node, recipient)
func (j *PostgresCascadeJournal) Record(ctx context.Context, task *models.CascadeTask) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (kind, owner_id, node_id, recipient, attempts, last_error)
		VALUES ($1, $2, $3, $4, 1, $5)
		ON CONFLICT (kind, node_id, recipient) WHERE completed_at IS NULL
		DO UPDATE SET attempts = %s.attempts + 1, last_error = EXCLUDED.last_error, updated_at = now()
		RETURNING id, attempts, created_at, updated_at
	`, j.tables.CascadeTasks, j.tables.CascadeTasks)

	executor := GetExecutor(ctx, j.pool)
	err := executor.QueryRow(ctx, query,
		task.Kind,
		task.OwnerID,
		task.NodeID,
		task.Recipient,
		task.LastError,
	).Scan(&task.ID, &task.Attempts, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("record cascade task: %w", err)
	}
	return nil
}

// ListPending lists incomplete tasks, oldest first
func (j *PostgresCascadeJournal) ListPending(ctx context.Context, limit int) ([]models.CascadeTask, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE completed_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, cascadeColumns, j.tables.CascadeTasks)

	executor := GetExecutor(ctx, j.pool)
	rows, err := executor.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list cascade tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.CascadeTask])
	if err != nil {
		return nil, fmt.Errorf("list cascade tasks: %w", err)
	}
	return tasks, nil
}

// Complete marks a task done
func (j *PostgresCascadeJournal) Complete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET completed_at = now(), updated_at = now()
		WHERE id = $1 AND completed_at IS NULL
	`, j.tables.CascadeTasks)

	executor := GetExecutor(ctx, j.pool)
	result, err := executor.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("complete cascade task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("cascade task %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
