package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
)

// PostgresUsageRepository implements the UsageRepository interface
type PostgresUsageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewUsageRepository creates a new usage interval repository
func NewUsageRepository(config *RepositoryConfig) repositories.UsageRepository {
	return &PostgresUsageRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Open starts a billing interval
func (r *PostgresUsageRepository) Open(ctx context.Context, interval *models.UsageInterval) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (file_id, owner_id, bytes, effective_from)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, r.tables.UsageIntervals)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		interval.FileID,
		interval.OwnerID,
		interval.Bytes,
		interval.EffectiveFrom,
	).Scan(&interval.ID)
	if err != nil {
		return fmt.Errorf("open usage interval: %w", err)
	}
	return nil
}

// CloseOpen ends the file's open interval, if any
func (r *PostgresUsageRepository) CloseOpen(ctx context.Context, fileID string, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET effective_to = $2
		WHERE file_id = $1 AND effective_to IS NULL
	`, r.tables.UsageIntervals)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, fileID, at); err != nil {
		return fmt.Errorf("close usage interval: %w", err)
	}
	return nil
}
