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

const userColumns = "id, email, display_name, public_key, storage_used, storage_limit, created_at, updated_at"

// PostgresUserRepository implements the UserRepository interface
type PostgresUserRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewUserRepository creates a new user repository
func NewUserRepository(config *RepositoryConfig) repositories.UserRepository {
	return &PostgresUserRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Ensure inserts the user or refreshes profile fields. The storage counter and
// limit of an existing row are left alone.
func (r *PostgresUserRepository) Ensure(ctx context.Context, user *models.User) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, email, display_name, storage_limit)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, display_name = EXCLUDED.display_name, updated_at = now()
		RETURNING %s
	`, r.tables.Users, userColumns)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, user.ID, user.Email, user.DisplayName, user.StorageLimit)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	stored, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.User])
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	*user = stored
	return nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, userColumns, r.tables.Users)
	return r.getOne(ctx, query, id)
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE lower(email) = lower($1) LIMIT 1`, userColumns, r.tables.Users)
	return r.getOne(ctx, query, email)
}

func (r *PostgresUserRepository) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	user, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[models.User])
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("user %s: %w", arg, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetByIDs retrieves the users that exist among ids
func (r *PostgresUserRepository) GetByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if emptyIDs(ids) {
		return []models.User{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ANY($1)`, userColumns, r.tables.Users)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.User])
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	return users, nil
}

// SetPublicKey stores the user's public key
func (r *PostgresUserRepository) SetPublicKey(ctx context.Context, id, publicKey string) error {
	query := fmt.Sprintf(`UPDATE %s SET public_key = $1, updated_at = now() WHERE id = $2`, r.tables.Users)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, publicKey, id)
	if err != nil {
		return fmt.Errorf("set public key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ReserveStorage increments storage_used in a single guarded update
func (r *PostgresUserRepository) ReserveStorage(ctx context.Context, id string, bytes int64) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET storage_used = storage_used + $1, updated_at = now()
		WHERE id = $2 AND storage_used + $1 <= storage_limit
	`, r.tables.Users)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, bytes, id)
	if err != nil {
		return false, fmt.Errorf("reserve storage: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ReleaseStorage decrements storage_used, never below zero
func (r *PostgresUserRepository) ReleaseStorage(ctx context.Context, id string, bytes int64) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET storage_used = GREATEST(storage_used - $1, 0), updated_at = now()
		WHERE id = $2
	`, r.tables.Users)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, bytes, id); err != nil {
		return fmt.Errorf("release storage: %w", err)
	}
	return nil
}
