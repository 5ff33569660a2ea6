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

const (
	fileGrantColumns   = "id, file_id, owner_id, shared_with, wrapped_key, permission, created_at, updated_at"
	folderGrantColumns = "id, folder_id, owner_id, shared_with, permission, created_at, updated_at"
)

// PostgresGrantRepository implements the GrantRepository interface
type PostgresGrantRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewGrantRepository creates a new grant repository
func NewGrantRepository(config *RepositoryConfig) repositories.GrantRepository {
	return &PostgresGrantRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// CreateFileGrant inserts a new file grant
func (r *PostgresGrantRepository) CreateFileGrant(ctx context.Context, grant *models.FileGrant) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (file_id, owner_id, shared_with, wrapped_key, permission)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, r.tables.FileGrants)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		grant.FileID,
		grant.OwnerID,
		grant.SharedWith,
		grant.WrappedKey,
		grant.Permission,
	).Scan(&grant.ID, &grant.CreatedAt, &grant.UpdatedAt)

	if err != nil {
		if IsPgDuplicateError(err) {
			return r.fileGrantConflict(ctx, grant)
		}
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("file grant target: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("create file grant: %w", err)
	}

	return nil
}

// fileGrantConflict builds a ConflictError pointing at the grant already held
func (r *PostgresGrantRepository) fileGrantConflict(ctx context.Context, grant *models.FileGrant) error {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE file_id = $1 AND shared_with = $2`, r.tables.FileGrants)

	var existingID string
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, grant.FileID, grant.SharedWith).Scan(&existingID); err != nil {
		return fmt.Errorf("file already shared with user: %w", domain.ErrConflict)
	}

	return &domain.ConflictError{
		Message:      "file is already shared with this user",
		ResourceType: "file_grant",
		ResourceID:   existingID,
	}
}

// UpsertFileGrant inserts a grant or replaces key and permission of the existing one
func (r *PostgresGrantRepository) UpsertFileGrant(ctx context.Context, grant *models.FileGrant) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (file_id, owner_id, shared_with, wrapped_key, permission)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (file_id, shared_with)
		DO UPDATE SET wrapped_key = EXCLUDED.wrapped_key, permission = EXCLUDED.permission, updated_at = now()
		RETURNING id, created_at, updated_at
	`, r.tables.FileGrants)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		grant.FileID,
		grant.OwnerID,
		grant.SharedWith,
		grant.WrappedKey,
		grant.Permission,
	).Scan(&grant.ID, &grant.CreatedAt, &grant.UpdatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("file grant target: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("upsert file grant: %w", err)
	}
	return nil
}

// UpsertFolderGrant inserts a folder grant or replaces its permission
func (r *PostgresGrantRepository) UpsertFolderGrant(ctx context.Context, grant *models.FolderGrant) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (folder_id, owner_id, shared_with, permission)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (folder_id, shared_with)
		DO UPDATE SET permission = EXCLUDED.permission, updated_at = now()
		RETURNING id, created_at, updated_at
	`, r.tables.FolderGrants)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		grant.FolderID,
		grant.OwnerID,
		grant.SharedWith,
		grant.Permission,
	).Scan(&grant.ID, &grant.CreatedAt, &grant.UpdatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("folder grant target: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("upsert folder grant: %w", err)
	}
	return nil
}

// GetFileGrant retrieves a file grant by ID
func (r *PostgresGrantRepository) GetFileGrant(ctx context.Context, id string) (*models.FileGrant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, fileGrantColumns, r.tables.FileGrants)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get file grant: %w", err)
	}

	grant, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[models.FileGrant])
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("file grant %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get file grant: %w", err)
	}
	return grant, nil
}

// GetFolderGrant retrieves a folder grant by ID
func (r *PostgresGrantRepository) GetFolderGrant(ctx context.Context, id string) (*models.FolderGrant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, folderGrantColumns, r.tables.FolderGrants)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get folder grant: %w", err)
	}

	grant, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[models.FolderGrant])
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("folder grant %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get folder grant: %w", err)
	}
	return grant, nil
}

// UpdateFileGrantPermission changes the permission on a file grant
func (r *PostgresGrantRepository) UpdateFileGrantPermission(ctx context.Context, id string, permission models.Permission) error {
	return r.updatePermission(ctx, r.tables.FileGrants, "file grant", id, permission)
}

// UpdateFolderGrantPermission changes the permission on a folder grant
func (r *PostgresGrantRepository) UpdateFolderGrantPermission(ctx context.Context, id string, permission models.Permission) error {
	return r.updatePermission(ctx, r.tables.FolderGrants, "folder grant", id, permission)
}

func (r *PostgresGrantRepository) updatePermission(ctx context.Context, table, label, id string, permission models.Permission) error {
	query := fmt.Sprintf(`UPDATE %s SET permission = $1, updated_at = now() WHERE id = $2`, table)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, permission, id)
	if err != nil {
		return fmt.Errorf("update %s: %w", label, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", label, id, domain.ErrNotFound)
	}
	return nil
}

// ListFileGrantsForRecipient lists file grants held by sharedWith
func (r *PostgresGrantRepository) ListFileGrantsForRecipient(ctx context.Context, sharedWith string, ownerID *string) ([]models.FileGrant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE shared_with = $1 AND ($2::text IS NULL OR owner_id = $2)
		ORDER BY created_at
	`, fileGrantColumns, r.tables.FileGrants)
	return listFileGrants(ctx, GetExecutor(ctx, r.pool), query, sharedWith, ownerID)
}

// ListFolderGrantsForRecipient lists folder grants held by sharedWith
func (r *PostgresGrantRepository) ListFolderGrantsForRecipient(ctx context.Context, sharedWith string, ownerID *string) ([]models.FolderGrant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE shared_with = $1 AND ($2::text IS NULL OR owner_id = $2)
		ORDER BY created_at
	`, folderGrantColumns, r.tables.FolderGrants)
	return listFolderGrants(ctx, GetExecutor(ctx, r.pool), query, sharedWith, ownerID)
}

// ListFileGrantsByFiles lists grants on the given files
func (r *PostgresGrantRepository) ListFileGrantsByFiles(ctx context.Context, fileIDs []string, sharedWith *string) ([]models.FileGrant, error) {
	if emptyIDs(fileIDs) {
		return []models.FileGrant{}, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE file_id = ANY($1) AND ($2::text IS NULL OR shared_with = $2)
	`, fileGrantColumns, r.tables.FileGrants)
	return listFileGrants(ctx, GetExecutor(ctx, r.pool), query, fileIDs, sharedWith)
}

// ListFolderGrantsByFolders lists grants created by ownerID on the given folders
func (r *PostgresGrantRepository) ListFolderGrantsByFolders(ctx context.Context, folderIDs []string, ownerID string, sharedWith *string) ([]models.FolderGrant, error) {
	if emptyIDs(folderIDs) {
		return []models.FolderGrant{}, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE folder_id = ANY($1) AND owner_id = $2 AND ($3::text IS NULL OR shared_with = $3)
	`, folderGrantColumns, r.tables.FolderGrants)
	return listFolderGrants(ctx, GetExecutor(ctx, r.pool), query, folderIDs, ownerID, sharedWith)
}

// DeleteFileGrant removes one file grant
func (r *PostgresGrantRepository) DeleteFileGrant(ctx context.Context, id string) (bool, error) {
	n, err := r.exec(ctx, "delete file grant", fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.FileGrants), id)
	return n > 0, err
}

// DeleteFolderGrant removes one folder grant
func (r *PostgresGrantRepository) DeleteFolderGrant(ctx context.Context, id string) (bool, error) {
	n, err := r.exec(ctx, "delete folder grant", fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.FolderGrants), id)
	return n > 0, err
}

// DeleteFileGrantsForRecipient removes sharedWith's grants on the given files
func (r *PostgresGrantRepository) DeleteFileGrantsForRecipient(ctx context.Context, sharedWith string, fileIDs []string) (int64, error) {
	if emptyIDs(fileIDs) {
		return 0, nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE shared_with = $1 AND file_id = ANY($2)`, r.tables.FileGrants)
	return r.exec(ctx, "delete recipient file grants", query, sharedWith, fileIDs)
}

// DeleteFolderGrantsForRecipient removes sharedWith's grants on the given folders
func (r *PostgresGrantRepository) DeleteFolderGrantsForRecipient(ctx context.Context, sharedWith string, folderIDs []string) (int64, error) {
	if emptyIDs(folderIDs) {
		return 0, nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE shared_with = $1 AND folder_id = ANY($2)`, r.tables.FolderGrants)
	return r.exec(ctx, "delete recipient folder grants", query, sharedWith, folderIDs)
}

// DeleteAllForFiles drops every grant on the given files
func (r *PostgresGrantRepository) DeleteAllForFiles(ctx context.Context, fileIDs []string) (int64, error) {
	if emptyIDs(fileIDs) {
		return 0, nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE file_id = ANY($1)`, r.tables.FileGrants)
	return r.exec(ctx, "delete file grants", query, fileIDs)
}

// DeleteAllForFolders drops every grant on the given folders
func (r *PostgresGrantRepository) DeleteAllForFolders(ctx context.Context, folderIDs []string) (int64, error) {
	if emptyIDs(folderIDs) {
		return 0, nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE folder_id = ANY($1)`, r.tables.FolderGrants)
	return r.exec(ctx, "delete folder grants", query, folderIDs)
}

func (r *PostgresGrantRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return result.RowsAffected(), nil
}

func listFileGrants(ctx context.Context, executor repositories.DBTX, query string, args ...any) ([]models.FileGrant, error) {
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list file grants: %w", err)
	}
	grants, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.FileGrant])
	if err != nil {
		return nil, fmt.Errorf("list file grants: %w", err)
	}
	return grants, nil
}

func listFolderGrants(ctx context.Context, executor repositories.DBTX, query string, args ...any) ([]models.FolderGrant, error) {
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list folder grants: %w", err)
	}
	grants, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.FolderGrant])
	if err != nil {
		return nil, fmt.Errorf("list folder grants: %w", err)
	}
	return grants, nil
}
