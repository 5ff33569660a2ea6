package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
)

const fileColumns = `id, owner_id, folder_id, name, mime_type, storage_path, size, wrapped_key,
	is_deleted, deleted_at, blob_released_at, created_at, updated_at`

// PostgresFileRepository implements the FileRepository interface
type PostgresFileRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewFileRepository creates a new file repository
func NewFileRepository(config *RepositoryConfig) repositories.FileRepository {
	return &PostgresFileRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Create inserts a file row
func (r *PostgresFileRepository) Create(ctx context.Context, file *models.File) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (owner_id, folder_id, name, mime_type, storage_path, size, wrapped_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		file.OwnerID,
		file.FolderID,
		file.Name,
		file.MimeType,
		file.StoragePath,
		file.Size,
		file.WrappedKey,
		file.CreatedAt,
		file.UpdatedAt,
	).Scan(&file.ID, &file.CreatedAt, &file.UpdatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("file folder: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("create file: %w", err)
	}

	return nil
}

// GetByID retrieves a file by ID, trashed or not
func (r *PostgresFileRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, fileColumns, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	file, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[models.File])
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get file: %w", err)
	}

	return file, nil
}

// GetByIDs retrieves the files that exist among ids
func (r *PostgresFileRepository) GetByIDs(ctx context.Context, ids []string) ([]models.File, error) {
	if emptyIDs(ids) {
		return []models.File{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ANY($1)`, fileColumns, r.tables.Files)
	return r.list(ctx, "get files", query, ids)
}

// Update writes name and folder
func (r *PostgresFileRepository) Update(ctx context.Context, file *models.File) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET folder_id = $1, name = $2, updated_at = $3
		WHERE id = $4
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, file.FolderID, file.Name, file.UpdatedAt, file.ID)
	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("file folder: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("update file: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("file %s: %w", file.ID, domain.ErrNotFound)
	}

	return nil
}

// ListLiveByFolder lists an owner's non-trashed files in folderID
func (r *PostgresFileRepository) ListLiveByFolder(ctx context.Context, ownerID string, folderID *string) ([]models.File, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE owner_id = $1 AND folder_id IS NOT DISTINCT FROM $2 AND NOT is_deleted
		ORDER BY name
	`, fileColumns, r.tables.Files)
	return r.list(ctx, "list folder files", query, ownerID, folderID)
}

// ListByFolders lists every file whose folder is in folderIDs
func (r *PostgresFileRepository) ListByFolders(ctx context.Context, folderIDs []string) ([]models.File, error) {
	if emptyIDs(folderIDs) {
		return []models.File{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE folder_id = ANY($1)`, fileColumns, r.tables.Files)
	return r.list(ctx, "list files by folder", query, folderIDs)
}

// ListAllLiveByOwner returns every live file of an owner
func (r *PostgresFileRepository) ListAllLiveByOwner(ctx context.Context, ownerID string) ([]models.File, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE owner_id = $1 AND NOT is_deleted
		ORDER BY name
	`, fileColumns, r.tables.Files)
	return r.list(ctx, "list owner files", query, ownerID)
}

// SetTrashed marks files trashed
func (r *PostgresFileRepository) SetTrashed(ctx context.Context, ids []string, deletedAt time.Time) error {
	if emptyIDs(ids) {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET is_deleted = true, deleted_at = COALESCE(deleted_at, $2), updated_at = $2
		WHERE id = ANY($1)
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, ids, deletedAt); err != nil {
		return fmt.Errorf("trash files: %w", err)
	}
	return nil
}

// ClearTrashed marks files active again
func (r *PostgresFileRepository) ClearTrashed(ctx context.Context, ids []string) error {
	if emptyIDs(ids) {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET is_deleted = false, deleted_at = NULL, updated_at = now()
		WHERE id = ANY($1)
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("restore files: %w", err)
	}
	return nil
}

// MarkBlobReleased records that the file's ciphertext is gone. A row that is
// already marked or already deleted is left alone and reports false.
func (r *PostgresFileRepository) MarkBlobReleased(ctx context.Context, id string, at time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET blob_released_at = $2, updated_at = $2
		WHERE id = $1 AND blob_released_at IS NULL
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("mark blob released: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListTrashRoots lists trashed files whose folder is live or absent
func (r *PostgresFileRepository) ListTrashRoots(ctx context.Context, ownerID string) ([]models.File, error) {
	query := fmt.Sprintf(`
		SELECT f.* FROM %s f
		LEFT JOIN %s p ON p.id = f.folder_id
		WHERE f.owner_id = $1 AND f.is_deleted AND (p.id IS NULL OR NOT p.is_deleted)
		ORDER BY f.deleted_at DESC
	`, r.tables.Files, r.tables.Folders)
	return r.list(ctx, "list trashed files", query, ownerID)
}

// ListExpiredTrashRoots lists trash-root files trashed before cutoff
func (r *PostgresFileRepository) ListExpiredTrashRoots(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error) {
	query := fmt.Sprintf(`
		SELECT f.* FROM %s f
		LEFT JOIN %s p ON p.id = f.folder_id
		WHERE f.is_deleted AND f.deleted_at < $1 AND (p.id IS NULL OR NOT p.is_deleted)
		ORDER BY f.deleted_at
		LIMIT $2
	`, r.tables.Files, r.tables.Folders)
	return r.list(ctx, "list expired files", query, cutoff, limit)
}

// Delete hard-deletes a file row. Grants go with ON DELETE CASCADE.
func (r *PostgresFileRepository) Delete(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *PostgresFileRepository) list(ctx context.Context, op, query string, args ...any) ([]models.File, error) {
	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	files, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.File])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return files, nil
}
