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

const folderColumns = "id, owner_id, parent_id, name, is_deleted, deleted_at, created_at, updated_at"

// PostgresFolderRepository implements the FolderRepository interface
type PostgresFolderRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewFolderRepository creates a new folder repository
func NewFolderRepository(config *RepositoryConfig) repositories.FolderRepository {
	return &PostgresFolderRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Create creates a new folder
func (r *PostgresFolderRepository) Create(ctx context.Context, folder *models.Folder) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (owner_id, parent_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, r.tables.Folders)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		folder.OwnerID,
		folder.ParentID,
		folder.Name,
		folder.CreatedAt,
		folder.UpdatedAt,
	).Scan(&folder.ID, &folder.CreatedAt, &folder.UpdatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("parent folder: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("create folder: %w", err)
	}

	return nil
}

// GetByID retrieves a folder by ID, trashed or not
func (r *PostgresFolderRepository) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, folderColumns, r.tables.Folders)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get folder: %w", err)
	}

	folder, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[models.Folder])
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get folder: %w", err)
	}

	return folder, nil
}

// GetByIDs retrieves the folders that exist among ids
func (r *PostgresFolderRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Folder, error) {
	if emptyIDs(ids) {
		return []models.Folder{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ANY($1)`, folderColumns, r.tables.Folders)
	return r.list(ctx, "get folders", query, ids)
}

// Update writes name and parent
func (r *PostgresFolderRepository) Update(ctx context.Context, folder *models.Folder) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET parent_id = $1, name = $2, updated_at = $3
		WHERE id = $4
	`, r.tables.Folders)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		folder.ParentID,
		folder.Name,
		folder.UpdatedAt,
		folder.ID,
	)
	if err != nil {
		return fmt.Errorf("update folder: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("folder %s: %w", folder.ID, domain.ErrNotFound)
	}

	return nil
}

// ListLiveChildren lists an owner's non-trashed folders under parentID
func (r *PostgresFolderRepository) ListLiveChildren(ctx context.Context, ownerID string, parentID *string) ([]models.Folder, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM $2 AND NOT is_deleted
		ORDER BY name
	`, folderColumns, r.tables.Folders)
	return r.list(ctx, "list child folders", query, ownerID, parentID)
}

// ListByParents lists every folder whose parent is in parentIDs
func (r *PostgresFolderRepository) ListByParents(ctx context.Context, parentIDs []string) ([]models.Folder, error) {
	if emptyIDs(parentIDs) {
		return []models.Folder{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE parent_id = ANY($1)`, folderColumns, r.tables.Folders)
	return r.list(ctx, "list folders by parent", query, parentIDs)
}

// ListAllByOwner returns every live folder of an owner
func (r *PostgresFolderRepository) ListAllByOwner(ctx context.Context, ownerID string) ([]models.Folder, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE owner_id = $1 AND NOT is_deleted
		ORDER BY name
	`, folderColumns, r.tables.Folders)
	return r.list(ctx, "list owner folders", query, ownerID)
}

// SetTrashed marks folders trashed
func (r *PostgresFolderRepository) SetTrashed(ctx context.Context, ids []string, deletedAt time.Time) error {
	if emptyIDs(ids) {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET is_deleted = true, deleted_at = COALESCE(deleted_at, $2), updated_at = $2
		WHERE id = ANY($1)
	`, r.tables.Folders)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, ids, deletedAt); err != nil {
		return fmt.Errorf("trash folders: %w", err)
	}
	return nil
}

// ClearTrashed marks folders active again
func (r *PostgresFolderRepository) ClearTrashed(ctx context.Context, ids []string) error {
	if emptyIDs(ids) {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET is_deleted = false, deleted_at = NULL, updated_at = now()
		WHERE id = ANY($1)
	`, r.tables.Folders)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("restore folders: %w", err)
	}
	return nil
}

// ListTrashRoots lists trashed folders whose parent is live or absent
func (r *PostgresFolderRepository) ListTrashRoots(ctx context.Context, ownerID string) ([]models.Folder, error) {
	query := fmt.Sprintf(`
		SELECT f.id, f.owner_id, f.parent_id, f.name, f.is_deleted, f.deleted_at, f.created_at, f.updated_at
		FROM %[1]s f
		LEFT JOIN %[1]s p ON p.id = f.parent_id
		WHERE f.owner_id = $1 AND f.is_deleted AND (p.id IS NULL OR NOT p.is_deleted)
		ORDER BY f.deleted_at DESC
	`, r.tables.Folders)
	return r.list(ctx, "list trashed folders", query, ownerID)
}

// ListExpiredTrashRoots lists trash roots of any owner trashed before cutoff
func (r *PostgresFolderRepository) ListExpiredTrashRoots(ctx context.Context, cutoff time.Time, limit int) ([]models.Folder, error) {
	query := fmt.Sprintf(`
		SELECT f.id, f.owner_id, f.parent_id, f.name, f.is_deleted, f.deleted_at, f.created_at, f.updated_at
		FROM %[1]s f
		LEFT JOIN %[1]s p ON p.id = f.parent_id
		WHERE f.is_deleted AND f.deleted_at < $1 AND (p.id IS NULL OR NOT p.is_deleted)
		ORDER BY f.deleted_at
		LIMIT $2
	`, r.tables.Folders)
	return r.list(ctx, "list expired folders", query, cutoff, limit)
}

// DeleteByIDs hard-deletes folders. Grants on them go with ON DELETE CASCADE.
func (r *PostgresFolderRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if emptyIDs(ids) {
		return 0, nil
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, r.tables.Folders)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, ids)
	if err != nil {
		if IsPgForeignKeyError(err) {
			return 0, fmt.Errorf("folders still have children: %w", domain.ErrConflict)
		}
		return 0, fmt.Errorf("delete folders: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *PostgresFolderRepository) list(ctx context.Context, op, query string, args ...any) ([]models.Folder, error) {
	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	folders, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Folder])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return folders, nil
}
