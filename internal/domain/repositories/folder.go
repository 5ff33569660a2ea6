package repositories

import (
	"context"
	"time"

	"sealdrive/internal/domain/models"
)

// FolderRepository defines data access operations for folders.
// Reads by id return trashed rows too; callers decide what "live" means.
type FolderRepository interface {
	// Create inserts a folder and fills in its id and timestamps
	Create(ctx context.Context, folder *models.Folder) error

	// GetByID returns the folder (trashed or not) or ErrNotFound
	GetByID(ctx context.Context, id string) (*models.Folder, error)

	// GetByIDs returns the folders that exist among ids, in no particular order
	GetByIDs(ctx context.Context, ids []string) ([]models.Folder, error)

	// Update writes name and parent
	Update(ctx context.Context, folder *models.Folder) error

	// ListLiveChildren lists an owner's non-trashed folders under parentID (nil = root)
	ListLiveChildren(ctx context.Context, ownerID string, parentID *string) ([]models.Folder, error)

	// ListByParents lists every folder (trashed included) whose parent is in parentIDs
	ListByParents(ctx context.Context, parentIDs []string) ([]models.Folder, error)

	// ListAllByOwner returns every live folder of an owner (flat list)
	ListAllByOwner(ctx context.Context, ownerID string) ([]models.Folder, error)

	// SetTrashed marks folders trashed at deletedAt; already trashed rows keep
	// their original timestamp
	SetTrashed(ctx context.Context, ids []string, deletedAt time.Time) error

	// ClearTrashed marks folders active again
	ClearTrashed(ctx context.Context, ids []string) error

	// ListTrashRoots lists an owner's trashed folders whose parent is live or absent
	ListTrashRoots(ctx context.Context, ownerID string) ([]models.Folder, error)

	// ListExpiredTrashRoots lists trash roots of any owner trashed before cutoff
	ListExpiredTrashRoots(ctx context.Context, cutoff time.Time, limit int) ([]models.Folder, error)

	// DeleteByIDs hard-deletes folders; missing ids are ignored
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
