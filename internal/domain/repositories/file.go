package repositories

import (
	"context"
	"time"

	"sealdrive/internal/domain/models"
)

// FileRepository defines data access operations for file metadata
type FileRepository interface {
	// Create inserts a file row and fills in its id and timestamps
	Create(ctx context.Context, file *models.File) error

	// GetByID returns the file (trashed or not) or ErrNotFound
	GetByID(ctx context.Context, id string) (*models.File, error)

	// GetByIDs returns the files that exist among ids
	GetByIDs(ctx context.Context, ids []string) ([]models.File, error)

	// Update writes name and folder
	Update(ctx context.Context, file *models.File) error

	// ListLiveByFolder lists an owner's non-trashed files in folderID (nil = root)
	ListLiveByFolder(ctx context.Context, ownerID string, folderID *string) ([]models.File, error)

	// ListByFolders lists every file (trashed included) whose folder is in folderIDs
	ListByFolders(ctx context.Context, folderIDs []string) ([]models.File, error)

	// ListAllLiveByOwner returns every live file of an owner
	ListAllLiveByOwner(ctx context.Context, ownerID string) ([]models.File, error)

	// SetTrashed marks files trashed at deletedAt; already trashed rows keep
	// their original timestamp
	SetTrashed(ctx context.Context, ids []string, deletedAt time.Time) error

	// ClearTrashed marks files active again. Released blobs stay released.
	ClearTrashed(ctx context.Context, ids []string) error

	// MarkBlobReleased records that the file's ciphertext is gone. Returns
	// true only for the call that flipped the row; quota is released on that.
	MarkBlobReleased(ctx context.Context, id string, at time.Time) (bool, error)

	// ListTrashRoots lists an owner's trashed files whose folder is live or absent
	ListTrashRoots(ctx context.Context, ownerID string) ([]models.File, error)

	// ListExpiredTrashRoots lists trash-root files of any owner trashed before cutoff
	ListExpiredTrashRoots(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error)

	// Delete hard-deletes a file row; returns false when it was already gone
	Delete(ctx context.Context, id string) (bool, error)
}
