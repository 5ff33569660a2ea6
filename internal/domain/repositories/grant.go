package repositories

import (
	"context"

	"sealdrive/internal/domain/models"
)

// GrantRepository stores file and folder grants. At most one grant exists per
// (node, recipient); the Upsert methods rely on that uniqueness atomically.
type GrantRepository interface {
	// CreateFileGrant inserts a grant, ConflictError on a duplicate pair
	CreateFileGrant(ctx context.Context, grant *models.FileGrant) error

	// UpsertFileGrant inserts or replaces key and permission for the pair
	UpsertFileGrant(ctx context.Context, grant *models.FileGrant) error

	// UpsertFolderGrant inserts or replaces permission for the pair
	UpsertFolderGrant(ctx context.Context, grant *models.FolderGrant) error

	GetFileGrant(ctx context.Context, id string) (*models.FileGrant, error)
	GetFolderGrant(ctx context.Context, id string) (*models.FolderGrant, error)

	// UpdateFileGrantPermission and UpdateFolderGrantPermission are the only
	// in-place grant mutations
	UpdateFileGrantPermission(ctx context.Context, id string, permission models.Permission) error
	UpdateFolderGrantPermission(ctx context.Context, id string, permission models.Permission) error

	// ListFileGrantsForRecipient lists grants held by sharedWith, optionally
	// narrowed to one owner
	ListFileGrantsForRecipient(ctx context.Context, sharedWith string, ownerID *string) ([]models.FileGrant, error)

	// ListFolderGrantsForRecipient lists folder grants held by sharedWith,
	// optionally narrowed to one owner
	ListFolderGrantsForRecipient(ctx context.Context, sharedWith string, ownerID *string) ([]models.FolderGrant, error)

	// ListFileGrantsByFiles lists every grant on the given files. When
	// sharedWith is non-nil only that recipient's grants are returned.
	ListFileGrantsByFiles(ctx context.Context, fileIDs []string, sharedWith *string) ([]models.FileGrant, error)

	// ListFolderGrantsByFolders lists grants on the given folders created by ownerID.
	// When sharedWith is non-nil only that recipient's grants are returned.
	ListFolderGrantsByFolders(ctx context.Context, folderIDs []string, ownerID string, sharedWith *string) ([]models.FolderGrant, error)

	// DeleteFileGrant and DeleteFolderGrant return false when the grant was already gone
	DeleteFileGrant(ctx context.Context, id string) (bool, error)
	DeleteFolderGrant(ctx context.Context, id string) (bool, error)

	// DeleteFileGrantsForRecipient removes sharedWith's grants on the given files
	DeleteFileGrantsForRecipient(ctx context.Context, sharedWith string, fileIDs []string) (int64, error)

	// DeleteFolderGrantsForRecipient removes sharedWith's grants on the given folders
	DeleteFolderGrantsForRecipient(ctx context.Context, sharedWith string, folderIDs []string) (int64, error)

	// DeleteAllForFiles and DeleteAllForFolders drop every grant on purged nodes
	DeleteAllForFiles(ctx context.Context, fileIDs []string) (int64, error)
	DeleteAllForFolders(ctx context.Context, folderIDs []string) (int64, error)
}
