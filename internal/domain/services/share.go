package services

import (
	"context"

	"sealdrive/internal/domain/models"
)

// ShareService manages grants and everything a recipient can list through them
type ShareService interface {
	// ShareFile grants one file to a recipient with their wrapped key.
	// ErrNotFound when the file is missing, trashed or not the caller's;
	// ConflictError when the pair already exists.
	ShareFile(ctx context.Context, req *ShareFileRequest) (*models.FileGrant, error)

	// ShareBulk upserts file and folder grants for one recipient. Safe to repeat.
	ShareBulk(ctx context.Context, req *ShareBulkRequest) (*BulkShareResult, error)

	// UpdatePermission changes the permission level of a grant the caller owns
	UpdatePermission(ctx context.Context, req *UpdatePermissionRequest) error

	// ListSharedWithMe returns root-level items shared with userID
	ListSharedWithMe(ctx context.Context, userID string, ownerFilter *string) ([]models.SharedItem, error)

	// ListFolderContents lists a folder for a requester with locks annotated
	ListFolderContents(ctx context.Context, requesterID, folderID string) (*models.FolderContents, error)

	// EnumerateSubtreeForDownload lists the requester-decryptable files of a
	// subtree with archive-relative paths
	EnumerateSubtreeForDownload(ctx context.Context, requesterID, folderID string) ([]models.DownloadEntry, error)
}

// ShareFileRequest grants a single file
type ShareFileRequest struct {
	OwnerID     string            `json:"-"`
	FileID      string            `json:"file_id"`
	RecipientID string            `json:"recipient_id"`
	WrappedKey  string            `json:"wrapped_key"`
	Permission  models.Permission `json:"permission,omitempty"`
}

// ShareBulkRequest grants many nodes to one recipient
type ShareBulkRequest struct {
	OwnerID     string            `json:"-"`
	RecipientID string            `json:"recipient_id"`
	Files       []FileShareItem   `json:"files"`
	Folders     []FolderShareItem `json:"folders"`
}

// FileShareItem is one file of a bulk share
type FileShareItem struct {
	FileID     string            `json:"file_id"`
	WrappedKey string            `json:"wrapped_key"`
	Permission models.Permission `json:"permission,omitempty"`
}

// FolderShareItem is one folder of a bulk share
type FolderShareItem struct {
	FolderID   string            `json:"folder_id"`
	Permission models.Permission `json:"permission,omitempty"`
}

// BulkShareResult reports per-item outcomes of a bulk share
type BulkShareResult struct {
	FileGrants   []models.FileGrant   `json:"file_grants"`
	FolderGrants []models.FolderGrant `json:"folder_grants"`
	Skipped      []SkippedItem        `json:"skipped"`
}

// SkippedItem is a bulk item that was not applied
type SkippedItem struct {
	Kind   models.NodeKind `json:"kind"`
	ID     string          `json:"id"`
	Reason string          `json:"reason"`
}

// UpdatePermissionRequest changes a grant's permission
type UpdatePermissionRequest struct {
	CallerID   string            `json:"-"`
	Kind       models.NodeKind   `json:"-"`
	GrantID    string            `json:"-"`
	Permission models.Permission `json:"permission"`
}
