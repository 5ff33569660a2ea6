package services

import (
	"context"

	"sealdrive/internal/domain/models"
	"sealdrive/internal/httputil"
)

// FolderService handles the owner-scoped folder tree
type FolderService interface {
	CreateFolder(ctx context.Context, req *CreateFolderRequest) (*models.Folder, error)

	// GetFolder returns a live folder owned by ownerID
	GetFolder(ctx context.Context, ownerID, folderID string) (*models.Folder, error)

	// UpdateFolder renames and/or moves a folder
	UpdateFolder(ctx context.Context, ownerID, folderID string, req *UpdateFolderRequest) (*models.Folder, error)

	// ListRoot lists the owner's live root folders and files
	ListRoot(ctx context.Context, ownerID string) (*models.FolderContents, error)

	// GetTree builds the owner's whole live tree
	GetTree(ctx context.Context, ownerID string) (*models.TreeNode, error)
}

// CreateFolderRequest represents a folder creation request
type CreateFolderRequest struct {
	OwnerID  string  `json:"-"`
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id,omitempty"` // null for root
}

// UpdateFolderRequest represents a folder rename and/or move
type UpdateFolderRequest struct {
	Name     *string             `json:"name,omitempty"`      // rename
	ParentID httputil.OptionalID `json:"parent_id,omitempty"` // move (null = root)
}
