package services

import (
	"context"

	"sealdrive/internal/domain/models"
)

// ResourceAuthorizer resolves effective access to nodes.
//
// Visibility and decryptability are separate questions: a folder grant on
// any ancestor makes a node visible, while only a FileGrant makes a file
// decryptable.
type ResourceAuthorizer interface {
	// ResolveFolder reports whether userID owns folderID or holds a grant on
	// it or any ancestor. The folder must be live.
	ResolveFolder(ctx context.Context, userID, folderID string) (*models.AccessDecision, error)

	// CanAccessFolder is ResolveFolder collapsed to an error:
	// ErrNotFound for absent/trashed folders, ErrForbidden without access.
	CanAccessFolder(ctx context.Context, userID, folderID string) (*models.Folder, error)

	// CanSeeFile reports whether the file is visible to userID, directly or
	// through its folder
	CanSeeFile(ctx context.Context, userID, fileID string) (bool, error)

	// CanDecrypt reports whether userID holds a key for the file (owner or FileGrant)
	CanDecrypt(ctx context.Context, userID, fileID string) (bool, error)
}
