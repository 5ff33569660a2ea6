package services

import (
	"context"

	"sealdrive/internal/domain/models"
)

// RevocationService removes grants. A folder revoke cascades through the
// whole subtree for the same recipient.
type RevocationService interface {
	// Revoke deletes the grant. Revoking an absent grant is a no-op.
	// A PartialCascadeError means the grant is gone but some descendant
	// grants remain and were journaled for replay.
	Revoke(ctx context.Context, req *RevokeRequest) (*models.CascadeReport, error)

	// ReplayFolderCascade reruns the descendant cleanup of a folder revoke
	ReplayFolderCascade(ctx context.Context, ownerID, folderID, recipientID string) (*models.CascadeReport, error)
}

// RevokeRequest identifies one grant. The caller may be its owner or its recipient.
type RevokeRequest struct {
	CallerID string
	Kind     models.NodeKind
	GrantID  string
}
