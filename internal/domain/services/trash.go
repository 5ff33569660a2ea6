package services

import (
	"context"
	"time"

	"sealdrive/internal/domain/models"
)

// TrashService drives ACTIVE -> TRASHED -> {ACTIVE, PURGED}
type TrashService interface {
	// SoftDelete trashes a node (recursively for folders) and reclaims blobs
	SoftDelete(ctx context.Context, ownerID string, kind models.NodeKind, id string) (*models.CascadeReport, error)

	// Restore flips a trashed node (recursively for folders) back to active
	Restore(ctx context.Context, ownerID string, kind models.NodeKind, id string) (*models.CascadeReport, error)

	// Purge irreversibly deletes a trashed node. Absent ids are a no-op.
	Purge(ctx context.Context, ownerID string, kind models.NodeKind, id string) (*models.CascadeReport, error)

	// ListTrash lists the owner's top-level trashed items
	ListTrash(ctx context.Context, ownerID string) (*TrashListing, error)

	// PurgeExpired purges trash roots of every owner trashed before cutoff
	PurgeExpired(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// TrashListing holds the top-level trashed items of an owner
type TrashListing struct {
	Folders []models.Folder `json:"folders"`
	Files   []models.File   `json:"files"`
}
