package services

import (
	"context"

	"sealdrive/internal/domain/models"
)

// SyncService finds (recipient, file) pairs that are visible but not yet decryptable
type SyncService interface {
	// ScanPendingSync scans a file or folder the caller owns
	ScanPendingSync(ctx context.Context, ownerID string, kind models.NodeKind, targetID string) ([]models.PendingSync, error)
}
