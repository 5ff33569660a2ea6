package repositories

import (
	"context"
	"time"

	"sealdrive/internal/domain/models"
)

// UsageRepository opens and closes billing usage intervals
type UsageRepository interface {
	// Open starts an interval for a freshly stored file
	Open(ctx context.Context, interval *models.UsageInterval) error

	// CloseOpen sets effective_to on the file's open interval; a no-op when
	// none is open
	CloseOpen(ctx context.Context, fileID string, at time.Time) error
}
