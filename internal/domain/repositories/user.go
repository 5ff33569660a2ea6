package repositories

import (
	"context"

	"sealdrive/internal/domain/models"
)

// UserRepository stores account rows and the per-owner storage counter.
// The counter is only ever changed with atomic increments in the store.
type UserRepository interface {
	// Ensure inserts the user if absent and refreshes email and display name otherwise
	Ensure(ctx context.Context, user *models.User) error

	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	SetPublicKey(ctx context.Context, id, publicKey string) error

	// ReserveStorage adds bytes to storage_used only if the result stays
	// within storage_limit. Returns false when the reservation would exceed it.
	ReserveStorage(ctx context.Context, id string, bytes int64) (bool, error)

	// ReleaseStorage subtracts bytes from storage_used, clamped at zero
	ReleaseStorage(ctx context.Context, id string, bytes int64) error
}
