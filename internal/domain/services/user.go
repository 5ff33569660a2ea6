package services

import (
	"context"

	"sealdrive/internal/domain/models"
)

// UserService manages the account mirror used by sharing and quota
type UserService interface {
	// EnsureUser provisions the caller on first sight from token claims
	EnsureUser(ctx context.Context, claims *models.AccessClaims) (*models.User, error)

	GetMe(ctx context.Context, userID string) (*models.User, error)

	SetPublicKey(ctx context.Context, userID, publicKey string) (*models.User, error)

	// LookupByEmail returns the public identity (with public key) of a recipient
	LookupByEmail(ctx context.Context, email string) (*models.UserSummary, error)
}
