package auth

import "sealdrive/internal/domain/models"

// TokenVerifier validates bearer tokens issued by the identity provider.
// The middleware only depends on this, so the key source can change freely.
type TokenVerifier interface {
	// VerifyToken validates a token string and returns the parsed claims.
	// Returns domain.ErrUnauthorized if the token is invalid, expired, or has an invalid signature.
	VerifyToken(tokenString string) (*models.AccessClaims, error)

	// Close releases any resources held by the verifier (e.g., the JWKS refresh goroutine).
	Close() error
}
