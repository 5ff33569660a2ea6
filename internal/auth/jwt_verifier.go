package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
)

// JWKSVerifier implements TokenVerifier using the provider's published JWKS.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewJWKSVerifier creates a verifier that fetches public keys from jwksURL.
// The keys are cached and refreshed in the background until Close.
func NewJWKSVerifier(jwksURL string, logger *slog.Logger) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "jwks_url", jwksURL)

	return &JWKSVerifier{
		jwks:   jwks,
		cancel: cancel,
		logger: logger,
	}, nil
}

// VerifyToken validates a token and extracts its claims.
func (v *JWKSVerifier) VerifyToken(tokenString string) (*models.AccessClaims, error) {
	// Only asymmetric algorithms are accepted from the JWKS
	claims, err := parseClaims(tokenString, v.jwks.Keyfunc, "RS256", "ES256")
	if err != nil {
		v.logger.Debug("token rejected", "error", err)
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// Close stops the background JWKS refresh.
func (v *JWKSVerifier) Close() error {
	v.cancel()
	v.logger.Info("JWT verifier closed")
	return nil
}

// HMACVerifier verifies HS256 tokens signed with a shared secret. It serves
// local runs without an identity provider, and tests.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) VerifyToken(tokenString string) (*models.AccessClaims, error) {
	keyFunc := func(*jwt.Token) (any, error) { return v.secret, nil }
	claims, err := parseClaims(tokenString, keyFunc, "HS256")
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// Sign issues a token for claims, for local tooling and tests
func (v *HMACVerifier) Sign(claims *models.AccessClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *HMACVerifier) Close() error { return nil }

// parseClaims validates signature and expiry. Subject and role are checked by
// AccessClaims.Validate, which the parser calls.
func parseClaims(tokenString string, keyFunc jwt.Keyfunc, methods ...string) (*models.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.AccessClaims{}, keyFunc,
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.AccessClaims)
	if !ok || !token.Valid {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}
