package httputil

import (
	"context"
	"net/http"

	"sealdrive/internal/domain/models"
)

type claimsKey struct{}

type callerKey struct{}

// caller is filled in by WithClaims so middleware wrapping the auth layer can
// read the user id after the inner handler returns
type caller struct {
	userID string
}

// TrackCaller makes a later WithClaims visible through r. Calling it again on
// an already tracked request is a no-op.
func TrackCaller(r *http.Request) *http.Request {
	if _, ok := r.Context().Value(callerKey{}).(*caller); ok {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), callerKey{}, &caller{}))
}

// WithClaims attaches the verified caller to the request
func WithClaims(r *http.Request, claims *models.AccessClaims) *http.Request {
	if c, ok := r.Context().Value(callerKey{}).(*caller); ok {
		c.userID = claims.GetUserID()
	}
	return r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims))
}

// GetClaims returns the verified caller, nil on public routes
func GetClaims(r *http.Request) *models.AccessClaims {
	claims, _ := r.Context().Value(claimsKey{}).(*models.AccessClaims)
	return claims
}

// GetUserID returns the caller's user id, "" on public routes or before
// authentication
func GetUserID(r *http.Request) string {
	if claims := GetClaims(r); claims != nil {
		return claims.GetUserID()
	}
	if c, ok := r.Context().Value(callerKey{}).(*caller); ok {
		return c.userID
	}
	return ""
}
