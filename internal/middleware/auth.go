package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"sealdrive/internal/auth"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/services"
	"sealdrive/internal/httputil"
)

// publicPrefixes are served without a bearer token. Blob downloads carry
// their own signed token in the query string.
var publicPrefixes = []string{"/health", "/blobs/"}

// Auth verifies the bearer token, provisions the caller on first sight and
// stores the claims in the request context.
func Auth(verifier auth.TokenVerifier, users services.UserService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				httputil.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if _, err := users.EnsureUser(r.Context(), claims); err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					httputil.RespondError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				logger.Error("failed to provision user",
					"user_id", claims.GetUserID(),
					"error", err,
				)
				httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, httputil.WithClaims(r, claims))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func isPublic(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
