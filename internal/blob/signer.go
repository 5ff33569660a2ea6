package blob

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const downloadAudience = "blob-download"

// ErrInvalidToken is returned for expired, malformed, or mismatched download tokens
var ErrInvalidToken = errors.New("invalid download token")

// Signer issues and checks short-lived download tokens. A token is an HS256
// JWT whose subject is the blob handle.
type Signer struct {
	key     []byte
	baseURL string
	now     func() time.Time
}

// NewSigner creates a signer that builds URLs under baseURL
func NewSigner(key, baseURL string) *Signer {
	return &Signer{
		key:     []byte(key),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// URL returns a download URL for handle valid for ttl
func (s *Signer) URL(handle string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   handle,
		Audience:  jwt.ClaimStrings{downloadAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign download token: %w", err)
	}

	return fmt.Sprintf("%s/blobs/%s?token=%s", s.baseURL, url.PathEscape(handle), url.QueryEscape(token)), nil
}

// Verify checks that token is a live download token for handle
func (s *Signer) Verify(token, handle string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(downloadAudience),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject != handle {
		return fmt.Errorf("%w: token issued for another blob", ErrInvalidToken)
	}
	return nil
}
