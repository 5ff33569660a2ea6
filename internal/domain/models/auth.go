package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAuthenticated is the only role allowed to reach the drive API
const RoleAuthenticated = "authenticated"

// AccessClaims is the JWT payload issued by the identity provider. The
// subject becomes the drive user id; email and name seed the account.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

// GetUserID returns the drive user id carried in the subject claim
func (c *AccessClaims) GetUserID() string {
	return c.Subject
}

// Validate is called by the jwt parser after the registered claims pass.
// Tokens without a subject, and anonymous sessions, are rejected.
func (c *AccessClaims) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return errors.New("token missing subject claim")
	}
	if c.Role != "" && c.Role != RoleAuthenticated {
		return fmt.Errorf("token has role %q", c.Role)
	}
	return nil
}

// DisplayName falls back to the email's local part when the provider sent no name
func (c *AccessClaims) DisplayName() string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(c.Email, "@")
	return local
}
