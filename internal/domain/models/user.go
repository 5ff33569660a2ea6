package models

import "time"

// User is an account known to the store. Identity is issued elsewhere; the
// row only mirrors what sharing and quota need.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	PublicKey    string    `json:"public_key" db:"public_key"` // Opaque, client-generated
	StorageUsed  int64     `json:"storage_used" db:"storage_used"`
	StorageLimit int64     `json:"storage_limit" db:"storage_limit"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// UserSummary is the identity attached to shared records and sync results.
type UserSummary struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PublicKey   string `json:"public_key,omitempty"`
}

// Summary returns the public identity of u.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PublicKey:   u.PublicKey,
	}
}
