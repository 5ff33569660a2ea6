package models

import "time"

// Permission is the access level a grant carries
type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

// Valid reports whether p is a known permission level.
func (p Permission) Valid() bool {
	return p == PermissionView || p == PermissionEdit
}

// OrDefault returns p, or view when p is empty.
func (p Permission) OrDefault() Permission {
	if p == "" {
		return PermissionView
	}
	return p
}

// FileGrant makes a file visible and decryptable to SharedWith.
// WrappedKey is the file key re-encrypted under the recipient's public key.
type FileGrant struct {
	ID         string     `json:"id" db:"id"`
	FileID     string     `json:"file_id" db:"file_id"`
	OwnerID    string     `json:"owner_id" db:"owner_id"`
	SharedWith string     `json:"shared_with" db:"shared_with"`
	WrappedKey string     `json:"wrapped_key" db:"wrapped_key"`
	Permission Permission `json:"permission" db:"permission"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// FolderGrant makes a folder and its whole subtree visible to SharedWith.
// It carries no key; decryptability comes only from FileGrants.
type FolderGrant struct {
	ID         string     `json:"id" db:"id"`
	FolderID   string     `json:"folder_id" db:"folder_id"`
	OwnerID    string     `json:"owner_id" db:"owner_id"`
	SharedWith string     `json:"shared_with" db:"shared_with"`
	Permission Permission `json:"permission" db:"permission"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}
