package models

import (
	"time"
)

// File is the metadata row for one encrypted blob. The server never holds
// the plaintext or the unwrapped key; WrappedKey is the owner's own copy of
// the file key, encrypted client-side.
type File struct {
	ID          string     `json:"id" db:"id"`
	OwnerID     string     `json:"owner_id" db:"owner_id"`
	FolderID    *string    `json:"folder_id" db:"folder_id"` // NULL = root level
	Name        string     `json:"name" db:"name"`           // Original file name
	MimeType    string     `json:"mime_type" db:"mime_type"`
	StoragePath string     `json:"-" db:"storage_path"` // Opaque blob handle
	Size        int64      `json:"size" db:"size"`
	WrappedKey  string     `json:"wrapped_key,omitempty" db:"wrapped_key"`
	IsDeleted   bool       `json:"is_deleted" db:"is_deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	// BlobReleasedAt is set once the ciphertext has been reclaimed from blob
	// storage (at soft-delete). A restored file with this set has no content.
	BlobReleasedAt *time.Time `json:"blob_released_at,omitempty" db:"blob_released_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsLive reports whether the file is present and not in trash.
func (f *File) IsLive() bool {
	return f != nil && !f.IsDeleted
}

// HasContent reports whether the ciphertext is still held in blob storage.
func (f *File) HasContent() bool {
	return f.BlobReleasedAt == nil
}

// Metadata returns a copy without any key material, for responses addressed
// to someone other than the owner.
func (f File) Metadata() File {
	f.WrappedKey = ""
	return f
}
