package services

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrBlobNotFound is returned by BlobStore.Get for unknown handles
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore holds opaque ciphertext. Implementations live in internal/blob.
type BlobStore interface {
	// Put stores r and returns the new handle and the number of bytes written
	Put(ctx context.Context, r io.Reader) (handle string, size int64, err error)

	// Get opens the blob for reading, ErrBlobNotFound if absent
	Get(ctx context.Context, handle string) (io.ReadCloser, error)

	// Delete removes the blob. Deleting a missing handle is not an error.
	Delete(ctx context.Context, handle string) error

	// PresignedDownloadURL returns a URL that serves the blob until ttl elapses
	PresignedDownloadURL(ctx context.Context, handle string, ttl time.Duration) (string, error)
}
