// Package blob implements the ciphertext stores behind services.BlobStore
// and the signed URLs used to download from them.
package blob

import (
	"fmt"
	"path"

	"github.com/google/uuid"
)

// newHandle returns a fresh opaque blob handle
func newHandle() string {
	return uuid.NewString()
}

// validHandle rejects anything that is not a handle issued by newHandle, so
// a handle can never address a path outside the store.
func validHandle(handle string) error {
	if _, err := uuid.Parse(handle); err != nil {
		return fmt.Errorf("invalid blob handle %q", handle)
	}
	return nil
}

// shardedPath spreads blobs over 256 directories by handle prefix
func shardedPath(handle string) string {
	return path.Join(handle[:2], handle)
}
