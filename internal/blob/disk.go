package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/spf13/afero"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/services"
)

// DiskStore keeps each blob as a file under a base directory, sharded by
// handle prefix. Writes land in a temp file and are renamed into place.
type DiskStore struct {
	fs     afero.Fs
	signer *Signer
}

// NewDiskStore roots a store at dir on the host filesystem
func NewDiskStore(dir string, signer *Signer) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return NewDiskStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir), signer), nil
}

// NewDiskStoreFs builds a store on any afero filesystem (MemMapFs in tests)
func NewDiskStoreFs(fsys afero.Fs, signer *Signer) *DiskStore {
	return &DiskStore{fs: fsys, signer: signer}
}

func (d *DiskStore) Put(ctx context.Context, r io.Reader) (string, int64, error) {
	handle := newHandle()
	final := shardedPath(handle)
	tmp := final + ".part"

	if err := d.fs.MkdirAll(path.Dir(final), 0o700); err != nil {
		return "", 0, &domain.StorageError{Op: "put", Handle: handle, Err: err}
	}

	f, err := d.fs.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, &domain.StorageError{Op: "put", Handle: handle, Err: err}
	}

	n, err := io.Copy(f, contextReader{ctx: ctx, r: r})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = d.fs.Remove(tmp)
		return "", 0, &domain.StorageError{Op: "put", Handle: handle, Err: err}
	}

	if err := d.fs.Rename(tmp, final); err != nil {
		_ = d.fs.Remove(tmp)
		return "", 0, &domain.StorageError{Op: "put", Handle: handle, Err: err}
	}

	return handle, n, nil
}

func (d *DiskStore) Get(ctx context.Context, handle string) (io.ReadCloser, error) {
	if err := validHandle(handle); err != nil {
		return nil, services.ErrBlobNotFound
	}

	f, err := d.fs.Open(shardedPath(handle))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.ErrBlobNotFound
		}
		return nil, &domain.StorageError{Op: "get", Handle: handle, Err: err}
	}
	return f, nil
}

func (d *DiskStore) Delete(ctx context.Context, handle string) error {
	if err := validHandle(handle); err != nil {
		return nil
	}

	if err := d.fs.Remove(shardedPath(handle)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &domain.StorageError{Op: "delete", Handle: handle, Err: err}
	}
	return nil
}

func (d *DiskStore) PresignedDownloadURL(ctx context.Context, handle string, ttl time.Duration) (string, error) {
	return presign(d.signer, handle, ttl)
}

func presign(signer *Signer, handle string, ttl time.Duration) (string, error) {
	u, err := signer.URL(handle, ttl)
	if err != nil {
		return "", &domain.StorageError{Op: "presign", Handle: handle, Err: err}
	}
	return u, nil
}

// contextReader stops a copy once ctx is cancelled
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
