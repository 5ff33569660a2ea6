package blob

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dgraph-io/badger/v4"
	"sealdrive/internal/config"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/services"
)

var blobPrefix = []byte("blob/")

// defaultChunkSize bounds each stored value, keeping uploads and downloads
// from holding more than one chunk in memory
const defaultChunkSize = 1 << 20

// BadgerStore keeps blobs in an embedded badger database, split into chunks
// under blob/<handle>/<n> and committed by a manifest at blob/<handle>. It
// suits single-node deployments where a blob directory is inconvenient.
type BadgerStore struct {
	db        *badger.DB
	signer    *Signer
	chunkSize int
}

// OpenBadgerStore opens (or creates) a badger database at dir. An empty dir
// opens an in-memory database.
func OpenBadgerStore(dir string, signer *Signer) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger blob store: %w", err)
	}
	return &BadgerStore{db: db, signer: signer, chunkSize: defaultChunkSize}, nil
}

// Close flushes and closes the database
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func manifestKey(handle string) []byte {
	return append(append([]byte{}, blobPrefix...), handle...)
}

func chunkPrefix(handle string) []byte {
	return append(manifestKey(handle), '/')
}

func chunkKey(handle string, n uint64) []byte {
	return binary.BigEndian.AppendUint64(chunkPrefix(handle), n)
}

// manifest is the committed shape of a blob
type manifest struct {
	size   int64
	chunks uint64
}

func (m manifest) encode() []byte {
	buf := binary.BigEndian.AppendUint64(nil, uint64(m.size))
	return binary.BigEndian.AppendUint64(buf, m.chunks)
}

func decodeManifest(raw []byte) (manifest, error) {
	if len(raw) != 16 {
		return manifest{}, fmt.Errorf("corrupt manifest of %d bytes", len(raw))
	}
	return manifest{
		size:   int64(binary.BigEndian.Uint64(raw[:8])),
		chunks: binary.BigEndian.Uint64(raw[8:]),
	}, nil
}

// Put streams r into chunks through a write batch. The manifest is written
// only after every chunk is flushed, so a failed put is never visible.
func (b *BadgerStore) Put(ctx context.Context, r io.Reader) (string, int64, error) {
	handle := newHandle()
	src := io.LimitReader(contextReader{ctx: ctx, r: r}, config.MaxUploadBytes+1)

	fail := func(err error) (string, int64, error) {
		_ = b.deleteChunks(handle)
		return "", 0, &domain.StorageError{Op: "put", Handle: handle, Err: err}
	}

	wb := b.db.NewWriteBatch()
	var m manifest
	for {
		buf := make([]byte, b.chunkSize)
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			m.size += int64(n)
			if m.size > config.MaxUploadBytes {
				wb.Cancel()
				return fail(fmt.Errorf("blob exceeds %d bytes", config.MaxUploadBytes))
			}
			if setErr := wb.Set(chunkKey(handle, m.chunks), buf[:n]); setErr != nil {
				wb.Cancel()
				return fail(setErr)
			}
			m.chunks++
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			wb.Cancel()
			return fail(err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fail(err)
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(manifestKey(handle), m.encode())
	})
	if err != nil {
		return fail(err)
	}
	return handle, m.size, nil
}

func (b *BadgerStore) Get(ctx context.Context, handle string) (io.ReadCloser, error) {
	var m manifest
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(manifestKey(handle))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		m, err = decodeManifest(raw)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, services.ErrBlobNotFound
		}
		return nil, &domain.StorageError{Op: "get", Handle: handle, Err: err}
	}
	return &chunkReader{ctx: ctx, store: b, handle: handle, chunks: m.chunks}, nil
}

// chunkReader loads one chunk at a time
type chunkReader struct {
	ctx    context.Context
	store  *BadgerStore
	handle string
	next   uint64
	chunks uint64
	buf    []byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		if c.next >= c.chunks {
			return 0, io.EOF
		}
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
		chunk, err := c.store.readChunk(c.handle, c.next)
		if err != nil {
			return 0, &domain.StorageError{Op: "get", Handle: c.handle, Err: err}
		}
		c.buf = chunk
		c.next++
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *chunkReader) Close() error {
	c.buf = nil
	c.next = c.chunks
	return nil
}

func (b *BadgerStore) readChunk(handle string, n uint64) ([]byte, error) {
	var chunk []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(handle, n))
		if err != nil {
			return err
		}
		chunk, err = item.ValueCopy(nil)
		return err
	})
	return chunk, err
}

// Delete removes the manifest first, so readers stop seeing the blob before
// its chunks go
func (b *BadgerStore) Delete(ctx context.Context, handle string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(manifestKey(handle))
	})
	if err == nil {
		err = b.deleteChunks(handle)
	}
	if err != nil {
		return &domain.StorageError{Op: "delete", Handle: handle, Err: err}
	}
	return nil
}

func (b *BadgerStore) deleteChunks(handle string) error {
	prefix := chunkPrefix(handle)
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil || len(keys) == 0 {
		return err
	}

	wb := b.db.NewWriteBatch()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			wb.Cancel()
			return err
		}
	}
	return wb.Flush()
}

func (b *BadgerStore) PresignedDownloadURL(ctx context.Context, handle string, ttl time.Duration) (string, error) {
	return presign(b.signer, handle, ttl)
}

// RunGC reclaims value log space left by deleted blobs
func (b *BadgerStore) RunGC() error {
	err := b.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("badger value log gc: %w", err)
	}
	return nil
}
