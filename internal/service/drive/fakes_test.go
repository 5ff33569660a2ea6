package drive

import (
	"context"
	"errors"
	"sync"
	"time"

	"sealdrive/internal/domain"
	"sealdrive/internal/domain/repositories"
	"sealdrive/internal/domain/services"
)

var errInjected = errors.New("injected failure")

// flakyBlobs fails Delete for chosen handles a set number of times
type flakyBlobs struct {
	services.BlobStore

	mu    sync.Mutex
	fails map[string]int
}

func (f *flakyBlobs) failDelete(handle string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[handle] = times
}

func (f *flakyBlobs) Delete(ctx context.Context, handle string) error {
	f.mu.Lock()
	if f.fails[handle] > 0 {
		f.fails[handle]--
		f.mu.Unlock()
		return &domain.StorageError{Op: "delete", Handle: handle, Err: errInjected}
	}
	f.mu.Unlock()
	return f.BlobStore.Delete(ctx, handle)
}

func withFlakyBlobs(out **flakyBlobs) harnessOption {
	return withBlobs(func(b services.BlobStore) services.BlobStore {
		*out = &flakyBlobs{BlobStore: b, fails: make(map[string]int)}
		return *out
	})
}

// gatedBlobs holds every Delete until n of them are in flight, so concurrent
// callers all pass their reads before any side effect lands
type gatedBlobs struct {
	services.BlobStore

	mu      sync.Mutex
	waiting int
	open    chan struct{}
}

func (g *gatedBlobs) Delete(ctx context.Context, handle string) error {
	g.mu.Lock()
	g.waiting--
	if g.waiting == 0 {
		close(g.open)
	}
	g.mu.Unlock()

	select {
	case <-g.open:
	case <-time.After(5 * time.Second):
		return &domain.StorageError{Op: "delete", Handle: handle, Err: errInjected}
	}
	return g.BlobStore.Delete(ctx, handle)
}

func withGatedBlobs(n int) harnessOption {
	return withBlobs(func(b services.BlobStore) services.BlobStore {
		return &gatedBlobs{BlobStore: b, waiting: n, open: make(chan struct{})}
	})
}

// flakyGrants fails the recipient-scoped file grant delete a set number of times
type flakyGrants struct {
	repositories.GrantRepository

	mu    sync.Mutex
	fails int
}

func (f *flakyGrants) DeleteFileGrantsForRecipient(ctx context.Context, sharedWith string, fileIDs []string) (int64, error) {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return 0, errInjected
	}
	f.mu.Unlock()
	return f.GrantRepository.DeleteFileGrantsForRecipient(ctx, sharedWith, fileIDs)
}

func withFlakyGrants(out **flakyGrants) harnessOption {
	return withGrants(func(g repositories.GrantRepository) repositories.GrantRepository {
		*out = &flakyGrants{GrantRepository: g}
		return *out
	})
}
