package drive

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"sealdrive/internal/blob"
	"sealdrive/internal/config"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
	"sealdrive/internal/domain/services"
	"sealdrive/internal/repository/memory"
	"sealdrive/internal/service/auth"
)

const (
	testQuota = 1 << 30
	blobRoot  = "/blobs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a settable clock shared by the services under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires every service over one memory store and an in-memory blob fs
type harness struct {
	store   *memory.Store
	fs      afero.Fs
	blobs   services.BlobStore
	grants  repositories.GrantRepository
	clock   *testClock
	authz   *auth.GrantAuthorizer
	folders services.FolderService
	files   services.FileService
	shares  services.ShareService
	syncer  services.SyncService
	revoker services.RevocationService
	trash   services.TrashService
	users   services.UserService
	sweeper *Sweeper
}

type harnessOption func(*harnessOptions)

type harnessOptions struct {
	wrapGrants func(repositories.GrantRepository) repositories.GrantRepository
	wrapBlobs  func(services.BlobStore) services.BlobStore
}

func withGrants(wrap func(repositories.GrantRepository) repositories.GrantRepository) harnessOption {
	return func(o *harnessOptions) { o.wrapGrants = wrap }
}

func withBlobs(wrap func(services.BlobStore) services.BlobStore) harnessOption {
	return func(o *harnessOptions) { o.wrapBlobs = wrap }
}

func newHarness(t require.TestingT, opts ...harnessOption) *harness {
	var o harnessOptions
	for _, opt := range opts {
		opt(&o)
	}

	store := memory.NewStore()
	fs := afero.NewMemMapFs()
	signer := blob.NewSigner("test-signing-key", "http://localhost:8080")

	var blobs services.BlobStore = blob.NewDiskStoreFs(afero.NewBasePathFs(fs, blobRoot), signer)
	if o.wrapBlobs != nil {
		blobs = o.wrapBlobs(blobs)
	}
	grants := store.Grants()
	if o.wrapGrants != nil {
		grants = o.wrapGrants(grants)
	}

	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	logger := testLogger()
	authz := auth.NewGrantAuthorizer(store.Folders(), store.Files(), grants)

	h := &harness{
		store:  store,
		fs:     fs,
		blobs:  blobs,
		grants: grants,
		clock:  clock,
		authz:  authz,
	}

	h.folders = NewFolderService(store.Folders(), store.Files(), logger)
	h.files = NewFileService(FileServiceDeps{
		Folders:    store.Folders(),
		Files:      store.Files(),
		Grants:     grants,
		Users:      store.Users(),
		Usage:      store.Usage(),
		Blobs:      blobs,
		TxManager:  store.TxManager(),
		Authorizer: authz,
		PresignTTL: time.Minute,
		Logger:     logger,
	})
	h.shares = NewShareService(ShareServiceDeps{
		Folders:    store.Folders(),
		Files:      store.Files(),
		Grants:     grants,
		Users:      store.Users(),
		Blobs:      blobs,
		Authorizer: authz,
		PresignTTL: time.Minute,
		Logger:     logger,
	})
	h.syncer = NewSyncService(store.Folders(), store.Files(), grants, store.Users(), logger)
	h.revoker = NewRevocationService(store.Folders(), store.Files(), grants, store.Journal(), logger)
	h.trash = NewTrashService(TrashServiceDeps{
		Folders:   store.Folders(),
		Files:     store.Files(),
		Grants:    grants,
		Users:     store.Users(),
		Usage:     store.Usage(),
		Blobs:     blobs,
		TxManager: store.TxManager(),
		Journal:   store.Journal(),
		Now:       clock.Now,
		Logger:    logger,
	})
	h.users = NewUserService(store.Users(), testQuota, logger)
	h.sweeper = NewSweeper(SweeperDeps{
		Trash:   h.trash,
		Revoker: h.revoker,
		Journal: store.Journal(),
		Policy: config.Policy{
			TrashRetention: 30 * 24 * time.Hour,
			SweepInterval:  time.Hour,
			SweepBatchSize: 50,
		},
		Now:    clock.Now,
		Logger: logger,
	})
	return h
}

// user provisions an account with a public key
func (h *harness) user(t require.TestingT, id string) *models.User {
	ctx := context.Background()
	claims := &models.AccessClaims{Email: id + "@example.com", Name: id}
	claims.Subject = id

	_, err := h.users.EnsureUser(ctx, claims)
	require.NoError(t, err)
	u, err := h.users.SetPublicKey(ctx, id, "pk-"+id)
	require.NoError(t, err)
	return u
}

func (h *harness) folder(t require.TestingT, owner, name string, parent *models.Folder) *models.Folder {
	req := &services.CreateFolderRequest{OwnerID: owner, Name: name}
	if parent != nil {
		req.ParentID = &parent.ID
	}
	f, err := h.folders.CreateFolder(context.Background(), req)
	require.NoError(t, err)
	return f
}

func (h *harness) upload(t require.TestingT, owner, name, content string, parent *models.Folder) *models.File {
	req := &services.UploadFileRequest{
		OwnerID:    owner,
		Name:       name,
		WrappedKey: "key-" + owner + "-" + name,
		Content:    strings.NewReader(content),
	}
	if parent != nil {
		req.FolderID = &parent.ID
	}
	f, err := h.files.UploadFile(context.Background(), req)
	require.NoError(t, err)
	return f
}

func (h *harness) shareFolder(t require.TestingT, owner, recipient string, folders ...*models.Folder) []models.FolderGrant {
	req := &services.ShareBulkRequest{OwnerID: owner, RecipientID: recipient}
	for _, f := range folders {
		req.Folders = append(req.Folders, services.FolderShareItem{FolderID: f.ID})
	}
	res, err := h.shares.ShareBulk(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, res.Skipped)
	return res.FolderGrants
}

func (h *harness) shareFile(t require.TestingT, owner, recipient string, file *models.File) *models.FileGrant {
	g, err := h.shares.ShareFile(context.Background(), &services.ShareFileRequest{
		OwnerID:     owner,
		FileID:      file.ID,
		RecipientID: recipient,
		WrappedKey:  "key-" + recipient + "-" + file.Name,
	})
	require.NoError(t, err)
	return g
}

func (h *harness) storageUsed(t require.TestingT, id string) int64 {
	u, err := h.store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u.StorageUsed
}

func (h *harness) blobExists(t require.TestingT, handle string) bool {
	rc, err := h.blobs.Get(context.Background(), handle)
	if err != nil {
		require.ErrorIs(t, err, services.ErrBlobNotFound)
		return false
	}
	require.NoError(t, rc.Close())
	return true
}

// grantsFor returns every file and folder grant sharedWith holds
func (h *harness) grantsFor(t require.TestingT, sharedWith string) ([]models.FileGrant, []models.FolderGrant) {
	ctx := context.Background()
	files, err := h.store.Grants().ListFileGrantsForRecipient(ctx, sharedWith, nil)
	require.NoError(t, err)
	folders, err := h.store.Grants().ListFolderGrantsForRecipient(ctx, sharedWith, nil)
	require.NoError(t, err)
	return files, folders
}
