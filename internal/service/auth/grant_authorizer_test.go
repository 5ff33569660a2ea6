package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/repository/memory"
)

type fixture struct {
	store *memory.Store
	authz *GrantAuthorizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	for _, id := range []string{"owner", "u"} {
		require.NoError(t, store.Users().Ensure(context.Background(), &models.User{ID: id, Email: id + "@example.com"}))
	}
	return &fixture{
		store: store,
		authz: NewGrantAuthorizer(store.Folders(), store.Files(), store.Grants()),
	}
}

func (f *fixture) folder(t *testing.T, name string, parent *models.Folder) *models.Folder {
	t.Helper()
	folder := &models.Folder{OwnerID: "owner", Name: name}
	if parent != nil {
		folder.ParentID = &parent.ID
	}
	require.NoError(t, f.store.Folders().Create(context.Background(), folder))
	return folder
}

func (f *fixture) file(t *testing.T, name string, folder *models.Folder) *models.File {
	t.Helper()
	file := &models.File{OwnerID: "owner", Name: name, WrappedKey: "owner-key", StoragePath: name}
	if folder != nil {
		file.FolderID = &folder.ID
	}
	require.NoError(t, f.store.Files().Create(context.Background(), file))
	return file
}

func (f *fixture) grantFolder(t *testing.T, folder *models.Folder, permission models.Permission) {
	t.Helper()
	require.NoError(t, f.store.Grants().UpsertFolderGrant(context.Background(), &models.FolderGrant{
		FolderID: folder.ID, OwnerID: "owner", SharedWith: "u", Permission: permission,
	}))
}

func TestResolveFolder_NearestGrantWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	top := f.folder(t, "top", nil)
	mid := f.folder(t, "mid", top)
	leaf := f.folder(t, "leaf", mid)

	f.grantFolder(t, top, models.PermissionView)
	f.grantFolder(t, mid, models.PermissionEdit)

	decision, err := f.authz.ResolveFolder(ctx, "u", leaf.ID)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, mid.ID, decision.ViaFolderID)
	require.Equal(t, models.PermissionEdit, decision.Permission)

	decision, err = f.authz.ResolveFolder(ctx, "owner", leaf.ID)
	require.NoError(t, err)
	require.True(t, decision.IsOwner)
}

func TestCanAccessFolder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	private := f.folder(t, "private", nil)

	_, err := f.authz.CanAccessFolder(ctx, "u", private.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.authz.CanAccessFolder(ctx, "u", "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	f.grantFolder(t, private, models.PermissionView)
	require.NoError(t, f.store.Folders().SetTrashed(ctx, []string{private.ID}, private.CreatedAt))
	_, err = f.authz.CanAccessFolder(ctx, "u", private.ID)
	require.ErrorIs(t, err, domain.ErrNotFound, "trashed folders are not reachable")
}

func TestCanSeeFile_VersusCanDecrypt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	shared := f.folder(t, "shared", nil)
	inside := f.file(t, "inside.bin", shared)
	loose := f.file(t, "loose.bin", nil)
	f.grantFolder(t, shared, models.PermissionView)

	tests := []struct {
		name        string
		fileID      string
		wantVisible bool
		wantDecrypt bool
	}{
		{"inherited visibility only", inside.ID, true, false},
		{"unshared root file", loose.ID, false, false},
		{"missing file", "missing", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visible, err := f.authz.CanSeeFile(ctx, "u", tt.fileID)
			require.NoError(t, err)
			require.Equal(t, tt.wantVisible, visible)

			decrypt, err := f.authz.CanDecrypt(ctx, "u", tt.fileID)
			require.NoError(t, err)
			require.Equal(t, tt.wantDecrypt, decrypt)
		})
	}

	require.NoError(t, f.store.Grants().UpsertFileGrant(ctx, &models.FileGrant{
		FileID: loose.ID, OwnerID: "owner", SharedWith: "u", WrappedKey: "k", Permission: models.PermissionView,
	}))
	visible, err := f.authz.CanSeeFile(ctx, "u", loose.ID)
	require.NoError(t, err)
	require.True(t, visible)
	decrypt, err := f.authz.CanDecrypt(ctx, "u", loose.ID)
	require.NoError(t, err)
	require.True(t, decrypt)

	decrypt, err = f.authz.CanDecrypt(ctx, "owner", inside.ID)
	require.NoError(t, err)
	require.True(t, decrypt)
}
