package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
)

func seedUser(t *testing.T, s *Store, id string, limit int64) {
	t.Helper()
	require.NoError(t, s.Users().Ensure(context.Background(), &models.User{ID: id, Email: id + "@example.com", StorageLimit: limit}))
}

func TestReserveStorage_RespectsLimit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUser(t, s, "alice", 100)

	ok, err := s.Users().ReserveStorage(ctx, "alice", 60)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Users().ReserveStorage(ctx, "alice", 41)
	require.NoError(t, err)
	require.False(t, ok, "reservation past the limit must be refused")

	require.NoError(t, s.Users().ReleaseStorage(ctx, "alice", 500))
	u, err := s.Users().GetByID(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(0), u.StorageUsed, "release clamps at zero")
}

func TestEnsure_KeepsCounter(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUser(t, s, "alice", 100)

	_, err := s.Users().ReserveStorage(ctx, "alice", 10)
	require.NoError(t, err)

	again := &models.User{ID: "alice", Email: "new@example.com", StorageLimit: 999}
	require.NoError(t, s.Users().Ensure(ctx, again))
	require.Equal(t, int64(10), again.StorageUsed)
	require.Equal(t, int64(100), again.StorageLimit)
	require.Equal(t, "new@example.com", again.Email)
}

func TestFolders_TrashRoots(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUser(t, s, "alice", 100)
	folders := s.Folders()

	parent := &models.Folder{OwnerID: "alice", Name: "parent"}
	require.NoError(t, folders.Create(ctx, parent))
	child := &models.Folder{OwnerID: "alice", Name: "child", ParentID: &parent.ID}
	require.NoError(t, folders.Create(ctx, child))

	at := time.Now()
	require.NoError(t, folders.SetTrashed(ctx, []string{parent.ID, child.ID}, at))

	roots, err := folders.ListTrashRoots(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, roots, 1)
	require.Equal(t, parent.ID, roots[0].ID)

	expired, err := folders.ListExpiredTrashRoots(ctx, at.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	expired, err = folders.ListExpiredTrashRoots(ctx, at.Add(-time.Second), 10)
	require.NoError(t, err)
	require.Empty(t, expired)
}

func TestFolders_DeleteRejectsOrphans(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUser(t, s, "alice", 100)
	folders := s.Folders()

	parent := &models.Folder{OwnerID: "alice", Name: "parent"}
	require.NoError(t, folders.Create(ctx, parent))
	child := &models.Folder{OwnerID: "alice", Name: "child", ParentID: &parent.ID}
	require.NoError(t, folders.Create(ctx, child))

	_, err := folders.DeleteByIDs(ctx, []string{parent.ID})
	require.True(t, errors.Is(err, domain.ErrConflict))

	n, err := folders.DeleteByIDs(ctx, []string{child.ID, parent.ID})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestGrants_OnePerRecipient(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUser(t, s, "alice", 100)
	file := &models.File{OwnerID: "alice", Name: "a.pdf", StoragePath: "h", WrappedKey: "k"}
	require.NoError(t, s.Files().Create(ctx, file))

	grants := s.Grants()
	first := &models.FileGrant{FileID: file.ID, OwnerID: "alice", SharedWith: "bob", WrappedKey: "k1", Permission: models.PermissionView}
	require.NoError(t, grants.CreateFileGrant(ctx, first))

	dup := &models.FileGrant{FileID: file.ID, OwnerID: "alice", SharedWith: "bob", WrappedKey: "k2"}
	err := grants.CreateFileGrant(ctx, dup)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, first.ID, conflict.ResourceID)

	upsert := &models.FileGrant{FileID: file.ID, OwnerID: "alice", SharedWith: "bob", WrappedKey: "k3", Permission: models.PermissionEdit}
	require.NoError(t, grants.UpsertFileGrant(ctx, upsert))
	require.Equal(t, first.ID, upsert.ID)

	got, err := grants.ListFileGrantsForRecipient(ctx, "bob", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "k3", got[0].WrappedKey)

	deleted, err := s.Files().Delete(ctx, file.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	got, err = grants.ListFileGrantsForRecipient(ctx, "bob", nil)
	require.NoError(t, err)
	require.Empty(t, got, "grants go with their file")
}

func TestJournal_RecordBumpsAttempts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	j := s.Journal()

	task := &models.CascadeTask{Kind: models.CascadeRevokeFolder, OwnerID: "alice", NodeID: "f1", Recipient: "bob", LastError: "boom"}
	require.NoError(t, j.Record(ctx, task))
	again := &models.CascadeTask{Kind: models.CascadeRevokeFolder, OwnerID: "alice", NodeID: "f1", Recipient: "bob", LastError: "boom again"}
	require.NoError(t, j.Record(ctx, again))

	require.Equal(t, task.ID, again.ID)
	require.Equal(t, 2, again.Attempts)

	pending, err := j.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, j.Complete(ctx, task.ID))
	pending, err = j.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
	require.ErrorIs(t, j.Complete(ctx, task.ID), domain.ErrNotFound)
}

func TestFiles_MarkBlobReleasedOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUser(t, s, "alice", 100)

	file := &models.File{OwnerID: "alice", Name: "a.bin", StoragePath: "h", WrappedKey: "k", Size: 10}
	require.NoError(t, s.Files().Create(ctx, file))

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	flipped, err := s.Files().MarkBlobReleased(ctx, file.ID, at)
	require.NoError(t, err)
	require.True(t, flipped)

	flipped, err = s.Files().MarkBlobReleased(ctx, file.ID, at.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, flipped, "second mark must not flip again")

	stored, err := s.Files().GetByID(ctx, file.ID)
	require.NoError(t, err)
	require.Equal(t, at, *stored.BlobReleasedAt)

	flipped, err = s.Files().MarkBlobReleased(ctx, "missing", at)
	require.NoError(t, err)
	require.False(t, flipped)
}
