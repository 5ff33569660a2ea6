package drive

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/services"
)

func countBlobs(t *testing.T, h *harness) int {
	t.Helper()
	n := 0
	err := afero.Walk(h.fs, blobRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestUpload_QuotaExceeded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.Users().Ensure(ctx, &models.User{ID: "tight", Email: "tight@example.com", StorageLimit: 10}))

	_, err := h.files.UploadFile(ctx, &services.UploadFileRequest{
		OwnerID:    "tight",
		Name:       "big.bin",
		WrappedKey: "k",
		Content:    strings.NewReader("more than ten bytes"),
	})
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	require.Zero(t, h.storageUsed(t, "tight"))
	require.Zero(t, countBlobs(t, h), "rejected upload must not leave a blob behind")

	f, err := h.files.UploadFile(ctx, &services.UploadFileRequest{
		OwnerID:    "tight",
		Name:       "small.bin",
		WrappedKey: "k",
		Content:    strings.NewReader("ten bytes!"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), f.Size)
	require.Equal(t, "application/octet-stream", f.MimeType)
	require.Equal(t, int64(10), h.storageUsed(t, "tight"))
}

func TestSoftDeleteFile_ReleasesBlobAndQuota(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "owner")
	f := h.upload(t, "owner", "a.bin", "0123456789", nil)
	require.Equal(t, int64(10), h.storageUsed(t, "owner"))

	report, err := h.trash.SoftDelete(ctx, "owner", models.NodeKindFile, f.ID)
	require.NoError(t, err)
	require.True(t, report.Applied)
	require.True(t, report.Complete)
	require.Equal(t, int64(10), report.BytesFreed)

	require.Zero(t, h.storageUsed(t, "owner"))
	require.False(t, h.blobExists(t, f.StoragePath))

	intervals := h.store.UsageIntervals()
	require.Len(t, intervals, 1)
	require.NotNil(t, intervals[0].EffectiveTo)

	_, err = h.trash.SoftDelete(ctx, "owner", models.NodeKindFile, f.ID)
	require.ErrorIs(t, err, domain.ErrNotFound, "already trashed")

	listing, err := h.trash.ListTrash(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, listing.Files, 1)
}

func TestRestoreFile_ContentUnavailable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "owner")
	f := h.upload(t, "owner", "a.bin", "ciphertext", nil)

	_, err := h.trash.SoftDelete(ctx, "owner", models.NodeKindFile, f.ID)
	require.NoError(t, err)

	report, err := h.trash.Restore(ctx, "owner", models.NodeKindFile, f.ID)
	require.NoError(t, err)
	require.True(t, report.Applied)
	require.Equal(t, []string{f.ID}, report.ContentUnavailable)

	restored, err := h.files.GetFile(ctx, "owner", f.ID)
	require.NoError(t, err)
	require.False(t, restored.HasContent())

	_, err = h.files.GetDownload(ctx, "owner", f.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	report, err = h.trash.Restore(ctx, "owner", models.NodeKindFile, f.ID)
	require.NoError(t, err)
	require.False(t, report.Applied, "restoring a live file is a no-op")
}

func TestSoftDeleteFolder_Recursive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "owner")

	root := h.folder(t, "owner", "root", nil)
	child := h.folder(t, "owner", "child", root)
	grandchild := h.folder(t, "owner", "grandchild", child)
	a := h.upload(t, "owner", "a.bin", "aaaa", root)
	b := h.upload(t, "owner", "b.bin", "bbbbbb", grandchild)
	keep := h.upload(t, "owner", "keep.bin", "k", nil)

	report, err := h.trash.SoftDelete(ctx, "owner", models.NodeKindFolder, root.ID)
	require.NoError(t, err)
	require.True(t, report.Complete)
	require.Equal(t, 3, report.Folders)
	require.Equal(t, 2, report.Files)
	require.Equal(t, int64(10), report.BytesFreed)
	require.Equal(t, int64(1), h.storageUsed(t, "owner"))

	for _, f := range []*models.File{a, b} {
		stored, err := h.store.Files().GetByID(ctx, f.ID)
		require.NoError(t, err)
		require.True(t, stored.IsDeleted)
		require.False(t, h.blobExists(t, f.StoragePath))
	}
	require.True(t, h.blobExists(t, keep.StoragePath))

	listing, err := h.trash.ListTrash(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, listing.Folders, 1, "only the trashed root is listed")
	require.Equal(t, root.ID, listing.Folders[0].ID)
	require.Empty(t, listing.Files)

	restored, err := h.trash.Restore(ctx, "owner", models.NodeKindFolder, root.ID)
	require.NoError(t, err)
	require.Equal(t, 3, restored.Folders)
	require.Equal(t, 2, restored.Files)
	require.ElementsMatch(t, []string{a.ID, b.ID}, restored.ContentUnavailable)

	tree, err := h.folders.GetTree(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, tree.Folders, 1)
}

func TestSoftDeleteFolder_HeldBlobReportedIncomplete(t *testing.T) {
	ctx := context.Background()
	var flaky *flakyBlobs
	h := newHarness(t, withFlakyBlobs(&flaky))
	h.user(t, "owner")

	dir := h.folder(t, "owner", "dir", nil)
	stuck := h.upload(t, "owner", "stuck.bin", "12345", dir)
	h.upload(t, "owner", "fine.bin", "123", dir)
	flaky.failDelete(stuck.StoragePath, 1)

	report, err := h.trash.SoftDelete(ctx, "owner", models.NodeKindFolder, dir.ID)
	require.NoError(t, err)
	require.False(t, report.Complete)
	require.Equal(t, []string{"file:" + stuck.ID}, report.FailedItems)
	require.Equal(t, int64(3), report.BytesFreed)
	require.Equal(t, int64(5), h.storageUsed(t, "owner"), "held blob stays charged")

	stored, err := h.store.Files().GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	require.True(t, stored.IsDeleted)
	require.True(t, stored.HasContent())

	// Purge finishes the job and charges the bytes off exactly once
	purged, err := h.trash.Purge(ctx, "owner", models.NodeKindFolder, dir.ID)
	require.NoError(t, err)
	require.True(t, purged.Complete)
	require.Equal(t, int64(5), purged.BytesFreed)
	require.Zero(t, h.storageUsed(t, "owner"))
	require.Zero(t, countBlobs(t, h))
}

func TestRestoreFolder_ReparentsWhenParentTrashed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "owner")

	parent := h.folder(t, "owner", "parent", nil)
	child := h.folder(t, "owner", "child", parent)

	_, err := h.trash.SoftDelete(ctx, "owner", models.NodeKindFolder, child.ID)
	require.NoError(t, err)
	_, err = h.trash.SoftDelete(ctx, "owner", models.NodeKindFolder, parent.ID)
	require.NoError(t, err)

	_, err = h.trash.Restore(ctx, "owner", models.NodeKindFolder, child.ID)
	require.NoError(t, err)

	restored, err := h.folders.GetFolder(ctx, "owner", child.ID)
	require.NoError(t, err)
	require.Nil(t, restored.ParentID)

	// A live sibling with the same name blocks the restore
	h.folder(t, "owner", "parent", nil)
	_, err = h.trash.Restore(ctx, "owner", models.NodeKindFolder, parent.ID)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestPurgeFile_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "owner")
	h.user(t, "u")

	gone := h.upload(t, "owner", "gone.bin", "1234567", nil)
	h.upload(t, "owner", "stays.bin", "123", nil)
	h.shareFile(t, "owner", "u", gone)

	_, err := h.trash.Purge(ctx, "owner", models.NodeKindFile, gone.ID)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict, "live files must be trashed first")

	_, err = h.trash.SoftDelete(ctx, "owner", models.NodeKindFile, gone.ID)
	require.NoError(t, err)

	first, err := h.trash.Purge(ctx, "owner", models.NodeKindFile, gone.ID)
	require.NoError(t, err)
	require.True(t, first.Applied)
	require.Equal(t, int64(1), first.FileGrantsRemoved)

	second, err := h.trash.Purge(ctx, "owner", models.NodeKindFile, gone.ID)
	require.NoError(t, err)
	require.False(t, second.Applied)

	require.Equal(t, int64(3), h.storageUsed(t, "owner"))
	_, err = h.store.Files().GetByID(ctx, gone.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	files, _ := h.grantsFor(t, "u")
	require.Empty(t, files)
}

// concurrently runs op twice and returns both reports
func concurrently(t *testing.T, op func() (*models.CascadeReport, error)) [2]*models.CascadeReport {
	t.Helper()
	var (
		wg      sync.WaitGroup
		reports [2]*models.CascadeReport
		errs    [2]error
	)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], errs[i] = op()
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	return reports
}

func TestPurgeFile_ConcurrentReleasesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withGatedBlobs(2))
	h.user(t, "owner")

	held := h.upload(t, "owner", "a.bin", "0123456789", nil)
	h.upload(t, "owner", "b.bin", "0123456789", nil)
	require.Equal(t, int64(20), h.storageUsed(t, "owner"))

	// Trashed with its blob still held, so purge owes the release
	require.NoError(t, h.store.Files().SetTrashed(ctx, []string{held.ID}, h.clock.Now()))

	reports := concurrently(t, func() (*models.CascadeReport, error) {
		return h.trash.Purge(ctx, "owner", models.NodeKindFile, held.ID)
	})

	require.Equal(t, int64(10), reports[0].BytesFreed+reports[1].BytesFreed)
	require.Equal(t, int64(10), h.storageUsed(t, "owner"))
	require.False(t, h.blobExists(t, held.StoragePath))
	_, err := h.store.Files().GetByID(ctx, held.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSoftDeleteFolder_ConcurrentReleasesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withGatedBlobs(2))
	h.user(t, "owner")

	dir := h.folder(t, "owner", "D", nil)
	inside := h.upload(t, "owner", "in.bin", "0123456789", dir)
	h.upload(t, "owner", "root.bin", "0123456789", nil)

	reports := concurrently(t, func() (*models.CascadeReport, error) {
		return h.trash.SoftDelete(ctx, "owner", models.NodeKindFolder, dir.ID)
	})

	require.Equal(t, int64(10), reports[0].BytesFreed+reports[1].BytesFreed)
	require.Equal(t, int64(10), h.storageUsed(t, "owner"))

	stored, err := h.store.Files().GetByID(ctx, inside.ID)
	require.NoError(t, err)
	require.True(t, stored.IsDeleted)
	require.False(t, stored.HasContent())

	// Purging afterwards has nothing left to release
	purged, err := h.trash.Purge(ctx, "owner", models.NodeKindFolder, dir.ID)
	require.NoError(t, err)
	require.Zero(t, purged.BytesFreed)
	require.Equal(t, int64(10), h.storageUsed(t, "owner"))
}

func TestPurgeFile_ForeignIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "owner")
	h.user(t, "mallory")
	f := h.upload(t, "owner", "a.bin", "x", nil)
	_, err := h.trash.SoftDelete(ctx, "owner", models.NodeKindFile, f.ID)
	require.NoError(t, err)

	report, err := h.trash.Purge(ctx, "mallory", models.NodeKindFile, f.ID)
	require.NoError(t, err)
	require.False(t, report.Applied)

	_, err = h.store.Files().GetByID(ctx, f.ID)
	require.NoError(t, err)
}

func TestPurgeFolder_PartialKeepsBlockedAncestors(t *testing.T) {
	ctx := context.Background()
	var flaky *flakyBlobs
	h := newHarness(t, withFlakyBlobs(&flaky))
	h.user(t, "owner")
	h.user(t, "u")

	top := h.folder(t, "owner", "top", nil)
	left := h.folder(t, "owner", "left", top)
	right := h.folder(t, "owner", "right", top)
	stuck := h.upload(t, "owner", "stuck.bin", "12345", left)
	h.upload(t, "owner", "ok.bin", "12", right)
	h.shareFolder(t, "owner", "u", top, right)

	// Blob survives soft-delete and then the first purge
	flaky.failDelete(stuck.StoragePath, 2)
	_, err := h.trash.SoftDelete(ctx, "owner", models.NodeKindFolder, top.ID)
	require.NoError(t, err)

	report, err := h.trash.Purge(ctx, "owner", models.NodeKindFolder, top.ID)
	require.ErrorIs(t, err, domain.ErrPartialCascade)
	require.False(t, report.Complete)
	require.Equal(t, 1, report.Files)
	require.Equal(t, 1, report.Folders, "only the unblocked folder goes")
	require.Equal(t, int64(1), report.FolderGrantsRemoved)

	_, err = h.store.Folders().GetByID(ctx, right.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	for _, id := range []string{top.ID, left.ID} {
		_, err = h.store.Folders().GetByID(ctx, id)
		require.NoError(t, err)
	}

	pending, err := h.store.Journal().ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, models.CascadePurgeFolder, pending[0].Kind)
	require.Equal(t, top.ID, pending[0].NodeID)

	result, err := h.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Replayed)

	_, err = h.store.Folders().GetByID(ctx, top.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Zero(t, h.storageUsed(t, "owner"))
	require.Zero(t, countBlobs(t, h))

	pending, err = h.store.Journal().ListPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	_, folders := h.grantsFor(t, "u")
	require.Empty(t, folders)
}

func TestSweeper_PurgesExpiredTrash(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "owner")

	old := h.folder(t, "owner", "old", nil)
	h.upload(t, "owner", "inside.bin", "xx", old)
	loose := h.upload(t, "owner", "loose.bin", "yyy", nil)

	_, err := h.trash.SoftDelete(ctx, "owner", models.NodeKindFolder, old.ID)
	require.NoError(t, err)
	_, err = h.trash.SoftDelete(ctx, "owner", models.NodeKindFile, loose.ID)
	require.NoError(t, err)

	h.clock.Advance(29 * 24 * time.Hour)
	fresh := h.upload(t, "owner", "fresh.bin", "z", nil)
	_, err = h.trash.SoftDelete(ctx, "owner", models.NodeKindFile, fresh.ID)
	require.NoError(t, err)

	result, err := h.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Purged, "nothing is past retention yet")

	h.clock.Advance(2 * 24 * time.Hour)
	result, err = h.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.Purged)

	listing, err := h.trash.ListTrash(ctx, "owner")
	require.NoError(t, err)
	require.Empty(t, listing.Folders)
	require.Len(t, listing.Files, 1)
	require.Equal(t, fresh.ID, listing.Files[0].ID)
}

func TestTrash_RejectsUnknownKind(t *testing.T) {
	h := newHarness(t)
	_, err := h.trash.SoftDelete(context.Background(), "owner", models.NodeKind("blob"), "x")
	require.ErrorIs(t, err, domain.ErrValidation)
}
