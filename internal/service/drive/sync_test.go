package drive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/services"
)

func pendingByUser(p []models.PendingSync) map[string][]string {
	out := make(map[string][]string, len(p))
	for _, entry := range p {
		for _, f := range entry.Files {
			out[entry.User.ID] = append(out[entry.User.ID], f.Name)
		}
	}
	return out
}

func TestScanPendingSync_AncestorGrant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "owner")
	h.user(t, "u")

	top := h.folder(t, "owner", "top", nil)
	mid := h.folder(t, "owner", "mid", top)
	deep := h.upload(t, "owner", "deep.txt", "c1", mid)
	h.upload(t, "owner", "side.txt", "c2", top)
	h.shareFolder(t, "owner", "u", top)

	// a file deep in the tree picks up recipients of any ancestor
	pending, err := h.syncer.ScanPendingSync(ctx, "owner", models.NodeKindFile, deep.ID)
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"u": {"deep.txt"}}, pendingByUser(pending))

	// scanning a subfolder only reports its own subtree
	pending, err = h.syncer.ScanPendingSync(ctx, "owner", models.NodeKindFolder, mid.ID)
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"u": {"deep.txt"}}, pendingByUser(pending))

	pending, err = h.syncer.ScanPendingSync(ctx, "owner", models.NodeKindFolder, top.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"deep.txt", "side.txt"}, pendingByUser(pending)["u"])
}

func TestScanPendingSync_OnlyMissingKeys(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "owner")
	h.user(t, "u")
	h.user(t, "v")

	shared := h.folder(t, "owner", "shared", nil)
	keyed := h.upload(t, "owner", "keyed.txt", "c1", shared)
	h.upload(t, "owner", "fresh.txt", "c2", shared)
	h.shareFolder(t, "owner", "u", shared)
	h.shareFolder(t, "owner", "v", shared)
	h.shareFile(t, "owner", "u", keyed)
	h.shareFile(t, "owner", "v", keyed)

	pending, err := h.syncer.ScanPendingSync(ctx, "owner", models.NodeKindFolder, shared.ID)
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"u": {"fresh.txt"}, "v": {"fresh.txt"}}, pendingByUser(pending))

	// a file every candidate already holds a key for reports nobody
	pending, err = h.syncer.ScanPendingSync(ctx, "owner", models.NodeKindFile, keyed.ID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	require.Empty(t, pending)
}

func TestScanPendingSync_RevokedRecipientDisappears(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "owner")
	h.user(t, "u")

	shared := h.folder(t, "owner", "shared", nil)
	h.upload(t, "owner", "a.txt", "c1", shared)
	grants := h.shareFolder(t, "owner", "u", shared)

	_, err := h.revoker.Revoke(ctx, &services.RevokeRequest{
		CallerID: "owner",
		Kind:     models.NodeKindFolder,
		GrantID:  grants[0].ID,
	})
	require.NoError(t, err)

	pending, err := h.syncer.ScanPendingSync(ctx, "owner", models.NodeKindFolder, shared.ID)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestScanPendingSync_SkipsTrashedFiles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "owner")
	h.user(t, "u")

	shared := h.folder(t, "owner", "shared", nil)
	gone := h.upload(t, "owner", "gone.txt", "c1", shared)
	h.upload(t, "owner", "kept.txt", "c2", shared)
	h.shareFolder(t, "owner", "u", shared)

	_, err := h.trash.SoftDelete(ctx, "owner", models.NodeKindFile, gone.ID)
	require.NoError(t, err)

	pending, err := h.syncer.ScanPendingSync(ctx, "owner", models.NodeKindFolder, shared.ID)
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"u": {"kept.txt"}}, pendingByUser(pending))
}

func TestScanPendingSync_Errors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.user(t, "owner")
	h.user(t, "stranger")

	folder := h.folder(t, "owner", "mine", nil)
	file := h.upload(t, "owner", "a.txt", "c1", folder)

	_, err := h.syncer.ScanPendingSync(ctx, "stranger", models.NodeKindFolder, folder.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.syncer.ScanPendingSync(ctx, "stranger", models.NodeKindFile, file.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.syncer.ScanPendingSync(ctx, "owner", models.NodeKind("blob"), file.ID)
	require.ErrorIs(t, err, domain.ErrValidation)

	empty := h.folder(t, "owner", "empty", nil)
	pending, err := h.syncer.ScanPendingSync(ctx, "owner", models.NodeKindFolder, empty.ID)
	require.NoError(t, err)
	require.Empty(t, pending)
}
