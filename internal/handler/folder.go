package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/services"
	"sealdrive/internal/httputil"
	"sealdrive/internal/utils"
)

// FolderHandler handles folder HTTP requests
type FolderHandler struct {
	folderService services.FolderService
	shareService  services.ShareService
	blobs         services.BlobStore
	logger        *slog.Logger
}

// NewFolderHandler creates a new folder handler
func NewFolderHandler(
	folderService services.FolderService,
	shareService services.ShareService,
	blobs services.BlobStore,
	logger *slog.Logger,
) *FolderHandler {
	return &FolderHandler{
		folderService: folderService,
		shareService:  shareService,
		blobs:         blobs,
		logger:        logger,
	}
}

// CreateFolder creates a new folder
// POST /api/folders
// Returns 201 if created, 409 with the existing sibling if the name is taken
func (h *FolderHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var req services.CreateFolderRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.OwnerID = userID

	folder, err := h.folderService.CreateFolder(r.Context(), &req)
	if err != nil {
		HandleCreateConflict(w, err, func(existingID string) (*models.Folder, error) {
			return h.folderService.GetFolder(r.Context(), userID, existingID)
		})
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, folder)
}

// GetFolder returns one of the caller's folders
// GET /api/folders/{id}
func (h *FolderHandler) GetFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	folder, err := h.folderService.GetFolder(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, folder)
}

// UpdateFolder renames and/or moves a folder
// PATCH /api/folders/{id}
func (h *FolderHandler) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	var req services.UpdateFolderRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	folder, err := h.folderService.UpdateFolder(r.Context(), httputil.GetUserID(r), id, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, folder)
}

// ListRoot lists the caller's root folders and files
// GET /api/folders/root
func (h *FolderHandler) ListRoot(w http.ResponseWriter, r *http.Request) {
	contents, err := h.folderService.ListRoot(r.Context(), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, contents)
}

// GetTree returns the caller's nested folder/file tree
// GET /api/folders/tree
func (h *FolderHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.folderService.GetTree(r.Context(), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, tree)
}

// ListContents lists a folder the caller owns or was granted, with files the
// caller cannot decrypt marked as locked
// GET /api/folders/{id}/contents
func (h *FolderHandler) ListContents(w http.ResponseWriter, r *http.Request) {
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	contents, err := h.shareService.ListFolderContents(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, contents)
}

// DownloadManifest lists the decryptable files of a subtree with
// archive-relative paths
// GET /api/folders/{id}/download-manifest
func (h *FolderHandler) DownloadManifest(w http.ResponseWriter, r *http.Request) {
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	entries, err := h.shareService.EnumerateSubtreeForDownload(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// DownloadArchive streams the decryptable files of a subtree as one zip of
// ciphertext, with a manifest of the caller's wrapped keys.
// GET /api/folders/{id}/archive
func (h *FolderHandler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	folder, err := h.shareService.ListFolderContents(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}
	entries, err := h.shareService.EnumerateSubtreeForDownload(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	members := make([]utils.ZipEntry, 0, len(entries))
	for _, e := range entries {
		if !e.File.HasContent() {
			continue
		}
		members = append(members, utils.ZipEntry{
			Path:       e.ZipPath,
			WrappedKey: e.WrappedKey,
			Open:       h.opener(r.Context(), e.File.StoragePath),
		})
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", folder.Folder.Name+".zip"))
	w.Header().Set("Cache-Control", "private, no-store")

	skipped, err := utils.WriteZip(w, members)
	if err != nil {
		h.logger.Warn("archive download interrupted",
			"folder_id", id,
			"error", err,
		)
		return
	}
	if len(skipped) > 0 {
		h.logger.Info("archive entries skipped",
			"folder_id", id,
			"skipped", len(skipped),
		)
	}
}

func (h *FolderHandler) opener(ctx context.Context, handle string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return h.blobs.Get(ctx, handle)
	}
}
