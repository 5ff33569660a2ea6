package handler

import (
	"log/slog"
	"net/http"

	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/services"
	"sealdrive/internal/httputil"
)

// TrashHandler handles soft-delete, restore and purge
type TrashHandler struct {
	trashService services.TrashService
	logger       *slog.Logger
}

// NewTrashHandler creates a new trash handler
func NewTrashHandler(trashService services.TrashService, logger *slog.Logger) *TrashHandler {
	return &TrashHandler{
		trashService: trashService,
		logger:       logger,
	}
}

// DeleteFile moves a file to trash
// DELETE /api/files/{id}
func (h *TrashHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	h.softDelete(w, r, models.NodeKindFile)
}

// DeleteFolder moves a folder and its subtree to trash
// DELETE /api/folders/{id}
func (h *TrashHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	h.softDelete(w, r, models.NodeKindFolder)
}

func (h *TrashHandler) softDelete(w http.ResponseWriter, r *http.Request, kind models.NodeKind) {
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	report, err := h.trashService.SoftDelete(r.Context(), httputil.GetUserID(r), kind, id)
	respondCascade(w, report, err)
}

// Restore brings a trashed node back
// POST /api/trash/{kind}/{id}/restore
func (h *TrashHandler) Restore(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	report, err := h.trashService.Restore(r.Context(), httputil.GetUserID(r), kind, id)
	respondCascade(w, report, err)
}

// Purge permanently deletes a trashed node
// DELETE /api/trash/{kind}/{id}
func (h *TrashHandler) Purge(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	report, err := h.trashService.Purge(r.Context(), httputil.GetUserID(r), kind, id)
	respondCascade(w, report, err)
}

// ListTrash lists the caller's top-level trashed items
// GET /api/trash
func (h *TrashHandler) ListTrash(w http.ResponseWriter, r *http.Request) {
	listing, err := h.trashService.ListTrash(r.Context(), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, listing)
}
