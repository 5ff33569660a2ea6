package handler

import (
	"log/slog"
	"net/http"

	"sealdrive/internal/config"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/services"
	"sealdrive/internal/httputil"
)

// ShareHandler handles grant HTTP requests
type ShareHandler struct {
	shareService  services.ShareService
	revokeService services.RevocationService
	syncService   services.SyncService
	logger        *slog.Logger
}

// NewShareHandler creates a new share handler
func NewShareHandler(
	shareService services.ShareService,
	revokeService services.RevocationService,
	syncService services.SyncService,
	logger *slog.Logger,
) *ShareHandler {
	return &ShareHandler{
		shareService:  shareService,
		revokeService: revokeService,
		syncService:   syncService,
		logger:        logger,
	}
}

// ShareFile grants one file to a recipient
// POST /api/shares/files
func (h *ShareHandler) ShareFile(w http.ResponseWriter, r *http.Request) {
	var req services.ShareFileRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.OwnerID = httputil.GetUserID(r)

	grant, err := h.shareService.ShareFile(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, grant)
}

// ShareBulk grants many files and folders to one recipient
// POST /api/shares/bulk
func (h *ShareHandler) ShareBulk(w http.ResponseWriter, r *http.Request) {
	var req services.ShareBulkRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Files)+len(req.Folders) > config.MaxBulkShareItems {
		httputil.RespondError(w, http.StatusRequestEntityTooLarge, "too many items in one bulk share")
		return
	}
	req.OwnerID = httputil.GetUserID(r)

	result, err := h.shareService.ShareBulk(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// UpdatePermission changes the permission of a grant the caller owns
// PATCH /api/grants/{kind}/{id}
func (h *ShareHandler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	var req services.UpdatePermissionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.CallerID = httputil.GetUserID(r)
	req.Kind = kind
	req.GrantID = id

	if err := h.shareService.UpdatePermission(r.Context(), &req); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondNoContent(w)
}

// Revoke removes a grant. The owner revokes, the recipient leaves.
// DELETE /api/grants/{kind}/{id}
func (h *ShareHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	report, err := h.revokeService.Revoke(r.Context(), &services.RevokeRequest{
		CallerID: httputil.GetUserID(r),
		Kind:     kind,
		GrantID:  id,
	})
	respondCascade(w, report, err)
}

// ListSharedWithMe lists the top-level items shared with the caller.
// GET /api/shared-with-me
//
// Query parameters:
//   - owner: optional, only items shared by this user
func (h *ShareHandler) ListSharedWithMe(w http.ResponseWriter, r *http.Request) {
	items, err := h.shareService.ListSharedWithMe(r.Context(), httputil.GetUserID(r), httputil.OptionalQuery(r, "owner"))
	if err != nil {
		handleError(w, err)
		return
	}
	if items == nil {
		items = []models.SharedItem{}
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ScanPendingSync lists recipients who can see files of a node but hold no key
// GET /api/sync/{kind}/{id}
func (h *ShareHandler) ScanPendingSync(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	pending, err := h.syncService.ScanPendingSync(r.Context(), httputil.GetUserID(r), kind, id)
	if err != nil {
		handleError(w, err)
		return
	}
	if pending == nil {
		pending = []models.PendingSync{}
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]any{"pending": pending})
}
