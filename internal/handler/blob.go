package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"sealdrive/internal/blob"
	"sealdrive/internal/domain/services"
	"sealdrive/internal/httputil"
)

// BlobHandler serves ciphertext behind presigned download tokens
type BlobHandler struct {
	blobs  services.BlobStore
	signer *blob.Signer
	logger *slog.Logger
}

// NewBlobHandler creates a new blob handler
func NewBlobHandler(blobs services.BlobStore, signer *blob.Signer, logger *slog.Logger) *BlobHandler {
	return &BlobHandler{
		blobs:  blobs,
		signer: signer,
		logger: logger,
	}
}

// Download streams one blob
// GET /blobs/{handle...}?token=
func (h *BlobHandler) Download(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	token := r.URL.Query().Get("token")
	if handle == "" || token == "" {
		httputil.RespondError(w, http.StatusUnauthorized, "download token is required")
		return
	}

	if err := h.signer.Verify(token, handle); err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "invalid or expired download token")
		return
	}

	rc, err := h.blobs.Get(r.Context(), handle)
	if err != nil {
		if errors.Is(err, services.ErrBlobNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "blob not found")
			return
		}
		handleError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("blob download interrupted",
			"handle", handle,
			"error", err,
		)
	}
}

// Health reports liveness
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
