package handler

import (
	"log/slog"
	"net/http"

	"sealdrive/internal/domain/services"
	"sealdrive/internal/httputil"
)

// UserHandler handles account HTTP requests
type UserHandler struct {
	userService services.UserService
	logger      *slog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService services.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

// SetPublicKeyRequest carries the caller's public key
type SetPublicKeyRequest struct {
	PublicKey string `json:"public_key"`
}

// GetMe returns the caller's account with quota usage
// GET /api/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetMe(r.Context(), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, user)
}

// SetPublicKey stores the caller's public key
// PUT /api/me/public-key
func (h *UserHandler) SetPublicKey(w http.ResponseWriter, r *http.Request) {
	var req SetPublicKeyRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.SetPublicKey(r.Context(), httputil.GetUserID(r), req.PublicKey)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, user)
}

// LookupUser resolves a recipient by email
// GET /api/users/lookup?email=
func (h *UserHandler) LookupUser(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httputil.RespondError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}

	summary, err := h.userService.LookupByEmail(r.Context(), email)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, summary)
}
