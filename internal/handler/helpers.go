package handler

import (
	"errors"
	"net/http"

	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/httputil"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	var conflictErr *domain.ConflictError

	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &conflictErr):
		extras := map[string]any{}
		if conflictErr.ResourceType != "" {
			extras["resource_type"] = conflictErr.ResourceType
		}
		if conflictErr.ResourceID != "" {
			extras["resource_id"] = conflictErr.ResourceID
		}
		httputil.RespondErrorWithExtras(w, http.StatusConflict, conflictErr.Error(), extras)
	case errors.Is(err, domain.ErrConflict):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrQuotaExceeded):
		httputil.RespondError(w, http.StatusInsufficientStorage, err.Error())
	case errors.Is(err, domain.ErrStorage):
		httputil.RespondError(w, http.StatusBadGateway, "blob storage unavailable")
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondCascade writes a cascade report. A partial cascade still changed
// state, so it is a 200 with "complete": false rather than an error.
func respondCascade(w http.ResponseWriter, report *models.CascadeReport, err error) {
	if err != nil && !(errors.Is(err, domain.ErrPartialCascade) && report != nil) {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, report)
}

// HandleCreateConflict handles conflicts during creation by returning the existing resource with 409
// If the error is a ConflictError, it calls fetchFn to retrieve the existing resource
func HandleCreateConflict[T any](w http.ResponseWriter, err error, fetchFn func(resourceID string) (*T, error)) {
	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) && conflictErr.ResourceID != "" {
		existing, fetchErr := fetchFn(conflictErr.ResourceID)
		if fetchErr != nil {
			handleError(w, err)
			return
		}

		httputil.RespondJSON(w, http.StatusConflict, existing)
		return
	}

	handleError(w, err)
}

// parseKind reads the {kind} path segment
func parseKind(w http.ResponseWriter, r *http.Request) (models.NodeKind, bool) {
	kind := models.NodeKind(r.PathValue("kind"))
	if !kind.Valid() {
		httputil.RespondError(w, http.StatusBadRequest, "kind must be file or folder")
		return "", false
	}
	return kind, true
}

// requirePath reads a required path segment
func requirePath(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.PathValue(name)
	if v == "" {
		httputil.RespondError(w, http.StatusBadRequest, name+" is required")
		return "", false
	}
	return v, true
}
