package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"sealdrive/internal/config"
	"sealdrive/internal/domain/services"
	"sealdrive/internal/httputil"
)

// maxFieldBytes bounds each non-content multipart field
const maxFieldBytes = 64 << 10

// FileHandler handles encrypted file HTTP requests
type FileHandler struct {
	fileService services.FileService
	logger      *slog.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(fileService services.FileService, logger *slog.Logger) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		logger:      logger,
	}
}

// UploadFile stores one client-encrypted file.
// POST /api/files
//
// The body is multipart/form-data. Fields folder_id, name, mime_type and
// wrapped_key must come before the "content" part, which is streamed
// straight into blob storage.
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxUploadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "expected multipart/form-data body")
		return
	}

	req := services.UploadFileRequest{OwnerID: httputil.GetUserID(r)}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			httputil.RespondError(w, http.StatusBadRequest, "content part is required")
			return
		}
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "failed to read multipart body")
			return
		}

		if part.FormName() == "content" {
			req.Content = part
			if req.Name == "" {
				req.Name = part.FileName()
			}
			break
		}

		value, err := readField(part)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		switch part.FormName() {
		case "folder_id":
			if value != "" {
				req.FolderID = &value
			}
		case "name":
			req.Name = value
		case "mime_type":
			req.MimeType = value
		case "wrapped_key":
			req.WrappedKey = value
		}
	}

	file, err := h.fileService.UploadFile(r.Context(), &req)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.RespondError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, file)
}

func readField(part *multipart.Part) (string, error) {
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", errors.New("failed to read field " + part.FormName())
	}
	if len(data) > maxFieldBytes {
		return "", errors.New("field " + part.FormName() + " is too large")
	}
	return strings.TrimSpace(string(data)), nil
}

// GetFile returns one of the caller's files
// GET /api/files/{id}
func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	file, err := h.fileService.GetFile(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, file)
}

// UpdateFile renames and/or moves a file
// PATCH /api/files/{id}
func (h *FileHandler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	var req services.UpdateFileRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, err := h.fileService.UpdateFile(r.Context(), httputil.GetUserID(r), id, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, file)
}

// GetDownload returns a presigned URL with the caller's wrapped key
// GET /api/files/{id}/download
func (h *FileHandler) GetDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := requirePath(w, r, "id")
	if !ok {
		return
	}

	download, err := h.fileService.GetDownload(r.Context(), httputil.GetUserID(r), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, download)
}
