package services

import (
	"context"
	"io"

	"sealdrive/internal/domain/models"
	"sealdrive/internal/httputil"
)

// FileService handles encrypted file uploads and metadata
type FileService interface {
	// UploadFile stores the ciphertext, reserves quota and records the file
	UploadFile(ctx context.Context, req *UploadFileRequest) (*models.File, error)

	// GetFile returns a live file owned by ownerID
	GetFile(ctx context.Context, ownerID, fileID string) (*models.File, error)

	// UpdateFile renames and/or moves a file
	UpdateFile(ctx context.Context, ownerID, fileID string, req *UpdateFileRequest) (*models.File, error)

	// GetDownload returns a presigned URL and the requester's wrapped key
	GetDownload(ctx context.Context, requesterID, fileID string) (*FileDownload, error)
}

// UploadFileRequest carries one client-encrypted file
type UploadFileRequest struct {
	OwnerID    string
	FolderID   *string
	Name       string
	MimeType   string
	WrappedKey string
	Content    io.Reader
}

// UpdateFileRequest represents a file rename and/or move
type UpdateFileRequest struct {
	Name     *string             `json:"name,omitempty"`
	FolderID httputil.OptionalID `json:"folder_id,omitempty"` // null = root
}

// FileDownload is everything a client needs to fetch and decrypt one file
type FileDownload struct {
	File       models.File `json:"file"`
	URL        string      `json:"url"`
	WrappedKey string      `json:"wrapped_key"`
}
