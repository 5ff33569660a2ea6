package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors - use with errors.Is()
var (
	// ErrNotFound covers absent, deleted, and not-owned nodes alike so callers
	// cannot probe for the existence of other users' data.
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrStorage       = errors.New("storage failure")
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrPartialCascade means the primary state change of a revoke or purge
	// happened but some descendant cleanup did not.
	ErrPartialCascade = errors.New("cascade incomplete")
)

// ConflictError represents a resource conflict with details about the existing resource
type ConflictError struct {
	Message      string // Human-readable error message
	ResourceType string // folder, file_grant, folder_grant
	ResourceID   string // ID of the existing/conflicting resource
}

func (e *ConflictError) Error() string { return e.Message }

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// StorageError is a blob backend failure other than "not found", scoped to a
// single item.
type StorageError struct {
	Op     string // put, get, delete, presign
	Handle string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("blob %s %s: %v", e.Op, e.Handle, e.Err)
}

func (e *StorageError) Unwrap() error   { return e.Err }
func (e *StorageError) Is(t error) bool { return t == ErrStorage }

// PartialCascadeError reports a cascade whose primary transition completed
// while one or more cleanup steps failed. Cause aggregates the per-item
// failures (see go.uber.org/multierr).
type PartialCascadeError struct {
	Operation string // revoke_folder, purge_folder, purge_file, soft_delete
	NodeID    string
	Failed    int
	Cause     error
}

func (e *PartialCascadeError) Error() string {
	return fmt.Sprintf("%s %s: %d cleanup step(s) failed: %v", e.Operation, e.NodeID, e.Failed, e.Cause)
}

func (e *PartialCascadeError) Unwrap() error   { return e.Cause }
func (e *PartialCascadeError) Is(t error) bool { return t == ErrPartialCascade }
