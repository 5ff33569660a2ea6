package drive

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
)

var noSlashes = regexp.MustCompile(`^[^/]+$`)

// nameRules are shared by folder and file names
func nameRules(kind string, max int) []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(1, max),
		validation.Match(noSlashes).Error(kind + " name cannot contain slashes"),
		validation.By(func(value any) error {
			s, _ := value.(string)
			if s == "." || s == ".." {
				return fmt.Errorf("%s name cannot be %q", kind, s)
			}
			return nil
		}),
	}
}

var permissionRule = validation.By(func(value any) error {
	p, _ := value.(models.Permission)
	if p != "" && !p.Valid() {
		return fmt.Errorf("permission must be %q or %q", models.PermissionView, models.PermissionEdit)
	}
	return nil
})

// invalid wraps a validation failure so handlers map it to 400
func invalid(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}

func validateNodeKind(kind models.NodeKind) error {
	if !kind.Valid() {
		return invalid(fmt.Errorf("kind must be %q or %q", models.NodeKindFile, models.NodeKindFolder))
	}
	return nil
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

// ownedLiveFolder returns the folder when it is live and owned by ownerID.
// Absent, trashed and foreign folders all read as ErrNotFound.
func ownedLiveFolder(ctx context.Context, folders repositories.FolderRepository, ownerID, folderID string) (*models.Folder, error) {
	folder, err := folders.GetByID(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if !folder.IsLive() || folder.OwnerID != ownerID {
		return nil, fmt.Errorf("folder %s: %w", folderID, domain.ErrNotFound)
	}
	return folder, nil
}

// ownedLiveFile is ownedLiveFolder for files
func ownedLiveFile(ctx context.Context, files repositories.FileRepository, ownerID, fileID string) (*models.File, error) {
	file, err := files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !file.IsLive() || file.OwnerID != ownerID {
		return nil, fmt.Errorf("file %s: %w", fileID, domain.ErrNotFound)
	}
	return file, nil
}

// validateDestination checks that a file or folder may be placed under parentID
func validateDestination(ctx context.Context, folders repositories.FolderRepository, ownerID string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	if _, err := ownedLiveFolder(ctx, folders, ownerID, *parentID); err != nil {
		return fmt.Errorf("invalid folder: %w", err)
	}
	return nil
}
