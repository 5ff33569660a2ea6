package auth

import (
	"context"
	"errors"
	"fmt"

	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
)

// GrantAuthorizer implements services.ResourceAuthorizer from ownership and
// explicit grants. A folder grant reaches the whole subtree below it; a file
// is decryptable only by its owner or a holder of a FileGrant.
type GrantAuthorizer struct {
	folderRepo repositories.FolderRepository
	fileRepo   repositories.FileRepository
	grantRepo  repositories.GrantRepository
}

// NewGrantAuthorizer creates a new grant-based authorizer
func NewGrantAuthorizer(
	folderRepo repositories.FolderRepository,
	fileRepo repositories.FileRepository,
	grantRepo repositories.GrantRepository,
) *GrantAuthorizer {
	return &GrantAuthorizer{
		folderRepo: folderRepo,
		fileRepo:   fileRepo,
		grantRepo:  grantRepo,
	}
}

// ResolveFolder decides access to a live folder
func (a *GrantAuthorizer) ResolveFolder(ctx context.Context, userID, folderID string) (*models.AccessDecision, error) {
	_, decision, err := a.resolve(ctx, userID, folderID)
	return decision, err
}

// CanAccessFolder returns the folder when userID owns it or reaches it through a grant
func (a *GrantAuthorizer) CanAccessFolder(ctx context.Context, userID, folderID string) (*models.Folder, error) {
	folder, decision, err := a.resolve(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("access denied to folder %s: %w", folderID, domain.ErrForbidden)
	}
	return folder, nil
}

// resolve climbs from the folder to the root and stops at the nearest folder
// carrying a grant for userID
func (a *GrantAuthorizer) resolve(ctx context.Context, userID, folderID string) (*models.Folder, *models.AccessDecision, error) {
	folder, err := a.folderRepo.GetByID(ctx, folderID)
	if err != nil {
		return nil, nil, err
	}
	if !folder.IsLive() {
		return nil, nil, fmt.Errorf("folder %s: %w", folderID, domain.ErrNotFound)
	}

	if folder.OwnerID == userID {
		return folder, &models.AccessDecision{Allowed: true, IsOwner: true, Permission: models.PermissionEdit}, nil
	}

	lineage := []string{folder.ID}
	visited := map[string]struct{}{folder.ID: {}}
	for parentID := folder.ParentID; parentID != nil; {
		if _, seen := visited[*parentID]; seen {
			break
		}
		visited[*parentID] = struct{}{}

		parent, err := a.folderRepo.GetByID(ctx, *parentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				break
			}
			return nil, nil, fmt.Errorf("get folder for auth: %w", err)
		}
		lineage = append(lineage, parent.ID)
		parentID = parent.ParentID
	}

	grants, err := a.grantRepo.ListFolderGrantsByFolders(ctx, lineage, folder.OwnerID, &userID)
	if err != nil {
		return nil, nil, fmt.Errorf("check folder grants: %w", err)
	}

	byFolder := make(map[string]models.FolderGrant, len(grants))
	for _, g := range grants {
		byFolder[g.FolderID] = g
	}
	for _, id := range lineage {
		if g, ok := byFolder[id]; ok {
			return folder, &models.AccessDecision{Allowed: true, ViaFolderID: id, Permission: g.Permission}, nil
		}
	}

	return folder, &models.AccessDecision{}, nil
}

// CanSeeFile reports whether userID can see that the file exists
func (a *GrantAuthorizer) CanSeeFile(ctx context.Context, userID, fileID string) (bool, error) {
	file, err := a.liveFile(ctx, fileID)
	if err != nil || file == nil {
		return false, err
	}
	if file.OwnerID == userID {
		return true, nil
	}

	held, err := a.holdsFileGrant(ctx, userID, fileID)
	if err != nil || held {
		return held, err
	}

	if file.FolderID == nil {
		return false, nil
	}
	decision, err := a.ResolveFolder(ctx, userID, *file.FolderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return decision.Allowed, nil
}

// CanDecrypt reports whether userID holds a key for the file
func (a *GrantAuthorizer) CanDecrypt(ctx context.Context, userID, fileID string) (bool, error) {
	file, err := a.liveFile(ctx, fileID)
	if err != nil || file == nil {
		return false, err
	}
	if file.OwnerID == userID {
		return true, nil
	}
	return a.holdsFileGrant(ctx, userID, fileID)
}

// liveFile returns nil without error for absent or trashed files
func (a *GrantAuthorizer) liveFile(ctx context.Context, fileID string) (*models.File, error) {
	file, err := a.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get file for auth: %w", err)
	}
	if !file.IsLive() {
		return nil, nil
	}
	return file, nil
}

func (a *GrantAuthorizer) holdsFileGrant(ctx context.Context, userID, fileID string) (bool, error) {
	grants, err := a.grantRepo.ListFileGrantsByFiles(ctx, []string{fileID}, &userID)
	if err != nil {
		return false, fmt.Errorf("check file grants: %w", err)
	}
	return len(grants) > 0, nil
}
