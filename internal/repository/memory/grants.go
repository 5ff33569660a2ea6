package memory

import (
	"context"
	"fmt"
	"sort"

	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
)

type grantRepo struct{ s *Store }

func (r *grantRepo) CreateFileGrant(ctx context.Context, grant *models.FileGrant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.files[grant.FileID]; !ok {
		return fmt.Errorf("file grant target: %w", domain.ErrNotFound)
	}
	if existing := r.findFileGrantLocked(grant.FileID, grant.SharedWith); existing != nil {
		return &domain.ConflictError{
			Message:      "file is already shared with this user",
			ResourceType: "file_grant",
			ResourceID:   existing.ID,
		}
	}

	now := r.s.now()
	stored := *grant
	stored.ID = newID()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.s.fileGrants[stored.ID] = &stored
	*grant = stored
	return nil
}

func (r *grantRepo) UpsertFileGrant(ctx context.Context, grant *models.FileGrant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.files[grant.FileID]; !ok {
		return fmt.Errorf("file grant target: %w", domain.ErrNotFound)
	}

	now := r.s.now()
	if existing := r.findFileGrantLocked(grant.FileID, grant.SharedWith); existing != nil {
		existing.WrappedKey = grant.WrappedKey
		existing.Permission = grant.Permission
		existing.UpdatedAt = now
		*grant = *existing
		return nil
	}

	stored := *grant
	stored.ID = newID()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.s.fileGrants[stored.ID] = &stored
	*grant = stored
	return nil
}

func (r *grantRepo) UpsertFolderGrant(ctx context.Context, grant *models.FolderGrant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.folders[grant.FolderID]; !ok {
		return fmt.Errorf("folder grant target: %w", domain.ErrNotFound)
	}

	now := r.s.now()
	for _, g := range r.s.folderGrants {
		if g.FolderID == grant.FolderID && g.SharedWith == grant.SharedWith {
			g.Permission = grant.Permission
			g.UpdatedAt = now
			*grant = *g
			return nil
		}
	}

	stored := *grant
	stored.ID = newID()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.s.folderGrants[stored.ID] = &stored
	*grant = stored
	return nil
}

func (r *grantRepo) findFileGrantLocked(fileID, sharedWith string) *models.FileGrant {
	for _, g := range r.s.fileGrants {
		if g.FileID == fileID && g.SharedWith == sharedWith {
			return g
		}
	}
	return nil
}

func (r *grantRepo) GetFileGrant(ctx context.Context, id string) (*models.FileGrant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	g, ok := r.s.fileGrants[id]
	if !ok {
		return nil, fmt.Errorf("file grant %s: %w", id, domain.ErrNotFound)
	}
	out := *g
	return &out, nil
}

func (r *grantRepo) GetFolderGrant(ctx context.Context, id string) (*models.FolderGrant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	g, ok := r.s.folderGrants[id]
	if !ok {
		return nil, fmt.Errorf("folder grant %s: %w", id, domain.ErrNotFound)
	}
	out := *g
	return &out, nil
}

func (r *grantRepo) UpdateFileGrantPermission(ctx context.Context, id string, permission models.Permission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.s.fileGrants[id]
	if !ok {
		return fmt.Errorf("file grant %s: %w", id, domain.ErrNotFound)
	}
	g.Permission = permission
	g.UpdatedAt = r.s.now()
	return nil
}

func (r *grantRepo) UpdateFolderGrantPermission(ctx context.Context, id string, permission models.Permission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.s.folderGrants[id]
	if !ok {
		return fmt.Errorf("folder grant %s: %w", id, domain.ErrNotFound)
	}
	g.Permission = permission
	g.UpdatedAt = r.s.now()
	return nil
}

func (r *grantRepo) ListFileGrantsForRecipient(ctx context.Context, sharedWith string, ownerID *string) ([]models.FileGrant, error) {
	return r.fileGrants(func(g *models.FileGrant) bool {
		return g.SharedWith == sharedWith && (ownerID == nil || g.OwnerID == *ownerID)
	}), nil
}

func (r *grantRepo) ListFolderGrantsForRecipient(ctx context.Context, sharedWith string, ownerID *string) ([]models.FolderGrant, error) {
	return r.folderGrants(func(g *models.FolderGrant) bool {
		return g.SharedWith == sharedWith && (ownerID == nil || g.OwnerID == *ownerID)
	}), nil
}

func (r *grantRepo) ListFileGrantsByFiles(ctx context.Context, fileIDs []string, sharedWith *string) ([]models.FileGrant, error) {
	set := idSet(fileIDs)
	return r.fileGrants(func(g *models.FileGrant) bool {
		_, ok := set[g.FileID]
		return ok && (sharedWith == nil || g.SharedWith == *sharedWith)
	}), nil
}

func (r *grantRepo) ListFolderGrantsByFolders(ctx context.Context, folderIDs []string, ownerID string, sharedWith *string) ([]models.FolderGrant, error) {
	set := idSet(folderIDs)
	return r.folderGrants(func(g *models.FolderGrant) bool {
		_, ok := set[g.FolderID]
		return ok && g.OwnerID == ownerID && (sharedWith == nil || g.SharedWith == *sharedWith)
	}), nil
}

func (r *grantRepo) DeleteFileGrant(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.fileGrants[id]; !ok {
		return false, nil
	}
	delete(r.s.fileGrants, id)
	return true, nil
}

func (r *grantRepo) DeleteFolderGrant(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.folderGrants[id]; !ok {
		return false, nil
	}
	delete(r.s.folderGrants, id)
	return true, nil
}

func (r *grantRepo) DeleteFileGrantsForRecipient(ctx context.Context, sharedWith string, fileIDs []string) (int64, error) {
	set := idSet(fileIDs)
	return r.deleteFileGrants(func(g *models.FileGrant) bool {
		_, ok := set[g.FileID]
		return ok && g.SharedWith == sharedWith
	}), nil
}

func (r *grantRepo) DeleteFolderGrantsForRecipient(ctx context.Context, sharedWith string, folderIDs []string) (int64, error) {
	set := idSet(folderIDs)
	return r.deleteFolderGrants(func(g *models.FolderGrant) bool {
		_, ok := set[g.FolderID]
		return ok && g.SharedWith == sharedWith
	}), nil
}

func (r *grantRepo) DeleteAllForFiles(ctx context.Context, fileIDs []string) (int64, error) {
	set := idSet(fileIDs)
	return r.deleteFileGrants(func(g *models.FileGrant) bool {
		_, ok := set[g.FileID]
		return ok
	}), nil
}

func (r *grantRepo) DeleteAllForFolders(ctx context.Context, folderIDs []string) (int64, error) {
	set := idSet(folderIDs)
	return r.deleteFolderGrants(func(g *models.FolderGrant) bool {
		_, ok := set[g.FolderID]
		return ok
	}), nil
}

func (r *grantRepo) fileGrants(keep func(*models.FileGrant) bool) []models.FileGrant {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.FileGrant{}
	for _, g := range r.s.fileGrants {
		if keep(g) {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *grantRepo) folderGrants(keep func(*models.FolderGrant) bool) []models.FolderGrant {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.FolderGrant{}
	for _, g := range r.s.folderGrants {
		if keep(g) {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *grantRepo) deleteFileGrants(match func(*models.FileGrant) bool) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, g := range r.s.fileGrants {
		if match(g) {
			delete(r.s.fileGrants, id)
			n++
		}
	}
	return n
}

func (r *grantRepo) deleteFolderGrants(match func(*models.FolderGrant) bool) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, g := range r.s.folderGrants {
		if match(g) {
			delete(r.s.folderGrants, id)
			n++
		}
	}
	return n
}
