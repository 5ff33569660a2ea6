package memory

import (
	"context"
	"fmt"
	"time"

	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
)

type folderRepo struct{ s *Store }

func (r *folderRepo) Create(ctx context.Context, folder *models.Folder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if folder.ParentID != nil {
		if _, ok := r.s.folders[*folder.ParentID]; !ok {
			return fmt.Errorf("parent folder: %w", domain.ErrNotFound)
		}
	}

	now := r.s.now()
	stored := *folder
	stored.ID = newID()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	r.s.folders[stored.ID] = &stored
	*folder = stored
	return nil
}

func (r *folderRepo) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	f, ok := r.s.folders[id]
	if !ok {
		return nil, fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
	}
	out := *f
	return &out, nil
}

func (r *folderRepo) GetByIDs(ctx context.Context, ids []string) ([]models.Folder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.Folder{}
	for id := range idSet(ids) {
		if f, ok := r.s.folders[id]; ok {
			out = append(out, *f)
		}
	}
	sortFolders(out)
	return out, nil
}

func (r *folderRepo) Update(ctx context.Context, folder *models.Folder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.folders[folder.ID]
	if !ok {
		return fmt.Errorf("folder %s: %w", folder.ID, domain.ErrNotFound)
	}
	f.ParentID = folder.ParentID
	f.Name = folder.Name
	f.UpdatedAt = folder.UpdatedAt
	return nil
}

func (r *folderRepo) ListLiveChildren(ctx context.Context, ownerID string, parentID *string) ([]models.Folder, error) {
	return r.filter(func(f *models.Folder) bool {
		return f.OwnerID == ownerID && !f.IsDeleted && sameParent(f.ParentID, parentID)
	}), nil
}

func (r *folderRepo) ListByParents(ctx context.Context, parentIDs []string) ([]models.Folder, error) {
	set := idSet(parentIDs)
	return r.filter(func(f *models.Folder) bool {
		if f.ParentID == nil {
			return false
		}
		_, ok := set[*f.ParentID]
		return ok
	}), nil
}

func (r *folderRepo) ListAllByOwner(ctx context.Context, ownerID string) ([]models.Folder, error) {
	return r.filter(func(f *models.Folder) bool {
		return f.OwnerID == ownerID && !f.IsDeleted
	}), nil
}

func (r *folderRepo) SetTrashed(ctx context.Context, ids []string, deletedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, id := range ids {
		f, ok := r.s.folders[id]
		if !ok {
			continue
		}
		f.IsDeleted = true
		if f.DeletedAt == nil {
			at := deletedAt
			f.DeletedAt = &at
		}
		f.UpdatedAt = deletedAt
	}
	return nil
}

func (r *folderRepo) ClearTrashed(ctx context.Context, ids []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	for _, id := range ids {
		if f, ok := r.s.folders[id]; ok {
			f.IsDeleted = false
			f.DeletedAt = nil
			f.UpdatedAt = now
		}
	}
	return nil
}

func (r *folderRepo) ListTrashRoots(ctx context.Context, ownerID string) ([]models.Folder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.Folder{}
	for _, f := range r.s.folders {
		if f.OwnerID == ownerID && r.isTrashRootLocked(f) {
			out = append(out, *f)
		}
	}
	sortFolders(out)
	return out, nil
}

func (r *folderRepo) ListExpiredTrashRoots(ctx context.Context, cutoff time.Time, limit int) ([]models.Folder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.Folder{}
	for _, f := range r.s.folders {
		if r.isTrashRootLocked(f) && f.DeletedAt != nil && f.DeletedAt.Before(cutoff) {
			out = append(out, *f)
		}
	}
	sortFolders(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *folderRepo) isTrashRootLocked(f *models.Folder) bool {
	if !f.IsDeleted {
		return false
	}
	if f.ParentID == nil {
		return true
	}
	parent, ok := r.s.folders[*f.ParentID]
	return !ok || !parent.IsDeleted
}

// DeleteByIDs mirrors the SQL foreign keys: folders that still hold a child
// outside the batch are rejected, and grants on deleted folders go with them.
func (r *folderRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	batch := idSet(ids)
	for _, f := range r.s.folders {
		if _, deleting := batch[f.ID]; deleting || f.ParentID == nil {
			continue
		}
		if _, ok := batch[*f.ParentID]; ok {
			return 0, fmt.Errorf("folders still have children: %w", domain.ErrConflict)
		}
	}
	for _, f := range r.s.files {
		if f.FolderID == nil {
			continue
		}
		if _, ok := batch[*f.FolderID]; ok {
			return 0, fmt.Errorf("folders still have files: %w", domain.ErrConflict)
		}
	}

	var n int64
	for id := range batch {
		if _, ok := r.s.folders[id]; !ok {
			continue
		}
		delete(r.s.folders, id)
		n++
		for gid, g := range r.s.folderGrants {
			if g.FolderID == id {
				delete(r.s.folderGrants, gid)
			}
		}
	}
	return n, nil
}

func (r *folderRepo) filter(keep func(*models.Folder) bool) []models.Folder {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.Folder{}
	for _, f := range r.s.folders {
		if keep(f) {
			out = append(out, *f)
		}
	}
	sortFolders(out)
	return out
}
