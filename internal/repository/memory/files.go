package memory

import (
	"context"
	"fmt"
	"time"

	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
)

type fileRepo struct{ s *Store }

func (r *fileRepo) Create(ctx context.Context, file *models.File) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if file.FolderID != nil {
		if _, ok := r.s.folders[*file.FolderID]; !ok {
			return fmt.Errorf("file folder: %w", domain.ErrNotFound)
		}
	}

	now := r.s.now()
	stored := *file
	stored.ID = newID()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	r.s.files[stored.ID] = &stored
	*file = stored
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*models.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	f, ok := r.s.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}
	out := *f
	return &out, nil
}

func (r *fileRepo) GetByIDs(ctx context.Context, ids []string) ([]models.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.File{}
	for id := range idSet(ids) {
		if f, ok := r.s.files[id]; ok {
			out = append(out, *f)
		}
	}
	sortFiles(out)
	return out, nil
}

func (r *fileRepo) Update(ctx context.Context, file *models.File) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.files[file.ID]
	if !ok {
		return fmt.Errorf("file %s: %w", file.ID, domain.ErrNotFound)
	}
	if file.FolderID != nil {
		if _, ok := r.s.folders[*file.FolderID]; !ok {
			return fmt.Errorf("file folder: %w", domain.ErrNotFound)
		}
	}
	f.FolderID = file.FolderID
	f.Name = file.Name
	f.UpdatedAt = file.UpdatedAt
	return nil
}

func (r *fileRepo) ListLiveByFolder(ctx context.Context, ownerID string, folderID *string) ([]models.File, error) {
	return r.filter(func(f *models.File) bool {
		return f.OwnerID == ownerID && !f.IsDeleted && sameParent(f.FolderID, folderID)
	}), nil
}

func (r *fileRepo) ListByFolders(ctx context.Context, folderIDs []string) ([]models.File, error) {
	set := idSet(folderIDs)
	return r.filter(func(f *models.File) bool {
		if f.FolderID == nil {
			return false
		}
		_, ok := set[*f.FolderID]
		return ok
	}), nil
}

func (r *fileRepo) ListAllLiveByOwner(ctx context.Context, ownerID string) ([]models.File, error) {
	return r.filter(func(f *models.File) bool {
		return f.OwnerID == ownerID && !f.IsDeleted
	}), nil
}

func (r *fileRepo) SetTrashed(ctx context.Context, ids []string, deletedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, id := range ids {
		f, ok := r.s.files[id]
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

func (r *fileRepo) ClearTrashed(ctx context.Context, ids []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	for _, id := range ids {
		if f, ok := r.s.files[id]; ok {
			f.IsDeleted = false
			f.DeletedAt = nil
			f.UpdatedAt = now
		}
	}
	return nil
}

func (r *fileRepo) MarkBlobReleased(ctx context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.files[id]
	if !ok || f.BlobReleasedAt != nil {
		return false, nil
	}
	released := at
	f.BlobReleasedAt = &released
	f.UpdatedAt = at
	return true, nil
}

func (r *fileRepo) ListTrashRoots(ctx context.Context, ownerID string) ([]models.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.File{}
	for _, f := range r.s.files {
		if f.OwnerID == ownerID && r.isTrashRootLocked(f) {
			out = append(out, *f)
		}
	}
	sortFiles(out)
	return out, nil
}

func (r *fileRepo) ListExpiredTrashRoots(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.File{}
	for _, f := range r.s.files {
		if r.isTrashRootLocked(f) && f.DeletedAt != nil && f.DeletedAt.Before(cutoff) {
			out = append(out, *f)
		}
	}
	sortFiles(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fileRepo) isTrashRootLocked(f *models.File) bool {
	if !f.IsDeleted {
		return false
	}
	if f.FolderID == nil {
		return true
	}
	folder, ok := r.s.folders[*f.FolderID]
	return !ok || !folder.IsDeleted
}

func (r *fileRepo) Delete(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.files[id]; !ok {
		return false, nil
	}
	delete(r.s.files, id)
	for gid, g := range r.s.fileGrants {
		if g.FileID == id {
			delete(r.s.fileGrants, gid)
		}
	}
	return true, nil
}

func (r *fileRepo) filter(keep func(*models.File) bool) []models.File {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.File{}
	for _, f := range r.s.files {
		if keep(f) {
			out = append(out, *f)
		}
	}
	sortFiles(out)
	return out
}
