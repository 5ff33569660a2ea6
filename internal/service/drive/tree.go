package drive

import (
	"context"
	"errors"
	"fmt"

	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
)

// treeWalker implements the two traversals every component needs: climbing
// a parent chain and walking a subtree level by level. A folder that cannot
// be found ends the walk instead of failing it, since a concurrent purge can
// remove nodes mid-walk.
type treeWalker struct {
	folders repositories.FolderRepository
}

func newTreeWalker(folders repositories.FolderRepository) *treeWalker {
	return &treeWalker{folders: folders}
}

// ancestors returns the chain starting at folderID (inclusive) up to the root.
// The visited set guards against a corrupted parent pointer looping forever.
func (w *treeWalker) ancestors(ctx context.Context, folderID *string) ([]models.Folder, error) {
	var chain []models.Folder
	visited := make(map[string]struct{})

	for current := folderID; current != nil; {
		if _, seen := visited[*current]; seen {
			break
		}
		visited[*current] = struct{}{}

		folder, err := w.folders.GetByID(ctx, *current)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("climb folder chain: %w", err)
		}
		chain = append(chain, *folder)
		current = folder.ParentID
	}

	return chain, nil
}

// lineage is ancestors reduced to ids
func (w *treeWalker) lineage(ctx context.Context, folderID *string) ([]string, error) {
	chain, err := w.ancestors(ctx, folderID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(chain))
	for i, f := range chain {
		ids[i] = f.ID
	}
	return ids, nil
}

// isWithin reports whether candidateID is ancestorID or lies below it
func (w *treeWalker) isWithin(ctx context.Context, candidateID, ancestorID string) (bool, error) {
	ids, err := w.lineage(ctx, &candidateID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == ancestorID {
			return true, nil
		}
	}
	return false, nil
}

// subtreeLevels walks the subtree under root breadth first and returns it one
// level per slice, root level first. keep filters which folders are descended
// into (nil keeps everything, trashed included). One store read per level.
func (w *treeWalker) subtreeLevels(ctx context.Context, root models.Folder, keep func(*models.Folder) bool) ([][]models.Folder, error) {
	levels := [][]models.Folder{{root}}
	visited := map[string]struct{}{root.ID: {}}
	frontier := []string{root.ID}

	for len(frontier) > 0 {
		children, err := w.folders.ListByParents(ctx, frontier)
		if err != nil {
			return levels, fmt.Errorf("list subtree level %d: %w", len(levels), err)
		}

		var level []models.Folder
		var next []string
		for i := range children {
			child := children[i]
			if _, seen := visited[child.ID]; seen {
				continue
			}
			if keep != nil && !keep(&child) {
				continue
			}
			visited[child.ID] = struct{}{}
			level = append(level, child)
			next = append(next, child.ID)
		}
		frontier = next

		if len(level) > 0 {
			levels = append(levels, level)
		}
	}

	return levels, nil
}

// flatten returns the ids of every folder across levels
func flatten(levels [][]models.Folder) []string {
	var ids []string
	for _, level := range levels {
		for _, f := range level {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// chunk splits ids into slices of at most size
func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

func liveOwnedBy(ownerID string) func(*models.Folder) bool {
	return func(f *models.Folder) bool {
		return f.OwnerID == ownerID && !f.IsDeleted
	}
}

func ownedBy(ownerID string) func(*models.Folder) bool {
	return func(f *models.Folder) bool {
		return f.OwnerID == ownerID
	}
}
