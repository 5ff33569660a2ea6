package drive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"sealdrive/internal/config"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
	"sealdrive/internal/domain/services"
)

type folderService struct {
	folderRepo repositories.FolderRepository
	fileRepo   repositories.FileRepository
	walker     *treeWalker
	logger     *slog.Logger
}

// NewFolderService creates a new folder service
func NewFolderService(
	folderRepo repositories.FolderRepository,
	fileRepo repositories.FileRepository,
	logger *slog.Logger,
) services.FolderService {
	return &folderService{
		folderRepo: folderRepo,
		fileRepo:   fileRepo,
		walker:     newTreeWalker(folderRepo),
		logger:     logger,
	}
}

// CreateFolder creates a folder at root or under a live folder of the same owner
func (s *folderService) CreateFolder(ctx context.Context, req *services.CreateFolderRequest) (*models.Folder, error) {
	// Normalize empty string to nil for root-level folders
	if req.ParentID != nil && *req.ParentID == "" {
		req.ParentID = nil
	}
	req.Name = normalizeName(req.Name)

	if err := s.validateCreateRequest(req); err != nil {
		return nil, invalid(err)
	}

	if err := validateDestination(ctx, s.folderRepo, req.OwnerID, req.ParentID); err != nil {
		return nil, err
	}

	if err := s.checkSiblingName(ctx, req.OwnerID, req.ParentID, req.Name, ""); err != nil {
		return nil, err
	}

	now := time.Now()
	folder := &models.Folder{
		OwnerID:   req.OwnerID,
		ParentID:  req.ParentID,
		Name:      req.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.folderRepo.Create(ctx, folder); err != nil {
		return nil, err
	}

	s.logger.Info("folder created",
		"id", folder.ID,
		"name", folder.Name,
		"owner_id", folder.OwnerID,
		"parent_id", folder.ParentID,
	)

	return folder, nil
}

// GetFolder retrieves a live folder of the owner
func (s *folderService) GetFolder(ctx context.Context, ownerID, folderID string) (*models.Folder, error) {
	return ownedLiveFolder(ctx, s.folderRepo, ownerID, folderID)
}

// UpdateFolder renames and/or moves a folder
func (s *folderService) UpdateFolder(ctx context.Context, ownerID, folderID string, req *services.UpdateFolderRequest) (*models.Folder, error) {
	if err := s.validateUpdateRequest(req); err != nil {
		return nil, invalid(err)
	}

	folder, err := ownedLiveFolder(ctx, s.folderRepo, ownerID, folderID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		folder.Name = normalizeName(*req.Name)
	}

	// Tri-state: only update location if the field was present in request
	if req.ParentID.Present {
		target := req.ParentID.Target()
		if err := s.validateMove(ctx, folder, target); err != nil {
			return nil, err
		}
		folder.ParentID = target
	}

	if err := s.checkSiblingName(ctx, ownerID, folder.ParentID, folder.Name, folder.ID); err != nil {
		return nil, err
	}

	folder.UpdatedAt = time.Now()
	if err := s.folderRepo.Update(ctx, folder); err != nil {
		return nil, err
	}

	s.logger.Info("folder updated",
		"id", folder.ID,
		"name", folder.Name,
		"parent_id", folder.ParentID,
	)

	return folder, nil
}

// validateMove rejects self-parenting and moves below the folder's own
// subtree by climbing from the new parent to the root.
func (s *folderService) validateMove(ctx context.Context, folder *models.Folder, newParentID *string) error {
	if newParentID == nil {
		return nil
	}

	if *newParentID == folder.ID {
		return &domain.ConflictError{
			Message:      "cannot move a folder into itself",
			ResourceType: "folder",
			ResourceID:   folder.ID,
		}
	}

	if err := validateDestination(ctx, s.folderRepo, folder.OwnerID, newParentID); err != nil {
		return err
	}

	within, err := s.walker.isWithin(ctx, *newParentID, folder.ID)
	if err != nil {
		return err
	}
	if within {
		return &domain.ConflictError{
			Message:      "cannot move a folder into one of its descendants",
			ResourceType: "folder",
			ResourceID:   *newParentID,
		}
	}
	return nil
}

// checkSiblingName enforces unique live folder names per parent
func (s *folderService) checkSiblingName(ctx context.Context, ownerID string, parentID *string, name, selfID string) error {
	siblings, err := s.folderRepo.ListLiveChildren(ctx, ownerID, parentID)
	if err != nil {
		return fmt.Errorf("failed to check for duplicate names: %w", err)
	}
	for _, sibling := range siblings {
		if sibling.ID != selfID && sibling.Name == name {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("a folder named %q already exists in this location", name),
				ResourceType: "folder",
				ResourceID:   sibling.ID,
			}
		}
	}
	return nil
}

// ListRoot lists the owner's live root folders and files
func (s *folderService) ListRoot(ctx context.Context, ownerID string) (*models.FolderContents, error) {
	folders, err := s.folderRepo.ListLiveChildren(ctx, ownerID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list root folders: %w", err)
	}

	files, err := s.fileRepo.ListLiveByFolder(ctx, ownerID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list root files: %w", err)
	}

	entries := make([]models.FolderEntry, len(files))
	for i, f := range files {
		entries[i] = models.FolderEntry{File: f}
	}

	return &models.FolderContents{
		Folders: folders,
		Files:   entries,
	}, nil
}

// GetTree builds the owner's live folder tree with file metadata
func (s *folderService) GetTree(ctx context.Context, ownerID string) (*models.TreeNode, error) {
	folders, err := s.folderRepo.ListAllByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	files, err := s.fileRepo.ListAllLiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	nodes := make(map[string]*models.FolderTreeNode, len(folders))
	for _, f := range folders {
		nodes[f.ID] = &models.FolderTreeNode{
			ID:        f.ID,
			Name:      f.Name,
			ParentID:  f.ParentID,
			CreatedAt: f.CreatedAt,
			Folders:   []*models.FolderTreeNode{},
			Files:     []models.FileTreeNode{},
		}
	}

	root := &models.TreeNode{
		Folders: []*models.FolderTreeNode{},
		Files:   []models.FileTreeNode{},
	}

	// Folders arrive sorted by name, so children keep that order
	for _, f := range folders {
		node := nodes[f.ID]
		if f.ParentID != nil {
			if parent, ok := nodes[*f.ParentID]; ok {
				parent.Folders = append(parent.Folders, node)
				continue
			}
		}
		root.Folders = append(root.Folders, node)
	}

	for _, f := range files {
		leaf := models.FileTreeNode{
			ID:        f.ID,
			Name:      f.Name,
			FolderID:  f.FolderID,
			Size:      f.Size,
			UpdatedAt: f.UpdatedAt,
		}
		if f.FolderID != nil {
			if parent, ok := nodes[*f.FolderID]; ok {
				parent.Files = append(parent.Files, leaf)
				continue
			}
		}
		root.Files = append(root.Files, leaf)
	}

	return root, nil
}

// validateCreateRequest validates a folder creation request
func (s *folderService) validateCreateRequest(req *services.CreateFolderRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.OwnerID, validation.Required),
		validation.Field(&req.Name, nameRules("folder", config.MaxFolderNameLength)...),
	)
}

// validateUpdateRequest validates a folder update request
func (s *folderService) validateUpdateRequest(req *services.UpdateFolderRequest) error {
	// At least one field must be provided
	if req.Name == nil && !req.ParentID.Present {
		return fmt.Errorf("at least one field must be provided")
	}

	if req.Name != nil {
		name := normalizeName(*req.Name)
		return validation.Validate(name, nameRules("folder", config.MaxFolderNameLength)...)
	}
	return nil
}
