package drive

import (
	"context"
	"fmt"
	"log/slog"

	"sealdrive/internal/config"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
	"sealdrive/internal/domain/services"
)

type syncService struct {
	folderRepo repositories.FolderRepository
	fileRepo   repositories.FileRepository
	grantRepo  repositories.GrantRepository
	userRepo   repositories.UserRepository
	walker     *treeWalker
	logger     *slog.Logger
}

// NewSyncService creates a new key sync scanner
func NewSyncService(
	folderRepo repositories.FolderRepository,
	fileRepo repositories.FileRepository,
	grantRepo repositories.GrantRepository,
	userRepo repositories.UserRepository,
	logger *slog.Logger,
) services.SyncService {
	return &syncService{
		folderRepo: folderRepo,
		fileRepo:   fileRepo,
		grantRepo:  grantRepo,
		userRepo:   userRepo,
		walker:     newTreeWalker(folderRepo),
		logger:     logger,
	}
}

// ScanPendingSync finds recipients who can see files of the target through
// a current grant but hold no FileGrant for them. Only grants that exist right
// now are trusted, so a recipient whose inherited access was revoked never
// shows up.
func (s *syncService) ScanPendingSync(ctx context.Context, ownerID string, kind models.NodeKind, targetID string) ([]models.PendingSync, error) {
	if err := validateNodeKind(kind); err != nil {
		return nil, err
	}

	var (
		targetFiles    []models.File
		startingFolder *string
	)

	switch kind {
	case models.NodeKindFile:
		file, err := ownedLiveFile(ctx, s.fileRepo, ownerID, targetID)
		if err != nil {
			return nil, err
		}
		targetFiles = []models.File{*file}
		startingFolder = file.FolderID
	default:
		folder, err := ownedLiveFolder(ctx, s.folderRepo, ownerID, targetID)
		if err != nil {
			return nil, err
		}
		targetFiles, err = s.subtreeFiles(ctx, *folder)
		if err != nil {
			return nil, err
		}
		startingFolder = &folder.ID
	}

	if len(targetFiles) == 0 {
		return []models.PendingSync{}, nil
	}

	lineage, err := s.walker.lineage(ctx, startingFolder)
	if err != nil {
		return nil, err
	}

	// Candidate recipients, in first-seen order
	var recipients []string
	seen := make(map[string]struct{})
	addRecipient := func(id string) {
		if id == ownerID {
			return
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			recipients = append(recipients, id)
		}
	}

	folderGrants, err := s.grantRepo.ListFolderGrantsByFolders(ctx, lineage, ownerID, nil)
	if err != nil {
		return nil, fmt.Errorf("load lineage grants: %w", err)
	}
	for _, g := range folderGrants {
		addRecipient(g.SharedWith)
	}

	targetIDs := make([]string, len(targetFiles))
	for i, f := range targetFiles {
		targetIDs[i] = f.ID
	}

	// One pass over every grant on the target files serves both the direct
	// recipients of a single file and the "already has a key" set
	held := make(map[string]map[string]struct{})
	for _, batch := range chunk(targetIDs, config.CascadeBatchSize) {
		grants, err := s.grantRepo.ListFileGrantsByFiles(ctx, batch, nil)
		if err != nil {
			return nil, fmt.Errorf("load file grants: %w", err)
		}
		for _, g := range grants {
			if held[g.SharedWith] == nil {
				held[g.SharedWith] = make(map[string]struct{})
			}
			held[g.SharedWith][g.FileID] = struct{}{}
			if kind == models.NodeKindFile {
				addRecipient(g.SharedWith)
			}
		}
	}

	type pending struct {
		recipient string
		files     []models.File
	}
	var missing []pending
	for _, recipient := range recipients {
		var files []models.File
		for _, f := range targetFiles {
			if _, ok := held[recipient][f.ID]; !ok {
				files = append(files, f.Metadata())
			}
		}
		if len(files) > 0 {
			missing = append(missing, pending{recipient: recipient, files: files})
		}
	}

	result := []models.PendingSync{}
	if len(missing) == 0 {
		return result, nil
	}

	ids := make([]string, len(missing))
	for i, m := range missing {
		ids[i] = m.recipient
	}
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	byID := make(map[string]models.UserSummary, len(users))
	for i := range users {
		byID[users[i].ID] = users[i].Summary()
	}

	for _, m := range missing {
		user, ok := byID[m.recipient]
		if !ok {
			user = models.UserSummary{ID: m.recipient}
		}
		result = append(result, models.PendingSync{User: user, Files: m.files})
	}

	s.logger.Debug("pending sync scanned",
		"owner_id", ownerID,
		"kind", kind,
		"target_id", targetID,
		"recipients", len(result),
	)

	return result, nil
}

// subtreeFiles returns every live file of the owner under the folder
func (s *syncService) subtreeFiles(ctx context.Context, root models.Folder) ([]models.File, error) {
	levels, err := s.walker.subtreeLevels(ctx, root, liveOwnedBy(root.OwnerID))
	if err != nil {
		return nil, err
	}

	var files []models.File
	for _, batch := range chunk(flatten(levels), config.CascadeBatchSize) {
		found, err := s.fileRepo.ListByFolders(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("list subtree files: %w", err)
		}
		for _, f := range found {
			if f.IsLive() && f.OwnerID == root.OwnerID {
				files = append(files, f)
			}
		}
	}
	return files, nil
}
