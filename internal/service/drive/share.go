package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"sealdrive/internal/config"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
	"sealdrive/internal/domain/services"
)

// Reasons reported for skipped bulk share items
const (
	skipNotFound      = "not_found"
	skipMissingKey    = "missing_wrapped_key"
	skipBadPermission = "invalid_permission"
	skipStoreError    = "store_error"
)

type shareService struct {
	folderRepo repositories.FolderRepository
	fileRepo   repositories.FileRepository
	grantRepo  repositories.GrantRepository
	userRepo   repositories.UserRepository
	blobs      services.BlobStore
	authorizer services.ResourceAuthorizer
	walker     *treeWalker
	presignTTL time.Duration
	logger     *slog.Logger
}

// ShareServiceDeps groups the collaborators of the share service
type ShareServiceDeps struct {
	Folders    repositories.FolderRepository
	Files      repositories.FileRepository
	Grants     repositories.GrantRepository
	Users      repositories.UserRepository
	Blobs      services.BlobStore
	Authorizer services.ResourceAuthorizer
	PresignTTL time.Duration
	Logger     *slog.Logger
}

// NewShareService creates a new share service
func NewShareService(deps ShareServiceDeps) services.ShareService {
	return &shareService{
		folderRepo: deps.Folders,
		fileRepo:   deps.Files,
		grantRepo:  deps.Grants,
		userRepo:   deps.Users,
		blobs:      deps.Blobs,
		authorizer: deps.Authorizer,
		walker:     newTreeWalker(deps.Folders),
		presignTTL: deps.PresignTTL,
		logger:     deps.Logger,
	}
}

// ShareFile grants one file with the recipient's wrapped key
func (s *shareService) ShareFile(ctx context.Context, req *services.ShareFileRequest) (*models.FileGrant, error) {
	err := validation.ValidateStruct(req,
		validation.Field(&req.FileID, validation.Required),
		validation.Field(&req.RecipientID, validation.Required),
		validation.Field(&req.WrappedKey, validation.Required),
		validation.Field(&req.Permission, permissionRule),
	)
	if err != nil {
		return nil, invalid(err)
	}

	if err := s.checkRecipient(ctx, req.OwnerID, req.RecipientID); err != nil {
		return nil, err
	}

	file, err := ownedLiveFile(ctx, s.fileRepo, req.OwnerID, req.FileID)
	if err != nil {
		return nil, err
	}

	grant := &models.FileGrant{
		FileID:     file.ID,
		OwnerID:    req.OwnerID,
		SharedWith: req.RecipientID,
		WrappedKey: req.WrappedKey,
		Permission: req.Permission.OrDefault(),
	}
	if err := s.grantRepo.CreateFileGrant(ctx, grant); err != nil {
		return nil, err
	}

	s.logger.Info("file shared",
		"grant_id", grant.ID,
		"file_id", file.ID,
		"owner_id", req.OwnerID,
		"shared_with", req.RecipientID,
		"permission", grant.Permission,
	)

	return grant, nil
}

// ShareBulk upserts every item independently. Items the caller does not own,
// or that are trashed, are skipped rather than failing the batch.
func (s *shareService) ShareBulk(ctx context.Context, req *services.ShareBulkRequest) (*services.BulkShareResult, error) {
	if req.RecipientID == "" {
		return nil, invalid(errors.New("recipient_id: cannot be blank"))
	}
	total := len(req.Files) + len(req.Folders)
	if total == 0 {
		return nil, invalid(errors.New("at least one file or folder is required"))
	}
	if total > config.MaxBulkShareItems {
		return nil, invalid(fmt.Errorf("at most %d items per request", config.MaxBulkShareItems))
	}

	if err := s.checkRecipient(ctx, req.OwnerID, req.RecipientID); err != nil {
		return nil, err
	}

	result := &services.BulkShareResult{
		FileGrants:   []models.FileGrant{},
		FolderGrants: []models.FolderGrant{},
		Skipped:      []services.SkippedItem{},
	}

	ownedFiles, err := s.ownedLiveFiles(ctx, req.OwnerID, req.Files)
	if err != nil {
		return nil, err
	}
	for _, item := range req.Files {
		reason := ""
		switch {
		case ownedFiles[item.FileID] == nil:
			reason = skipNotFound
		case item.WrappedKey == "":
			reason = skipMissingKey
		case item.Permission != "" && !item.Permission.Valid():
			reason = skipBadPermission
		}
		if reason != "" {
			result.Skipped = append(result.Skipped, services.SkippedItem{Kind: models.NodeKindFile, ID: item.FileID, Reason: reason})
			continue
		}

		grant := &models.FileGrant{
			FileID:     item.FileID,
			OwnerID:    req.OwnerID,
			SharedWith: req.RecipientID,
			WrappedKey: item.WrappedKey,
			Permission: item.Permission.OrDefault(),
		}
		if err := s.grantRepo.UpsertFileGrant(ctx, grant); err != nil {
			s.logger.Error("bulk share: file grant upsert failed",
				"file_id", item.FileID,
				"shared_with", req.RecipientID,
				"error", err,
			)
			result.Skipped = append(result.Skipped, services.SkippedItem{Kind: models.NodeKindFile, ID: item.FileID, Reason: skipStoreError})
			continue
		}
		result.FileGrants = append(result.FileGrants, *grant)
	}

	ownedFolders, err := s.ownedLiveFolders(ctx, req.OwnerID, req.Folders)
	if err != nil {
		return nil, err
	}
	for _, item := range req.Folders {
		reason := ""
		switch {
		case ownedFolders[item.FolderID] == nil:
			reason = skipNotFound
		case item.Permission != "" && !item.Permission.Valid():
			reason = skipBadPermission
		}
		if reason != "" {
			result.Skipped = append(result.Skipped, services.SkippedItem{Kind: models.NodeKindFolder, ID: item.FolderID, Reason: reason})
			continue
		}

		grant := &models.FolderGrant{
			FolderID:   item.FolderID,
			OwnerID:    req.OwnerID,
			SharedWith: req.RecipientID,
			Permission: item.Permission.OrDefault(),
		}
		if err := s.grantRepo.UpsertFolderGrant(ctx, grant); err != nil {
			s.logger.Error("bulk share: folder grant upsert failed",
				"folder_id", item.FolderID,
				"shared_with", req.RecipientID,
				"error", err,
			)
			result.Skipped = append(result.Skipped, services.SkippedItem{Kind: models.NodeKindFolder, ID: item.FolderID, Reason: skipStoreError})
			continue
		}
		result.FolderGrants = append(result.FolderGrants, *grant)
	}

	s.logger.Info("bulk share applied",
		"owner_id", req.OwnerID,
		"shared_with", req.RecipientID,
		"file_grants", len(result.FileGrants),
		"folder_grants", len(result.FolderGrants),
		"skipped", len(result.Skipped),
	)

	return result, nil
}

func (s *shareService) ownedLiveFiles(ctx context.Context, ownerID string, items []services.FileShareItem) (map[string]*models.File, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.FileID
	}
	files, err := s.fileRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load files to share: %w", err)
	}
	owned := make(map[string]*models.File, len(files))
	for i := range files {
		if files[i].IsLive() && files[i].OwnerID == ownerID {
			owned[files[i].ID] = &files[i]
		}
	}
	return owned, nil
}

func (s *shareService) ownedLiveFolders(ctx context.Context, ownerID string, items []services.FolderShareItem) (map[string]*models.Folder, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.FolderID
	}
	folders, err := s.folderRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load folders to share: %w", err)
	}
	owned := make(map[string]*models.Folder, len(folders))
	for i := range folders {
		if folders[i].IsLive() && folders[i].OwnerID == ownerID {
			owned[folders[i].ID] = &folders[i]
		}
	}
	return owned, nil
}

// checkRecipient rejects self-shares and unknown recipients
func (s *shareService) checkRecipient(ctx context.Context, ownerID, recipientID string) error {
	if recipientID == ownerID {
		return invalid(errors.New("cannot share with yourself"))
	}
	if _, err := s.userRepo.GetByID(ctx, recipientID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("recipient %s: %w", recipientID, domain.ErrNotFound)
		}
		return err
	}
	return nil
}

// UpdatePermission changes the permission level of a grant the caller owns
func (s *shareService) UpdatePermission(ctx context.Context, req *services.UpdatePermissionRequest) error {
	if err := validateNodeKind(req.Kind); err != nil {
		return err
	}
	if !req.Permission.Valid() {
		return invalid(fmt.Errorf("permission must be %q or %q", models.PermissionView, models.PermissionEdit))
	}

	switch req.Kind {
	case models.NodeKindFile:
		grant, err := s.grantRepo.GetFileGrant(ctx, req.GrantID)
		if err != nil {
			return err
		}
		if grant.OwnerID != req.CallerID {
			return fmt.Errorf("file grant %s: %w", req.GrantID, domain.ErrNotFound)
		}
		if err := s.grantRepo.UpdateFileGrantPermission(ctx, grant.ID, req.Permission); err != nil {
			return err
		}
	default:
		grant, err := s.grantRepo.GetFolderGrant(ctx, req.GrantID)
		if err != nil {
			return err
		}
		if grant.OwnerID != req.CallerID {
			return fmt.Errorf("folder grant %s: %w", req.GrantID, domain.ErrNotFound)
		}
		if err := s.grantRepo.UpdateFolderGrantPermission(ctx, grant.ID, req.Permission); err != nil {
			return err
		}
	}

	s.logger.Info("grant permission updated",
		"grant_id", req.GrantID,
		"kind", req.Kind,
		"permission", req.Permission,
	)
	return nil
}

// ListSharedWithMe returns only the top of each shared subtree: a folder is
// dropped when any ancestor is also granted, a file when its folder sits
// anywhere inside a granted folder. Trashed nodes are excluded.
func (s *shareService) ListSharedWithMe(ctx context.Context, userID string, ownerFilter *string) ([]models.SharedItem, error) {
	folderGrants, err := s.grantRepo.ListFolderGrantsForRecipient(ctx, userID, ownerFilter)
	if err != nil {
		return nil, err
	}
	fileGrants, err := s.grantRepo.ListFileGrantsForRecipient(ctx, userID, ownerFilter)
	if err != nil {
		return nil, err
	}

	folderIDs := make([]string, len(folderGrants))
	for i, g := range folderGrants {
		folderIDs[i] = g.FolderID
	}
	grantedFolders, err := s.folderRepo.GetByIDs(ctx, folderIDs)
	if err != nil {
		return nil, fmt.Errorf("load shared folders: %w", err)
	}
	folderByID := make(map[string]*models.Folder, len(grantedFolders))
	for i := range grantedFolders {
		if grantedFolders[i].IsLive() {
			folderByID[grantedFolders[i].ID] = &grantedFolders[i]
		}
	}

	fileIDs := make([]string, len(fileGrants))
	for i, g := range fileGrants {
		fileIDs[i] = g.FileID
	}
	grantedFiles, err := s.fileRepo.GetByIDs(ctx, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("load shared files: %w", err)
	}
	fileByID := make(map[string]*models.File, len(grantedFiles))
	for i := range grantedFiles {
		if grantedFiles[i].IsLive() {
			fileByID[grantedFiles[i].ID] = &grantedFiles[i]
		}
	}

	covered := newCoverage(s.walker, folderByID)

	var items []models.SharedItem
	ownerIDs := make(map[string]struct{})

	for _, g := range folderGrants {
		folder, ok := folderByID[g.FolderID]
		if !ok {
			continue
		}
		inside, err := covered.within(ctx, folder.ParentID)
		if err != nil {
			return nil, err
		}
		if inside {
			continue
		}
		items = append(items, models.SharedItem{
			Kind:       models.NodeKindFolder,
			GrantID:    g.ID,
			Permission: g.Permission,
			Owner:      models.UserSummary{ID: g.OwnerID},
			Folder:     folder,
		})
		ownerIDs[g.OwnerID] = struct{}{}
	}

	for _, g := range fileGrants {
		file, ok := fileByID[g.FileID]
		if !ok {
			continue
		}
		inside, err := covered.within(ctx, file.FolderID)
		if err != nil {
			return nil, err
		}
		if inside {
			continue
		}
		meta := file.Metadata()
		items = append(items, models.SharedItem{
			Kind:       models.NodeKindFile,
			GrantID:    g.ID,
			Permission: g.Permission,
			Owner:      models.UserSummary{ID: g.OwnerID},
			File:       &meta,
			WrappedKey: g.WrappedKey,
		})
		ownerIDs[g.OwnerID] = struct{}{}
	}

	if err := s.attachOwners(ctx, items, ownerIDs); err != nil {
		return nil, err
	}

	if items == nil {
		items = []models.SharedItem{}
	}
	return items, nil
}

func (s *shareService) attachOwners(ctx context.Context, items []models.SharedItem, ownerIDs map[string]struct{}) error {
	if len(ownerIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(ownerIDs))
	for id := range ownerIDs {
		ids = append(ids, id)
	}

	owners, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load owners: %w", err)
	}
	byID := make(map[string]models.UserSummary, len(owners))
	for i := range owners {
		byID[owners[i].ID] = owners[i].Summary()
	}

	for i := range items {
		if owner, ok := byID[items[i].Owner.ID]; ok {
			items[i].Owner = owner
		}
	}
	return nil
}

// coverage answers "is this folder, or any of its ancestors, granted" with
// memoized climbs so shared lineages are walked once.
type coverage struct {
	walker  *treeWalker
	granted map[string]*models.Folder
	memo    map[string]bool
}

func newCoverage(walker *treeWalker, granted map[string]*models.Folder) *coverage {
	return &coverage{walker: walker, granted: granted, memo: make(map[string]bool)}
}

// within reports whether folderID (inclusive) lies in a granted subtree
func (c *coverage) within(ctx context.Context, folderID *string) (bool, error) {
	if folderID == nil {
		return false, nil
	}
	if v, ok := c.memo[*folderID]; ok {
		return v, nil
	}

	chain, err := c.walker.ancestors(ctx, folderID)
	if err != nil {
		return false, err
	}

	// Resolve from the root end so each prefix of the chain is memoized
	result := false
	for i := len(chain) - 1; i >= 0; i-- {
		id := chain[i].ID
		if v, ok := c.memo[id]; ok {
			result = v
			continue
		}
		if _, ok := c.granted[id]; ok {
			result = true
		}
		c.memo[id] = result
	}
	c.memo[*folderID] = result
	return result, nil
}

// ListFolderContents lists a folder the requester owns or reaches by grant.
// Files are annotated IsLocked when the requester holds no key for them.
func (s *shareService) ListFolderContents(ctx context.Context, requesterID, folderID string) (*models.FolderContents, error) {
	folder, err := s.authorizer.CanAccessFolder(ctx, requesterID, folderID)
	if err != nil {
		return nil, err
	}

	subfolders, err := s.folderRepo.ListLiveChildren(ctx, folder.OwnerID, &folder.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child folders: %w", err)
	}

	files, err := s.fileRepo.ListLiveByFolder(ctx, folder.OwnerID, &folder.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	keys, err := s.requesterKeys(ctx, requesterID, files)
	if err != nil {
		return nil, err
	}

	entries := make([]models.FolderEntry, len(files))
	for i, f := range files {
		if f.OwnerID == requesterID {
			entries[i] = models.FolderEntry{File: f}
			continue
		}
		meta := f.Metadata()
		key, held := keys[f.ID]
		meta.WrappedKey = key
		entries[i] = models.FolderEntry{File: meta, IsLocked: !held}
	}

	return &models.FolderContents{
		Folder:  folder,
		Folders: subfolders,
		Files:   entries,
	}, nil
}

// requesterKeys maps file id to the requester's wrapped key, for files the
// requester does not own
func (s *shareService) requesterKeys(ctx context.Context, requesterID string, files []models.File) (map[string]string, error) {
	var ids []string
	for _, f := range files {
		if f.OwnerID != requesterID {
			ids = append(ids, f.ID)
		}
	}

	keys := make(map[string]string, len(ids))
	for _, batch := range chunk(ids, config.CascadeBatchSize) {
		grants, err := s.grantRepo.ListFileGrantsByFiles(ctx, batch, &requesterID)
		if err != nil {
			return nil, fmt.Errorf("load requester keys: %w", err)
		}
		for _, g := range grants {
			keys[g.FileID] = g.WrappedKey
		}
	}
	return keys, nil
}

// EnumerateSubtreeForDownload lists every file under the folder that the
// requester can decrypt, with its path relative to the folder. Files without
// a key are left out entirely.
func (s *shareService) EnumerateSubtreeForDownload(ctx context.Context, requesterID, folderID string) ([]models.DownloadEntry, error) {
	root, err := s.authorizer.CanAccessFolder(ctx, requesterID, folderID)
	if err != nil {
		return nil, err
	}

	levels, err := s.walker.subtreeLevels(ctx, *root, liveOwnedBy(root.OwnerID))
	if err != nil {
		return nil, err
	}

	prefix := map[string]string{root.ID: ""}
	for _, level := range levels[1:] {
		for _, f := range level {
			prefix[f.ID] = prefix[*f.ParentID] + f.Name + "/"
		}
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

	keys, err := s.requesterKeys(ctx, requesterID, files)
	if err != nil {
		return nil, err
	}

	entries := []models.DownloadEntry{}
	for _, f := range files {
		key := f.WrappedKey
		meta := f
		if f.OwnerID != requesterID {
			var held bool
			if key, held = keys[f.ID]; !held {
				continue
			}
			meta = f.Metadata()
		}

		entry := models.DownloadEntry{
			File:       meta,
			ZipPath:    prefix[*f.FolderID] + f.Name,
			WrappedKey: key,
		}
		if f.HasContent() {
			url, err := s.blobs.PresignedDownloadURL(ctx, f.StoragePath, s.presignTTL)
			if err != nil {
				s.logger.Warn("presign failed for subtree entry",
					"file_id", f.ID,
					"error", err,
				)
			}
			entry.DownloadURL = url
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ZipPath < entries[j].ZipPath })
	return entries, nil
}
