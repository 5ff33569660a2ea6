package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"
	"sealdrive/internal/config"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
	"sealdrive/internal/domain/services"
)

const (
	opSoftDelete = "soft_delete"
	opRestore    = "restore"
)

type trashService struct {
	folderRepo repositories.FolderRepository
	fileRepo   repositories.FileRepository
	grantRepo  repositories.GrantRepository
	userRepo   repositories.UserRepository
	usageRepo  repositories.UsageRepository
	blobs      services.BlobStore
	txManager  repositories.TransactionManager
	journal    repositories.CascadeJournal
	walker     *treeWalker
	now        func() time.Time
	logger     *slog.Logger
}

// TrashServiceDeps groups the collaborators of the trash lifecycle
type TrashServiceDeps struct {
	Folders   repositories.FolderRepository
	Files     repositories.FileRepository
	Grants    repositories.GrantRepository
	Users     repositories.UserRepository
	Usage     repositories.UsageRepository
	Blobs     services.BlobStore
	TxManager repositories.TransactionManager
	Journal   repositories.CascadeJournal
	Now       func() time.Time // Defaults to time.Now
	Logger    *slog.Logger
}

// NewTrashService creates a new trash lifecycle service
func NewTrashService(deps TrashServiceDeps) services.TrashService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &trashService{
		folderRepo: deps.Folders,
		fileRepo:   deps.Files,
		grantRepo:  deps.Grants,
		userRepo:   deps.Users,
		usageRepo:  deps.Usage,
		blobs:      deps.Blobs,
		txManager:  deps.TxManager,
		journal:    deps.Journal,
		walker:     newTreeWalker(deps.Folders),
		now:        now,
		logger:     deps.Logger,
	}
}

// cascadeErrors collects per-item failures of one cascade
type cascadeErrors struct {
	errs   error
	failed []string
}

func (c *cascadeErrors) add(item string, err error) {
	c.errs = multierr.Append(c.errs, fmt.Errorf("%s: %w", item, err))
	c.failed = append(c.failed, item)
}

func (c *cascadeErrors) partial(op, nodeID string) error {
	if c.errs == nil {
		return nil
	}
	return &domain.PartialCascadeError{Operation: op, NodeID: nodeID, Failed: len(c.failed), Cause: c.errs}
}

// SoftDelete moves a node to trash. Blobs are reclaimed right away and the
// owner's quota is released once per folder level. A blob that cannot be
// deleted stays held and is retried at purge.
func (s *trashService) SoftDelete(ctx context.Context, ownerID string, kind models.NodeKind, id string) (*models.CascadeReport, error) {
	if err := validateNodeKind(kind); err != nil {
		return nil, err
	}
	if kind == models.NodeKindFile {
		return s.softDeleteFile(ctx, ownerID, id)
	}
	return s.softDeleteFolder(ctx, ownerID, id)
}

func (s *trashService) softDeleteFile(ctx context.Context, ownerID, id string) (*models.CascadeReport, error) {
	file, err := ownedLiveFile(ctx, s.fileRepo, ownerID, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.fileRepo.SetTrashed(ctx, []string{file.ID}, now); err != nil {
		return nil, err
	}

	report := &models.CascadeReport{Operation: opSoftDelete, NodeID: id, Applied: true, Files: 1}
	var failures cascadeErrors
	report.BytesFreed = s.releaseLevel(ctx, ownerID, []models.File{*file}, now, &failures)
	report.FailedItems = failures.failed
	report.Complete = failures.errs == nil

	s.logger.Info("file trashed",
		"id", file.ID,
		"owner_id", ownerID,
		"bytes_freed", report.BytesFreed,
	)
	return report, nil
}

func (s *trashService) softDeleteFolder(ctx context.Context, ownerID, id string) (*models.CascadeReport, error) {
	root, err := ownedLiveFolder(ctx, s.folderRepo, ownerID, id)
	if err != nil {
		return nil, err
	}

	// Collect the subtree before the first side effect
	levels, err := s.walker.subtreeLevels(ctx, *root, ownedBy(ownerID))
	if err != nil {
		return nil, err
	}

	now := s.now()
	report := &models.CascadeReport{Operation: opSoftDelete, NodeID: id, Applied: true}
	var failures cascadeErrors

	for depth, level := range levels {
		ids := make([]string, len(level))
		for i, f := range level {
			ids[i] = f.ID
		}

		files, err := s.filesUnder(ctx, ownerID, ids)
		if err != nil {
			failures.add(fmt.Sprintf("level[%d]", depth), err)
			continue
		}

		var trash []string
		for _, f := range files {
			if f.IsLive() {
				trash = append(trash, f.ID)
			}
		}
		if err := s.fileRepo.SetTrashed(ctx, trash, now); err != nil {
			failures.add(fmt.Sprintf("level[%d]", depth), err)
			continue
		}

		report.Files += len(trash)
		report.BytesFreed += s.releaseLevel(ctx, ownerID, files, now, &failures)
	}

	// The folders themselves go last
	folderIDs := flatten(levels)
	for _, batch := range chunk(folderIDs, config.CascadeBatchSize) {
		if err := s.folderRepo.SetTrashed(ctx, batch, now); err != nil {
			return nil, fmt.Errorf("trash folders: %w", err)
		}
	}
	report.Folders = len(folderIDs)
	report.FailedItems = failures.failed
	report.Complete = failures.errs == nil

	if failures.errs != nil {
		s.logger.Warn("folder trashed with blobs still held",
			"id", id,
			"failed", len(failures.failed),
			"error", failures.errs,
		)
	}

	s.logger.Info("folder trashed",
		"id", id,
		"owner_id", ownerID,
		"folders", report.Folders,
		"files", report.Files,
		"bytes_freed", report.BytesFreed,
	)
	return report, nil
}

// releaseLevel deletes the blobs still held by files, then in one
// transaction marks them released, closes their usage intervals and releases
// the freed bytes from the owner's quota in one decrement. Only rows this
// call flipped count toward the decrement. Returns the bytes freed.
func (s *trashService) releaseLevel(ctx context.Context, ownerID string, files []models.File, now time.Time, failures *cascadeErrors) int64 {
	var gone []models.File
	for _, f := range files {
		if !f.HasContent() {
			continue
		}
		if err := s.blobs.Delete(ctx, f.StoragePath); err != nil {
			s.logger.Error("failed to release blob",
				"file_id", f.ID,
				"handle", f.StoragePath,
				"error", err,
			)
			failures.add("file:"+f.ID, err)
			continue
		}
		gone = append(gone, f)
	}
	if len(gone) == 0 {
		return 0
	}

	var freed int64
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		freed = 0
		for i := range gone {
			flipped, err := s.fileRepo.MarkBlobReleased(txCtx, gone[i].ID, now)
			if err != nil {
				return err
			}
			if !flipped {
				continue
			}
			if err := s.usageRepo.CloseOpen(txCtx, gone[i].ID, now); err != nil {
				return err
			}
			freed += gone[i].Size
		}
		if freed == 0 {
			return nil
		}
		return s.userRepo.ReleaseStorage(txCtx, ownerID, freed)
	})
	if err != nil {
		// The rows stay unmarked, so purge releases these bytes later
		s.logger.Error("failed to release quota",
			"owner_id", ownerID,
			"files", len(gone),
			"error", err,
		)
		failures.add("quota:"+ownerID, err)
		return 0
	}
	return freed
}

// Restore flips a trashed node back to active. Content reclaimed at
// soft-delete does not come back; those file ids are listed in
// ContentUnavailable. A node whose parent is no longer live lands at root.
func (s *trashService) Restore(ctx context.Context, ownerID string, kind models.NodeKind, id string) (*models.CascadeReport, error) {
	if err := validateNodeKind(kind); err != nil {
		return nil, err
	}
	if kind == models.NodeKindFile {
		return s.restoreFile(ctx, ownerID, id)
	}
	return s.restoreFolder(ctx, ownerID, id)
}

func (s *trashService) restoreFile(ctx context.Context, ownerID, id string) (*models.CascadeReport, error) {
	file, err := s.fileRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != ownerID {
		return nil, fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}

	report := &models.CascadeReport{Operation: opRestore, NodeID: id, Complete: true}
	if file.IsLive() {
		return report, nil
	}

	if target := s.liveParent(ctx, ownerID, file.FolderID); target != file.FolderID {
		file.FolderID = target
		file.UpdatedAt = s.now()
		if err := s.fileRepo.Update(ctx, file); err != nil {
			return nil, err
		}
	}

	if err := s.fileRepo.ClearTrashed(ctx, []string{id}); err != nil {
		return nil, err
	}

	report.Applied = true
	report.Files = 1
	if !file.HasContent() {
		report.ContentUnavailable = []string{id}
	}

	s.logger.Info("file restored",
		"id", id,
		"folder_id", file.FolderID,
		"content_available", file.HasContent(),
	)
	return report, nil
}

func (s *trashService) restoreFolder(ctx context.Context, ownerID, id string) (*models.CascadeReport, error) {
	root, err := s.folderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if root.OwnerID != ownerID {
		return nil, fmt.Errorf("folder %s: %w", id, domain.ErrNotFound)
	}

	report := &models.CascadeReport{Operation: opRestore, NodeID: id, Complete: true}
	if root.IsLive() {
		return report, nil
	}

	target := s.liveParent(ctx, ownerID, root.ParentID)
	siblings, err := s.folderRepo.ListLiveChildren(ctx, ownerID, target)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate names: %w", err)
	}
	for _, sibling := range siblings {
		if sibling.Name == root.Name {
			return nil, &domain.ConflictError{
				Message:      fmt.Sprintf("a folder named %q already exists in the restore location", root.Name),
				ResourceType: "folder",
				ResourceID:   sibling.ID,
			}
		}
	}

	levels, err := s.walker.subtreeLevels(ctx, *root, ownedBy(ownerID))
	if err != nil {
		return nil, err
	}

	if target != root.ParentID {
		root.ParentID = target
		root.UpdatedAt = s.now()
		if err := s.folderRepo.Update(ctx, root); err != nil {
			return nil, err
		}
	}

	folderIDs := flatten(levels)
	for _, batch := range chunk(folderIDs, config.CascadeBatchSize) {
		if err := s.folderRepo.ClearTrashed(ctx, batch); err != nil {
			return nil, fmt.Errorf("restore folders: %w", err)
		}
	}
	report.Applied = true
	report.Folders = len(folderIDs)

	var failures cascadeErrors
	for i, batch := range chunk(folderIDs, config.CascadeBatchSize) {
		files, err := s.filesUnder(ctx, ownerID, batch)
		if err != nil {
			failures.add(fmt.Sprintf("files[%d]", i), err)
			continue
		}

		var restore []string
		for _, f := range files {
			if f.IsDeleted {
				restore = append(restore, f.ID)
				if !f.HasContent() {
					report.ContentUnavailable = append(report.ContentUnavailable, f.ID)
				}
			}
		}
		if err := s.fileRepo.ClearTrashed(ctx, restore); err != nil {
			failures.add(fmt.Sprintf("files[%d]", i), err)
			continue
		}
		report.Files += len(restore)
	}
	report.FailedItems = failures.failed
	report.Complete = failures.errs == nil

	s.logger.Info("folder restored",
		"id", id,
		"parent_id", root.ParentID,
		"folders", report.Folders,
		"files", report.Files,
		"content_unavailable", len(report.ContentUnavailable),
	)
	return report, nil
}

// liveParent returns parentID when it is a live folder of the owner, else nil (root)
func (s *trashService) liveParent(ctx context.Context, ownerID string, parentID *string) *string {
	if parentID == nil {
		return nil
	}
	parent, err := s.folderRepo.GetByID(ctx, *parentID)
	if err != nil || !parent.IsLive() || parent.OwnerID != ownerID {
		return nil
	}
	return parentID
}

// Purge irreversibly deletes a trashed node. Ids that are absent or belong
// to someone else are a no-op, so a cut-off purge can simply be rerun.
func (s *trashService) Purge(ctx context.Context, ownerID string, kind models.NodeKind, id string) (*models.CascadeReport, error) {
	if err := validateNodeKind(kind); err != nil {
		return nil, err
	}
	if kind == models.NodeKindFile {
		return s.purgeFileNode(ctx, ownerID, id)
	}
	return s.purgeFolderNode(ctx, ownerID, id)
}

func (s *trashService) purgeFileNode(ctx context.Context, ownerID, id string) (*models.CascadeReport, error) {
	report := &models.CascadeReport{Operation: string(models.CascadePurgeFile), NodeID: id, Complete: true}

	file, err := s.fileRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return report, nil
		}
		return nil, err
	}
	if file.OwnerID != ownerID {
		return report, nil
	}
	if file.IsLive() {
		return nil, &domain.ConflictError{
			Message:      "file must be in trash before it is purged",
			ResourceType: "file",
			ResourceID:   id,
		}
	}

	freed, grants, err := s.purgeFile(ctx, file)
	if err != nil {
		journalTask(ctx, s.journal, s.logger, &models.CascadeTask{
			Kind:      models.CascadePurgeFile,
			OwnerID:   ownerID,
			NodeID:    id,
			LastError: err.Error(),
		})
		return nil, err
	}

	report.Applied = true
	report.Files = 1
	report.BytesFreed = freed
	report.FileGrantsRemoved = grants

	s.logger.Info("file purged",
		"id", id,
		"owner_id", ownerID,
		"bytes_freed", freed,
	)
	return report, nil
}

// purgeFile removes one file for good. The blob goes first (a missing blob
// counts as gone). Quota is released in the same transaction that deletes
// the row, and only when this call is the one that marks the blob released,
// so neither a retry nor a concurrent purge releases twice.
func (s *trashService) purgeFile(ctx context.Context, file *models.File) (freed, grantsRemoved int64, err error) {
	held := file.HasContent()
	if held {
		if err := s.blobs.Delete(ctx, file.StoragePath); err != nil {
			return 0, 0, err
		}
	}

	now := s.now()
	deleted := false
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		freed, grantsRemoved = 0, 0
		if held {
			flipped, err := s.fileRepo.MarkBlobReleased(txCtx, file.ID, now)
			if err != nil {
				return err
			}
			if flipped {
				if err := s.userRepo.ReleaseStorage(txCtx, file.OwnerID, file.Size); err != nil {
					return err
				}
				freed = file.Size
			}
		}
		if err := s.usageRepo.CloseOpen(txCtx, file.ID, now); err != nil {
			return err
		}

		n, err := s.grantRepo.DeleteAllForFiles(txCtx, []string{file.ID})
		if err != nil {
			return err
		}
		grantsRemoved = n

		deleted, err = s.fileRepo.Delete(txCtx, file.ID)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	if !deleted {
		s.logger.Info("file already purged",
			"id", file.ID,
			"owner_id", file.OwnerID,
		)
	}
	return freed, grantsRemoved, nil
}

// purgeFolderNode purges every file of the subtree independently, then
// deletes folders bottom-up. A folder is kept while anything below it failed
// to purge; the remainder is journaled.
func (s *trashService) purgeFolderNode(ctx context.Context, ownerID, id string) (*models.CascadeReport, error) {
	report := &models.CascadeReport{Operation: string(models.CascadePurgeFolder), NodeID: id, Complete: true}

	root, err := s.folderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return report, nil
		}
		return nil, err
	}
	if root.OwnerID != ownerID {
		return report, nil
	}
	if root.IsLive() {
		return nil, &domain.ConflictError{
			Message:      "folder must be in trash before it is purged",
			ResourceType: "folder",
			ResourceID:   id,
		}
	}

	levels, err := s.walker.subtreeLevels(ctx, *root, ownedBy(ownerID))
	if err != nil {
		return nil, err
	}

	parentOf := make(map[string]string)
	for _, level := range levels[1:] {
		for _, f := range level {
			parentOf[f.ID] = *f.ParentID
		}
	}

	// blocked folders still contain something and must not be deleted
	blocked := make(map[string]struct{})
	block := func(folderID string) {
		for current, ok := folderID, true; ok; current, ok = parentOf[current] {
			if _, done := blocked[current]; done {
				return
			}
			blocked[current] = struct{}{}
		}
	}

	report.Applied = true
	var failures cascadeErrors

	for i, batch := range chunk(flatten(levels), config.CascadeBatchSize) {
		files, err := s.filesUnder(ctx, ownerID, batch)
		if err != nil {
			failures.add(fmt.Sprintf("files[%d]", i), err)
			for _, folderID := range batch {
				block(folderID)
			}
			continue
		}

		for j := range files {
			f := &files[j]
			freed, grants, err := s.purgeFile(ctx, f)
			if err != nil {
				s.logger.Error("failed to purge file",
					"file_id", f.ID,
					"folder_id", f.FolderID,
					"error", err,
				)
				failures.add("file:"+f.ID, err)
				block(*f.FolderID)
				continue
			}
			report.Files++
			report.BytesFreed += freed
			report.FileGrantsRemoved += grants
		}
	}

	for depth := len(levels) - 1; depth >= 0; depth-- {
		var ids []string
		for _, f := range levels[depth] {
			if _, skip := blocked[f.ID]; !skip {
				ids = append(ids, f.ID)
			}
		}

		for _, batch := range chunk(ids, config.CascadeBatchSize) {
			removed, grants, err := s.deleteFolders(ctx, batch)
			if err != nil {
				failures.add(fmt.Sprintf("folders[depth=%d]", depth), err)
				for _, folderID := range batch {
					block(folderID)
				}
				continue
			}
			report.Folders += int(removed)
			report.FolderGrantsRemoved += grants
		}
	}

	report.FailedItems = failures.failed
	report.Complete = failures.errs == nil

	if err := failures.partial(string(models.CascadePurgeFolder), id); err != nil {
		journalTask(ctx, s.journal, s.logger, &models.CascadeTask{
			Kind:      models.CascadePurgeFolder,
			OwnerID:   ownerID,
			NodeID:    id,
			LastError: failures.errs.Error(),
		})
		return report, err
	}

	s.logger.Info("folder purged",
		"id", id,
		"owner_id", ownerID,
		"folders", report.Folders,
		"files", report.Files,
		"bytes_freed", report.BytesFreed,
	)
	return report, nil
}

// deleteFolders drops one batch of folders with their grants
func (s *trashService) deleteFolders(ctx context.Context, ids []string) (removed, grants int64, err error) {
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		n, err := s.grantRepo.DeleteAllForFolders(txCtx, ids)
		if err != nil {
			return err
		}
		grants = n

		removed, err = s.folderRepo.DeleteByIDs(txCtx, ids)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return removed, grants, nil
}

// filesUnder lists the owner's files (trashed or not) in the given folders
func (s *trashService) filesUnder(ctx context.Context, ownerID string, folderIDs []string) ([]models.File, error) {
	files, err := s.fileRepo.ListByFolders(ctx, folderIDs)
	if err != nil {
		return nil, err
	}
	owned := files[:0]
	for _, f := range files {
		if f.OwnerID == ownerID {
			owned = append(owned, f)
		}
	}
	return owned, nil
}

// ListTrash lists the owner's top-level trashed items
func (s *trashService) ListTrash(ctx context.Context, ownerID string) (*services.TrashListing, error) {
	folders, err := s.folderRepo.ListTrashRoots(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list trashed folders: %w", err)
	}
	files, err := s.fileRepo.ListTrashRoots(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list trashed files: %w", err)
	}
	return &services.TrashListing{Folders: folders, Files: files}, nil
}

// PurgeExpired purges trash roots of every owner trashed before cutoff.
// Returns how many roots were purged completely.
func (s *trashService) PurgeExpired(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = config.DefaultSweepBatchSize
	}

	var errs error
	purged := 0

	folders, err := s.folderRepo.ListExpiredTrashRoots(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list expired folders: %w", err)
	}
	for _, f := range folders {
		if _, err := s.Purge(ctx, f.OwnerID, models.NodeKindFolder, f.ID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		purged++
	}

	remaining := limit - len(folders)
	if remaining <= 0 {
		return purged, errs
	}

	files, err := s.fileRepo.ListExpiredTrashRoots(ctx, cutoff, remaining)
	if err != nil {
		return purged, multierr.Append(errs, fmt.Errorf("list expired files: %w", err))
	}
	for _, f := range files {
		if _, err := s.Purge(ctx, f.OwnerID, models.NodeKindFile, f.ID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		purged++
	}

	if purged > 0 {
		s.logger.Info("expired trash purged", "count", purged, "cutoff", cutoff)
	}
	return purged, errs
}
