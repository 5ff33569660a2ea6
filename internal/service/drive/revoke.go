package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"
	"sealdrive/internal/config"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
	"sealdrive/internal/domain/services"
)

type revocationService struct {
	fileRepo  repositories.FileRepository
	grantRepo repositories.GrantRepository
	journal   repositories.CascadeJournal
	walker    *treeWalker
	logger    *slog.Logger
}

// NewRevocationService creates a new revocation engine
func NewRevocationService(
	folderRepo repositories.FolderRepository,
	fileRepo repositories.FileRepository,
	grantRepo repositories.GrantRepository,
	journal repositories.CascadeJournal,
	logger *slog.Logger,
) services.RevocationService {
	return &revocationService{
		fileRepo:  fileRepo,
		grantRepo: grantRepo,
		journal:   journal,
		walker:    newTreeWalker(folderRepo),
		logger:    logger,
	}
}

// Revoke deletes the grant first and only then cascades, so visibility is
// gone even when the cleanup below it fails.
func (s *revocationService) Revoke(ctx context.Context, req *services.RevokeRequest) (*models.CascadeReport, error) {
	if err := validateNodeKind(req.Kind); err != nil {
		return nil, err
	}

	if req.Kind == models.NodeKindFile {
		return s.revokeFile(ctx, req)
	}
	return s.revokeFolder(ctx, req)
}

func (s *revocationService) revokeFile(ctx context.Context, req *services.RevokeRequest) (*models.CascadeReport, error) {
	report := &models.CascadeReport{Operation: "revoke_file", NodeID: req.GrantID, Complete: true}

	grant, err := s.grantRepo.GetFileGrant(ctx, req.GrantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return report, nil
		}
		return nil, err
	}
	if grant.OwnerID != req.CallerID && grant.SharedWith != req.CallerID {
		return nil, fmt.Errorf("file grant %s: %w", req.GrantID, domain.ErrNotFound)
	}

	report.NodeID = grant.FileID
	deleted, err := s.grantRepo.DeleteFileGrant(ctx, grant.ID)
	if err != nil {
		return nil, err
	}
	if deleted {
		report.Applied = true
		report.FileGrantsRemoved = 1
	}

	s.logger.Info("file grant revoked",
		"grant_id", grant.ID,
		"file_id", grant.FileID,
		"shared_with", grant.SharedWith,
		"caller_id", req.CallerID,
	)
	return report, nil
}

func (s *revocationService) revokeFolder(ctx context.Context, req *services.RevokeRequest) (*models.CascadeReport, error) {
	grant, err := s.grantRepo.GetFolderGrant(ctx, req.GrantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &models.CascadeReport{Operation: string(models.CascadeRevokeFolder), NodeID: req.GrantID, Complete: true}, nil
		}
		return nil, err
	}
	if grant.OwnerID != req.CallerID && grant.SharedWith != req.CallerID {
		return nil, fmt.Errorf("folder grant %s: %w", req.GrantID, domain.ErrNotFound)
	}

	deleted, err := s.grantRepo.DeleteFolderGrant(ctx, grant.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder grant revoked",
		"grant_id", grant.ID,
		"folder_id", grant.FolderID,
		"shared_with", grant.SharedWith,
		"caller_id", req.CallerID,
	)

	report, err := s.cascade(ctx, grant.OwnerID, grant.FolderID, grant.SharedWith)
	report.Applied = deleted
	if deleted {
		report.FolderGrantsRemoved++
	}
	return report, err
}

// ReplayFolderCascade reruns the descendant cleanup of a folder revoke.
// It is idempotent: grants already gone are simply not found again.
func (s *revocationService) ReplayFolderCascade(ctx context.Context, ownerID, folderID, recipientID string) (*models.CascadeReport, error) {
	report, err := s.cascade(ctx, ownerID, folderID, recipientID)
	report.Applied = report.FileGrantsRemoved > 0 || report.FolderGrantsRemoved > 0
	return report, err
}

// cascade removes every grant the recipient holds inside the subtree: first
// collect folder ids level by level, then file ids, then bulk delete by id
// set. Failures are collected, never short-circuit, and are journaled.
func (s *revocationService) cascade(ctx context.Context, ownerID, folderID, recipientID string) (*models.CascadeReport, error) {
	report := &models.CascadeReport{
		Operation: string(models.CascadeRevokeFolder),
		NodeID:    folderID,
	}

	var errs error
	var failed []string
	fail := func(item string, err error) {
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", item, err))
		failed = append(failed, item)
		s.logger.Error("revoke cascade step failed",
			"folder_id", folderID,
			"shared_with", recipientID,
			"item", item,
			"error", err,
		)
	}

	// The subtree belongs to one owner, so no owner filter while descending.
	// A read error still leaves the levels gathered so far to clean up.
	root := models.Folder{ID: folderID, OwnerID: ownerID}
	levels, err := s.walker.subtreeLevels(ctx, root, nil)
	if err != nil {
		fail("subtree", err)
	}
	folderIDs := flatten(levels)
	report.Folders = len(folderIDs)

	var fileIDs []string
	for i, batch := range chunk(folderIDs, config.CascadeBatchSize) {
		files, err := s.fileRepo.ListByFolders(ctx, batch)
		if err != nil {
			fail(fmt.Sprintf("files[%d]", i), err)
			continue
		}
		for _, f := range files {
			fileIDs = append(fileIDs, f.ID)
		}
	}
	report.Files = len(fileIDs)

	for i, batch := range chunk(fileIDs, config.CascadeBatchSize) {
		n, err := s.grantRepo.DeleteFileGrantsForRecipient(ctx, recipientID, batch)
		if err != nil {
			fail(fmt.Sprintf("file_grants[%d]", i), err)
			continue
		}
		report.FileGrantsRemoved += n
	}

	for i, batch := range chunk(folderIDs, config.CascadeBatchSize) {
		n, err := s.grantRepo.DeleteFolderGrantsForRecipient(ctx, recipientID, batch)
		if err != nil {
			fail(fmt.Sprintf("folder_grants[%d]", i), err)
			continue
		}
		report.FolderGrantsRemoved += n
	}

	report.FailedItems = failed
	report.Complete = errs == nil

	if errs != nil {
		journalTask(ctx, s.journal, s.logger, &models.CascadeTask{
			Kind:      models.CascadeRevokeFolder,
			OwnerID:   ownerID,
			NodeID:    folderID,
			Recipient: recipientID,
			LastError: errs.Error(),
		})
		return report, &domain.PartialCascadeError{
			Operation: string(models.CascadeRevokeFolder),
			NodeID:    folderID,
			Failed:    len(failed),
			Cause:     errs,
		}
	}

	s.logger.Info("revoke cascade complete",
		"folder_id", folderID,
		"shared_with", recipientID,
		"folders", report.Folders,
		"files", report.Files,
		"file_grants_removed", report.FileGrantsRemoved,
		"folder_grants_removed", report.FolderGrantsRemoved,
	)
	return report, nil
}
