package drive

import (
	"context"
	"errors"
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

const defaultMimeType = "application/octet-stream"

type fileService struct {
	folderRepo repositories.FolderRepository
	fileRepo   repositories.FileRepository
	grantRepo  repositories.GrantRepository
	userRepo   repositories.UserRepository
	usageRepo  repositories.UsageRepository
	blobs      services.BlobStore
	txManager  repositories.TransactionManager
	authorizer services.ResourceAuthorizer
	presignTTL time.Duration
	logger     *slog.Logger
}

// FileServiceDeps groups the collaborators of the file service
type FileServiceDeps struct {
	Folders    repositories.FolderRepository
	Files      repositories.FileRepository
	Grants     repositories.GrantRepository
	Users      repositories.UserRepository
	Usage      repositories.UsageRepository
	Blobs      services.BlobStore
	TxManager  repositories.TransactionManager
	Authorizer services.ResourceAuthorizer
	PresignTTL time.Duration
	Logger     *slog.Logger
}

// NewFileService creates a new file service
func NewFileService(deps FileServiceDeps) services.FileService {
	return &fileService{
		folderRepo: deps.Folders,
		fileRepo:   deps.Files,
		grantRepo:  deps.Grants,
		userRepo:   deps.Users,
		usageRepo:  deps.Usage,
		blobs:      deps.Blobs,
		txManager:  deps.TxManager,
		authorizer: deps.Authorizer,
		presignTTL: deps.PresignTTL,
		logger:     deps.Logger,
	}
}

// UploadFile stores the ciphertext first, then reserves quota and records
// the file in one transaction. Any failure after the blob write removes the blob.
func (s *fileService) UploadFile(ctx context.Context, req *services.UploadFileRequest) (*models.File, error) {
	if req.FolderID != nil && *req.FolderID == "" {
		req.FolderID = nil
	}
	req.Name = normalizeName(req.Name)
	if req.MimeType == "" {
		req.MimeType = defaultMimeType
	}

	if err := s.validateUploadRequest(req); err != nil {
		return nil, invalid(err)
	}

	if err := validateDestination(ctx, s.folderRepo, req.OwnerID, req.FolderID); err != nil {
		return nil, err
	}

	handle, size, err := s.blobs.Put(ctx, req.Content)
	if err != nil {
		return nil, fmt.Errorf("store file content: %w", err)
	}

	now := time.Now()
	file := &models.File{
		OwnerID:     req.OwnerID,
		FolderID:    req.FolderID,
		Name:        req.Name,
		MimeType:    req.MimeType,
		StoragePath: handle,
		Size:        size,
		WrappedKey:  req.WrappedKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		reserved, err := s.userRepo.ReserveStorage(txCtx, req.OwnerID, size)
		if err != nil {
			return err
		}
		if !reserved {
			return fmt.Errorf("upload of %d bytes: %w", size, domain.ErrQuotaExceeded)
		}

		if err := s.fileRepo.Create(txCtx, file); err != nil {
			return err
		}

		return s.usageRepo.Open(txCtx, &models.UsageInterval{
			FileID:        file.ID,
			OwnerID:       file.OwnerID,
			Bytes:         file.Size,
			EffectiveFrom: now,
		})
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, handle); delErr != nil {
			s.logger.Warn("failed to remove blob of rejected upload",
				"handle", handle,
				"error", delErr,
			)
		}
		return nil, err
	}

	s.logger.Info("file uploaded",
		"id", file.ID,
		"owner_id", file.OwnerID,
		"folder_id", file.FolderID,
		"size", file.Size,
	)

	return file, nil
}

// GetFile retrieves a live file of the owner
func (s *fileService) GetFile(ctx context.Context, ownerID, fileID string) (*models.File, error) {
	return ownedLiveFile(ctx, s.fileRepo, ownerID, fileID)
}

// UpdateFile renames and/or moves a file. Sibling names may repeat.
func (s *fileService) UpdateFile(ctx context.Context, ownerID, fileID string, req *services.UpdateFileRequest) (*models.File, error) {
	if req.Name == nil && !req.FolderID.Present {
		return nil, invalid(fmt.Errorf("at least one field must be provided"))
	}
	if req.Name != nil {
		name := normalizeName(*req.Name)
		if err := validation.Validate(name, nameRules("file", config.MaxFileNameLength)...); err != nil {
			return nil, invalid(err)
		}
	}

	file, err := ownedLiveFile(ctx, s.fileRepo, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		file.Name = normalizeName(*req.Name)
	}
	if req.FolderID.Present {
		target := req.FolderID.Target()
		if err := validateDestination(ctx, s.folderRepo, ownerID, target); err != nil {
			return nil, err
		}
		file.FolderID = target
	}

	file.UpdatedAt = time.Now()
	if err := s.fileRepo.Update(ctx, file); err != nil {
		return nil, err
	}

	s.logger.Info("file updated",
		"id", file.ID,
		"name", file.Name,
		"folder_id", file.FolderID,
	)

	return file, nil
}

// GetDownload returns a presigned URL and the key the requester can unwrap.
// A requester who can see the file but holds no FileGrant gets ErrForbidden.
func (s *fileService) GetDownload(ctx context.Context, requesterID, fileID string) (*services.FileDownload, error) {
	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !file.IsLive() {
		return nil, fmt.Errorf("file %s: %w", fileID, domain.ErrNotFound)
	}

	wrappedKey := file.WrappedKey
	if file.OwnerID != requesterID {
		wrappedKey, err = s.recipientKey(ctx, requesterID, file)
		if err != nil {
			return nil, err
		}
	}

	if !file.HasContent() {
		return nil, fmt.Errorf("content of file %s is no longer stored: %w", fileID, domain.ErrNotFound)
	}

	url, err := s.blobs.PresignedDownloadURL(ctx, file.StoragePath, s.presignTTL)
	if err != nil {
		return nil, err
	}

	meta := *file
	if file.OwnerID != requesterID {
		meta = file.Metadata()
	}

	return &services.FileDownload{
		File:       meta,
		URL:        url,
		WrappedKey: wrappedKey,
	}, nil
}

func (s *fileService) recipientKey(ctx context.Context, requesterID string, file *models.File) (string, error) {
	grants, err := s.grantRepo.ListFileGrantsByFiles(ctx, []string{file.ID}, &requesterID)
	if err != nil {
		return "", fmt.Errorf("lookup file grant: %w", err)
	}
	if len(grants) > 0 {
		return grants[0].WrappedKey, nil
	}

	visible, err := s.authorizer.CanSeeFile(ctx, requesterID, file.ID)
	if err != nil {
		return "", err
	}
	if visible {
		return "", fmt.Errorf("no key shared for file %s: %w", file.ID, domain.ErrForbidden)
	}
	return "", fmt.Errorf("file %s: %w", file.ID, domain.ErrNotFound)
}

// validateUploadRequest validates an upload request
func (s *fileService) validateUploadRequest(req *services.UploadFileRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.OwnerID, validation.Required),
		validation.Field(&req.Name, nameRules("file", config.MaxFileNameLength)...),
		validation.Field(&req.WrappedKey, validation.Required),
		validation.Field(&req.MimeType, validation.Length(1, 255)),
	)
	if err != nil {
		return err
	}
	if req.Content == nil {
		return errors.New("content is required")
	}
	return nil
}
