package drive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"sealdrive/internal/domain"
	"sealdrive/internal/domain/models"
	"sealdrive/internal/domain/repositories"
	"sealdrive/internal/domain/services"
)

// maxPublicKeyLength bounds the opaque client key blob
const maxPublicKeyLength = 8192

type userService struct {
	userRepo     repositories.UserRepository
	defaultLimit int64
	logger       *slog.Logger
}

// NewUserService creates a new user service. New accounts start with
// defaultLimit bytes of quota.
func NewUserService(userRepo repositories.UserRepository, defaultLimit int64, logger *slog.Logger) services.UserService {
	return &userService{
		userRepo:     userRepo,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// EnsureUser provisions the caller on first sight. Existing rows keep their
// counter, limit and public key.
func (s *userService) EnsureUser(ctx context.Context, claims *models.AccessClaims) (*models.User, error) {
	if claims == nil || claims.GetUserID() == "" {
		return nil, fmt.Errorf("token has no subject: %w", domain.ErrUnauthorized)
	}

	now := time.Now()
	user := &models.User{
		ID:           claims.GetUserID(),
		Email:        strings.ToLower(strings.TrimSpace(claims.Email)),
		DisplayName:  claims.DisplayName(),
		StorageLimit: s.defaultLimit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Ensure(ctx, user); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

func (s *userService) GetMe(ctx context.Context, userID string) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// SetPublicKey stores the client's public key. Recipients' keys are what
// owners wrap file keys under, so the value must be present.
func (s *userService) SetPublicKey(ctx context.Context, userID, publicKey string) (*models.User, error) {
	publicKey = strings.TrimSpace(publicKey)
	err := validation.Validate(publicKey,
		validation.Required.Error("public_key is required"),
		validation.Length(1, maxPublicKeyLength),
	)
	if err != nil {
		return nil, invalid(err)
	}

	if err := s.userRepo.SetPublicKey(ctx, userID, publicKey); err != nil {
		return nil, err
	}

	s.logger.Info("public key updated", "user_id", userID)
	return s.userRepo.GetByID(ctx, userID)
}

// LookupByEmail resolves a sharing recipient. Only the public identity is returned.
func (s *userService) LookupByEmail(ctx context.Context, email string) (*models.UserSummary, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return nil, invalid(fmt.Errorf("email: %v", err))
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	summary := user.Summary()
	return &summary, nil
}
