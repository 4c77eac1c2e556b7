package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/models"
	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
	"github.com/AnshRaj112/sparklink-backend/internal/repository"
	"github.com/AnshRaj112/sparklink-backend/pkg/utils"
)

const usernameAttempts = 5

// IdentityService keeps exactly one local profile per provider account.
type IdentityService struct {
	users    repository.UserRepository
	provider IdentityProvider
	log      *zap.SugaredLogger
}

func NewIdentityService(users repository.UserRepository, provider IdentityProvider, log *zap.SugaredLogger) *IdentityService {
	return &IdentityService{users: users, provider: provider, log: log}
}

// EnsureUser returns the local profile for userID, creating it from the
// provider account on first access. created reports whether it was created.
func (s *IdentityService) EnsureUser(ctx context.Context, userID string) (user *models.User, created bool, err error) {
	user, err = s.users.FindByID(ctx, userID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("find user: %w", err)
	}

	s.log.Infow("user not in database, creating from identity provider", "user_id", userID)
	profile, err := s.provider.FetchUser(ctx, userID)
	if err != nil {
		s.log.Errorw("identity provider fetch failed", "user_id", userID, "error", err)
		return nil, false, apierrors.ErrNotFound.WithMessage("User not found and couldn't create from Clerk data")
	}
	return s.Create(ctx, *profile)
}

// Create inserts a profile for an account if none exists. The username is the
// email local part, suffixed with a random number when already taken.
func (s *IdentityService) Create(ctx context.Context, p models.IdentityProfile) (*models.User, bool, error) {
	if existing, err := s.users.FindByID(ctx, p.ID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("find user: %w", err)
	}

	username := utils.BaseUsername(p.Email, p.ID)
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		username = utils.WithRandomSuffix(username)
	}

	for attempt := 0; attempt < usernameAttempts; attempt++ {
		user := &models.User{
			ID:             p.ID,
			Email:          p.Email,
			FullName:       p.DisplayName(),
			Username:       username,
			Bio:            models.DefaultBio,
			ProfilePicture: p.ImageURL,
		}
		err := s.users.Create(ctx, user)
		if err == nil {
			s.log.Infow("user created", "user_id", user.ID, "username", user.Username)
			return user, true, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, false, fmt.Errorf("create user: %w", err)
		}

		// Either a concurrent request created the same account or the
		// username was claimed between the lookup and the insert.
		if existing, findErr := s.users.FindByID(ctx, p.ID); findErr == nil {
			return existing, false, nil
		}
		username = utils.WithRandomSuffix(utils.BaseUsername(p.Email, p.ID))
	}
	return nil, false, fmt.Errorf("create user %s: no free username", p.ID)
}

// ApplyUpdate copies provider-owned fields onto the local profile. A missing
// profile is left alone.
func (s *IdentityService) ApplyUpdate(ctx context.Context, p models.IdentityProfile) error {
	if err := s.users.SetIdentity(ctx, p); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// Delete removes the local profile; deleting a missing profile succeeds.
func (s *IdentityService) Delete(ctx context.Context, userID string) error {
	err := s.users.Delete(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
