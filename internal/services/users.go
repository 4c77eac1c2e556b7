package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/media"
	"github.com/AnshRaj112/sparklink-backend/internal/models"
	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
	"github.com/AnshRaj112/sparklink-backend/internal/repository"
	"github.com/AnshRaj112/sparklink-backend/pkg/utils"
)

const (
	// ConnectionRequestLimit is the number of requests a user may send per window.
	ConnectionRequestLimit  = 20
	ConnectionRequestWindow = 24 * time.Hour
)

// Business rule messages shown to clients.
const (
	MsgFollowSelf       = "You cannot follow yourself"
	MsgAlreadyFollowing = "You are already following this user"
	MsgFollowed         = "Now you are following this user"
	MsgUnfollowed       = "You are no longer following this user"
	MsgConnectSelf      = "You cannot connect with yourself"
	MsgRequestSent      = "Connection request sent successfully"
	MsgAlreadyConnected = "You are already connected with this user"
	MsgRequestPending   = "Connection request pending"
	MsgRequestLimit     = "You have sent more than 20 connection requests in the last 24 hours"
	MsgAccepted         = "Connection accepted successfully"
	MsgNoConnection     = "Connection not found"
)

type UserService struct {
	users       repository.UserRepository
	connections repository.ConnectionRepository
	media       MediaUploader
	events      Events
	log         *zap.SugaredLogger
	now         func() time.Time
}

func NewUserService(
	users repository.UserRepository,
	connections repository.ConnectionRepository,
	uploader MediaUploader,
	events Events,
	log *zap.SugaredLogger,
) *UserService {
	return &UserService{
		users:       users,
		connections: connections,
		media:       uploader,
		events:      events,
		log:         log,
		now:         time.Now,
	}
}

// UpdateProfileInput carries a profile edit. Empty text fields keep the
// current value.
type UpdateProfileInput struct {
	Username string
	Bio      string
	Location string
	FullName string
	Profile  *media.TempFile
	Cover    *media.TempFile
}

// UpdateProfile applies an edit. A username already taken by someone else is
// ignored and the current one kept.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "User not found")
	}

	var upd models.ProfileUpdate
	if v := strings.TrimSpace(in.Bio); v != "" {
		upd.Bio = &v
	}
	if v := strings.TrimSpace(in.Location); v != "" {
		upd.Location = &v
	}
	if v := strings.TrimSpace(in.FullName); v != "" {
		upd.FullName = &v
	}

	if raw := strings.TrimSpace(in.Username); raw != "" {
		if err := utils.ValidateUsername(raw); err != nil {
			return nil, apierrors.NewValidationError("username", err.Error())
		}
		username := utils.NormalizeUsername(raw)
		if username != user.Username {
			_, err := s.users.FindByUsername(ctx, username)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				upd.Username = &username
			case err != nil:
				return nil, fmt.Errorf("check username: %w", err)
			}
		}
	}

	if in.Profile != nil {
		url, err := s.media.Upload(ctx, media.UserPolicy, in.Profile)
		if err != nil {
			return nil, uploadFailed("Profile image", err)
		}
		upd.ProfilePicture = &url
	}
	if in.Cover != nil {
		url, err := s.media.Upload(ctx, media.UserPolicy, in.Cover)
		if err != nil {
			return nil, uploadFailed("Cover image", err)
		}
		upd.CoverPhoto = &url
	}

	updated, err := s.users.Update(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apierrors.ErrConflict.WithMessage("Username is already taken")
		}
		return nil, notFound(err, "User not found")
	}
	return updated, nil
}

func uploadFailed(what string, err error) error {
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return apierrors.ErrInternal.WithMessage(fmt.Sprintf("%s upload failed: %v", what, err))
}

// Discover finds other users whose username, email, name or location contain
// input, case-insensitively.
func (s *UserService) Discover(ctx context.Context, userID, input string) ([]models.User, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, apierrors.ErrBadRequest.WithMessage("Search input is required")
	}
	users, err := s.users.Search(ctx, input, userID)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

func (s *UserService) Follow(ctx context.Context, userID, targetID string) (string, error) {
	if userID == targetID {
		return "", apierrors.ErrBadRequest.WithMessage(MsgFollowSelf)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", notFound(err, "User not found")
	}
	if _, err := s.users.FindByID(ctx, targetID); err != nil {
		return "", notFound(err, "Target user not found")
	}
	if slices.Contains(user.Following, targetID) {
		return "", apierrors.ErrConflict.WithMessage(MsgAlreadyFollowing)
	}

	if err := s.users.AddRelation(ctx, userID, repository.Following, targetID); err != nil {
		return "", fmt.Errorf("follow: %w", err)
	}
	if err := s.users.AddRelation(ctx, targetID, repository.Followers, userID); err != nil {
		return "", fmt.Errorf("follow: %w", err)
	}
	return MsgFollowed, nil
}

func (s *UserService) Unfollow(ctx context.Context, userID, targetID string) (string, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return "", notFound(err, "User not found")
	}
	if err := s.users.RemoveRelation(ctx, userID, repository.Following, targetID); err != nil {
		return "", fmt.Errorf("unfollow: %w", err)
	}
	if err := s.users.RemoveRelation(ctx, targetID, repository.Followers, userID); err != nil {
		return "", fmt.Errorf("unfollow: %w", err)
	}
	return MsgUnfollowed, nil
}

// RequestConnection creates a pending connection from userID to targetID. At
// most one record exists per pair, whichever side asked first.
func (s *UserService) RequestConnection(ctx context.Context, userID, targetID string) (string, error) {
	if userID == targetID {
		return "", apierrors.ErrBadRequest.WithMessage(MsgConnectSelf)
	}
	if _, err := s.users.FindByID(ctx, targetID); err != nil {
		return "", notFound(err, "Target user not found")
	}

	since := s.now().Add(-ConnectionRequestWindow)
	sent, err := s.connections.CountSentSince(ctx, userID, since)
	if err != nil {
		return "", fmt.Errorf("count connection requests: %w", err)
	}
	if sent >= ConnectionRequestLimit {
		return "", apierrors.ErrRateLimited.WithMessage(MsgRequestLimit)
	}

	existing, err := s.connections.FindBetween(ctx, userID, targetID)
	switch {
	case err == nil:
		if existing.Status == models.ConnectionAccepted {
			return "", apierrors.ErrConflict.WithMessage(MsgAlreadyConnected)
		}
		return "", apierrors.ErrConflict.WithMessage(MsgRequestPending)
	case !errors.Is(err, repository.ErrNotFound):
		return "", fmt.Errorf("find connection: %w", err)
	}

	conn := &models.Connection{FromUserID: userID, ToUserID: targetID, Status: models.ConnectionPending}
	if err := s.connections.Create(ctx, conn); err != nil {
		return "", fmt.Errorf("create connection: %w", err)
	}

	if err := s.events.ConnectionRequested(ctx, conn.ID.Hex()); err != nil {
		s.log.Errorw("failed to schedule connection request email", "connection_id", conn.ID.Hex(), "error", err)
	}
	return MsgRequestSent, nil
}

// AcceptConnection accepts the request fromID sent to userID.
func (s *UserService) AcceptConnection(ctx context.Context, userID, fromID string) (string, error) {
	conn, err := s.connections.FindRequest(ctx, fromID, userID)
	if err != nil {
		return "", notFound(err, MsgNoConnection)
	}
	if conn.Status == models.ConnectionAccepted {
		return "", apierrors.ErrConflict.WithMessage(MsgAlreadyConnected)
	}

	if err := s.users.AddRelation(ctx, userID, repository.Connections, fromID); err != nil {
		return "", fmt.Errorf("accept connection: %w", err)
	}
	if err := s.users.AddRelation(ctx, fromID, repository.Connections, userID); err != nil {
		return "", fmt.Errorf("accept connection: %w", err)
	}
	if err := s.connections.SetStatus(ctx, conn.ID, models.ConnectionAccepted); err != nil {
		return "", fmt.Errorf("accept connection: %w", err)
	}
	return MsgAccepted, nil
}

// ConnectionsView is the populated social graph of one user.
type ConnectionsView struct {
	Connections        []models.User `json:"connections"`
	Followers          []models.User `json:"followers"`
	Following          []models.User `json:"following"`
	PendingConnections []models.User `json:"pendingConnections"`
}

func (s *UserService) Connections(ctx context.Context, userID string) (*ConnectionsView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "User not found")
	}

	view := &ConnectionsView{}
	if view.Connections, err = s.users.FindByIDs(ctx, user.Connections); err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}
	if view.Followers, err = s.users.FindByIDs(ctx, user.Followers); err != nil {
		return nil, fmt.Errorf("load followers: %w", err)
	}
	if view.Following, err = s.users.FindByIDs(ctx, user.Following); err != nil {
		return nil, fmt.Errorf("load following: %w", err)
	}

	pending, err := s.connections.ListPendingFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load pending connections: %w", err)
	}
	fromIDs := make([]string, 0, len(pending))
	for _, c := range pending {
		fromIDs = append(fromIDs, c.FromUserID)
	}
	if view.PendingConnections, err = s.users.FindByIDs(ctx, fromIDs); err != nil {
		return nil, fmt.Errorf("load pending connections: %w", err)
	}
	return view, nil
}
