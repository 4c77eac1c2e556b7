package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/media"
	"github.com/AnshRaj112/sparklink-backend/internal/models"
	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
	"github.com/AnshRaj112/sparklink-backend/internal/repository"
)

type StoryService struct {
	stories repository.StoryRepository
	users   repository.UserRepository
	media   MediaUploader
	events  Events
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewStoryService(
	stories repository.StoryRepository,
	users repository.UserRepository,
	uploader MediaUploader,
	events Events,
	log *zap.SugaredLogger,
) *StoryService {
	return &StoryService{
		stories: stories,
		users:   users,
		media:   uploader,
		events:  events,
		log:     log,
		now:     time.Now,
	}
}

type CreateStoryInput struct {
	Content         string
	MediaType       string
	BackgroundColor string
	Media           *media.TempFile
}

// Create stores a story that expires StoryLifetime after creation and
// schedules its removal.
func (s *StoryService) Create(ctx context.Context, userID string, in CreateStoryInput) (*models.StoryView, error) {
	mediaType := models.MediaType(strings.TrimSpace(in.MediaType))
	if mediaType == "" {
		mediaType = models.MediaText
	}
	if !mediaType.Valid() {
		return nil, apierrors.ErrBadRequest.WithMessage("Invalid media type")
	}

	var mediaURL string
	if mediaType != models.MediaText {
		if in.Media == nil {
			return nil, apierrors.ErrBadRequest.WithMessage("Media file is required for image/video stories")
		}
		url, err := s.media.Upload(ctx, media.StoryPolicy, in.Media)
		if err != nil {
			return nil, uploadFailed("Story media", err)
		}
		mediaURL = url
	}

	now := s.now().UTC()
	story := &models.Story{
		UserID:          userID,
		Content:         in.Content,
		MediaType:       mediaType,
		MediaURL:        mediaURL,
		BackgroundColor: strings.TrimSpace(in.BackgroundColor),
		ExpiresAt:       now.Add(models.StoryLifetime),
	}
	if err := s.stories.Create(ctx, story); err != nil {
		return nil, fmt.Errorf("create story: %w", err)
	}

	if err := s.events.StoryCreated(ctx, story.ID.Hex(), story.ExpiresAt); err != nil {
		s.log.Errorw("failed to schedule story expiry", "story_id", story.ID.Hex(), "error", err)
	}

	authors, err := summaries(ctx, s.users, []string{userID})
	if err != nil {
		return nil, err
	}
	return &models.StoryView{Story: *story, User: authors[userID]}, nil
}

// Active returns unexpired stories by the user, their connections and the
// users they follow, newest first.
func (s *StoryService) Active(ctx context.Context, userID string) ([]models.StoryView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "User not found")
	}

	stories, err := s.stories.FindActiveByAuthors(ctx, audience(user), s.now())
	if err != nil {
		return nil, fmt.Errorf("load stories: %w", err)
	}

	ids := make([]string, 0, len(stories))
	for _, st := range stories {
		ids = append(ids, st.UserID)
	}
	authors, err := summaries(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}

	views := make([]models.StoryView, 0, len(stories))
	for _, st := range stories {
		views = append(views, models.StoryView{Story: st, User: authors[st.UserID]})
	}
	return views, nil
}

// View records that userID saw the story and returns the updated viewer list.
func (s *StoryService) View(ctx context.Context, userID, storyID string) ([]string, error) {
	id, err := primitive.ObjectIDFromHex(storyID)
	if err != nil {
		return nil, apierrors.ErrNotFound.WithMessage("Story not found")
	}
	story, err := s.stories.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "Story not found")
	}
	if story.Expired(s.now()) {
		return nil, apierrors.ErrNotFound.WithMessage("Story not found")
	}

	updated, err := s.stories.AddView(ctx, id, userID)
	if err != nil {
		return nil, notFound(err, "Story not found")
	}
	return updated.Views, nil
}

// Expire deletes a story whose lifetime has ended. A story already removed
// by the TTL index is not an error.
func (s *StoryService) Expire(ctx context.Context, storyID string) error {
	id, err := primitive.ObjectIDFromHex(storyID)
	if err != nil {
		return fmt.Errorf("story id %q: %w", storyID, err)
	}
	if err := s.stories.Delete(ctx, id); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete story: %w", err)
	}
	return nil
}
