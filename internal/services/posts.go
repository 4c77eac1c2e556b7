package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/media"
	"github.com/AnshRaj112/sparklink-backend/internal/models"
	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
	"github.com/AnshRaj112/sparklink-backend/internal/repository"
)

type PostService struct {
	posts repository.PostRepository
	users repository.UserRepository
	media MediaUploader
	log   *zap.SugaredLogger
}

func NewPostService(posts repository.PostRepository, users repository.UserRepository, uploader MediaUploader, log *zap.SugaredLogger) *PostService {
	return &PostService{posts: posts, users: users, media: uploader, log: log}
}

type AddPostInput struct {
	Content  string
	PostType string
	Images   []*media.TempFile
}

func (s *PostService) Add(ctx context.Context, userID string, in AddPostInput) (*models.PostView, error) {
	postType := models.PostType(strings.TrimSpace(in.PostType))
	switch {
	case postType == "":
		return nil, apierrors.ErrBadRequest.WithMessage("Post type is required")
	case !postType.Valid():
		return nil, apierrors.ErrBadRequest.WithMessage("Invalid post type")
	case postType == models.PostText && strings.TrimSpace(in.Content) == "":
		return nil, apierrors.ErrBadRequest.WithMessage("Content is required for text posts")
	case postType != models.PostText && len(in.Images) == 0:
		return nil, apierrors.ErrBadRequest.WithMessage("At least one image is required for image posts")
	}

	imageURLs := []string{}
	if len(in.Images) > 0 {
		urls, err := s.media.UploadAll(ctx, media.PostPolicy, in.Images)
		if err != nil {
			s.log.Errorw("post image upload failed", "user_id", userID, "error", err)
			return nil, apierrors.ErrInternal.WithMessage("Failed to upload images")
		}
		imageURLs = urls
	}

	post := &models.Post{
		UserID:    userID,
		Content:   in.Content,
		ImageURLs: imageURLs,
		PostType:  postType,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	views, err := s.populate(ctx, []models.Post{*post})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Feed returns posts by the user, their connections and the users they
// follow, newest first.
func (s *PostService) Feed(ctx context.Context, userID string) ([]models.PostView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "User not found")
	}

	posts, err := s.posts.FindByAuthors(ctx, audience(user))
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	return s.populate(ctx, posts)
}

// LikeResult is the post's like state after a toggle.
type LikeResult struct {
	Liked bool     `json:"liked"`
	Likes []string `json:"likes_count"`
}

// ToggleLike likes the post, or unlikes it when the user already liked it.
func (s *PostService) ToggleLike(ctx context.Context, userID, postID string) (*LikeResult, error) {
	id, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return nil, apierrors.ErrNotFound.WithMessage("Post not found")
	}
	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "Post not found")
	}

	if slices.Contains(post.Likes, userID) {
		updated, err := s.posts.RemoveLike(ctx, id, userID)
		if err != nil {
			return nil, notFound(err, "Post not found")
		}
		return &LikeResult{Liked: false, Likes: updated.Likes}, nil
	}

	updated, err := s.posts.AddLike(ctx, id, userID)
	if err != nil {
		return nil, notFound(err, "Post not found")
	}
	return &LikeResult{Liked: true, Likes: updated.Likes}, nil
}

// Profile returns a user with their posts, newest first.
func (s *PostService) Profile(ctx context.Context, profileID string) (*models.User, []models.PostView, error) {
	if strings.TrimSpace(profileID) == "" {
		return nil, nil, apierrors.ErrBadRequest.WithMessage("Profile ID is required")
	}
	profile, err := s.users.FindByID(ctx, profileID)
	if err != nil {
		return nil, nil, notFound(err, "Profile not found")
	}

	posts, err := s.posts.FindByAuthors(ctx, []string{profileID})
	if err != nil {
		return nil, nil, fmt.Errorf("load posts: %w", err)
	}
	views, err := s.populate(ctx, posts)
	if err != nil {
		return nil, nil, err
	}
	return profile, views, nil
}

func (s *PostService) populate(ctx context.Context, posts []models.Post) ([]models.PostView, error) {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.UserID)
	}
	authors, err := summaries(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}

	views := make([]models.PostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, models.PostView{Post: p, User: authors[p.UserID]})
	}
	return views, nil
}
