// Package services implements the SparkLink business rules on top of the
// repositories, the media relay and the live delivery broker.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/sparklink-backend/internal/media"
	"github.com/AnshRaj112/sparklink-backend/internal/models"
	"github.com/AnshRaj112/sparklink-backend/internal/repository"
	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
)

// Events receives domain events that start background work. Implementations
// must only schedule the work, never run it inline.
type Events interface {
	ConnectionRequested(ctx context.Context, connectionID string) error
	StoryCreated(ctx context.Context, storyID string, expiresAt time.Time) error
}

// MediaUploader sends a received temp file to the CDN. The temp file is
// removed whatever the outcome.
type MediaUploader interface {
	Upload(ctx context.Context, policy media.Policy, tf *media.TempFile) (string, error)
	UploadAll(ctx context.Context, policy media.Policy, files []*media.TempFile) ([]string, error)
}

// summaries loads the populated form of every user in ids, keyed by id.
func summaries(ctx context.Context, users repository.UserRepository, ids []string) (map[string]*models.UserSummary, error) {
	out := make(map[string]*models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	found, err := users.FindByIDs(ctx, unique(ids))
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for i := range found {
		out[found[i].ID] = found[i].Summary()
	}
	return out, nil
}

// unique drops repeated ids, keeping first-seen order.
func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// notFound converts a repository miss into a 404 with message, wrapping any
// other failure.
func notFound(err error, message string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apierrors.ErrNotFound.WithMessage(message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// audience is the set of authors whose content a user sees: themselves plus
// connections and followed users.
func audience(u *models.User) []string {
	ids := make([]string, 0, 1+len(u.Connections)+len(u.Following))
	ids = append(ids, u.ID)
	ids = append(ids, u.Connections...)
	ids = append(ids, u.Following...)
	return unique(ids)
}
