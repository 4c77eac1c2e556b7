// Package workflow turns domain events into durable jobs and runs them.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/AnshRaj112/sparklink-backend/internal/jobs"
	"github.com/AnshRaj112/sparklink-backend/internal/models"
)

// Job names.
const (
	UserCreated         = "identity.user.created"
	UserUpdated         = "identity.user.updated"
	UserDeleted         = "identity.user.deleted"
	ConnectionRequested = "connection.requested"
	ConnectionReminder  = "connection.reminder"
	StoryExpire         = "story.expire"
)

// ReminderDelay is how long after a request the reminder email goes out.
const ReminderDelay = 24 * time.Hour

type IdentityPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ImageURL  string `json:"image_url"`
}

func (p IdentityPayload) Profile() models.IdentityProfile {
	return models.IdentityProfile{
		ID:        p.ID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		ImageURL:  p.ImageURL,
	}
}

type DeletePayload struct {
	UserID string `json:"user_id"`
}

type ConnectionPayload struct {
	ConnectionID string `json:"connection_id"`
}

type StoryPayload struct {
	StoryID string `json:"story_id"`
}

// Emitter enqueues a job per domain event.
type Emitter struct {
	queue jobs.Enqueuer
}

func NewEmitter(queue jobs.Enqueuer) *Emitter {
	return &Emitter{queue: queue}
}

// ConnectionRequested queues the notification and, separately, the reminder,
// so a retried send never schedules a second reminder.
func (e *Emitter) ConnectionRequested(ctx context.Context, connectionID string) error {
	p := ConnectionPayload{ConnectionID: connectionID}
	if _, err := e.queue.Enqueue(ctx, ConnectionRequested, p); err != nil {
		return err
	}
	if _, err := e.queue.Enqueue(ctx, ConnectionReminder, p, jobs.Delay(ReminderDelay)); err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	return nil
}

func (e *Emitter) StoryCreated(ctx context.Context, storyID string, expiresAt time.Time) error {
	_, err := e.queue.Enqueue(ctx, StoryExpire, StoryPayload{StoryID: storyID}, jobs.At(expiresAt))
	return err
}

func (e *Emitter) IdentityCreated(ctx context.Context, p models.IdentityProfile) error {
	_, err := e.queue.Enqueue(ctx, UserCreated, identityPayload(p))
	return err
}

func (e *Emitter) IdentityUpdated(ctx context.Context, p models.IdentityProfile) error {
	_, err := e.queue.Enqueue(ctx, UserUpdated, identityPayload(p))
	return err
}

func (e *Emitter) IdentityDeleted(ctx context.Context, userID string) error {
	_, err := e.queue.Enqueue(ctx, UserDeleted, DeletePayload{UserID: userID})
	return err
}

func identityPayload(p models.IdentityProfile) IdentityPayload {
	return IdentityPayload{
		ID:        p.ID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		ImageURL:  p.ImageURL,
	}
}
