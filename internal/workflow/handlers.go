package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/jobs"
	"github.com/AnshRaj112/sparklink-backend/internal/mail"
	"github.com/AnshRaj112/sparklink-backend/internal/models"
	"github.com/AnshRaj112/sparklink-backend/internal/repository"
	"github.com/AnshRaj112/sparklink-backend/internal/services"
)

// Handlers runs every workflow step. Each step is safe to run more than once.
type Handlers struct {
	identity    *services.IdentityService
	stories     *services.StoryService
	users       repository.UserRepository
	connections repository.ConnectionRepository
	mailer      mail.Mailer
	frontendURL string
	log         *zap.SugaredLogger
}

type Deps struct {
	Identity    *services.IdentityService
	Stories     *services.StoryService
	Users       repository.UserRepository
	Connections repository.ConnectionRepository
	Mailer      mail.Mailer
	FrontendURL string
	Log         *zap.SugaredLogger
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		identity:    d.Identity,
		stories:     d.Stories,
		users:       d.Users,
		connections: d.Connections,
		mailer:      d.Mailer,
		frontendURL: d.FrontendURL,
		log:         d.Log,
	}
}

// Register binds every step to w.
func (h *Handlers) Register(w *jobs.Worker) {
	w.Handle(UserCreated, h.userCreated)
	w.Handle(UserUpdated, h.userUpdated)
	w.Handle(UserDeleted, h.userDeleted)
	w.Handle(ConnectionRequested, h.connectionRequested)
	w.Handle(ConnectionReminder, h.connectionReminder)
	w.Handle(StoryExpire, h.storyExpire)
}

func decode[T any](job *jobs.Job) (T, error) {
	var v T
	if err := job.Decode(&v); err != nil {
		return v, jobs.Permanent(fmt.Errorf("decode %s: %w", job.Name, err))
	}
	return v, nil
}

func (h *Handlers) userCreated(ctx context.Context, job *jobs.Job) error {
	p, err := decode[IdentityPayload](job)
	if err != nil {
		return err
	}
	if p.Email == "" {
		return jobs.Permanent(fmt.Errorf("user %s has no email address", p.ID))
	}
	_, _, err = h.identity.Create(ctx, p.Profile())
	return err
}

func (h *Handlers) userUpdated(ctx context.Context, job *jobs.Job) error {
	p, err := decode[IdentityPayload](job)
	if err != nil {
		return err
	}
	return h.identity.ApplyUpdate(ctx, p.Profile())
}

func (h *Handlers) userDeleted(ctx context.Context, job *jobs.Job) error {
	p, err := decode[DeletePayload](job)
	if err != nil {
		return err
	}
	return h.identity.Delete(ctx, p.UserID)
}

func (h *Handlers) storyExpire(ctx context.Context, job *jobs.Job) error {
	p, err := decode[StoryPayload](job)
	if err != nil {
		return err
	}
	if err := h.stories.Expire(ctx, p.StoryID); err != nil {
		return err
	}
	h.log.Debugw("story expired", "story_id", p.StoryID)
	return nil
}

// connectionRequested sends the first notification. The reminder is its own
// job, queued with this one.
func (h *Handlers) connectionRequested(ctx context.Context, job *jobs.Job) error {
	p, err := decode[ConnectionPayload](job)
	if err != nil {
		return err
	}
	conn, err := h.loadConnection(ctx, p.ConnectionID)
	if err != nil || conn == nil {
		return err
	}

	if err := h.notify(ctx, conn, false); err != nil {
		return err
	}
	h.log.Infow("connection request email sent", "connection_id", p.ConnectionID)
	return nil
}

// connectionReminder resends the notification if the request is still pending.
func (h *Handlers) connectionReminder(ctx context.Context, job *jobs.Job) error {
	p, err := decode[ConnectionPayload](job)
	if err != nil {
		return err
	}
	conn, err := h.loadConnection(ctx, p.ConnectionID)
	if err != nil || conn == nil {
		return err
	}
	if conn.Status != models.ConnectionPending {
		h.log.Infow("connection already accepted, skipping reminder", "connection_id", p.ConnectionID)
		return nil
	}

	if err := h.notify(ctx, conn, true); err != nil {
		return err
	}
	h.log.Infow("connection request reminder sent", "connection_id", p.ConnectionID)
	return nil
}

// loadConnection returns nil, nil when the connection no longer exists.
func (h *Handlers) loadConnection(ctx context.Context, id string) (*models.Connection, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, jobs.Permanent(fmt.Errorf("connection id %q: %w", id, err))
	}
	conn, err := h.connections.FindByID(ctx, oid)
	if errors.Is(err, repository.ErrNotFound) {
		h.log.Infow("connection not found", "connection_id", id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	return conn, nil
}

func (h *Handlers) notify(ctx context.Context, conn *models.Connection, reminder bool) error {
	from, err := h.users.FindByID(ctx, conn.FromUserID)
	if err != nil {
		return h.missingUser(err, conn.FromUserID)
	}
	to, err := h.users.FindByID(ctx, conn.ToUserID)
	if err != nil {
		return h.missingUser(err, conn.ToUserID)
	}

	msg, err := mail.ConnectionRequest{
		To:           to.Email,
		ToName:       to.FullName,
		FromName:     from.FullName,
		FromUsername: from.Username,
		FrontendURL:  h.frontendURL,
		Reminder:     reminder,
	}.Render()
	if err != nil {
		return jobs.Permanent(err)
	}
	return h.mailer.Send(ctx, msg)
}

func (h *Handlers) missingUser(err error, userID string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return jobs.Permanent(fmt.Errorf("user %s not found", userID))
	}
	return fmt.Errorf("load user %s: %w", userID, err)
}
