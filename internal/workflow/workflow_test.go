package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/jobs"
	"github.com/AnshRaj112/sparklink-backend/internal/mail"
	"github.com/AnshRaj112/sparklink-backend/internal/models"
	"github.com/AnshRaj112/sparklink-backend/internal/repository"
	"github.com/AnshRaj112/sparklink-backend/internal/services"
)

type enqueued struct {
	name    string
	payload any
	opts    int
}

type recordingQueue struct {
	jobs []enqueued
}

func (q *recordingQueue) Enqueue(_ context.Context, name string, payload any, opts ...jobs.Option) (string, error) {
	q.jobs = append(q.jobs, enqueued{name: name, payload: payload, opts: len(opts)})
	return "job", nil
}

// Only the methods the workflow reaches are implemented.
type stubUsers struct {
	repository.UserRepository
	users   map[string]*models.User
	deleted []string
}

func (s *stubUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubUsers) Create(_ context.Context, u *models.User) error {
	s.users[u.ID] = u
	return nil
}

func (s *stubUsers) SetIdentity(_ context.Context, p models.IdentityProfile) error {
	u, ok := s.users[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Email = p.Email
	return nil
}

func (s *stubUsers) Delete(_ context.Context, id string) error {
	if _, ok := s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.users, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type stubConnections struct {
	repository.ConnectionRepository
	conns map[primitive.ObjectID]*models.Connection
}

func (s *stubConnections) FindByID(_ context.Context, id primitive.ObjectID) (*models.Connection, error) {
	if c, ok := s.conns[id]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

type stubStories struct {
	repository.StoryRepository
	deleted []primitive.ObjectID
}

func (s *stubStories) Delete(_ context.Context, id primitive.ObjectID) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type mailerFunc func(ctx context.Context, msg mail.Message) error

func (f mailerFunc) Send(ctx context.Context, msg mail.Message) error { return f(ctx, msg) }

type fixture struct {
	h       *Handlers
	users   *stubUsers
	conns   *stubConnections
	stories *stubStories
	sent    []mail.Message
	mailErr error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	f := &fixture{
		users: &stubUsers{users: map[string]*models.User{
			"alice": {ID: "alice", Email: "alice@example.com", FullName: "Alice A", Username: "alice"},
			"bob":   {ID: "bob", Email: "bob@example.com", FullName: "Bob B", Username: "bob"},
		}},
		conns:   &stubConnections{conns: map[primitive.ObjectID]*models.Connection{}},
		stories: &stubStories{},
	}
	mailer := mailerFunc(func(_ context.Context, msg mail.Message) error {
		if f.mailErr != nil {
			return f.mailErr
		}
		f.sent = append(f.sent, msg)
		return nil
	})
	f.h = NewHandlers(Deps{
		Identity:    services.NewIdentityService(f.users, nil, log),
		Stories:     services.NewStoryService(f.stories, f.users, nil, nil, log),
		Users:       f.users,
		Connections: f.conns,
		Mailer:      mailer,
		FrontendURL: "https://sparklink.test",
		Log:         log,
	})
	return f
}

func (f *fixture) addConnection(status models.ConnectionStatus) string {
	c := &models.Connection{ID: primitive.NewObjectID(), FromUserID: "alice", ToUserID: "bob", Status: status}
	f.conns.conns[c.ID] = c
	return c.ID.Hex()
}

func job(t *testing.T, name string, payload any) *jobs.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &jobs.Job{ID: "j1", Name: name, Payload: data}
}

func TestConnectionRequested_SendsNotification(t *testing.T) {
	f := newFixture(t)
	id := f.addConnection(models.ConnectionPending)

	require.NoError(t, f.h.connectionRequested(context.Background(), job(t, ConnectionRequested, ConnectionPayload{id})))

	require.Len(t, f.sent, 1)
	assert.Equal(t, "bob@example.com", f.sent[0].To)
	assert.Equal(t, mail.SubjectConnectionRequest, f.sent[0].Subject)
	assert.Contains(t, f.sent[0].HTML, "Alice A @alice")
	assert.Contains(t, f.sent[0].HTML, "https://sparklink.test/connections")
}

func TestConnectionRequested_MailFailureRetries(t *testing.T) {
	f := newFixture(t)
	id := f.addConnection(models.ConnectionPending)
	f.mailErr = errors.New("smtp down")

	err := f.h.connectionRequested(context.Background(), job(t, ConnectionRequested, ConnectionPayload{id}))
	require.Error(t, err)
	assert.False(t, jobs.IsPermanent(err))

	f.mailErr = nil
	require.NoError(t, f.h.connectionRequested(context.Background(), job(t, ConnectionRequested, ConnectionPayload{id})))
	assert.Len(t, f.sent, 1)
}

func TestConnectionRequest_RetriedSendKeepsOneReminder(t *testing.T) {
	store := jobs.NewMemoryStore()
	queue := jobs.NewQueue(store)
	f := newFixture(t)
	id := f.addConnection(models.ConnectionPending)
	ctx := context.Background()

	require.NoError(t, NewEmitter(queue).ConnectionRequested(ctx, id))

	// the send fails twice before it goes through
	f.mailErr = errors.New("smtp down")
	for i := 0; i < 2; i++ {
		require.Error(t, f.h.connectionRequested(ctx, job(t, ConnectionRequested, ConnectionPayload{id})))
	}
	f.mailErr = nil
	require.NoError(t, f.h.connectionRequested(ctx, job(t, ConnectionRequested, ConnectionPayload{id})))

	due, err := store.Claim(ctx, time.Now().Add(ReminderDelay+time.Minute), time.Minute, 10)
	require.NoError(t, err)
	var reminders int
	for _, j := range due {
		if j.Name == ConnectionReminder {
			reminders++
		}
	}
	assert.Equal(t, 1, reminders)
}

func TestConnectionReminder(t *testing.T) {
	tests := []struct {
		name   string
		status models.ConnectionStatus
		sent   int
	}{
		{"pending sends reminder", models.ConnectionPending, 1},
		{"accepted skips reminder", models.ConnectionAccepted, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.addConnection(tt.status)

			require.NoError(t, f.h.connectionReminder(context.Background(), job(t, ConnectionReminder, ConnectionPayload{id})))
			require.Len(t, f.sent, tt.sent)
			if tt.sent > 0 {
				assert.Equal(t, mail.SubjectConnectionReminder, f.sent[0].Subject)
			}
		})
	}
}

func TestConnectionSteps_MissingConnectionIsNoop(t *testing.T) {
	f := newFixture(t)
	payload := ConnectionPayload{primitive.NewObjectID().Hex()}

	require.NoError(t, f.h.connectionRequested(context.Background(), job(t, ConnectionRequested, payload)))
	require.NoError(t, f.h.connectionReminder(context.Background(), job(t, ConnectionReminder, payload)))
	assert.Empty(t, f.sent)

	err := f.h.connectionReminder(context.Background(), job(t, ConnectionReminder, ConnectionPayload{"nope"}))
	assert.True(t, jobs.IsPermanent(err))
}

func TestIdentitySteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.h.userCreated(ctx, job(t, UserCreated, IdentityPayload{ID: "carol"}))
	assert.True(t, jobs.IsPermanent(err), "missing email")

	created := IdentityPayload{ID: "carol", Email: "carol@example.com", FirstName: "Carol"}
	require.NoError(t, f.h.userCreated(ctx, job(t, UserCreated, created)))
	require.NoError(t, f.h.userCreated(ctx, job(t, UserCreated, created)), "replay is a no-op")
	require.Contains(t, f.users.users, "carol")
	assert.Equal(t, "carol", f.users.users["carol"].Username)

	require.NoError(t, f.h.userUpdated(ctx, job(t, UserUpdated, IdentityPayload{ID: "carol", Email: "c@example.com"})))
	assert.Equal(t, "c@example.com", f.users.users["carol"].Email)
	require.NoError(t, f.h.userUpdated(ctx, job(t, UserUpdated, IdentityPayload{ID: "ghost"})))

	require.NoError(t, f.h.userDeleted(ctx, job(t, UserDeleted, DeletePayload{UserID: "carol"})))
	require.NoError(t, f.h.userDeleted(ctx, job(t, UserDeleted, DeletePayload{UserID: "carol"})))
	assert.Equal(t, []string{"carol"}, f.users.deleted)
}

func TestStoryExpire(t *testing.T) {
	f := newFixture(t)
	id := primitive.NewObjectID()

	require.NoError(t, f.h.storyExpire(context.Background(), job(t, StoryExpire, StoryPayload{id.Hex()})))
	assert.Equal(t, []primitive.ObjectID{id}, f.stories.deleted)
}

func TestEmitter(t *testing.T) {
	q := &recordingQueue{}
	e := NewEmitter(q)
	ctx := context.Background()

	require.NoError(t, e.ConnectionRequested(ctx, "c1"))
	require.NoError(t, e.StoryCreated(ctx, "s1", time.Now().Add(time.Hour)))
	require.NoError(t, e.IdentityCreated(ctx, models.IdentityProfile{ID: "u1"}))
	require.NoError(t, e.IdentityUpdated(ctx, models.IdentityProfile{ID: "u1"}))
	require.NoError(t, e.IdentityDeleted(ctx, "u1"))

	names := make([]string, 0, len(q.jobs))
	for _, j := range q.jobs {
		names = append(names, j.name)
	}
	assert.Equal(t, []string{ConnectionRequested, ConnectionReminder, StoryExpire, UserCreated, UserUpdated, UserDeleted}, names)
	assert.Equal(t, 0, q.jobs[0].opts, "notification runs now")
	assert.Equal(t, ConnectionPayload{"c1"}, q.jobs[1].payload)
	assert.Equal(t, 1, q.jobs[1].opts, "reminder runs after ReminderDelay")
	assert.Equal(t, 1, q.jobs[2].opts, "story expiry runs at expires_at")
}
