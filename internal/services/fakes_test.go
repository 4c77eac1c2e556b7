package services

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/media"
	"github.com/AnshRaj112/sparklink-backend/internal/models"
	"github.com/AnshRaj112/sparklink-backend/internal/repository"
)

var testLog = zap.NewNop().Sugar()

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{users: map[string]*models.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Followers = slices.Clone(u.Followers)
	c.Following = slices.Clone(u.Following)
	c.Connections = slices.Clone(u.Connections)
	return &c
}

func (m *memUsers) get(id string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return cloneUser(u)
	}
	return nil
}

func (m *memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	if u := m.get(id); u != nil {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) FindByIDs(_ context.Context, ids []string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, *cloneUser(u))
		}
	}
	return out, nil
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.ID == u.ID || (u.Username != "" && existing.Username == u.Username) {
			return repository.ErrDuplicate
		}
	}
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *memUsers) Update(_ context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&u.Username, upd.Username)
	set(&u.Bio, upd.Bio)
	set(&u.Location, upd.Location)
	set(&u.FullName, upd.FullName)
	set(&u.ProfilePicture, upd.ProfilePicture)
	set(&u.CoverPhoto, upd.CoverPhoto)
	return cloneUser(u), nil
}

func (m *memUsers) SetIdentity(_ context.Context, p models.IdentityProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Email = p.Email
	u.FullName = p.DisplayName()
	u.ProfilePicture = p.ImageURL
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memUsers) Search(_ context.Context, input, excludeID string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(input)
	out := []models.User{}
	for _, u := range m.users {
		if u.ID == excludeID {
			continue
		}
		for _, field := range []string{u.Username, u.Email, u.FullName, u.Location} {
			if strings.Contains(strings.ToLower(field), needle) {
				out = append(out, *cloneUser(u))
				break
			}
		}
	}
	return out, nil
}

func (m *memUsers) relation(u *models.User, rel repository.Relation) *[]string {
	switch rel {
	case repository.Followers:
		return &u.Followers
	case repository.Following:
		return &u.Following
	default:
		return &u.Connections
	}
}

func (m *memUsers) AddRelation(_ context.Context, userID string, rel repository.Relation, otherID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	list := m.relation(u, rel)
	if !slices.Contains(*list, otherID) {
		*list = append(*list, otherID)
	}
	return nil
}

func (m *memUsers) RemoveRelation(_ context.Context, userID string, rel repository.Relation, otherID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	list := m.relation(u, rel)
	*list = slices.DeleteFunc(*list, func(id string) bool { return id == otherID })
	return nil
}

type memConnections struct {
	mu    sync.Mutex
	conns []*models.Connection
	now   func() time.Time
}

func newMemConnections(now func() time.Time) *memConnections {
	return &memConnections{now: now}
}

func (m *memConnections) find(match func(c *models.Connection) bool) (*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if match(c) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memConnections) FindByID(_ context.Context, id primitive.ObjectID) (*models.Connection, error) {
	return m.find(func(c *models.Connection) bool { return c.ID == id })
}

func (m *memConnections) FindBetween(_ context.Context, a, b string) (*models.Connection, error) {
	return m.find(func(c *models.Connection) bool {
		return (c.FromUserID == a && c.ToUserID == b) || (c.FromUserID == b && c.ToUserID == a)
	})
}

func (m *memConnections) FindRequest(_ context.Context, from, to string) (*models.Connection, error) {
	return m.find(func(c *models.Connection) bool { return c.FromUserID == from && c.ToUserID == to })
}

func (m *memConnections) Create(_ context.Context, c *models.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = primitive.NewObjectID()
	c.CreatedAt = m.now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.conns = append(m.conns, &cp)
	return nil
}

func (m *memConnections) SetStatus(_ context.Context, id primitive.ObjectID, status models.ConnectionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if c.ID == id {
			c.Status = status
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memConnections) CountSentSince(_ context.Context, from string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.conns {
		if c.FromUserID == from && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memConnections) ListPendingFor(_ context.Context, to string) ([]models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Connection{}
	for _, c := range m.conns {
		if c.ToUserID == to && c.Status == models.ConnectionPending {
			out = append(out, *c)
		}
	}
	return out, nil
}

type memPosts struct {
	mu    sync.Mutex
	posts []*models.Post
	now   func() time.Time
}

func (m *memPosts) Create(_ context.Context, p *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = primitive.NewObjectID()
	p.CreatedAt = m.now()
	if p.Likes == nil {
		p.Likes = []string{}
	}
	cp := *p
	m.posts = append(m.posts, &cp)
	return nil
}

func (m *memPosts) FindByID(_ context.Context, id primitive.ObjectID) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.ID == id {
			cp := *p
			cp.Likes = slices.Clone(p.Likes)
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memPosts) FindByAuthors(_ context.Context, ids []string) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Post{}
	for _, p := range m.posts {
		if slices.Contains(ids, p.UserID) {
			out = append(out, *p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memPosts) mutate(id primitive.ObjectID, fn func(p *models.Post)) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.ID == id {
			fn(p)
			cp := *p
			cp.Likes = slices.Clone(p.Likes)
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memPosts) AddLike(_ context.Context, id primitive.ObjectID, userID string) (*models.Post, error) {
	return m.mutate(id, func(p *models.Post) {
		if !slices.Contains(p.Likes, userID) {
			p.Likes = append(p.Likes, userID)
		}
	})
}

func (m *memPosts) RemoveLike(_ context.Context, id primitive.ObjectID, userID string) (*models.Post, error) {
	return m.mutate(id, func(p *models.Post) {
		p.Likes = slices.DeleteFunc(p.Likes, func(u string) bool { return u == userID })
	})
}

type memStories struct {
	mu      sync.Mutex
	stories []*models.Story
	now     func() time.Time
}

func (m *memStories) Create(_ context.Context, s *models.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = primitive.NewObjectID()
	s.CreatedAt = m.now()
	if s.Views == nil {
		s.Views = []string{}
	}
	if s.BackgroundColor == "" {
		s.BackgroundColor = models.DefaultStoryBackground
	}
	cp := *s
	m.stories = append(m.stories, &cp)
	return nil
}

func (m *memStories) FindByID(_ context.Context, id primitive.ObjectID) (*models.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stories {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStories) FindActiveByAuthors(_ context.Context, ids []string, now time.Time) ([]models.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Story{}
	for _, s := range m.stories {
		if slices.Contains(ids, s.UserID) && !s.Expired(now) {
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStories) AddView(_ context.Context, id primitive.ObjectID, userID string) (*models.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stories {
		if s.ID == id {
			if !slices.Contains(s.Views, userID) {
				s.Views = append(s.Views, userID)
			}
			cp := *s
			cp.Views = slices.Clone(s.Views)
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStories) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.stories {
		if s.ID == id {
			m.stories = slices.Delete(m.stories, i, i+1)
			return nil
		}
	}
	return repository.ErrNotFound
}

type memMessages struct {
	mu       sync.Mutex
	messages []*models.Message
	now      func() time.Time
}

func (m *memMessages) Create(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = primitive.NewObjectID()
	msg.CreatedAt = m.now()
	cp := *msg
	m.messages = append(m.messages, &cp)
	return nil
}

func (m *memMessages) collect(match func(*models.Message) bool) []models.Message {
	out := []models.Message{}
	for _, msg := range m.messages {
		if match(msg) {
			out = append(out, *msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memMessages) FindThread(_ context.Context, a, b string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(func(msg *models.Message) bool {
		return (msg.FromUserID == a && msg.ToUserID == b) || (msg.FromUserID == b && msg.ToUserID == a)
	}), nil
}

func (m *memMessages) MarkSeen(_ context.Context, from, to string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, msg := range m.messages {
		if msg.FromUserID == from && msg.ToUserID == to && !msg.Seen {
			msg.Seen = true
			n++
		}
	}
	return n, nil
}

func (m *memMessages) FindReceived(_ context.Context, userID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(func(msg *models.Message) bool { return msg.ToUserID == userID }), nil
}

// fakeUploader returns a URL per temp file name, or err when set.
type fakeUploader struct {
	err      error
	policies []string
}

func (f *fakeUploader) Upload(_ context.Context, policy media.Policy, tf *media.TempFile) (string, error) {
	f.policies = append(f.policies, policy.Context)
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.test/" + policy.Context + "/" + tf.Filename, nil
}

func (f *fakeUploader) UploadAll(ctx context.Context, policy media.Policy, files []*media.TempFile) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, tf := range files {
		url, err := f.Upload(ctx, policy, tf)
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

type fakeEvents struct {
	requested []string
	stories   map[string]time.Time
	err       error
}

func (f *fakeEvents) ConnectionRequested(_ context.Context, connectionID string) error {
	f.requested = append(f.requested, connectionID)
	return f.err
}

func (f *fakeEvents) StoryCreated(_ context.Context, storyID string, expiresAt time.Time) error {
	if f.stories == nil {
		f.stories = map[string]time.Time{}
	}
	f.stories[storyID] = expiresAt
	return f.err
}

type publishFunc func(ctx context.Context, userID string, event any) error

func (f publishFunc) Publish(ctx context.Context, userID string, event any) error {
	return f(ctx, userID, event)
}

type providerFunc func(ctx context.Context, userID string) (*models.IdentityProfile, error)

func (f providerFunc) FetchUser(ctx context.Context, userID string) (*models.IdentityProfile, error) {
	return f(ctx, userID)
}

var errBoom = errors.New("boom")

type testClock struct{ t time.Time }

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }
