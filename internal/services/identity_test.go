package services

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/sparklink-backend/internal/models"
)

func staticProvider(p *models.IdentityProfile, err error) providerFunc {
	return func(context.Context, string) (*models.IdentityProfile, error) { return p, err }
}

func TestEnsureUser_CreatesFromProvider(t *testing.T) {
	users := newMemUsers()
	calls := 0
	provider := providerFunc(func(_ context.Context, id string) (*models.IdentityProfile, error) {
		calls++
		return &models.IdentityProfile{ID: id, Email: "jane.doe@example.com", FirstName: "Jane", LastName: "Doe"}, nil
	})
	svc := NewIdentityService(users, provider, testLog)
	ctx := context.Background()

	u, created, err := svc.EnsureUser(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "jane_doe", u.Username)
	assert.Equal(t, "Jane Doe", u.FullName)
	assert.Equal(t, models.DefaultBio, u.Bio)

	u, created, err = svc.EnsureUser(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "jane_doe", u.Username)
	assert.Equal(t, 1, calls, "existing profile skips the provider")
}

func TestEnsureUser_ProviderFailure(t *testing.T) {
	svc := NewIdentityService(newMemUsers(), staticProvider(nil, errBoom), testLog)

	_, _, err := svc.EnsureUser(context.Background(), "user_1")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
	assert.Equal(t, "User not found and couldn't create from Clerk data", messageOf(t, err))
}

func TestCreate_UsernameCollision(t *testing.T) {
	users := newMemUsers(&models.User{ID: "other", Username: "jane"})
	svc := NewIdentityService(users, staticProvider(nil, errBoom), testLog)

	u, created, err := svc.Create(context.Background(), models.IdentityProfile{ID: "user_2", Email: "jane@example.com"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, strings.HasPrefix(u.Username, "jane"))
	assert.NotEqual(t, "jane", u.Username)
	assert.Equal(t, "User", u.FullName, "no name falls back to User")
}

func TestApplyUpdateAndDelete(t *testing.T) {
	users := newMemUsers(&models.User{ID: "user_1", Username: "jane", Bio: "mine"})
	svc := NewIdentityService(users, staticProvider(nil, errBoom), testLog)
	ctx := context.Background()

	require.NoError(t, svc.ApplyUpdate(ctx, models.IdentityProfile{ID: "user_1", Email: "new@example.com", FirstName: "Jane"}))
	u := users.get("user_1")
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, "Jane", u.FullName)
	assert.Equal(t, "mine", u.Bio, "local fields are untouched")

	require.NoError(t, svc.ApplyUpdate(ctx, models.IdentityProfile{ID: "ghost"}), "missing profile is a no-op")

	require.NoError(t, svc.Delete(ctx, "user_1"))
	assert.Nil(t, users.get("user_1"))
	require.NoError(t, svc.Delete(ctx, "user_1"))
}
