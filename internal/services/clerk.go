package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/user"

	"github.com/AnshRaj112/sparklink-backend/internal/models"
	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
)

// IdentityProvider fetches an account from the external identity provider.
type IdentityProvider interface {
	FetchUser(ctx context.Context, userID string) (*models.IdentityProfile, error)
}

// ProfileFromClerk converts a Clerk account, preferring the primary email
// address. It also serves the user.* webhook payloads.
func ProfileFromClerk(u *clerk.User) models.IdentityProfile {
	p := models.IdentityProfile{
		ID:        u.ID,
		FirstName: deref(u.FirstName),
		LastName:  deref(u.LastName),
		ImageURL:  deref(u.ImageURL),
	}
	primary := deref(u.PrimaryEmailAddressID)
	for _, e := range u.EmailAddresses {
		if e != nil && e.ID == primary {
			p.Email = e.EmailAddress
			return p
		}
	}
	if len(u.EmailAddresses) > 0 && u.EmailAddresses[0] != nil {
		p.Email = u.EmailAddresses[0].EmailAddress
	}
	return p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type ClerkClient struct {
	users *user.Client
}

// NewClerkClient talks to the Backend API at baseURL. An empty secretKey
// leaves the client unconfigured. A trailing /v1 is dropped since the SDK
// adds the API version itself.
func NewClerkClient(baseURL, secretKey string) *ClerkClient {
	if secretKey == "" {
		return &ClerkClient{}
	}
	cfg := &clerk.ClientConfig{}
	cfg.Key = clerk.String(secretKey)
	cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	if base := strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1"); base != "" {
		cfg.URL = clerk.String(base)
	}
	return &ClerkClient{users: user.NewClient(cfg)}
}

func (c *ClerkClient) FetchUser(ctx context.Context, userID string) (*models.IdentityProfile, error) {
	if c.users == nil {
		return nil, apierrors.ErrServiceUnavailable.WithMessage("Identity provider is not configured")
	}

	u, err := c.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch user from Clerk: %w", err)
	}
	p := ProfileFromClerk(u)
	return &p, nil
}
