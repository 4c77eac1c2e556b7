package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// StoryLifetime is how long a story stays visible after creation.
	StoryLifetime = 24 * time.Hour

	DefaultStoryBackground = "#4f46e5"
)

type MediaType string

const (
	MediaText  MediaType = "text"
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Valid reports whether t is one of the known story media types.
func (t MediaType) Valid() bool {
	switch t {
	case MediaText, MediaImage, MediaVideo:
		return true
	}
	return false
}

type Story struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID          string             `bson:"user" json:"user_id"`
	Content         string             `bson:"content" json:"content"`
	MediaType       MediaType          `bson:"media_type" json:"media_type"`
	MediaURL        string             `bson:"media_url" json:"media_url"`
	BackgroundColor string             `bson:"background_color" json:"background_color"`
	Views           []string           `bson:"views" json:"views"`
	ExpiresAt       time.Time          `bson:"expires_at" json:"expires_at"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Expired reports whether the story is past its expiry at now.
func (s *Story) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// StoryView is a story with its author populated.
type StoryView struct {
	Story `bson:",inline"`
	User  *UserSummary `json:"user"`
}
