package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PostType string

const (
	PostText          PostType = "text"
	PostImage         PostType = "image"
	PostTextWithImage PostType = "text_with_image"
)

// Valid reports whether t is one of the known post types.
func (t PostType) Valid() bool {
	switch t {
	case PostText, PostImage, PostTextWithImage:
		return true
	}
	return false
}

// Comment is stored inline on a post. No route mutates comments.
type Comment struct {
	UserID    string    `bson:"user" json:"user"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

type Post struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID    string             `bson:"user" json:"user_id"`
	Content   string             `bson:"content" json:"content"`
	ImageURLs []string           `bson:"image_urls" json:"image_urls"`
	PostType  PostType           `bson:"post_type" json:"post_type"`
	Likes     []string           `bson:"likes_count" json:"likes_count"`
	Comments  []Comment          `bson:"comments" json:"comments"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// PostView is a post with its author populated.
type PostView struct {
	Post `bson:",inline"`
	User *UserSummary `json:"user"`
}
