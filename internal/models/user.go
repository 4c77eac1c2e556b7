package models

import (
	"time"
)

// DefaultBio is set on every new profile.
const DefaultBio = "hey there! I am using sparklink."

// User is a local profile. The id is the identity provider's account id.
type User struct {
	ID        string    `bson:"_id" json:"_id"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`

	Email          string `bson:"email" json:"email"`
	FullName       string `bson:"full_name" json:"full_name"`
	Username       string `bson:"username,omitempty" json:"username,omitempty"`
	Bio            string `bson:"bio" json:"bio"`
	ProfilePicture string `bson:"profile_picture" json:"profile_picture"`
	CoverPhoto     string `bson:"cover_photo" json:"cover_photo"`
	Location       string `bson:"location" json:"location"`

	Followers   []string `bson:"followers" json:"followers"`
	Following   []string `bson:"following" json:"following"`
	Connections []string `bson:"connections" json:"connections"`
}

// UserSummary is the populated form of a user reference embedded in posts,
// stories and messages.
type UserSummary struct {
	ID             string `bson:"_id" json:"_id"`
	FullName       string `bson:"full_name" json:"full_name"`
	Username       string `bson:"username,omitempty" json:"username,omitempty"`
	ProfilePicture string `bson:"profile_picture" json:"profile_picture"`
	Bio            string `bson:"bio,omitempty" json:"bio,omitempty"`
	Location       string `bson:"location,omitempty" json:"location,omitempty"`
}

// Summary returns the populated-reference form of u.
func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{
		ID:             u.ID,
		FullName:       u.FullName,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
		Bio:            u.Bio,
		Location:       u.Location,
	}
}

// ProfileUpdate holds the optional fields of a profile edit; nil means unchanged.
type ProfileUpdate struct {
	Username       *string
	Bio            *string
	Location       *string
	FullName       *string
	ProfilePicture *string
	CoverPhoto     *string
}

// IdentityProfile is the subset of the identity provider's account used to
// create or refresh a local profile.
type IdentityProfile struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	ImageURL  string
}

// FullName joins first and last name the way profiles display them.
func (p IdentityProfile) FullName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.LastName
	}
}

// DisplayName is FullName, or "User" when the account has no name.
func (p IdentityProfile) DisplayName() string {
	if name := p.FullName(); name != "" {
		return name
	}
	return "User"
}
