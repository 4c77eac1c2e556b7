package models

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageType is "text" or "image".
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
)

// Message is a direct message. One document per message.
type Message struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	FromUserID  string             `bson:"from_user_id" json:"from_user_id"`
	ToUserID    string             `bson:"to_user_id" json:"to_user_id"`
	Text        string             `bson:"text" json:"text"`
	MessageType MessageType        `bson:"message_type" json:"message_type"`
	MediaURL    string             `bson:"media_url" json:"media_url"`
	Seen        bool               `bson:"seen" json:"seen"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// MessageView is a message with its user references populated. It is also the
// payload pushed to a live stream.
//
// On the wire from_user_id is always the sender object; a sender that could
// not be loaded is sent as {"_id": ...}. to_user_id is the recipient object
// when ToUser is set and the plain id otherwise.
type MessageView struct {
	Message
	FromUser *UserSummary `json:"-"`
	ToUser   *UserSummary `json:"-"`
}

func (v MessageView) MarshalJSON() ([]byte, error) {
	from := v.FromUser
	if from == nil {
		from = &UserSummary{ID: v.FromUserID}
	}
	var to any = v.ToUserID
	if v.ToUser != nil {
		to = v.ToUser
	}
	// the outer fields shadow Message's string ids
	return json.Marshal(struct {
		Message
		FromUserID *UserSummary `json:"from_user_id"`
		ToUserID   any          `json:"to_user_id"`
	}{v.Message, from, to})
}
