package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConnectionStatus is the lifecycle state of a connection request.
// Valid values: "pending", "accepted".
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
)

type Connection struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	FromUserID string             `bson:"from_user_id" json:"from_user_id"`
	ToUserID   string             `bson:"to_user_id" json:"to_user_id"`
	Status     ConnectionStatus   `bson:"status" json:"status"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}
