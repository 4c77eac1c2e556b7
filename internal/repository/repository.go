// Package repository holds the MongoDB persistence layer. Each collection has
// an interface consumed by the services and a Mongo-backed implementation.
package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	usersCollection       = "users"
	connectionsCollection = "connections"
	postsCollection       = "posts"
	storiesCollection     = "stories"
	messagesCollection    = "messages"

	opTimeout = 5 * time.Second
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate key")
)

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	}
	return err
}

// EnsureIndexes configures indexes for every collection, including the TTL
// index that removes expired stories. Called on startup and by the indexes command.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	set := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("idx_email")},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetName("idx_username").SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "connections", Value: 1}}, Options: options.Index().SetName("idx_connections")},
			{Keys: bson.D{{Key: "followers", Value: 1}}, Options: options.Index().SetName("idx_followers")},
			{Keys: bson.D{{Key: "following", Value: 1}}, Options: options.Index().SetName("idx_following")},
		},
		connectionsCollection: {
			{Keys: bson.D{{Key: "from_user_id", Value: 1}, {Key: "to_user_id", Value: 1}}, Options: options.Index().SetName("idx_from_to")},
			{Keys: bson.D{{Key: "to_user_id", Value: 1}, {Key: "status", Value: 1}}, Options: options.Index().SetName("idx_to_status")},
			{Keys: bson.D{{Key: "from_user_id", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_from_created")},
		},
		postsCollection: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_user_created")},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_created")},
		},
		storiesCollection: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_user_created")},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetName("idx_expires_ttl").SetExpireAfterSeconds(0)},
		},
		messagesCollection: {
			{Keys: bson.D{{Key: "from_user_id", Value: 1}, {Key: "to_user_id", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_thread")},
			{Keys: bson.D{{Key: "to_user_id", Value: 1}, {Key: "seen", Value: 1}}, Options: options.Index().SetName("idx_to_seen")},
		},
	}

	for name, models := range set {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}

// decodeAll drains a cursor into out. Documents that fail to decode are
// logged and skipped.
func decodeAll[T any](ctx context.Context, cur *mongo.Cursor) ([]T, error) {
	defer cur.Close(ctx)

	out := make([]T, 0)
	for cur.Next(ctx) {
		var v T
		if err := cur.Decode(&v); err != nil {
			id := "unknown"
			if raw, lerr := cur.Current.LookupErr("_id"); lerr == nil {
				id = raw.String()
			}
			zap.S().Warnw("skipping undecodable document", "id", id, "error", err)
			continue
		}
		out = append(out, v)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
