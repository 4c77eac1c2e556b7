package repository

import (
	"context"
	"time"

	"github.com/AnshRaj112/sparklink-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepository interface {
	Create(ctx context.Context, m *models.Message) error
	// FindThread returns every message exchanged between a and b, newest first.
	FindThread(ctx context.Context, a, b string) ([]models.Message, error)
	// MarkSeen flags every unseen message sent by from to to as seen.
	MarkSeen(ctx context.Context, from, to string) (int64, error)
	// FindReceived returns messages addressed to userID, newest first.
	FindReceived(ctx context.Context, userID string) ([]models.Message, error)
}

type MongoMessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MongoMessageRepository {
	return &MongoMessageRepository{col: db.Collection(messagesCollection)}
}

// ThreadFilter matches the messages of a conversation in both directions.
func ThreadFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"from_user_id": a, "to_user_id": b},
		bson.M{"from_user_id": b, "to_user_id": a},
	}}
}

func (r *MongoMessageRepository) Create(ctx context.Context, m *models.Message) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.MessageType == "" {
		m.MessageType = models.MessageText
	}
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.col.InsertOne(ctx, m)
	return translate(err)
}

func (r *MongoMessageRepository) FindThread(ctx context.Context, a, b string) ([]models.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.col.Find(ctx, ThreadFilter(a, b), opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Message](ctx, cur)
}

func (r *MongoMessageRepository) MarkSeen(ctx context.Context, from, to string) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.col.UpdateMany(ctx,
		bson.M{"from_user_id": from, "to_user_id": to, "seen": false},
		bson.M{"$set": bson.M{"seen": true, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MongoMessageRepository) FindReceived(ctx context.Context, userID string) ([]models.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"to_user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Message](ctx, cur)
}
