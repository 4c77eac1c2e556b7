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

type ConnectionRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Connection, error)
	// FindBetween returns the record for the unordered pair {a, b}.
	FindBetween(ctx context.Context, a, b string) (*models.Connection, error)
	// FindRequest returns the record sent by from to to.
	FindRequest(ctx context.Context, from, to string) (*models.Connection, error)
	Create(ctx context.Context, c *models.Connection) error
	SetStatus(ctx context.Context, id primitive.ObjectID, status models.ConnectionStatus) error
	CountSentSince(ctx context.Context, from string, since time.Time) (int64, error)
	ListPendingFor(ctx context.Context, to string) ([]models.Connection, error)
}

type MongoConnectionRepository struct {
	col *mongo.Collection
}

func NewConnectionRepository(db *mongo.Database) *MongoConnectionRepository {
	return &MongoConnectionRepository{col: db.Collection(connectionsCollection)}
}

// BetweenFilter matches a connection record in either direction.
func BetweenFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"from_user_id": a, "to_user_id": b},
		bson.M{"from_user_id": b, "to_user_id": a},
	}}
}

func (r *MongoConnectionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Connection, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoConnectionRepository) FindBetween(ctx context.Context, a, b string) (*models.Connection, error) {
	return r.findOne(ctx, BetweenFilter(a, b))
}

func (r *MongoConnectionRepository) FindRequest(ctx context.Context, from, to string) (*models.Connection, error) {
	return r.findOne(ctx, bson.M{"from_user_id": from, "to_user_id": to})
}

func (r *MongoConnectionRepository) findOne(ctx context.Context, filter bson.M) (*models.Connection, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var c models.Connection
	if err := r.col.FindOne(ctx, filter).Decode(&c); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *MongoConnectionRepository) Create(ctx context.Context, c *models.Connection) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if c.Status == "" {
		c.Status = models.ConnectionPending
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.col.InsertOne(ctx, c)
	return translate(err)
}

func (r *MongoConnectionRepository) SetStatus(ctx context.Context, id primitive.ObjectID, status models.ConnectionStatus) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":    status,
		"updatedAt": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoConnectionRepository) CountSentSince(ctx context.Context, from string, since time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.col.CountDocuments(ctx, bson.M{
		"from_user_id": from,
		"createdAt":    bson.M{"$gt": since.UTC()},
	})
}

func (r *MongoConnectionRepository) ListPendingFor(ctx context.Context, to string) ([]models.Connection, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"to_user_id": to, "status": models.ConnectionPending}, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Connection](ctx, cur)
}
