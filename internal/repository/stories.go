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

type StoryRepository interface {
	Create(ctx context.Context, s *models.Story) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Story, error)
	// FindActiveByAuthors returns unexpired stories by the given users, newest first.
	FindActiveByAuthors(ctx context.Context, userIDs []string, now time.Time) ([]models.Story, error)
	AddView(ctx context.Context, id primitive.ObjectID, userID string) (*models.Story, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type MongoStoryRepository struct {
	col *mongo.Collection
}

func NewStoryRepository(db *mongo.Database) *MongoStoryRepository {
	return &MongoStoryRepository{col: db.Collection(storiesCollection)}
}

// ActiveStoriesFilter excludes expired stories explicitly: the TTL monitor
// only runs about once a minute, so a document can outlive expires_at.
func ActiveStoriesFilter(userIDs []string, now time.Time) bson.M {
	return bson.M{
		"user":       bson.M{"$in": userIDs},
		"expires_at": bson.M{"$gt": now.UTC()},
	}
}

func (r *MongoStoryRepository) Create(ctx context.Context, s *models.Story) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	if s.Views == nil {
		s.Views = []string{}
	}
	if s.BackgroundColor == "" {
		s.BackgroundColor = models.DefaultStoryBackground
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = now.Add(models.StoryLifetime)
	}
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := r.col.InsertOne(ctx, s)
	return translate(err)
}

func (r *MongoStoryRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Story, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var s models.Story
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *MongoStoryRepository) FindActiveByAuthors(ctx context.Context, userIDs []string, now time.Time) ([]models.Story, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.col.Find(ctx, ActiveStoriesFilter(userIDs, now), opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Story](ctx, cur)
}

func (r *MongoStoryRepository) AddView(ctx context.Context, id primitive.ObjectID, userID string) (*models.Story, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	update := bson.M{
		"$addToSet": bson.M{"views": userID},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var s models.Story
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&s); err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *MongoStoryRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
