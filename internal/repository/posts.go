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

type PostRepository interface {
	Create(ctx context.Context, p *models.Post) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
	// FindByAuthors returns posts by any of the given users, newest first.
	FindByAuthors(ctx context.Context, userIDs []string) ([]models.Post, error)
	AddLike(ctx context.Context, id primitive.ObjectID, userID string) (*models.Post, error)
	RemoveLike(ctx context.Context, id primitive.ObjectID, userID string) (*models.Post, error)
}

type MongoPostRepository struct {
	col *mongo.Collection
}

func NewPostRepository(db *mongo.Database) *MongoPostRepository {
	return &MongoPostRepository{col: db.Collection(postsCollection)}
}

func (r *MongoPostRepository) Create(ctx context.Context, p *models.Post) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.ImageURLs == nil {
		p.ImageURLs = []string{}
	}
	if p.Likes == nil {
		p.Likes = []string{}
	}
	if p.Comments == nil {
		p.Comments = []models.Comment{}
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.col.InsertOne(ctx, p)
	return translate(err)
}

func (r *MongoPostRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var p models.Post
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *MongoPostRepository) FindByAuthors(ctx context.Context, userIDs []string) ([]models.Post, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"user": bson.M{"$in": userIDs}}, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Post](ctx, cur)
}

func (r *MongoPostRepository) AddLike(ctx context.Context, id primitive.ObjectID, userID string) (*models.Post, error) {
	return r.updateLikes(ctx, id, bson.M{"$addToSet": bson.M{"likes_count": userID}})
}

func (r *MongoPostRepository) RemoveLike(ctx context.Context, id primitive.ObjectID, userID string) (*models.Post, error) {
	return r.updateLikes(ctx, id, bson.M{"$pull": bson.M{"likes_count": userID}})
}

func (r *MongoPostRepository) updateLikes(ctx context.Context, id primitive.ObjectID, update bson.M) (*models.Post, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	update["$set"] = bson.M{"updatedAt": time.Now().UTC()}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p models.Post
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}
