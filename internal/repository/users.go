package repository

import (
	"context"
	"regexp"
	"time"

	"github.com/AnshRaj112/sparklink-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Relation names one of the id lists kept on a user document.
type Relation string

const (
	Followers   Relation = "followers"
	Following   Relation = "following"
	Connections Relation = "connections"
)

// DiscoverLimit caps the number of users returned by a search.
const DiscoverLimit = 50

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	Update(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error)
	SetIdentity(ctx context.Context, p models.IdentityProfile) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, input, excludeID string) ([]models.User, error)
	AddRelation(ctx context.Context, userID string, rel Relation, otherID string) error
	RemoveRelation(ctx context.Context, userID string, rel Relation, otherID string) error
}

type MongoUserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{col: db.Collection(usersCollection)}
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *MongoUserRepository) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	return decodeAll[models.User](ctx, cur)
}

func (r *MongoUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"username": username}).Decode(&u); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *MongoUserRepository) Create(ctx context.Context, u *models.User) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Followers == nil {
		u.Followers = []string{}
	}
	if u.Following == nil {
		u.Following = []string{}
	}
	if u.Connections == nil {
		u.Connections = []string{}
	}

	_, err := r.col.InsertOne(ctx, u)
	return translate(err)
}

func (r *MongoUserRepository) Update(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Username != nil {
		set["username"] = *upd.Username
	}
	if upd.Bio != nil {
		set["bio"] = *upd.Bio
	}
	if upd.Location != nil {
		set["location"] = *upd.Location
	}
	if upd.FullName != nil {
		set["full_name"] = *upd.FullName
	}
	if upd.ProfilePicture != nil {
		set["profile_picture"] = *upd.ProfilePicture
	}
	if upd.CoverPhoto != nil {
		set["cover_photo"] = *upd.CoverPhoto
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u models.User
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&u); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// SetIdentity refreshes the provider-owned fields. A missing user is not an error.
func (r *MongoUserRepository) SetIdentity(ctx context.Context, p models.IdentityProfile) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.col.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{
		"email":           p.Email,
		"full_name":       p.DisplayName(),
		"profile_picture": p.ImageURL,
		"updatedAt":       time.Now().UTC(),
	}})
	return translate(err)
}

func (r *MongoUserRepository) Delete(ctx context.Context, id string) error {
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

func (r *MongoUserRepository) Search(ctx context.Context, input, excludeID string) ([]models.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetLimit(DiscoverLimit)
	cur, err := r.col.Find(ctx, DiscoverFilter(input, excludeID), opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.User](ctx, cur)
}

// DiscoverFilter matches input literally and case-insensitively against the
// searchable profile fields, excluding the caller.
func DiscoverFilter(input, excludeID string) bson.M {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(input), Options: "i"}
	return bson.M{
		"_id": bson.M{"$ne": excludeID},
		"$or": bson.A{
			bson.M{"username": pattern},
			bson.M{"email": pattern},
			bson.M{"full_name": pattern},
			bson.M{"location": pattern},
		},
	}
}

func (r *MongoUserRepository) AddRelation(ctx context.Context, userID string, rel Relation, otherID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.col.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$addToSet": bson.M{string(rel): otherID},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	})
	return translate(err)
}

func (r *MongoUserRepository) RemoveRelation(ctx context.Context, userID string, rel Relation, otherID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.col.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$pull": bson.M{string(rel): otherID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	return translate(err)
}
