package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestActiveStoriesFilter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := ActiveStoriesFilter([]string{"u1", "u2"}, now)

	assert.Equal(t, bson.M{"$in": []string{"u1", "u2"}}, f["user"])
	assert.Equal(t, bson.M{"$gt": now}, f["expires_at"])
}

func TestBetweenFilterCoversBothDirections(t *testing.T) {
	f := BetweenFilter("a", "b")

	or, ok := f["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 2)
	assert.Contains(t, or, bson.M{"from_user_id": "a", "to_user_id": "b"})
	assert.Contains(t, or, bson.M{"from_user_id": "b", "to_user_id": "a"})
}

func TestThreadFilterIsSymmetric(t *testing.T) {
	ab := ThreadFilter("a", "b")["$or"].(bson.A)
	ba := ThreadFilter("b", "a")["$or"].(bson.A)

	assert.ElementsMatch(t, ab, ba)
}

func TestDiscoverFilterQuotesInput(t *testing.T) {
	f := DiscoverFilter("a.b*(c", "me")

	assert.Equal(t, bson.M{"$ne": "me"}, f["_id"])

	or := f["$or"].(bson.A)
	require.Len(t, or, 4)
	for _, clause := range or {
		for _, v := range clause.(bson.M) {
			re, ok := v.(primitive.Regex)
			require.True(t, ok)
			assert.Equal(t, `a\.b\*\(c`, re.Pattern)
			assert.Equal(t, "i", re.Options)
		}
	}
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(mongo.ErrNoDocuments), ErrNotFound)
}
