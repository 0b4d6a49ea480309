package chromem_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundercircle/semindex/core"
	"github.com/foundercircle/semindex/embedding/mock"
	"github.com/foundercircle/semindex/entity"
	"github.com/foundercircle/semindex/vectorstore"
	"github.com/foundercircle/semindex/vectorstore/chromem"
)

const dims = 1536

func newStore(t *testing.T) *chromem.Store {
	t.Helper()
	store, err := chromem.New(dims)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func embed(t *testing.T, text string) []float32 {
	t.Helper()
	vec, err := mock.New(dims).Embed(context.Background(), text)
	require.NoError(t, err)
	return vec
}

func TestUpsertThenSearchReturnsSelf(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	vec := embed(t, "Raise $2M seed round by Q2 2025")
	vectorID, err := store.Upsert(ctx, entity.TypeGoal, "goal-1", vec, "Raise $2M seed round", vectorstore.Metadata{
		SourceID: "goal-1",
		UserID:   "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "goal_goal-1", vectorID)

	matches, err := store.Search(ctx, vectorstore.SearchQuery{Vector: vec, Limit: 5})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, vectorID, matches[0].ID)
	assert.InDelta(t, 1.0, float64(matches[0].Score), 0.001)
	assert.Equal(t, "user-1", matches[0].Metadata["user_id"])
}

func TestUpsertIsIdempotentPerEntity(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	first, err := store.Upsert(ctx, entity.TypeGoal, "goal-1", embed(t, "v1"), "v1", vectorstore.Metadata{UserID: "user-1"})
	require.NoError(t, err)
	second, err := store.Upsert(ctx, entity.TypeGoal, "goal-1", embed(t, "v2"), "v2", vectorstore.Metadata{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, first, second, "vector id is a pure function of (entity_type, entity_id)")

	// The replacement vector is the only one searchable.
	matches, err := store.Search(ctx, vectorstore.SearchQuery{Vector: embed(t, "v2"), Limit: 10})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, float64(matches[0].Score), 0.001)
}

func TestSearchEntityTypeFilter(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	goalVec := embed(t, "hire a founding engineer")
	_, err := store.Upsert(ctx, entity.TypeGoal, "goal-1", goalVec, "goal", vectorstore.Metadata{UserID: "user-1"})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, entity.TypePost, "post-1", embed(t, "we are hiring"), "post", vectorstore.Metadata{UserID: "user-2"})
	require.NoError(t, err)

	matches, err := store.Search(ctx, vectorstore.SearchQuery{
		Vector:     goalVec,
		EntityType: entity.TypePost,
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "post_post-1", matches[0].ID)
}

func TestSearchThresholdIsInclusiveFloor(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	vec := embed(t, "fintech founder in Berlin")
	_, err := store.Upsert(ctx, entity.TypeProfile, "p1", vec, "profile", vectorstore.Metadata{UserID: "user-1"})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, entity.TypeProfile, "p2", embed(t, "completely unrelated gardening blog"), "profile", vectorstore.Metadata{UserID: "user-2"})
	require.NoError(t, err)

	// A high threshold excludes the dissimilar vector entirely.
	matches, err := store.Search(ctx, vectorstore.SearchQuery{Vector: vec, Limit: 10, Threshold: 0.99})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "profile_p1", matches[0].ID)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	vectorID, err := store.Upsert(ctx, entity.TypeAsk, "ask-1", embed(t, "intro to a CTO"), "ask", vectorstore.Metadata{UserID: "user-1"})
	require.NoError(t, err)

	removed, err := store.Delete(ctx, vectorID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete(ctx, vectorID)
	require.NoError(t, err)
	assert.False(t, removed, "deleting a nonexistent id is not an error")

	matches, err := store.Search(ctx, vectorstore.SearchQuery{Vector: embed(t, "intro to a CTO"), Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDimensionGuardRejectsBeforeBackend(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	short := make([]float32, 768)
	_, err := store.Upsert(ctx, entity.TypeGoal, "goal-1", short, "goal", vectorstore.Metadata{})
	var mismatch *core.DimensionMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, dims, mismatch.Expected)

	_, err = store.Search(ctx, vectorstore.SearchQuery{Vector: short, Limit: 5})
	require.True(t, errors.As(err, &mismatch))
}

func TestSearchEmptyStore(t *testing.T) {
	store := newStore(t)

	matches, err := store.Search(context.Background(), vectorstore.SearchQuery{
		Vector: embed(t, "anything"),
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestVectorIDPureFunction(t *testing.T) {
	assert.Equal(t, "goal_abc", vectorstore.VectorID(entity.TypeGoal, "abc"))
	assert.Equal(t, vectorstore.VectorID(entity.TypePost, "x"), vectorstore.VectorID(entity.TypePost, "x"))
}
