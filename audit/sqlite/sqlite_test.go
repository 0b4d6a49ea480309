package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundercircle/semindex/audit"
	"github.com/foundercircle/semindex/audit/sqlite"
	"github.com/foundercircle/semindex/core"
)

func newLog(t *testing.T) *sqlite.Log {
	t.Helper()
	log, err := sqlite.New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func sampleEntry() *audit.Entry {
	return &audit.Entry{
		AgentID:    "advisor-1",
		UserID:     "user-1",
		ActionType: "introduction_suggested",
		ActionDetails: map[string]any{
			"target_user": "user-2",
			"reason":      "aligned fundraising goals",
		},
		SourceEmbeddingIDs: []string{"goal_abc", "profile_def"},
	}
}

func TestAppendAndGet(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	logID, err := log.Append(ctx, sampleEntry())
	require.NoError(t, err)
	require.NotEmpty(t, logID)

	entry, err := log.Get(ctx, logID)
	require.NoError(t, err)
	assert.Equal(t, "advisor-1", entry.AgentID)
	assert.Equal(t, "introduction_suggested", entry.ActionType)
	assert.Equal(t, []string{"goal_abc", "profile_def"}, entry.SourceEmbeddingIDs)
	assert.Equal(t, "user-2", entry.ActionDetails["target_user"])
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestUpdateAndDeleteAlwaysFail(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	logID, err := log.Append(ctx, sampleEntry())
	require.NoError(t, err)

	// Existing entry: protected.
	err = log.Update(ctx, logID, sampleEntry())
	assert.True(t, errors.Is(err, core.ErrImmutable))
	err = log.Delete(ctx, logID)
	assert.True(t, errors.Is(err, core.ErrImmutable))

	// Entry still intact.
	_, err = log.Get(ctx, logID)
	require.NoError(t, err)

	// Never-created id: a distinct failure kind.
	missing := uuid.New().String()
	err = log.Update(ctx, missing, sampleEntry())
	assert.True(t, errors.Is(err, core.ErrNotFound))
	err = log.Delete(ctx, missing)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestGetMissingEntry(t *testing.T) {
	log := newLog(t)
	_, err := log.Get(context.Background(), uuid.New().String())
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestRetrievalInformedActionsRequireProvenance(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	entry := sampleEntry()
	entry.SourceEmbeddingIDs = nil
	_, err := log.Append(ctx, entry)
	assert.True(t, errors.Is(err, core.ErrValidation))

	// Non-retrieval actions don't need provenance.
	entry = sampleEntry()
	entry.ActionType = "session_started"
	entry.SourceEmbeddingIDs = nil
	_, err = log.Append(ctx, entry)
	assert.NoError(t, err)
}

func TestQueryFilters(t *testing.T) {
	ctx := context.Background()
	log := newLog(t)

	first := sampleEntry()
	first.CreatedAt = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	_, err := log.Append(ctx, first)
	require.NoError(t, err)

	second := sampleEntry()
	second.AgentID = "advisor-2"
	second.ActionType = "match_proposed"
	second.SourceEmbeddingIDs = []string{"ask_xyz"}
	second.CreatedAt = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	_, err = log.Append(ctx, second)
	require.NoError(t, err)

	byAgent, err := log.Query(ctx, audit.Query{AgentID: "advisor-2"})
	require.NoError(t, err)
	require.Len(t, byAgent, 1)
	assert.Equal(t, "match_proposed", byAgent[0].ActionType)

	byAction, err := log.Query(ctx, audit.Query{ActionType: "introduction_suggested"})
	require.NoError(t, err)
	require.Len(t, byAction, 1)

	byEmbedding, err := log.Query(ctx, audit.Query{EmbeddingID: "ask_xyz"})
	require.NoError(t, err)
	require.Len(t, byEmbedding, 1)
	assert.Equal(t, "advisor-2", byEmbedding[0].AgentID)

	byRange, err := log.Query(ctx, audit.Query{
		Since: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, byRange, 1)

	all, err := log.Query(ctx, audit.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	// Oldest first.
	assert.Equal(t, "advisor-1", all[0].AgentID)
}
