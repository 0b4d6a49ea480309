package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundercircle/semindex/core"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := New(nil)
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	return cache
}

func sampleResults() []Result {
	return []Result{
		{EntityID: "post-1", EntityType: "post", UserID: "user-2", Score: 0.91},
		{EntityID: "profile-9", EntityType: "profile", UserID: "user-3", Score: 0.83},
	}
}

func TestKeyOrderIndependent(t *testing.T) {
	k1 := Key("user-1", []string{"raise seed round", "hire engineers"})
	k2 := Key("user-1", []string{"hire engineers", "raise seed round"})
	assert.Equal(t, k1, k2)
}

func TestKeyDistinguishesUsers(t *testing.T) {
	k1 := Key("user-1", []string{"raise seed round"})
	k2 := Key("user-2", []string{"raise seed round"})
	assert.NotEqual(t, k1, k2)
}

func TestKeyDistinguishesGoalSets(t *testing.T) {
	k1 := Key("user-1", []string{"raise seed round"})
	k2 := Key("user-1", []string{"raise seed round", "hire engineers"})
	assert.NotEqual(t, k1, k2)
}

func TestPutThenGet(t *testing.T) {
	cache := newCache(t)
	goals := []string{"raise seed round"}

	cache.Put("user-1", goals, sampleResults(), 0)

	results, ok := cache.Get("user-1", goals)
	require.True(t, ok)
	assert.Equal(t, sampleResults(), results)

	// Different ordering of the same goal set hits the same entry.
	cache.Put("user-1", []string{"a", "b"}, sampleResults(), 0)
	_, ok = cache.Get("user-1", []string{"b", "a"})
	assert.True(t, ok)
}

func TestLazyTTLExpiry(t *testing.T) {
	cache := newCache(t)
	goals := []string{"raise seed round"}

	base := time.Now()
	cache.now = func() time.Time { return base }
	cache.Put("user-1", goals, sampleResults(), 300*time.Second)

	// Still inside the TTL.
	cache.now = func() time.Time { return base.Add(299 * time.Second) }
	_, ok := cache.Get("user-1", goals)
	assert.True(t, ok)

	// One second past the TTL: a miss, never served stale.
	cache.now = func() time.Time { return base.Add(301 * time.Second) }
	_, ok = cache.Get("user-1", goals)
	assert.False(t, ok)

	// The expired entry was removed, not just skipped.
	_, ok = cache.Get("user-1", goals)
	assert.False(t, ok)
}

func TestInvalidateByUserRemovesAllGoalSets(t *testing.T) {
	cache := newCache(t)

	cache.Put("user-1", []string{"goal a"}, sampleResults(), 0)
	cache.Put("user-1", []string{"goal a", "goal b"}, sampleResults(), 0)
	cache.Put("user-2", []string{"goal a"}, sampleResults(), 0)

	cache.Invalidate("user-1")

	_, ok := cache.Get("user-1", []string{"goal a"})
	assert.False(t, ok)
	_, ok = cache.Get("user-1", []string{"goal a", "goal b"})
	assert.False(t, ok)

	// Other users are untouched.
	_, ok = cache.Get("user-2", []string{"goal a"})
	assert.True(t, ok)
}

func TestInvalidateAll(t *testing.T) {
	cache := newCache(t)

	cache.Put("user-1", []string{"goal a"}, sampleResults(), 0)
	cache.Put("user-2", []string{"goal b"}, sampleResults(), 0)

	cache.InvalidateAll()

	_, ok := cache.Get("user-1", []string{"goal a"})
	assert.False(t, ok)
	_, ok = cache.Get("user-2", []string{"goal b"})
	assert.False(t, ok)
}

func TestMetricsRecordHitsAndMisses(t *testing.T) {
	metrics := &core.BasicMetricsCollector{}
	cache, err := New(metrics)
	require.NoError(t, err)
	defer cache.Close()

	cache.Get("user-1", []string{"goal"})
	cache.Put("user-1", []string{"goal"}, sampleResults(), 0)
	cache.Get("user-1", []string{"goal"})

	assert.Equal(t, int64(1), metrics.CacheHits.Load())
	assert.Equal(t, int64(1), metrics.CacheMisses.Load())
}
