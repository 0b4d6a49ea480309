// Package discovery memoizes expensive discovery queries keyed by
// requester and goal set.
//
// Keys are order-independent over the goal set, entries are
// self-describing (created_at + ttl) so readers and writers can race
// safely, and expiry is checked lazily on read. Cache failures always
// degrade to a miss; they never block a discovery request.
package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/foundercircle/semindex/core"
)

// DefaultTTL is how long a discovery result stays servable.
const DefaultTTL = 300 * time.Second

// Result is one discovered candidate.
type Result struct {
	EntityID   string  `json:"entity_id"`
	EntityType string  `json:"entity_type"`
	UserID     string  `json:"user_id"`
	Score      float32 `json:"score"`
	Reason     string  `json:"reason,omitempty"`
}

// Entry is a stored cache row.
type Entry struct {
	CacheKey   string
	UserID     string
	Results    []Result
	CreatedAt  time.Time
	TTLSeconds int
}

// expired reports whether the entry is past its TTL at now.
func (e *Entry) expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second))
}

// Cache memoizes discovery results over a ristretto backing store, with a
// per-user secondary index so invalidation by user removes every entry
// regardless of which goal-set key it was stored under.
type Cache struct {
	store   *ristretto.Cache
	metrics core.MetricsCollector

	mu       sync.Mutex
	userKeys map[string]map[string]struct{}

	// now is injectable for expiry tests.
	now func() time.Time
}

// New creates a discovery cache. A nil metrics collector discards metrics.
func New(metrics core.MetricsCollector) (*Cache, error) {
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 26,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = core.NoopMetricsCollector{}
	}
	return &Cache{
		store:    store,
		metrics:  metrics,
		userKeys: make(map[string]map[string]struct{}),
		now:      time.Now,
	}, nil
}

// Key derives the cache key for a user and goal set. Goal descriptions are
// sorted before hashing, so the key is independent of goal ordering for a
// fixed set of goals.
func Key(userID string, goalDescriptions []string) string {
	goals := make([]string, len(goalDescriptions))
	copy(goals, goalDescriptions)
	sort.Strings(goals)

	sum := sha256.Sum256([]byte(userID + "|" + strings.Join(goals, "|")))
	return hex.EncodeToString(sum[:])
}

// Get returns cached results for the user and goal set, or a miss. An
// entry past its TTL is removed and reported as a miss, never served
// stale.
func (c *Cache) Get(userID string, goalDescriptions []string) ([]Result, bool) {
	key := Key(userID, goalDescriptions)

	value, found := c.store.Get(key)
	if !found {
		c.metrics.RecordCacheLookup(false)
		return nil, false
	}

	entry, ok := value.(*Entry)
	if !ok {
		// Corrupt value class: treat as a miss, drop it.
		c.store.Del(key)
		c.metrics.RecordCacheLookup(false)
		return nil, false
	}

	if entry.expired(c.now()) {
		c.store.Del(key)
		c.forgetKey(userID, key)
		c.metrics.RecordCacheLookup(false)
		return nil, false
	}

	c.metrics.RecordCacheLookup(true)
	return entry.Results, true
}

// Put stores discovery results. ttl <= 0 uses DefaultTTL. A rejected write
// (backing store under pressure) is silently a future miss.
func (c *Cache) Put(userID string, goalDescriptions []string, results []Result, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := Key(userID, goalDescriptions)
	entry := &Entry{
		CacheKey:   key,
		UserID:     userID,
		Results:    results,
		CreatedAt:  c.now(),
		TTLSeconds: int(ttl / time.Second),
	}

	c.mu.Lock()
	if c.userKeys[userID] == nil {
		c.userKeys[userID] = make(map[string]struct{})
	}
	c.userKeys[userID][key] = struct{}{}
	c.mu.Unlock()

	c.store.SetWithTTL(key, entry, int64(1+len(results)), ttl)
	// Ristretto applies writes asynchronously; wait so a Put is visible
	// to an immediately following Get.
	c.store.Wait()
}

// Invalidate removes every cached entry for the user, regardless of which
// goal-set key each was stored under. Triggered by any write to the user's
// goals.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	keys := c.userKeys[userID]
	delete(c.userKeys, userID)
	c.mu.Unlock()

	for key := range keys {
		c.store.Del(key)
	}
	if len(keys) > 0 {
		log.Printf("[CACHE] Invalidated %d entries for user %s", len(keys), userID)
	}
}

// InvalidateAll flushes the whole cache. Triggered by creation of any new
// post system-wide or by an explicit administrative flush.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.userKeys = make(map[string]map[string]struct{})
	c.mu.Unlock()

	c.store.Clear()
	log.Printf("[CACHE] Flushed all discovery entries")
}

// Close releases the backing store.
func (c *Cache) Close() {
	c.store.Close()
}

func (c *Cache) forgetKey(userID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if keys := c.userKeys[userID]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.userKeys, userID)
		}
	}
}
