// Package chromem implements vectorstore.Store on chromem-go, a pure Go
// embedded vector database.
package chromem

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/foundercircle/semindex/core"
	"github.com/foundercircle/semindex/entity"
	"github.com/foundercircle/semindex/vectorstore"
)

// DefaultNamespace partitions founder content; agent memories live in
// their own namespace.
const DefaultNamespace = "founders"

// Store wraps chromem-go with one collection per namespace.
type Store struct {
	db          *chromem.DB
	namespace   string
	dimensions  int
	metrics     core.MetricsCollector
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// Option configures the store.
type Option func(*Store)

// WithNamespace selects the logical partition vectors are stored in.
func WithNamespace(namespace string) Option {
	return func(s *Store) {
		if namespace != "" {
			s.namespace = namespace
		}
	}
}

// WithMetrics injects a metrics collector.
func WithMetrics(m core.MetricsCollector) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a chromem-backed store enforcing the given dimension.
func New(dimensions int, opts ...Option) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", core.ErrValidation, dimensions)
	}
	s := &Store{
		db:          chromem.NewDB(),
		namespace:   DefaultNamespace,
		dimensions:  dimensions,
		metrics:     core.NoopMetricsCollector{},
		collections: make(map[string]*chromem.Collection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) getOrCreateCollection(namespace string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[namespace]
	s.mu.RUnlock()

	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[namespace]; exists {
		return col, nil
	}

	col, err := s.db.CreateCollection(
		fmt.Sprintf("ns_%s", namespace),
		nil, // no custom embedding func (we provide embeddings)
		nil, // no custom distance func (use default cosine)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	s.collections[namespace] = col
	return col, nil
}

// Upsert stores the embedding under the deterministic vector id. Adding a
// document with an existing id replaces it under the collection lock, so
// the old vector is never visible to a concurrent search once Upsert has
// returned.
func (s *Store) Upsert(ctx context.Context, entityType entity.Type, entityID string, embedding []float32, document string, meta vectorstore.Metadata) (string, error) {
	start := time.Now()
	if err := vectorstore.CheckDimension(embedding, s.dimensions); err != nil {
		s.metrics.RecordUpsert(time.Since(start), err)
		return "", err
	}
	if !entityType.Valid() {
		err := fmt.Errorf("%w: unknown entity type %q", core.ErrValidation, entityType)
		s.metrics.RecordUpsert(time.Since(start), err)
		return "", err
	}

	col, err := s.getOrCreateCollection(s.namespace)
	if err != nil {
		s.metrics.RecordUpsert(time.Since(start), err)
		return "", err
	}

	vectorID := vectorstore.VectorID(entityType, entityID)
	doc := chromem.Document{
		ID:        vectorID,
		Content:   document,
		Embedding: embedding,
		Metadata:  flattenMetadata(entityType, meta),
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		s.metrics.RecordUpsert(time.Since(start), err)
		return "", fmt.Errorf("add document: %w", err)
	}

	log.Printf("[VECTOR] Upserted %s (ns=%s)", vectorID, s.namespace)
	s.metrics.RecordUpsert(time.Since(start), nil)
	return vectorID, nil
}

// Search returns matches ranked by descending cosine similarity, with the
// inclusive threshold applied.
func (s *Store) Search(ctx context.Context, query vectorstore.SearchQuery) ([]vectorstore.Match, error) {
	start := time.Now()
	if err := vectorstore.CheckDimension(query.Vector, s.dimensions); err != nil {
		s.metrics.RecordSearch(query.Limit, time.Since(start), err)
		return nil, err
	}
	if query.Limit <= 0 {
		err := fmt.Errorf("%w: search limit must be positive, got %d", core.ErrValidation, query.Limit)
		s.metrics.RecordSearch(query.Limit, time.Since(start), err)
		return nil, err
	}

	col, err := s.getOrCreateCollection(s.namespace)
	if err != nil {
		s.metrics.RecordSearch(query.Limit, time.Since(start), err)
		return nil, err
	}

	// chromem requires nResults <= collection size
	limit := query.Limit
	if count := col.Count(); count < limit {
		limit = count
	}
	if limit == 0 {
		s.metrics.RecordSearch(query.Limit, time.Since(start), nil)
		return nil, nil
	}

	where := make(map[string]string, len(query.Filters)+1)
	for k, v := range query.Filters {
		where[k] = v
	}
	if query.EntityType != "" {
		where["entity_type"] = string(query.EntityType)
	}
	if len(where) == 0 {
		where = nil
	}

	// chromem rejects nResults larger than the candidate set; metadata
	// filters can shrink that set below the collection count, so retry
	// with smaller limits until the query fits.
	var results []chromem.Result
	for currentLimit := limit; currentLimit >= 1; currentLimit-- {
		results, err = col.QueryEmbedding(ctx, query.Vector, currentLimit, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if currentLimit == 1 {
				s.metrics.RecordSearch(query.Limit, time.Since(start), nil)
				return nil, nil
			}
			continue
		}
		s.metrics.RecordSearch(query.Limit, time.Since(start), err)
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]vectorstore.Match, 0, len(results))
	for _, result := range results {
		if result.Similarity < query.Threshold {
			continue
		}
		matches = append(matches, vectorstore.Match{
			ID:       result.ID,
			Score:    result.Similarity,
			Metadata: result.Metadata,
		})
	}

	s.metrics.RecordSearch(query.Limit, time.Since(start), nil)
	return matches, nil
}

// Delete removes a vector by id. Missing ids are not an error.
func (s *Store) Delete(ctx context.Context, vectorID string) (bool, error) {
	col, err := s.getOrCreateCollection(s.namespace)
	if err != nil {
		return false, err
	}

	if _, err := col.GetByID(ctx, vectorID); err != nil {
		// Not present; idempotent delete.
		return false, nil
	}

	if err := col.Delete(ctx, nil, nil, vectorID); err != nil {
		return false, fmt.Errorf("chromem delete: %w", err)
	}

	log.Printf("[VECTOR] Deleted %s (ns=%s)", vectorID, s.namespace)
	return true, nil
}

// Close releases resources. chromem keeps everything in memory, nothing
// to release.
func (s *Store) Close() error {
	return nil
}

// isInsufficientDocsError matches chromem's nResults-too-large errors.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

func flattenMetadata(entityType entity.Type, meta vectorstore.Metadata) map[string]string {
	ts := meta.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	out := map[string]string{
		"entity_type": string(entityType),
		"source_id":   meta.SourceID,
		"user_id":     meta.UserID,
		"timestamp":   ts.Format(time.RFC3339),
	}
	for k, v := range meta.Extra {
		out[k] = v
	}
	return out
}
