// Package vectorstore defines the contract for the similarity-search
// backend that owns vector identity and ranking.
//
// Vector ids are deterministic: "{entity_type}_{entity_id}". Re-embedding
// the same entity is therefore naturally an upsert, never a duplicate
// insert. Entity records hold only a weak string reference to their vector;
// deleting a vector never cascades from or blocks relational deletes.
package vectorstore

import (
	"context"
	"time"

	"github.com/foundercircle/semindex/core"
	"github.com/foundercircle/semindex/entity"
)

// Metadata travels with a vector and is filterable on search.
type Metadata struct {
	EntityType string
	SourceID   string
	UserID     string
	Timestamp  time.Time

	// Extra carries additional filterable fields.
	Extra map[string]string
}

// Match is one ranked search result. Score is cosine similarity in [0, 1],
// descending.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// SearchQuery selects and ranks vectors.
type SearchQuery struct {
	Vector []float32

	// EntityType restricts results to one entity type. Empty matches all.
	EntityType entity.Type

	// Filters are exact-match metadata constraints.
	Filters map[string]string

	Limit int

	// Threshold is an inclusive score floor; results below it are
	// excluded, not merely sorted last.
	Threshold float32
}

// Store indexes embeddings for similarity search.
type Store interface {
	// Upsert stores an embedding under the deterministic vector id for
	// (entityType, entityID), replacing any prior vector and metadata
	// atomically from the caller's point of view. Returns the vector id.
	Upsert(ctx context.Context, entityType entity.Type, entityID string, embedding []float32, document string, meta Metadata) (string, error)

	// Search returns matches ranked by descending score.
	Search(ctx context.Context, query SearchQuery) ([]Match, error)

	// Delete removes a vector by id. Deleting a nonexistent id is not an
	// error; the boolean reports whether anything was removed.
	Delete(ctx context.Context, vectorID string) (bool, error)

	// Close releases resources.
	Close() error
}

// VectorID is the pure function from entity identity to vector identity.
func VectorID(entityType entity.Type, entityID string) string {
	return string(entityType) + "_" + entityID
}

// CheckDimension validates a vector's length against the expected
// dimension before any backend call, so a mismatched query never silently
// searches against the wrong index.
func CheckDimension(vec []float32, expected int) error {
	if len(vec) != expected {
		return core.NewDimensionMismatch(expected, len(vec), nil)
	}
	return nil
}
