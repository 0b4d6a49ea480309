// Package mock provides a deterministic offline embedder for testing.
// It generates stable unit vectors from a hash of the input text, so equal
// texts always produce identical embeddings.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder is a deterministic hash-based embedding.Embedder.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder. dimensions <= 0 defaults to 1536 to match
// the production provider.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &Embedder{dimensions: dimensions}
}

// Embed creates a deterministic embedding from text.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		// Simple LCG seeded by the text hash
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}
	return normalized
}
