// Package embedding converts text to fixed-dimension vectors via an
// external provider. The Gateway owns retry, timeout, and rate-limit
// policy, and validates the provider's dimensional contract; providers
// only perform the raw call.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/foundercircle/semindex/core"
)

// Embedder converts a single text to an embedding vector.
// Implementations: openai.Provider (production), mock.Embedder (testing).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Config holds Gateway retry and timeout policy.
type Config struct {
	// Dimensions is the required vector length. A provider response of
	// any other length is a fatal integration error.
	Dimensions int

	// MaxRetries bounds retries of transient provider failures. The
	// total attempt count is MaxRetries + 1.
	MaxRetries int

	// InitialBackoff is doubled after each failed attempt.
	InitialBackoff time.Duration

	// AttemptTimeout bounds each individual provider call.
	AttemptTimeout time.Duration

	// RateLimit caps provider calls per second. Zero disables limiting.
	RateLimit rate.Limit

	// RateBurst is the limiter burst size when RateLimit is set.
	RateBurst int
}

// DefaultConfig returns production defaults for a 1536-dimension provider.
var DefaultConfig = &Config{
	Dimensions:     1536,
	MaxRetries:     3,
	InitialBackoff: 500 * time.Millisecond,
	AttemptTimeout: 30 * time.Second,
	RateLimit:      0,
	RateBurst:      1,
}

// Gateway wraps an Embedder with retry, rate-limit, and dimension
// enforcement. It satisfies Embedder itself so callers can layer it
// transparently over any provider.
type Gateway struct {
	provider Embedder
	config   *Config
	limiter  *rate.Limiter
	metrics  core.MetricsCollector
}

// NewGateway creates a Gateway. A nil config uses DefaultConfig.
func NewGateway(provider Embedder, config *Config, metrics core.MetricsCollector) *Gateway {
	if config == nil {
		config = DefaultConfig
	}
	if metrics == nil {
		metrics = core.NoopMetricsCollector{}
	}
	g := &Gateway{provider: provider, config: config, metrics: metrics}
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(config.RateLimit, burst)
	}
	return g
}

// Dimensions returns the enforced vector length.
func (g *Gateway) Dimensions() int {
	return g.config.Dimensions
}

// Embed converts text to a vector, retrying transient provider failures
// with exponential backoff. Exhausting retries returns the last error;
// the Gateway never substitutes a zero vector or placeholder. A returned
// vector of the wrong length is a DimensionMismatchError.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	backoff := g.config.InitialBackoff
	attempts := 0

	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				g.metrics.RecordEmbed(time.Since(start), attempts, err)
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		attempts++
		vector, err := g.embedOnce(ctx, text)
		if err == nil {
			g.metrics.RecordEmbed(time.Since(start), attempts, nil)
			return vector, nil
		}
		lastErr = err

		// Only the transient class retries; validation and dimension
		// errors fail immediately.
		if !errors.Is(err, core.ErrProviderUnavailable) {
			g.metrics.RecordEmbed(time.Since(start), attempts, err)
			return nil, err
		}
		if attempt < g.config.MaxRetries {
			log.Printf("[EMBED] Transient provider failure (attempt %d/%d), retrying in %v: %v",
				attempt+1, g.config.MaxRetries+1, backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				g.metrics.RecordEmbed(time.Since(start), attempts, ctx.Err())
				return nil, ctx.Err()
			}
			backoff *= 2
		}
	}

	g.metrics.RecordEmbed(time.Since(start), attempts, lastErr)
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", attempts, lastErr)
}

func (g *Gateway) embedOnce(ctx context.Context, text string) ([]float32, error) {
	attemptCtx := ctx
	if g.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, g.config.AttemptTimeout)
		defer cancel()
	}

	vector, err := g.provider.Embed(attemptCtx, text)
	if err != nil {
		return nil, err
	}
	if len(vector) != g.config.Dimensions {
		return nil, core.NewDimensionMismatch(g.config.Dimensions, len(vector), nil)
	}
	return vector, nil
}
