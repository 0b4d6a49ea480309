package indexer

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foundercircle/semindex/entity"
)

// FailureSource is implemented by the CRUD layer: it lists records whose
// embedding status is failed so the reconciler can retry them.
type FailureSource interface {
	ListFailed(ctx context.Context, limit int) ([]*entity.Record, error)
}

// ReconcilerConfig holds sweep policy.
type ReconcilerConfig struct {
	// Interval between sweeps.
	Interval time.Duration

	// BatchSize caps records fetched per sweep.
	BatchSize int

	// Workers bounds concurrent retries within a sweep.
	Workers int
}

// DefaultReconcilerConfig retries in small, low-pressure sweeps.
var DefaultReconcilerConfig = &ReconcilerConfig{
	Interval:  time.Minute,
	BatchSize: 50,
	Workers:   4,
}

// Reconciler periodically retries failed embeddings in the background, so
// entity creation can return success on a degraded index and still
// converge to a fully indexed state.
type Reconciler struct {
	sync   *Synchronizer
	source FailureSource
	config *ReconcilerConfig
}

// NewReconciler creates a Reconciler. A nil config uses defaults.
func NewReconciler(sync *Synchronizer, source FailureSource, config *ReconcilerConfig) *Reconciler {
	if config == nil {
		config = DefaultReconcilerConfig
	}
	return &Reconciler{sync: sync, source: source, config: config}
}

// Run sweeps until ctx is cancelled. It always returns ctx.Err().
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				log.Printf("[SYNC] Reconciler sweep failed: %v", err)
			}
		}
	}
}

// Sweep retries one batch of failed records with bounded concurrency.
// Individual retry failures are logged and left for the next sweep.
func (r *Reconciler) Sweep(ctx context.Context) error {
	records, err := r.source.ListFailed(ctx, r.config.BatchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	log.Printf("[SYNC] Reconciling %d failed embeddings", len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)
	for _, rec := range records {
		g.Go(func() error {
			if _, err := r.sync.Resync(gctx, rec); err != nil {
				log.Printf("[SYNC] Reconcile of %s failed, will retry next sweep: %v", rec.Ref(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
