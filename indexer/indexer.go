// Package indexer orchestrates the Safety -> Embedding -> VectorStore
// pipeline for each entity mutation and reconciles entity records with
// their vector pointers.
//
// Content persistence and embedding eligibility are independent concerns:
// the CRUD layer's write is never rolled back by anything here. Blocking
// entity types (goals, profiles, asks, agent memories) report pipeline
// failures to the caller; deferred types (posts, introductions, outcomes)
// run best-effort in the background and communicate degradation through
// the record's embedding status.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/foundercircle/semindex/audit"
	"github.com/foundercircle/semindex/core"
	"github.com/foundercircle/semindex/discovery"
	"github.com/foundercircle/semindex/embedding"
	"github.com/foundercircle/semindex/entity"
	"github.com/foundercircle/semindex/safety"
	"github.com/foundercircle/semindex/vectorstore"
)

// ErrUnsafeContent reports that content failed safety screening and was
// not indexed. The entity write itself stands.
var ErrUnsafeContent = errors.New("content failed safety screening")

// State tracks where an entity mutation is in the pipeline.
type State string

const (
	StatePending       State = "pending"
	StateSafetyChecked State = "safety_checked"
	StateEmbedded      State = "embedded"
	StateStored        State = "stored"
	StateFailed        State = "failed"
)

// Result reports the pipeline outcome for one mutation.
type Result struct {
	State    State
	Status   entity.EmbeddingStatus
	VectorID string

	// Verdict is set when safety screening rejected the content.
	Verdict *safety.Verdict

	// Skipped is true when the mutation did not require a provider call
	// (formatter-irrelevant change or unchanged content hash).
	Skipped bool
}

// RecordWriter is implemented by the CRUD layer; it persists the embedding
// fields this core derives.
type RecordWriter interface {
	// CompareAndSetEmbedding writes embedding_id and embedding_updated_at
	// onto the record iff its version still equals expectedVersion.
	// Returns false (and no error) when the record has moved on; a newer
	// mutation's embedding must never be overwritten by an older one.
	CompareAndSetEmbedding(ctx context.Context, ref entity.Ref, embeddingID string, at time.Time, expectedVersion int64) (bool, error)

	// SetEmbeddingStatus persists the record's embedding status.
	SetEmbeddingStatus(ctx context.Context, ref entity.Ref, status entity.EmbeddingStatus) error
}

// blockingTypes embed synchronously and fail loud: for these the matching
// use case defines the product's value.
var blockingTypes = map[entity.Type]bool{
	entity.TypeGoal:        true,
	entity.TypeProfile:     true,
	entity.TypeAsk:         true,
	entity.TypeAgentMemory: true,
}

// Config holds Synchronizer policy.
type Config struct {
	// Checks are the safety screens run over embedding text.
	Checks []safety.Check
}

// DefaultConfig runs every safety screen.
var DefaultConfig = &Config{
	Checks: safety.AllChecks,
}

// Synchronizer drives the per-entity indexing state machine.
type Synchronizer struct {
	scanner  *safety.Scanner
	embedder embedding.Embedder
	store    vectorstore.Store
	cache    *discovery.Cache
	auditLog audit.Log
	records  RecordWriter
	config   *Config

	locks *kmutex
	wg    sync.WaitGroup

	// hashes caches the content hash of each entity's last stored
	// embedding so unchanged content skips the provider entirely.
	hashes sync.Map // entity.Ref string -> content hash
}

// Option configures the Synchronizer.
type Option func(*Synchronizer)

// WithCache wires discovery cache invalidation into the pipeline.
func WithCache(c *discovery.Cache) Option {
	return func(s *Synchronizer) { s.cache = c }
}

// WithAudit wires audit logging of agent-initiated mutations.
func WithAudit(l audit.Log) Option {
	return func(s *Synchronizer) { s.auditLog = l }
}

// WithConfig overrides DefaultConfig.
func WithConfig(c *Config) Option {
	return func(s *Synchronizer) {
		if c != nil {
			s.config = c
		}
	}
}

// New creates a Synchronizer. scanner, embedder, store, and records are
// required; cache and audit log are optional collaborators.
func New(scanner *safety.Scanner, embedder embedding.Embedder, store vectorstore.Store, records RecordWriter, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		scanner:  scanner,
		embedder: embedder,
		store:    store,
		records:  records,
		config:   DefaultConfig,
		locks:    newKmutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnEntityCreated indexes a newly created entity. Blocking types run the
// pipeline synchronously and surface failures; deferred types schedule a
// background run and return immediately with a processing status.
func (s *Synchronizer) OnEntityCreated(ctx context.Context, rec *entity.Record) (*Result, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	if blockingTypes[rec.Type] {
		return s.runLocked(ctx, rec)
	}
	s.runDeferred(ctx, rec)
	return &Result{State: StatePending, Status: entity.StatusProcessing}, nil
}

// OnEntityUpdated re-indexes an entity after an update. Only changes to
// formatter-relevant fields trigger a re-embedding call; any write to a
// goal still invalidates the owner's discovery cache, since the goal set
// defines the cache key space.
func (s *Synchronizer) OnEntityUpdated(ctx context.Context, rec *entity.Record, changedFields []string) (*Result, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}

	if rec.Type == entity.TypeGoal && s.cache != nil {
		s.cache.Invalidate(rec.UserID)
	}

	if !entity.NeedsReembed(rec.Type, changedFields) {
		log.Printf("[SYNC] %s: no formatter-relevant change, skipping re-embed", rec.Ref())
		return &Result{State: StateStored, Status: rec.EmbeddingStatus, VectorID: rec.EmbeddingID, Skipped: true}, nil
	}

	if blockingTypes[rec.Type] {
		return s.runLocked(ctx, rec)
	}
	s.runDeferred(ctx, rec)
	return &Result{State: StatePending, Status: entity.StatusProcessing}, nil
}

// OnEntityDeleted best-effort deletes the entity's vector and invalidates
// affected cache entries. Relational deletion is the source of truth for
// existence, so vector-store failures are logged, never propagated.
func (s *Synchronizer) OnEntityDeleted(ctx context.Context, entityType entity.Type, entityID, userID string) {
	ref := entity.Ref{Type: entityType, ID: entityID}
	s.hashes.Delete(ref.String())

	vectorID := vectorstore.VectorID(entityType, entityID)
	if _, err := s.store.Delete(ctx, vectorID); err != nil {
		log.Printf("[SYNC] WARN failed to delete vector %s: %v", vectorID, err)
	}

	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}

// Resync re-runs the pipeline for a record, used by the reconciler to
// retry failed embeddings. Always blocking.
func (s *Synchronizer) Resync(ctx context.Context, rec *entity.Record) (*Result, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	return s.runLocked(ctx, rec)
}

// Wait blocks until all deferred pipeline runs have finished.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// runDeferred schedules a background pipeline run detached from the
// request context: if the owning request is cancelled after the entity
// write committed, the pipeline still runs to completion so the record is
// not left indefinitely without an embedding.
func (s *Synchronizer) runDeferred(ctx context.Context, rec *entity.Record) {
	detached := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.runLocked(detached, rec); err != nil {
			log.Printf("[SYNC] Deferred indexing of %s failed: %v", rec.Ref(), err)
		}
	}()
}

func (s *Synchronizer) runLocked(ctx context.Context, rec *entity.Record) (*Result, error) {
	key := rec.Ref().String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)
	return s.run(ctx, rec)
}

// run executes the state machine: pending -> safety_checked -> embedded
// -> stored, or failed.
func (s *Synchronizer) run(ctx context.Context, rec *entity.Record) (*Result, error) {
	ref := rec.Ref()
	text := entity.EmbeddingText(rec)
	hash := entity.ContentHash(rec)

	// Unchanged content with an existing vector needs no provider call.
	if last, ok := s.hashes.Load(ref.String()); ok && last == hash && rec.EmbeddingID != "" {
		log.Printf("[SYNC] %s: content hash unchanged, skipping", ref)
		return &Result{State: StateStored, Status: entity.StatusCompleted, VectorID: rec.EmbeddingID, Skipped: true}, nil
	}

	s.setStatus(ctx, ref, entity.StatusProcessing)

	// pending -> safety_checked
	verdict, err := s.scanner.Scan(ctx, text, s.config.Checks)
	if err != nil {
		// SafetyServiceError class: caller bug, propagate.
		s.setStatus(ctx, ref, entity.StatusFailed)
		return &Result{State: StateFailed, Status: entity.StatusFailed}, err
	}
	if !verdict.IsSafe {
		s.setStatus(ctx, ref, entity.StatusFailed)
		return &Result{State: StateFailed, Status: entity.StatusFailed, Verdict: verdict},
			fmt.Errorf("%w: %s", ErrUnsafeContent, ref)
	}

	// safety_checked -> embedded
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.setStatus(ctx, ref, entity.StatusFailed)
		return &Result{State: StateFailed, Status: entity.StatusFailed},
			fmt.Errorf("embedding %s: %w", ref, err)
	}

	// embedded -> stored. On failure the record's prior embedding_id is
	// left untouched, never partially overwritten.
	vectorID, err := s.store.Upsert(ctx, rec.Type, rec.ID, vector, text, vectorstore.Metadata{
		EntityType: string(rec.Type),
		SourceID:   rec.ID,
		UserID:     rec.UserID,
		Timestamp:  time.Now(),
	})
	if err != nil {
		s.setStatus(ctx, ref, entity.StatusFailed)
		return &Result{State: StateFailed, Status: entity.StatusFailed},
			fmt.Errorf("storing vector for %s: %w", ref, err)
	}

	now := time.Now()
	applied, err := s.records.CompareAndSetEmbedding(ctx, ref, vectorID, now, rec.Version)
	if err != nil {
		log.Printf("[SYNC] WARN embedding write-back for %s failed: %v", ref, err)
	} else if !applied {
		// A newer mutation won the race; its pipeline run owns the
		// record's embedding fields now.
		log.Printf("[SYNC] %s: record version moved on, write-back skipped", ref)
	}

	s.hashes.Store(ref.String(), hash)
	s.setStatus(ctx, ref, entity.StatusCompleted)
	s.invalidateFor(rec)
	s.recordAudit(ctx, rec, vectorID)

	log.Printf("[SYNC] Indexed %s -> %s", ref, vectorID)
	return &Result{State: StateStored, Status: entity.StatusCompleted, VectorID: vectorID}, nil
}

// invalidateFor applies the cache invalidation triggers: any successful
// index for a user invalidates that user's entries; a new post makes new
// candidate content available system-wide.
func (s *Synchronizer) invalidateFor(rec *entity.Record) {
	if s.cache == nil {
		return
	}
	if rec.Type == entity.TypePost {
		s.cache.InvalidateAll()
		return
	}
	s.cache.Invalidate(rec.UserID)
}

// recordAudit appends an immutable entry for agent-initiated mutations,
// referencing the vector that resulted. Audit failures propagate nowhere
// from here but are never silently dropped from logs.
func (s *Synchronizer) recordAudit(ctx context.Context, rec *entity.Record, vectorID string) {
	if s.auditLog == nil {
		return
	}
	agentID := rec.Attributes["agent_id"]
	if agentID == "" {
		return
	}
	_, err := s.auditLog.Append(ctx, &audit.Entry{
		AgentID:    agentID,
		UserID:     rec.UserID,
		ActionType: "entity_indexed",
		ActionDetails: map[string]any{
			"entity_type": string(rec.Type),
			"entity_id":   rec.ID,
		},
		SourceEmbeddingIDs: []string{vectorID},
	})
	if err != nil {
		log.Printf("[SYNC] WARN audit append for %s failed: %v", rec.Ref(), err)
	}
}

func (s *Synchronizer) setStatus(ctx context.Context, ref entity.Ref, status entity.EmbeddingStatus) {
	if err := s.records.SetEmbeddingStatus(ctx, ref, status); err != nil {
		log.Printf("[SYNC] WARN status write for %s failed: %v", ref, err)
	}
}

func validateRecord(rec *entity.Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", core.ErrValidation)
	}
	if rec.ID == "" {
		return fmt.Errorf("%w: record requires an id", core.ErrValidation)
	}
	if !rec.Type.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", core.ErrValidation, rec.Type)
	}
	return nil
}
