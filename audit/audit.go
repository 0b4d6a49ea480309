// Package audit provides an append-only ledger of agent actions and
// suggestions, each referencing the embeddings that justified it.
//
// Entries are immutable once appended. Update and Delete exist on the
// interface only so that attempts fail loudly: mutating an existing entry
// is ErrImmutable, mutating a missing one is ErrNotFound. The two failure
// kinds are distinct so callers can tell "entry never existed" from
// "entry exists but is protected".
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/foundercircle/semindex/core"
)

// Entry is one immutable audit record.
type Entry struct {
	LogID      string
	AgentID    string
	UserID     string
	ActionType string

	// ActionDetails is free-form structured detail about the action.
	ActionDetails map[string]any

	// SourceEmbeddingIDs reference the vectors whose retrieval influenced
	// the action, enabling after-the-fact tracing from an action back to
	// its evidence. Required for retrieval-informed action types.
	SourceEmbeddingIDs []string

	CreatedAt time.Time
}

// retrievalInformedActions are action types produced by semantic
// retrieval; appending one without source embedding ids is a caller bug.
var retrievalInformedActions = map[string]struct{}{
	"introduction_suggested": {},
	"match_proposed":         {},
	"memory_recalled":        {},
	"discovery_served":       {},
}

// RetrievalInformed reports whether an action type requires embedding
// provenance.
func RetrievalInformed(actionType string) bool {
	_, ok := retrievalInformedActions[actionType]
	return ok
}

// Query filters audit entries. Zero values match everything.
type Query struct {
	AgentID     string
	ActionType  string
	EmbeddingID string
	Since       time.Time
	Until       time.Time
}

// Log is the append-only ledger contract.
type Log interface {
	// Append validates and stores an entry, returning its log id.
	Append(ctx context.Context, entry *Entry) (string, error)

	// Get returns the entry with the given id, or ErrNotFound.
	Get(ctx context.Context, logID string) (*Entry, error)

	// Query returns entries matching the filter, oldest first.
	Query(ctx context.Context, q Query) ([]*Entry, error)

	// Update always fails: ErrImmutable for an existing id, ErrNotFound
	// otherwise.
	Update(ctx context.Context, logID string, entry *Entry) error

	// Delete always fails: ErrImmutable for an existing id, ErrNotFound
	// otherwise.
	Delete(ctx context.Context, logID string) error

	// Close releases resources.
	Close() error
}

// Validate checks an entry before append.
func Validate(entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("%w: nil audit entry", core.ErrValidation)
	}
	if entry.AgentID == "" {
		return fmt.Errorf("%w: audit entry requires agent_id", core.ErrValidation)
	}
	if entry.ActionType == "" {
		return fmt.Errorf("%w: audit entry requires action_type", core.ErrValidation)
	}
	if RetrievalInformed(entry.ActionType) && len(entry.SourceEmbeddingIDs) == 0 {
		return fmt.Errorf("%w: action %q requires at least one source embedding id",
			core.ErrValidation, entry.ActionType)
	}
	return nil
}
