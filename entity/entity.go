package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Type tags the kind of content-bearing record being indexed.
type Type string

const (
	TypeProfile      Type = "profile"
	TypeGoal         Type = "goal"
	TypeAsk          Type = "ask"
	TypePost         Type = "post"
	TypeIntroduction Type = "introduction"
	TypeOutcome      Type = "outcome"
	TypeAgentMemory  Type = "agent_memory"
)

// Valid reports whether t is a known entity type.
func (t Type) Valid() bool {
	switch t {
	case TypeProfile, TypeGoal, TypeAsk, TypePost, TypeIntroduction, TypeOutcome, TypeAgentMemory:
		return true
	}
	return false
}

// EmbeddingStatus communicates index freshness back to the CRUD layer.
type EmbeddingStatus string

const (
	StatusPending    EmbeddingStatus = "pending"
	StatusProcessing EmbeddingStatus = "processing"
	StatusCompleted  EmbeddingStatus = "completed"
	StatusFailed     EmbeddingStatus = "failed"
)

// Record is the index-facing view of a content-bearing entity. The CRUD
// layer owns persistence of the record; this core mutates only the
// embedding fields, and only through the synchronizer.
type Record struct {
	ID      string
	Type    Type
	UserID  string
	Content string

	// Attributes carries type-specific fields the embedding formatter
	// uses (e.g. a goal's category and urgency). Keys are field names
	// as the CRUD layer spells them.
	Attributes map[string]string

	// EmbeddingID is a weak reference to the vector in the vector store.
	// Empty until the first successful sync.
	EmbeddingID        string
	EmbeddingUpdatedAt time.Time
	EmbeddingStatus    EmbeddingStatus

	// Version is the CRUD layer's optimistic concurrency token for this
	// record (monotonic per update). The synchronizer's final write-back
	// is conditional on it.
	Version int64

	UpdatedAt time.Time
}

// Ref identifies a record without carrying its content.
type Ref struct {
	Type Type
	ID   string
}

func (r Ref) String() string { return string(r.Type) + "_" + r.ID }

// Ref returns the record's identity.
func (r *Record) Ref() Ref { return Ref{Type: r.Type, ID: r.ID} }

// EmbeddingText derives the text that gets embedded for a record. Each
// type has its own formatter so that semantically load-bearing fields
// (goal category, ask urgency) shape the vector, not just raw content.
func EmbeddingText(r *Record) string {
	attr := func(k string) string { return r.Attributes[k] }
	switch r.Type {
	case TypeGoal:
		return strings.TrimSpace(fmt.Sprintf("Goal [%s]: %s", attr("goal_type"), r.Content))
	case TypeAsk:
		return strings.TrimSpace(fmt.Sprintf("Ask [%s urgency]: %s", attr("urgency"), r.Content))
	case TypePost:
		return strings.TrimSpace(fmt.Sprintf("Post [%s]: %s", attr("post_type"), r.Content))
	case TypeProfile:
		return strings.TrimSpace(fmt.Sprintf("Founder profile: %s. Industry: %s. Stage: %s",
			r.Content, attr("industry"), attr("stage")))
	case TypeIntroduction:
		return strings.TrimSpace(fmt.Sprintf("Introduction: %s", r.Content))
	case TypeOutcome:
		return strings.TrimSpace(fmt.Sprintf("Outcome [%s]: %s", attr("outcome_type"), r.Content))
	case TypeAgentMemory:
		return strings.TrimSpace(fmt.Sprintf("Memory [%s]: %s", attr("memory_type"), r.Content))
	default:
		return strings.TrimSpace(r.Content)
	}
}

// formatterFields lists, per type, the fields whose change requires a
// re-embed. Changes to anything else (priority, status, visibility) must
// not trigger a redundant embedding call.
var formatterFields = map[Type][]string{
	TypeGoal:         {"content", "goal_type"},
	TypeAsk:          {"content", "urgency"},
	TypePost:         {"content", "post_type"},
	TypeProfile:      {"content", "industry", "stage"},
	TypeIntroduction: {"content"},
	TypeOutcome:      {"content", "outcome_type"},
	TypeAgentMemory:  {"content", "memory_type"},
}

// NeedsReembed reports whether any of the changed fields feed the
// embedding formatter for the record's type.
func NeedsReembed(t Type, changedFields []string) bool {
	relevant, ok := formatterFields[t]
	if !ok {
		// Unknown type: re-embed on any change rather than go stale.
		return len(changedFields) > 0
	}
	for _, changed := range changedFields {
		for _, f := range relevant {
			if changed == f {
				return true
			}
		}
	}
	return false
}

// ContentHash hashes the formatter output so an update that leaves the
// embedding text unchanged can skip the provider call entirely.
func ContentHash(r *Record) string {
	sum := sha256.Sum256([]byte(EmbeddingText(r)))
	return hex.EncodeToString(sum[:])
}
