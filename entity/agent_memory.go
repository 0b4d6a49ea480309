package entity

import (
	"time"

	"github.com/google/uuid"
)

// MemoryType classifies what kind of fact an agent memory captures.
type MemoryType string

const (
	MemoryPreference MemoryType = "preference"
	MemoryOutcome    MemoryType = "outcome"
	MemoryContext    MemoryType = "context"
)

// AgentMemory is a time-decaying, confidence-scored fact the advisor agent
// has learned about a user. Expiry is lazy: an expired memory stays present
// until a reaper removes it, but Expired reports it as logically gone.
type AgentMemory struct {
	ID          string
	AgentID     string
	UserID      string
	MemoryType  MemoryType
	Content     string
	EmbeddingID string
	Confidence  int // [0, 100]
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

// NewAgentMemory creates an agent memory with a fresh id and clamped
// confidence. expiresAt may be nil for memories that never expire.
func NewAgentMemory(agentID, userID string, memType MemoryType, content string, confidence int, expiresAt *time.Time) *AgentMemory {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return &AgentMemory{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		UserID:     userID,
		MemoryType: memType,
		Content:    content,
		Confidence: confidence,
		CreatedAt:  time.Now(),
		ExpiresAt:  expiresAt,
	}
}

// Expired reports whether the memory is logically expired at now.
func (m *AgentMemory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// Record converts the memory into the generic index record the
// synchronizer operates on.
func (m *AgentMemory) Record() *Record {
	return &Record{
		ID:      m.ID,
		Type:    TypeAgentMemory,
		UserID:  m.UserID,
		Content: m.Content,
		Attributes: map[string]string{
			"memory_type": string(m.MemoryType),
			"agent_id":    m.AgentID,
		},
		EmbeddingID: m.EmbeddingID,
	}
}
