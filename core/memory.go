package core

import (
	"context"
	"time"
)

// OwnerKind discriminates agent-scoped from user-scoped memories. A record
// belongs to exactly one kind and is stored in that kind's table.
type OwnerKind string

const (
	// OwnerAgent marks memories owned by an agent.
	OwnerAgent OwnerKind = "agent"
	// OwnerUser marks memories owned by an individual user.
	OwnerUser OwnerKind = "user"
)

// Valid reports whether k is a known owner kind.
func (k OwnerKind) Valid() bool { return k == OwnerAgent || k == OwnerUser }

// MemoryRecord is a persisted piece of content with its embedding.
type MemoryRecord struct {
	ID         string         `json:"id"`
	OwnerKind  OwnerKind      `json:"owner_kind"`
	OwnerID    string         `json:"owner_id"`
	SessionID  string         `json:"session_id,omitempty"`
	Content    string         `json:"content"`
	Embedding  []float32      `json:"embedding,omitempty"`
	MemoryType string         `json:"memory_type"`
	Importance float64        `json:"importance"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// AddMemoryRequest carries the inputs of MemoryStore.Add.
type AddMemoryRequest struct {
	OwnerKind  OwnerKind      `json:"owner_kind"`
	OwnerID    string         `json:"owner_id"`
	SessionID  string         `json:"session_id,omitempty"`
	Content    string         `json:"content"`
	MemoryType string         `json:"memory_type,omitempty"`
	Importance float64        `json:"importance,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchScope selects the table to scan and the post-filters applied after
// ranking. Empty filter fields match everything.
type SearchScope struct {
	OwnerKind  OwnerKind `json:"owner_kind"`
	OwnerID    string    `json:"owner_id,omitempty"`
	MemoryType string    `json:"memory_type,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
}

// Matches reports whether a record passes the scope post-filters.
func (s SearchScope) Matches(r MemoryRecord) bool {
	if s.OwnerID != "" && r.OwnerID != s.OwnerID {
		return false
	}
	if s.MemoryType != "" && r.MemoryType != s.MemoryType {
		return false
	}
	if s.SessionID != "" && r.SessionID != s.SessionID {
		return false
	}
	return true
}

// SearchResult represents a retrieved memory record with its similarity score.
type SearchResult struct {
	Record MemoryRecord `json:"record"`
	Score  float64      `json:"score"`
}

// EmbeddingSelfTest reports the outcome of a round-trip through the embedder.
type EmbeddingSelfTest struct {
	OK        bool          `json:"ok"`
	Dimension int           `json:"dimension"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// MemoryStats summarizes the memory store.
type MemoryStats struct {
	AgentMemories int64             `json:"agent_memories"`
	UserMemories  int64             `json:"user_memories"`
	IndexEntries  int64             `json:"index_entries"`
	StorageBytes  int64             `json:"storage_bytes"`
	Embedding     EmbeddingSelfTest `json:"embedding"`
}

// MemoryStore persists memory records together with their similarity index
// entries and answers exhaustive similarity searches.
type MemoryStore interface {
	Add(ctx context.Context, req AddMemoryRequest) (string, error)
	Get(ctx context.Context, id string) (MemoryRecord, error)
	Search(ctx context.Context, query string, scope SearchScope, limit int, threshold float64) ([]SearchResult, error)
	Update(ctx context.Context, id, content string) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (MemoryStats, error)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
