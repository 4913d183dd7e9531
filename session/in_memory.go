package session

import (
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
)

// EvictionPolicy selects which sessions survive a global sweep.
type EvictionPolicy int

const (
	// EvictByCreation keeps the most recently created half. It ignores
	// access recency and is not an LRU.
	EvictByCreation EvictionPolicy = iota
	// EvictLeastRecentlyUsed keeps the most recently touched half.
	EvictLeastRecentlyUsed
)

const (
	// DefaultWindow is K when an agent configures no buffer window.
	DefaultWindow = 5
	// DefaultMaxSessions is the tracked-session cap that triggers a sweep.
	DefaultMaxSessions = 100
)

// Options configure an InMemoryStore.
type Options struct {
	// DefaultWindow is used for AddTurn calls with window <= 0.
	DefaultWindow int
	// MaxSessions triggers a sweep when exceeded.
	MaxSessions int
	// Eviction chooses the sweep policy.
	Eviction EvictionPolicy
	// Now is the clock used for turn timestamps.
	Now func() time.Time
	// Logger receives sweep diagnostics.
	Logger logging.Logger
}

type buffer struct {
	turns    []core.ChatTurn
	created  uint64
	accessed uint64
}

// InMemoryStore is a volatile core.ConversationBuffer. It is safe for
// concurrent access; History returns copies so callers cannot mutate
// internal state.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*buffer
	seq      uint64
	opts     Options
}

var _ core.ConversationBuffer = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty conversation buffer store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		DefaultWindow: DefaultWindow,
		MaxSessions:   DefaultMaxSessions,
		Eviction:      EvictByCreation,
		Now:           time.Now,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.DefaultWindow <= 0 {
		opts.DefaultWindow = DefaultWindow
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	return &InMemoryStore{sessions: make(map[string]*buffer), opts: opts}
}

// AddTurn appends a turn and prunes the session to its last 2*window turns.
// The first turn of an unknown session creates it, which may trigger a sweep.
func (s *InMemoryStore) AddTurn(sessionID string, role core.Role, content string, window int) {
	if window <= 0 {
		window = s.opts.DefaultWindow
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.sessions[sessionID]
	if !ok {
		b = s.createSessionLocked(sessionID)
	}
	s.seq++
	b.accessed = s.seq
	b.turns = append(b.turns, core.ChatTurn{Role: role, Content: content, Timestamp: s.opts.Now()})
	if limit := 2 * window; len(b.turns) > limit {
		kept := make([]core.ChatTurn, limit)
		copy(kept, b.turns[len(b.turns)-limit:])
		b.turns = kept
	}
}

// History returns the session's turns oldest first, or nil when unknown.
func (s *InMemoryStore) History(sessionID string) []core.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	s.seq++
	b.accessed = s.seq
	out := make([]core.ChatTurn, len(b.turns))
	copy(out, b.turns)
	return out
}

// Clear removes a session.
func (s *InMemoryStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len returns the number of tracked sessions.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep runs the eviction pass if the session count exceeds the cap and
// returns the number of evicted sessions.
func (s *InMemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// createSessionLocked allocates and stores a new buffer; caller must already
// hold the lock.
func (s *InMemoryStore) createSessionLocked(sessionID string) *buffer {
	s.seq++
	b := &buffer{created: s.seq, accessed: s.seq}
	s.sessions[sessionID] = b
	s.sweepLocked()
	return b
}

func (s *InMemoryStore) sweepLocked() int {
	if len(s.sessions) <= s.opts.MaxSessions {
		return 0
	}
	type entry struct {
		id  string
		key uint64
	}
	entries := make([]entry, 0, len(s.sessions))
	for id, b := range s.sessions {
		key := b.created
		if s.opts.Eviction == EvictLeastRecentlyUsed {
			key = b.accessed
		}
		entries = append(entries, entry{id: id, key: key})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key > entries[j].key })
	keep := s.opts.MaxSessions / 2
	if keep < 1 {
		keep = 1
	}
	evicted := 0
	for _, e := range entries[keep:] {
		delete(s.sessions, e.id)
		evicted++
	}
	s.opts.Logger.Info("session.sweep", "evicted", evicted, "remaining", len(s.sessions))
	return evicted
}
