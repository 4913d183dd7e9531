package profile

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentcore/core"
)

// InMemoryStore is a thread-safe core.ProfileStore backed by a map.
type InMemoryStore struct {
	mu           sync.RWMutex
	agents       map[string]core.AgentProfile
	defaultModel string
}

var _ core.ProfileStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates a store holding profiles.
func NewInMemoryStore(profiles ...core.AgentProfile) *InMemoryStore {
	s := &InMemoryStore{agents: make(map[string]core.AgentProfile, len(profiles))}
	for _, p := range profiles {
		s.Put(p)
	}
	return s
}

// Put inserts or replaces a profile.
func (s *InMemoryStore) Put(p core.AgentProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[p.ID] = cloneProfile(p)
}

// SetDefaultModel sets the system-wide default model.
func (s *InMemoryStore) SetDefaultModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultModel = model
}

// GetAgent implements core.ProfileStore.
func (s *InMemoryStore) GetAgent(_ context.Context, agentID string) (core.AgentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.agents[agentID]
	if !ok {
		return core.AgentProfile{}, fmt.Errorf("%w: %s", core.ErrAgentNotFound, agentID)
	}
	return cloneProfile(p), nil
}

// DefaultModel implements core.ProfileStore.
func (s *InMemoryStore) DefaultModel(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultModel, nil
}

// IDs returns the stored agent ids in sorted order.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func cloneProfile(p core.AgentProfile) core.AgentProfile {
	out := p
	if p.Tools != nil {
		out.Tools = make([]core.ToolBinding, len(p.Tools))
		for i, b := range p.Tools {
			out.Tools[i] = b
			if b.Config != nil {
				cfg := make(map[string]any, len(b.Config))
				for k, v := range b.Config {
					cfg[k] = v
				}
				out.Tools[i].Config = cfg
			}
		}
	}
	return out
}
