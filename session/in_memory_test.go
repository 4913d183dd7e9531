package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/agentcore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- Buffer Tests --------------------

func TestInMemoryStore_KeepsLastTwoK(t *testing.T) {
	s := NewInMemoryStore()
	for i := 1; i <= 5; i++ {
		s.AddTurn("s1", core.RoleUser, fmt.Sprintf("turn %d", i), 2)
	}
	h := s.History("s1")
	require.Len(t, h, 4)
	for i, turn := range h {
		assert.Equal(t, fmt.Sprintf("turn %d", i+2), turn.Content)
	}
}

func TestInMemoryStore_NeverExceedsCap(t *testing.T) {
	s := NewInMemoryStore()
	for k := 1; k <= 4; k++ {
		id := fmt.Sprintf("s%d", k)
		for i := 0; i < 25; i++ {
			s.AddTurn(id, core.RoleAssistant, "x", k)
			assert.LessOrEqual(t, len(s.History(id)), 2*k)
		}
	}
}

func TestInMemoryStore_DefaultWindow(t *testing.T) {
	s := NewInMemoryStore()
	for i := 0; i < 20; i++ {
		s.AddTurn("s1", core.RoleUser, "x", 0)
	}
	assert.Len(t, s.History("s1"), 2*DefaultWindow)
}

func TestInMemoryStore_HistoryIsCopy(t *testing.T) {
	s := NewInMemoryStore()
	s.AddTurn("s1", core.RoleUser, "hello", 5)
	h := s.History("s1")
	h[0].Content = "mutated"
	assert.Equal(t, "hello", s.History("s1")[0].Content)
	assert.Nil(t, s.History("unknown"))
}

func TestInMemoryStore_Clear(t *testing.T) {
	s := NewInMemoryStore()
	s.AddTurn("s1", core.RoleUser, "hello", 5)
	s.Clear("s1")
	assert.Empty(t, s.History("s1"))
	assert.Equal(t, 0, s.Len())
}

// -------------------- Eviction Tests --------------------

func TestInMemoryStore_EvictsOldestCreatedHalf(t *testing.T) {
	s := NewInMemoryStore(func(o *Options) { o.MaxSessions = 10 })
	for i := 0; i < 10; i++ {
		s.AddTurn(fmt.Sprintf("s%02d", i), core.RoleUser, "x", 1)
	}
	// touching the oldest session does not save it under creation order
	s.AddTurn("s00", core.RoleUser, "again", 1)
	assert.Equal(t, 10, s.Len())

	s.AddTurn("s10", core.RoleUser, "x", 1)
	assert.Equal(t, 5, s.Len())
	assert.NotNil(t, s.History("s10"))
	for i := 6; i <= 9; i++ {
		assert.NotNil(t, s.History(fmt.Sprintf("s%02d", i)))
	}
	assert.Nil(t, s.History("s00"))
}

func TestInMemoryStore_LRUPolicy(t *testing.T) {
	s := NewInMemoryStore(func(o *Options) {
		o.MaxSessions = 4
		o.Eviction = EvictLeastRecentlyUsed
	})
	for i := 0; i < 4; i++ {
		s.AddTurn(fmt.Sprintf("s%d", i), core.RoleUser, "x", 1)
	}
	s.AddTurn("s0", core.RoleUser, "touch", 1)
	s.AddTurn("s4", core.RoleUser, "x", 1)

	assert.Equal(t, 2, s.Len())
	assert.NotNil(t, s.History("s0"))
	assert.NotNil(t, s.History("s4"))
}

func TestInMemoryStore_ConcurrentInsertsAndSweeps(t *testing.T) {
	s := NewInMemoryStore(func(o *Options) { o.MaxSessions = 20 })
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("g%d-%d", g, i)
				s.AddTurn(id, core.RoleUser, "x", 2)
				s.Sweep()
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 20)
	assert.Positive(t, s.Len())
}
