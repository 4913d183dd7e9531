package testutil

import (
	"strconv"
	"time"

	"github.com/hupe1980/agentcore/core"
)

// TurnBuilder constructs ordered chat turns with increasing timestamps.
// Example:
//
//	turns := NewTurnBuilder().User("hi").Assistant("hello").Build()
type TurnBuilder struct {
	at    time.Time
	turns []core.ChatTurn
}

// NewTurnBuilder creates a builder starting at a fixed instant.
func NewTurnBuilder() *TurnBuilder {
	return &TurnBuilder{at: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// User appends a user turn (chainable).
func (b *TurnBuilder) User(content string) *TurnBuilder { return b.add(core.RoleUser, content) }

// Assistant appends an assistant turn (chainable).
func (b *TurnBuilder) Assistant(content string) *TurnBuilder {
	return b.add(core.RoleAssistant, content)
}

// System appends a system turn (chainable).
func (b *TurnBuilder) System(content string) *TurnBuilder { return b.add(core.RoleSystem, content) }

// Exchanges appends n user/assistant pairs numbered from 1 (chainable).
func (b *TurnBuilder) Exchanges(n int) *TurnBuilder {
	for i := 1; i <= n; i++ {
		b.User(fmtTurn("q", i)).Assistant(fmtTurn("a", i))
	}
	return b
}

func (b *TurnBuilder) add(role core.Role, content string) *TurnBuilder {
	b.turns = append(b.turns, core.ChatTurn{Role: role, Content: content, Timestamp: b.at})
	b.at = b.at.Add(time.Second)
	return b
}

// Build returns a copy of the turns.
func (b *TurnBuilder) Build() []core.ChatTurn {
	return append([]core.ChatTurn(nil), b.turns...)
}

// Load appends the turns to sessionID of buf with window k.
func (b *TurnBuilder) Load(buf core.ConversationBuffer, sessionID string, k int) {
	for _, t := range b.turns {
		buf.AddTurn(sessionID, t.Role, t.Content, k)
	}
}

func fmtTurn(prefix string, i int) string {
	return prefix + strconv.Itoa(i)
}
