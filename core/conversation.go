package core

import "time"

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatTurn is one entry of a session conversation buffer.
type ChatTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationBuffer is the bounded per-session history used by the
// orchestrator. Window is the agent-configured K; implementations keep at most
// 2*K turns per session.
type ConversationBuffer interface {
	AddTurn(sessionID string, role Role, content string, window int)
	History(sessionID string) []ChatTurn
	Clear(sessionID string)
}
