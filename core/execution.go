package core

import "time"

// ExecutionRequest is the input of the orchestration entrypoint.
type ExecutionRequest struct {
	AgentID       string `json:"agent_id"`
	SessionID     string `json:"session_id"`
	Query         string `json:"query"`
	ModelOverride string `json:"model_override,omitempty"`
}

// ExecutionResult is the outcome of one orchestration cycle. Failures are
// reported through Success=false and Error rather than a Go error.
type ExecutionResult struct {
	InvocationID string        `json:"invocation_id"`
	SessionID    string        `json:"session_id"`
	Success      bool          `json:"success"`
	Output       string        `json:"output,omitempty"`
	Latency      time.Duration `json:"latency"`
	ToolsUsed    []string      `json:"tools_used"`
	Model        string        `json:"model,omitempty"`
	Error        string        `json:"error,omitempty"`
	// Err carries the typed failure for errors.Is/As; it is not serialized.
	Err          error         `json:"-"`
}

// StreamEventType enumerates the ordered event kinds of the streaming channel.
type StreamEventType string

const (
	StreamStart    StreamEventType = "start"
	StreamChunk    StreamEventType = "chunk"
	StreamComplete StreamEventType = "complete"
	StreamError    StreamEventType = "error"
)

// StreamEvent is one message on the streaming channel. Progress is a
// percentage in [0, 100] and is only set on chunk events.
type StreamEvent struct {
	Type         StreamEventType `json:"type"`
	InvocationID string          `json:"invocation_id"`
	Text         string          `json:"text,omitempty"`
	Progress     float64         `json:"progress,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	Message      string          `json:"message,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}
