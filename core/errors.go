package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBackendUnreachable is returned when an embedding or generation backend
	// cannot be reached (network failure, timeout, 5xx). It is the only error
	// class retried automatically.
	ErrBackendUnreachable = errors.New("backend unreachable")

	// ErrMalformedResponse is returned when a backend answers with a payload
	// that cannot be interpreted (no choices, non-vector embedding, ...).
	ErrMalformedResponse = errors.New("malformed backend response")

	// ErrEmbeddingBackend wraps every failure of the embedding backend.
	ErrEmbeddingBackend = errors.New("embedding backend error")

	// ErrGenerationBackend wraps every failure of the generation backend.
	ErrGenerationBackend = errors.New("generation backend error")

	// ErrInvalidRequest is returned for requests missing required fields.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAgentNotFound is returned when no profile exists for an agent id.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrToolExecution marks a tool failure. It never leaves the tool boundary
	// as an error value; executables render it as "Error: ..." text.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrStorage wraps failures of the embedded memory store.
	ErrStorage = errors.New("storage error")

	// ErrMemoryNotFound is returned when a memory id does not exist.
	ErrMemoryNotFound = errors.New("memory not found")

	// ErrDimensionMismatch is returned when an embedding does not match the
	// dimension already stored for the embedding model.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ExecutionError describes a failed orchestration step. Latency is measured
// from the start of the call up to the failure.
type ExecutionError struct {
	Stage   string        `json:"stage"`
	Model   string        `json:"model,omitempty"`
	Latency time.Duration `json:"latency"`
	Err     error         `json:"-"`
}

func (e *ExecutionError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("execution failed at %s (model %s): %v", e.Stage, e.Model, e.Err)
	}
	return fmt.Sprintf("execution failed at %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ExecutionError) Unwrap() error { return e.Err }
