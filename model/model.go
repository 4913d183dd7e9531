package model

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/agentcore/core"
)

// Message is one chat message sent to a backend.
type Message struct {
	Role    core.Role `json:"role"`
	Content string    `json:"content"`
}

// Info describes a backend implementation.
type Info struct {
	Provider     string `json:"provider"`
	DefaultModel string `json:"default_model"`
}

// Backend is the generation backend consumed by the orchestrator. An empty
// model name selects the backend default.
type Backend interface {
	Generate(ctx context.Context, prompt, model string) (string, error)
	Chat(ctx context.Context, messages []Message, model string) (string, error)
	ListModels(ctx context.Context) ([]string, error)
	Info() Info
}

// MessagesFromTurns converts buffered turns into chat messages.
func MessagesFromTurns(turns []core.ChatTurn) []Message {
	msgs := make([]Message, len(turns))
	for i, t := range turns {
		msgs[i] = Message{Role: t.Role, Content: t.Content}
	}
	return msgs
}

// Call records one request served by a MockBackend.
type Call struct {
	Model    string
	Prompt   string
	Messages []Message
}

// MockBackend is a lightweight in-memory Backend useful for tests and examples.
// Unknown prompts are answered with "Mock response to: <last line>".
type MockBackend struct {
	mu        sync.Mutex
	responses map[string]string
	models    []string
	err       error
	calls     []Call
}

// NewMockBackend constructs a MockBackend advertising models.
func NewMockBackend(models ...string) *MockBackend {
	if len(models) == 0 {
		models = []string{"mock-model"}
	}
	return &MockBackend{responses: make(map[string]string), models: models}
}

// AddResponse registers a canned completion for every prompt containing substr.
func (m *MockBackend) AddResponse(substr, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[substr] = response
}

// SetError makes every subsequent call fail with err; nil restores success.
func (m *MockBackend) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the recorded calls.
func (m *MockBackend) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Generate implements Backend.
func (m *MockBackend) Generate(ctx context.Context, prompt, model string) (string, error) {
	return m.answer(ctx, Call{Model: m.resolve(model), Prompt: prompt})
}

// Chat implements Backend; the conversation is answered like a prompt made of
// its message contents.
func (m *MockBackend) Chat(ctx context.Context, messages []Message, model string) (string, error) {
	parts := make([]string, len(messages))
	for i, msg := range messages {
		parts[i] = msg.Content
	}
	return m.answer(ctx, Call{Model: m.resolve(model), Prompt: strings.Join(parts, "\n"), Messages: messages})
}

func (m *MockBackend) answer(ctx context.Context, call Call) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrGenerationBackend, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if m.err != nil {
		return "", m.err
	}

	// longest matching key wins so overlapping registrations stay deterministic
	keys := make([]string, 0, len(m.responses))
	for k := range m.responses {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if strings.Contains(call.Prompt, k) {
			return m.responses[k], nil
		}
	}
	lines := strings.Split(strings.TrimSpace(call.Prompt), "\n")
	return fmt.Sprintf("Mock response to: %s", lines[len(lines)-1]), nil
}

func (m *MockBackend) resolve(model string) string {
	if model == "" {
		return m.models[0]
	}
	return model
}

// ListModels implements Backend.
func (m *MockBackend) ListModels(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.models...), nil
}

// Info implements Backend.
func (m *MockBackend) Info() Info {
	return Info{Provider: "mock", DefaultModel: m.models[0]}
}
