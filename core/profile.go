package core

import "context"

// AgentProfile is the read-only identity and configuration of an agent as
// stored in the relational store.
type AgentProfile struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Persona      string        `json:"persona,omitempty"`
	Instructions string        `json:"instructions,omitempty"`
	Model        string        `json:"model,omitempty"`
	Language     string        `json:"language,omitempty"`
	BufferWindow int           `json:"buffer_window,omitempty"`
	Tools        []ToolBinding `json:"tools,omitempty"`
}

// ActiveTools returns the bindings flagged active, preserving declared order.
func (p AgentProfile) ActiveTools() []ToolBinding {
	active := make([]ToolBinding, 0, len(p.Tools))
	for _, t := range p.Tools {
		if t.Active {
			active = append(active, t)
		}
	}
	return active
}

// ToolBinding attaches a catalog tool to an agent with optional config overrides.
type ToolBinding struct {
	Name   string         `json:"name"`
	Active bool           `json:"active"`
	Config map[string]any `json:"config,omitempty"`
}

// ProfileStore reads agent profiles and system settings. GetAgent returns
// ErrAgentNotFound for unknown ids; DefaultModel returns "" when unset.
type ProfileStore interface {
	GetAgent(ctx context.Context, agentID string) (AgentProfile, error)
	DefaultModel(ctx context.Context) (string, error)
}
