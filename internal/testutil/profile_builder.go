package testutil

import (
	"github.com/hupe1980/agentcore/core"
)

// ProfileBuilder provides a fluent helper for constructing agent profiles.
// Example:
//
//	p := NewProfileBuilder("1").Name("Helper").Tool("calculator").Build()
//
// Chain only the parts you need; the name defaults to "Agent <id>".
type ProfileBuilder struct {
	p core.AgentProfile
}

// NewProfileBuilder creates a builder for a profile with the given id.
func NewProfileBuilder(id string) *ProfileBuilder {
	return &ProfileBuilder{p: core.AgentProfile{ID: id, Name: "Agent " + id}}
}

// Name sets the display name (chainable).
func (b *ProfileBuilder) Name(n string) *ProfileBuilder { b.p.Name = n; return b }

// Description sets the description (chainable).
func (b *ProfileBuilder) Description(d string) *ProfileBuilder { b.p.Description = d; return b }

// Persona sets the persona template (chainable).
func (b *ProfileBuilder) Persona(t string) *ProfileBuilder { b.p.Persona = t; return b }

// Instructions sets the extra instructions (chainable).
func (b *ProfileBuilder) Instructions(t string) *ProfileBuilder { b.p.Instructions = t; return b }

// Model pins the generation model (chainable).
func (b *ProfileBuilder) Model(m string) *ProfileBuilder { b.p.Model = m; return b }

// Language sets the answer language (chainable).
func (b *ProfileBuilder) Language(l string) *ProfileBuilder { b.p.Language = l; return b }

// Window sets the buffer window K (chainable).
func (b *ProfileBuilder) Window(k int) *ProfileBuilder { b.p.BufferWindow = k; return b }

// Tool appends an active binding (chainable).
func (b *ProfileBuilder) Tool(name string) *ProfileBuilder {
	return b.ToolWithConfig(name, nil)
}

// ToolWithConfig appends an active binding with config overrides (chainable).
func (b *ProfileBuilder) ToolWithConfig(name string, cfg map[string]any) *ProfileBuilder {
	b.p.Tools = append(b.p.Tools, core.ToolBinding{Name: name, Active: true, Config: cfg})
	return b
}

// InactiveTool appends a disabled binding (chainable).
func (b *ProfileBuilder) InactiveTool(name string) *ProfileBuilder {
	b.p.Tools = append(b.p.Tools, core.ToolBinding{Name: name})
	return b
}

// Build returns the profile.
func (b *ProfileBuilder) Build() core.AgentProfile {
	p := b.p
	p.Tools = append([]core.ToolBinding(nil), b.p.Tools...)
	return p
}
