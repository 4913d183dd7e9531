package prompt

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/util"
	"github.com/hupe1980/agentcore/logging"
)

// Section names.
const (
	SectionSystemIdentity = "SYSTEM_IDENTITY"
	SectionAgentIdentity  = "AGENT_IDENTITY"
	SectionRules          = "RULES"
	SectionTools          = "AVAILABLE_TOOLS"
	SectionSystem         = "SYSTEM"
	SectionHistory        = "CONVERSATION_HISTORY"
	SectionMemory         = "RELEVANT_MEMORY"
	SectionQuery          = "USER_QUERY"
	SectionToolResult     = "TOOL_RESULT"
	SectionResponse       = "RESPONSE"
)

// Identity is the fixed platform branding rendered in [SYSTEM_IDENTITY].
type Identity struct {
	Name        string
	Description string
}

// DefaultIdentity returns the built-in branding.
func DefaultIdentity() Identity {
	return Identity{
		Name:        "AgentCore",
		Description: "a platform that runs specialised conversational agents with memory and sandboxed tools",
	}
}

// ToolInfo describes an active tool to the model.
type ToolInfo struct {
	Name        string
	Description string
}

// Options configure a Builder.
type Options struct {
	Identity   Identity
	Guardrails Guardrails
	// DefaultLanguage is used when the profile names none.
	DefaultLanguage string
	// MaxSentences is the brevity policy stated in [RULES]; zero disables it.
	MaxSentences int
	Logger       logging.Logger
}

// Builder renders system prompts. It is immutable and safe for concurrent use.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder.
func NewBuilder(optFns ...func(o *Options)) *Builder {
	opts := Options{
		Identity:        DefaultIdentity(),
		Guardrails:      DefaultGuardrails(),
		DefaultLanguage: "English",
		MaxSentences:    6,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Builder{opts: opts}
}

// Guardrails returns the guardrails applied by the builder.
func (b *Builder) Guardrails() Guardrails { return b.opts.Guardrails }

// BuildSystemPrompt renders the guarded system prompt for profile. model is
// the resolved model name exposed to persona templates as {{.model}}.
func (b *Builder) BuildSystemPrompt(profile core.AgentProfile, model string, tools []ToolInfo) (string, error) {
	vars := map[string]any{
		"agent_id":   profile.ID,
		"agent_name": profile.Name,
		"model":      model,
		"language":   b.language(profile),
	}

	agent, err := b.agentIdentity(profile, vars)
	if err != nil {
		return "", err
	}

	var s Sections
	s.Add(SectionSystemIdentity, fmt.Sprintf("You are running on %s, %s.", b.opts.Identity.Name, b.opts.Identity.Description))
	s.Add(SectionAgentIdentity, agent)
	s.Add(SectionRules, b.rules(profile))
	if len(tools) > 0 {
		s.Add(SectionTools, renderTools(tools))
	}

	b.opts.Logger.Debug("prompt.system.built", "agent_id", profile.ID, "sections", strings.Join(s.Names(), ","))
	return b.opts.Guardrails.Apply(s.String()), nil
}

func (b *Builder) language(p core.AgentProfile) string {
	if p.Language != "" {
		return p.Language
	}
	return b.opts.DefaultLanguage
}

// agentIdentity renders the persona when set, otherwise a name and
// description line, followed by the agent instructions.
func (b *Builder) agentIdentity(p core.AgentProfile, vars map[string]any) (string, error) {
	var parts []string
	if strings.TrimSpace(p.Persona) != "" {
		persona, err := util.RenderTemplate(p.Persona, vars)
		if err != nil {
			return "", fmt.Errorf("render persona for agent %s: %w", p.ID, err)
		}
		parts = append(parts, persona)
	} else {
		line := fmt.Sprintf("You are %s.", nonEmpty(p.Name, "an assistant"))
		if p.Description != "" {
			line += " " + strings.TrimSpace(p.Description)
		}
		parts = append(parts, line)
	}
	if strings.TrimSpace(p.Instructions) != "" {
		inst, err := util.RenderTemplate(p.Instructions, vars)
		if err != nil {
			return "", fmt.Errorf("render instructions for agent %s: %w", p.ID, err)
		}
		parts = append(parts, inst)
	}
	return strings.Join(parts, "\n\n"), nil
}

func (b *Builder) rules(p core.AgentProfile) string {
	rules := []string{fmt.Sprintf("- Always answer in %s.", b.language(p))}
	if b.opts.MaxSentences > 0 {
		rules = append(rules, fmt.Sprintf("- Be brief: at most %d sentences unless the user asks for more detail.", b.opts.MaxSentences))
	}
	rules = append(rules, "- Stay within your role and say so when a request is outside it.")
	return strings.Join(rules, "\n")
}

func renderTools(tools []ToolInfo) string {
	lines := make([]string, len(tools))
	for i, t := range tools {
		lines[i] = fmt.Sprintf("- %s: %s", t.Name, t.Description)
	}
	return strings.Join(lines, "\n")
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
