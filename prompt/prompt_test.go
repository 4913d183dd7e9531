package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- Sections Tests --------------------

func TestSections_OrderAndSkipEmpty(t *testing.T) {
	var s Sections
	s.Add("A", "alpha").Add("B", "   ").AddRaw("C", "gamma\n").Add("D", "delta")

	assert.Equal(t, []string{"A", "C", "D"}, s.Names())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, "[A]\nalpha\n\ngamma\n\n[D]\ndelta", s.String())
}

// -------------------- Guardrails Tests --------------------

func TestApplyGuardrails_Idempotent(t *testing.T) {
	once := ApplyGuardrails("Hello")
	twice := ApplyGuardrails(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, 1, strings.Count(twice, "GUARDRAILS v"+GuardrailVersion+" BEGIN"))
	assert.Equal(t, 1, strings.Count(twice, guardrailEnd))
	assert.True(t, strings.HasSuffix(twice, "\n\nHello"))
}

func TestApplyGuardrails_ReplacesOlderVersions(t *testing.T) {
	old := NewGuardrails("0.9", "be nice")
	text := old.Apply("Body")
	require.Contains(t, text, "v0.9")

	fresh := ApplyGuardrails(text)
	assert.NotContains(t, fresh, "v0.9")
	assert.NotContains(t, fresh, "be nice")
	assert.True(t, strings.HasPrefix(fresh, DefaultGuardrails().Block()))
	assert.True(t, strings.HasSuffix(fresh, "Body"))
}

func TestApplyGuardrails_StrayMarkersAndEmpty(t *testing.T) {
	g := DefaultGuardrails()
	assert.Equal(t, g.Block(), g.Apply(""))
	assert.Equal(t, g.Block(), g.Apply(g.Block()))

	inputs := []string{
		"prefix\n=== GUARDRAILS END ===\nsuffix",
		"=== GUARDRAILS v2 BEGIN ===\nunterminated",
		"a\n\n" + g.Block() + "\n\nb",
		"\n\n\nleading newlines",
		"=== GUARDRAILS END ====== GUARDRAILS END ===",
		"x\n=== GUARDRAILS END ====== GUARDRAILS END ===",
		"=== GUARDRAILS v1 BEGIN ====== GUARDRAILS v2 BEGIN ===",
		"=== GUARDRAILS E=== GUARDRAILS END ===ND ===",
	}
	for _, in := range inputs {
		once := g.Apply(in)
		assert.Equal(t, once, g.Apply(once), in)
		assert.Equal(t, 1, strings.Count(once, "BEGIN ==="), in)
	}
}

// -------------------- System Prompt Tests --------------------

func TestBuildSystemPrompt_SectionOrder(t *testing.T) {
	b := NewBuilder()
	profile := core.AgentProfile{ID: "1", Name: "Ada", Description: "Math tutor.", Language: "German"}

	out, err := b.BuildSystemPrompt(profile, "gpt-4o", []ToolInfo{{Name: "calculator", Description: "does math"}})
	require.NoError(t, err)

	idx := func(s string) int { return strings.Index(out, s) }
	assert.Equal(t, 0, idx("=== GUARDRAILS"))
	assert.Less(t, idx(guardrailEnd), idx("[SYSTEM_IDENTITY]"))
	assert.Less(t, idx("[SYSTEM_IDENTITY]"), idx("[AGENT_IDENTITY]"))
	assert.Less(t, idx("[AGENT_IDENTITY]"), idx("[RULES]"))
	assert.Less(t, idx("[RULES]"), idx("[AVAILABLE_TOOLS]"))
	assert.Contains(t, out, "You are Ada. Math tutor.")
	assert.Contains(t, out, "Always answer in German.")
	assert.Contains(t, out, "- calculator: does math")

	again, err := b.BuildSystemPrompt(profile, "gpt-4o", []ToolInfo{{Name: "calculator", Description: "does math"}})
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestBuildSystemPrompt_NoToolsNoSection(t *testing.T) {
	out, err := NewBuilder().BuildSystemPrompt(core.AgentProfile{ID: "1", Name: "Ada"}, "m", nil)
	require.NoError(t, err)
	assert.NotContains(t, out, "[AVAILABLE_TOOLS]")
	assert.Contains(t, out, "Always answer in English.")
}

func TestBuildSystemPrompt_PersonaOverride(t *testing.T) {
	b := NewBuilder(func(o *Options) {
		o.Identity = Identity{Name: "Acme", Description: "the acme agent hub"}
		o.MaxSentences = 0
	})
	profile := core.AgentProfile{
		ID:           "7",
		Name:         "Bob",
		Description:  "ignored when a persona is set",
		Persona:      "I am {{.agent_name}}, powered by {{.model}}.",
		Instructions: "Reply in {{.language}} only.",
	}
	out, err := b.BuildSystemPrompt(profile, "claude", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "You are running on Acme, the acme agent hub.")
	assert.Contains(t, out, "I am Bob, powered by claude.\n\nReply in English only.")
	assert.NotContains(t, out, "ignored when a persona is set")
	assert.NotContains(t, out, "Be brief")

	_, err = b.BuildSystemPrompt(core.AgentProfile{ID: "8", Persona: "{{.oops"}, "m", nil)
	assert.Error(t, err)
}

// -------------------- Full Prompt Tests --------------------

func TestBuildFullPrompt_Order(t *testing.T) {
	now := time.Now()
	out := BuildFullPrompt(FullPromptInput{
		System: "SYSTEM TEXT",
		History: []core.ChatTurn{
			{Role: core.RoleUser, Content: "hi", Timestamp: now},
			{Role: core.RoleAssistant, Content: "hello", Timestamp: now},
		},
		Recalled: []string{"user likes tea"},
		Query:    "what is 2+2?",
		Tool:     &ToolOutput{Tool: "calculator", Result: "2+2 = 4"},
	})

	order := []string{"SYSTEM TEXT", "[CONVERSATION_HISTORY]", "[RELEVANT_MEMORY]", "- user likes tea", "User: hi", "Assistant: hello", "[USER_QUERY]", "what is 2+2?", "[TOOL_RESULT]", "2+2 = 4", "[RESPONSE]"}
	last := -1
	for _, marker := range order {
		i := strings.Index(out, marker)
		require.GreaterOrEqual(t, i, 0, marker)
		assert.Greater(t, i, last, marker)
		last = i
	}
	assert.True(t, strings.HasPrefix(out, "SYSTEM TEXT"))
}

func TestBuildFullPrompt_OptionalSections(t *testing.T) {
	out := BuildFullPrompt(FullPromptInput{System: "S", Query: "q"})
	assert.Equal(t, "S\n\n[USER_QUERY]\nq\n\n[RESPONSE]\nAnswer the user query above.", out)
}
