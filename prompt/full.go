package prompt

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentcore/core"
)

// ToolOutput is the result of the single tool run for a request.
type ToolOutput struct {
	Tool   string
	Result string
}

// FullPromptInput holds everything rendered into the final prompt.
type FullPromptInput struct {
	System  string
	History []core.ChatTurn
	// Recalled memories are listed inside the history section.
	Recalled []string
	Query    string
	Tool     *ToolOutput
}

// BuildFullPrompt renders the prompt sent to the generation backend in the
// fixed order system, history, query, tool result, response instruction.
func BuildFullPrompt(in FullPromptInput) string {
	var s Sections
	s.AddRaw(SectionSystem, in.System)
	s.Add(SectionHistory, renderHistory(in.Recalled, in.History))
	s.Add(SectionQuery, in.Query)
	if in.Tool != nil {
		s.Add(SectionToolResult, fmt.Sprintf("Output of tool %q:\n%s", in.Tool.Tool, in.Tool.Result))
	}
	s.Add(SectionResponse, closing(in.Tool != nil))
	return s.String()
}

func renderHistory(recalled []string, turns []core.ChatTurn) string {
	var b strings.Builder
	if len(recalled) > 0 {
		b.WriteString("[" + SectionMemory + "]\n")
		for _, m := range recalled {
			b.WriteString("- ")
			b.WriteString(strings.TrimSpace(m))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	for _, t := range turns {
		b.WriteString(roleLabel(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func roleLabel(r core.Role) string {
	switch r {
	case core.RoleUser:
		return "User"
	case core.RoleAssistant:
		return "Assistant"
	case core.RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

func closing(withTool bool) string {
	if withTool {
		return "Answer the user query above. Use the tool result where it is relevant and mention when it reports an error."
	}
	return "Answer the user query above."
}
