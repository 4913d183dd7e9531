// Package prompt assembles system and full prompts from ordered sections and
// keeps exactly one guardrail block at the top of every system prompt.
//
// Section order is part of the contract. Builders never reorder sections and
// empty optional sections are omitted rather than rendered blank:
//
//	system prompt: [SYSTEM_IDENTITY] [AGENT_IDENTITY] [RULES] [AVAILABLE_TOOLS]
//	full prompt:   system, [CONVERSATION_HISTORY], [USER_QUERY], [TOOL_RESULT], [RESPONSE]
package prompt
