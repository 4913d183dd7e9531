package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate(`You are {{.agent_name}} running on {{.model | upper}} & "friends"`, map[string]any{
		"agent_name": "Ada",
		"model":      "gpt-4o",
	})
	require.NoError(t, err)
	assert.Equal(t, `You are Ada running on GPT-4O & "friends"`, out)

	out, err = RenderTemplate(`Hi {{.missing}}{{default "there" .nothing}}`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", out)

	out, err = RenderTemplate(`Tools: {{list .tools}} ({{trim .note}})`, map[string]any{
		"tools": []string{"calculator", "datetime"},
		"note":  "  ok ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Tools: calculator, datetime (ok)", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.ErrorContains(t, err, "parse placeholders")
}
