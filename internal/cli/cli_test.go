package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agentcore.yaml")
	content := `
storage:
  memory_db: ` + filepath.Join(dir, "memory.db") + `
embedding:
  provider: hash
  dimension: 32
backend:
  provider: mock
  model: cli-model
stream:
  chunk_delay: 0s
agents:
  - id: "1"
    name: Helper
    tools:
      - name: calculator
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	opts := &options{stdout: &out, stderr: io.Discard}
	argv := append([]string{"agentcore", "--env-file", ""}, args...)
	err := newCommand(opts).Run(context.Background(), argv)
	return out.String(), err
}

// -------------------- Command Tests --------------------

func TestRun(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "run", "1", "what", "is", "2+3")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Mock response to:"), out)

	out, err = run(t, "--config", cfg, "run", "--stream", "1", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "Mock response to:")

	_, err = run(t, "--config", cfg, "run", "999", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = run(t, "--config", cfg, "run", "1")
	assert.Error(t, err)
}

func TestModels(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "models")
	require.NoError(t, err)
	assert.Equal(t, "* cli-model\n", out)
}

func TestMemory(t *testing.T) {
	cfg := writeConfig(t)

	id, err := run(t, "--config", cfg, "memory", "add", "--owner-kind", "user", "--owner", "u1", "prefers", "dark", "roast")
	require.NoError(t, err)
	id = strings.TrimSpace(id)
	require.NotEmpty(t, id)

	out, err := run(t, "--config", cfg, "memory", "search", "--owner-kind", "user", "--threshold", "0", "dark", "roast")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "prefers dark roast")

	out, err = run(t, "--config", cfg, "memory", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"user_memories": 1`)

	_, err = run(t, "--config", cfg, "memory", "delete", id)
	require.NoError(t, err)
	out, err = run(t, "--config", cfg, "memory", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"user_memories": 0`)
}

func TestFlagOverrides(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t), "--backend", "skynet", "models")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.provider")
}
