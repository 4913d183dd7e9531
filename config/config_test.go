package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func env(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// -------------------- Default Tests --------------------

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Session.DefaultWindow)
	assert.Equal(t, 30*time.Millisecond, cfg.Stream.ChunkDelay)
}

// -------------------- Load Tests --------------------

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "agentcore.yaml", `
server:
  addr: ":9090"
backend:
  provider: mock
embedding:
  provider: hash
  dimension: 64
stream:
  chunk_delay: 5ms
session:
  eviction: lru
default_model: llama3
agents:
  - id: "1"
    name: Helper
    buffer_window: 3
    tools:
      - name: calculator
      - name: shell
        active: false
        config:
          timeout: 2s
`)
	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "mock", cfg.Backend.Provider)
	assert.Equal(t, 64, cfg.Embedding.Dimension)
	assert.Equal(t, 5*time.Millisecond, cfg.Stream.ChunkDelay)
	assert.Equal(t, "lru", cfg.Session.Eviction)
	// untouched sections keep their defaults
	assert.Equal(t, 10, cfg.Engine.MaxConcurrent)

	profiles := cfg.Profiles()
	require.Len(t, profiles, 1)
	assert.Equal(t, "Helper", profiles[0].Name)
	assert.Equal(t, 3, profiles[0].BufferWindow)
	assert.Equal(t, []core.ToolBinding{
		{Name: "calculator", Active: true},
		{Name: "shell", Active: false, Config: map[string]any{"timeout": "2s"}},
	}, profiles[0].Tools)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, "bad.yaml", `
backend:
  provider: skynet
session:
  default_window: 0
agents:
  - name: anonymous
`)
	_, err := Load(path, "")
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "backend.provider")
	assert.Contains(t, err.Error(), "session.default_window")
	assert.Contains(t, err.Error(), "agents[0].id")

	_, err = Load(writeFile(t, "broken.yaml", "server: [oops"), "")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "AGENTCORE_SERVER_ADDR=:7070\nAGENTCORE_BACKEND_PROVIDER=mock\n")
	t.Setenv("AGENTCORE_BACKEND_PROVIDER", "anthropic")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	// the process environment wins over the file
	assert.Equal(t, "anthropic", cfg.Backend.Provider)
	_, set := os.LookupEnv("AGENTCORE_SERVER_ADDR")
	assert.False(t, set, "env file must not leak into the process environment")

	_, err = Load("", filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

// -------------------- Env Tests --------------------

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(env(map[string]string{
		"AGENTCORE_MAX_CONCURRENT":     "4",
		"AGENTCORE_RECALL_THRESHOLD":   "0.5",
		"AGENTCORE_PERSIST_MEMORY":     "false",
		"AGENTCORE_STREAM_CHUNK_DELAY": "0s",
		"OPENAI_API_KEY":               "sk-test",
	}))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrent)
	assert.Equal(t, 0.5, cfg.Engine.RecallThreshold)
	assert.False(t, cfg.Engine.PersistMemory)
	assert.Equal(t, time.Duration(0), cfg.Stream.ChunkDelay)
	assert.Equal(t, "sk-test", cfg.Backend.APIKey)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
}

func TestApplyEnv_AnthropicKey(t *testing.T) {
	cfg := Default()
	cfg.Backend.Provider = "anthropic"
	require.NoError(t, cfg.applyEnv(env(map[string]string{"ANTHROPIC_API_KEY": "ak"})))
	assert.Equal(t, "ak", cfg.Backend.APIKey)
}

func TestApplyEnv_BadValues(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(env(map[string]string{
		"AGENTCORE_MAX_CONCURRENT": "many",
		"AGENTCORE_BACKEND_TIMEOUT": "soon",
	}))
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "AGENTCORE_MAX_CONCURRENT")
	assert.Contains(t, err.Error(), "AGENTCORE_BACKEND_TIMEOUT")
}

func TestValidate_DuplicateAgents(t *testing.T) {
	cfg := Default()
	cfg.Agents = []AgentConfig{{ID: "a"}, {ID: "a", Tools: []ToolBindingConfig{{}}}}
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "duplicated")
	assert.Contains(t, err.Error(), "agents[1].tools[0].name")
}
