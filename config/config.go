// Package config loads the agentcore runtime configuration. Values are
// layered: built-in defaults, an optional YAML file, an optional .env file,
// then AGENTCORE_* environment variables. The result is validated once.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTCORE_"

// ErrInvalidConfig is returned by Validate and Load.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Backend   BackendConfig   `yaml:"backend"`
	Engine    EngineConfig    `yaml:"engine"`
	Session   SessionConfig   `yaml:"session"`
	Stream    StreamConfig    `yaml:"stream"`
	Tools     ToolsConfig     `yaml:"tools"`
	Logging   LoggingConfig   `yaml:"logging"`
	Retry     RetryConfig     `yaml:"retry"`
	// Agents declares profiles inline. They are used when Storage.ProfileDB
	// is empty.
	Agents []AgentConfig `yaml:"agents"`
	// DefaultModel is the system-wide model setting for inline profiles.
	DefaultModel string `yaml:"default_model"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	EnableMetrics   bool          `yaml:"enable_metrics"`
}

// StorageConfig locates the embedded databases.
type StorageConfig struct {
	// MemoryDB is the vector memory database path, or ":memory:".
	MemoryDB string `yaml:"memory_db"`
	// ProfileDB is the read-only profile database path. Empty uses Agents.
	ProfileDB string `yaml:"profile_db"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	// Provider is "openai" (any /v1 compatible endpoint) or "hash".
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	Dimension int           `yaml:"dimension"`
	// CacheSize is the number of cached vectors. Zero disables the cache.
	CacheSize int64 `yaml:"cache_size"`
}

// BackendConfig selects the generation backend.
type BackendConfig struct {
	// Provider is "openai", "anthropic" or "mock".
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int64         `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EngineConfig tunes the orchestrator.
type EngineConfig struct {
	MaxConcurrent   int     `yaml:"max_concurrent"`
	FallbackModel   string  `yaml:"fallback_model"`
	PersistMemory   bool    `yaml:"persist_memory"`
	RecallLimit     int     `yaml:"recall_limit"`
	RecallThreshold float64 `yaml:"recall_threshold"`

	// RecallCandidates is the search depth before the owner filter.
	// Zero means ten times RecallLimit.
	RecallCandidates int `yaml:"recall_candidates"`
}

// SessionConfig configures the conversation buffer.
type SessionConfig struct {
	DefaultWindow int `yaml:"default_window"`
	MaxSessions   int `yaml:"max_sessions"`
	// Eviction is "creation" or "lru".
	Eviction string `yaml:"eviction"`
}

// StreamConfig configures chunked streaming.
type StreamConfig struct {
	ChunkDelay time.Duration `yaml:"chunk_delay"`
	BufferSize int           `yaml:"buffer_size"`
}

// ToolsConfig overrides catalog defaults per tool name.
type ToolsConfig struct {
	Disabled  []string                  `yaml:"disabled"`
	Overrides map[string]map[string]any `yaml:"overrides"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// NewLogger builds the configured logger writing to w.
func (c LoggingConfig) NewLogger(w io.Writer) *logging.CoreLogger {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		level = logging.LogLevelInfo
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    c.Format,
		Output:    w,
		AddSource: c.AddSource,
	})
}

// RetryConfig bounds retries of unreachable backends.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// AgentConfig declares one profile inline.
type AgentConfig struct {
	ID           string              `yaml:"id"`
	Name         string              `yaml:"name"`
	Description  string              `yaml:"description"`
	Persona      string              `yaml:"persona"`
	Instructions string              `yaml:"instructions"`
	Model        string              `yaml:"model"`
	Language     string              `yaml:"language"`
	BufferWindow int                 `yaml:"buffer_window"`
	Tools        []ToolBindingConfig `yaml:"tools"`
}

// ToolBindingConfig binds a catalog tool to an inline profile. Active
// defaults to true.
type ToolBindingConfig struct {
	Name   string         `yaml:"name"`
	Active *bool          `yaml:"active"`
	Config map[string]any `yaml:"config"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			EnableMetrics:   true,
		},
		Storage: StorageConfig{MemoryDB: "data/memory.db"},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Timeout:   30 * time.Second,
			Dimension: 384,
			CacheSize: 10000,
		},
		Backend: BackendConfig{
			Provider:    "openai",
			Temperature: 0.7,
			MaxTokens:   4096,
			Timeout:     120 * time.Second,
		},
		Engine: EngineConfig{
			MaxConcurrent:   10,
			PersistMemory:   true,
			RecallLimit:     3,
			RecallThreshold: 0.35,
		},
		Session: SessionConfig{DefaultWindow: 5, MaxSessions: 100, Eviction: "creation"},
		Stream:  StreamConfig{ChunkDelay: 30 * time.Millisecond, BufferSize: 16},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty), the .env file at envFile (if present) and the environment.
func Load(path, envFile string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}
	lookup := os.LookupEnv
	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read env file %s: %w", envFile, err)
		}
		lookup = layered(os.LookupEnv, fileVars)
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

// layered prefers the process environment over values read from a .env file.
func layered(primary lookupFunc, fallback map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}

// applyEnv overrides fields from AGENTCORE_* variables. The generic
// OPENAI_API_KEY and ANTHROPIC_API_KEY are used when no explicit key is set.
func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("SERVER_ADDR", &c.Server.Addr)
	duration("SERVER_REQUEST_TIMEOUT", &c.Server.RequestTimeout)
	boolean("SERVER_ENABLE_METRICS", &c.Server.EnableMetrics)
	str("MEMORY_DB", &c.Storage.MemoryDB)
	str("PROFILE_DB", &c.Storage.ProfileDB)
	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	str("EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	str("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	integer("EMBEDDING_DIMENSION", &c.Embedding.Dimension)
	str("BACKEND_PROVIDER", &c.Backend.Provider)
	str("BACKEND_MODEL", &c.Backend.Model)
	str("BACKEND_BASE_URL", &c.Backend.BaseURL)
	str("BACKEND_API_KEY", &c.Backend.APIKey)
	float("BACKEND_TEMPERATURE", &c.Backend.Temperature)
	duration("BACKEND_TIMEOUT", &c.Backend.Timeout)
	integer("MAX_CONCURRENT", &c.Engine.MaxConcurrent)
	str("FALLBACK_MODEL", &c.Engine.FallbackModel)
	boolean("PERSIST_MEMORY", &c.Engine.PersistMemory)
	integer("RECALL_LIMIT", &c.Engine.RecallLimit)
	float("RECALL_THRESHOLD", &c.Engine.RecallThreshold)
	integer("RECALL_CANDIDATES", &c.Engine.RecallCandidates)
	integer("SESSION_WINDOW", &c.Session.DefaultWindow)
	integer("SESSION_MAX", &c.Session.MaxSessions)
	str("SESSION_EVICTION", &c.Session.Eviction)
	duration("STREAM_CHUNK_DELAY", &c.Stream.ChunkDelay)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	integer("RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	str("DEFAULT_MODEL", &c.DefaultModel)

	if c.Backend.APIKey == "" {
		switch c.Backend.Provider {
		case "openai":
			c.Backend.APIKey, _ = lookup("OPENAI_API_KEY")
		case "anthropic":
			c.Backend.APIKey, _ = lookup("ANTHROPIC_API_KEY")
		}
	}
	if c.Embedding.APIKey == "" && c.Embedding.Provider == "openai" {
		c.Embedding.APIKey, _ = lookup("OPENAI_API_KEY")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []string
	oneOf := func(field, v string, allowed ...string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Sprintf("%s must be one of %s, got %q", field, strings.Join(allowed, "|"), v))
	}
	positive := func(field string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got %d", field, v))
		}
	}

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Storage.MemoryDB == "" {
		errs = append(errs, "storage.memory_db is required")
	}
	oneOf("embedding.provider", c.Embedding.Provider, "openai", "hash")
	if c.Embedding.Provider == "hash" {
		positive("embedding.dimension", c.Embedding.Dimension)
	}
	oneOf("backend.provider", c.Backend.Provider, "openai", "anthropic", "mock")
	if c.Backend.Temperature < 0 || c.Backend.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("backend.temperature must be within [0, 2], got %g", c.Backend.Temperature))
	}
	if c.Engine.MaxConcurrent < 0 {
		errs = append(errs, "engine.max_concurrent must not be negative")
	}
	if c.Engine.RecallCandidates < 0 {
		errs = append(errs, fmt.Sprintf("engine.recall_candidates must not be negative, got %d", c.Engine.RecallCandidates))
	}
	if c.Engine.RecallThreshold < -1 || c.Engine.RecallThreshold > 1 {
		errs = append(errs, fmt.Sprintf("engine.recall_threshold must be within [-1, 1], got %g", c.Engine.RecallThreshold))
	}
	positive("session.default_window", c.Session.DefaultWindow)
	positive("session.max_sessions", c.Session.MaxSessions)
	oneOf("session.eviction", c.Session.Eviction, "creation", "lru")
	if c.Stream.ChunkDelay < 0 {
		errs = append(errs, "stream.chunk_delay must not be negative")
	}
	positive("retry.max_attempts", c.Retry.MaxAttempts)
	oneOf("logging.format", c.Logging.Format, "json", "text", "console")
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("logging.level: %v", err))
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		switch {
		case a.ID == "":
			errs = append(errs, fmt.Sprintf("agents[%d].id is required", i))
		case seen[a.ID]:
			errs = append(errs, fmt.Sprintf("agents[%d].id %q is duplicated", i, a.ID))
		}
		seen[a.ID] = true
		for j, t := range a.Tools {
			if t.Name == "" {
				errs = append(errs, fmt.Sprintf("agents[%d].tools[%d].name is required", i, j))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Profiles converts the inline agents into profiles in declared order.
func (c Config) Profiles() []core.AgentProfile {
	out := make([]core.AgentProfile, 0, len(c.Agents))
	for _, a := range c.Agents {
		p := core.AgentProfile{
			ID:           a.ID,
			Name:         a.Name,
			Description:  a.Description,
			Persona:      a.Persona,
			Instructions: a.Instructions,
			Model:        a.Model,
			Language:     a.Language,
			BufferWindow: a.BufferWindow,
		}
		if p.Name == "" {
			p.Name = a.ID
		}
		for _, t := range a.Tools {
			active := t.Active == nil || *t.Active
			p.Tools = append(p.Tools, core.ToolBinding{Name: t.Name, Active: active, Config: t.Config})
		}
		out = append(out, p)
	}
	return out
}
