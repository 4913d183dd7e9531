// Package agentcore wires the orchestration core from a config.Config: the
// embedded vector memory, the profile store, the generation backend, the
// tool registry and the orchestrator, plus the HTTP server in front of them.
// Most applications only need:
//  1. config.Load to read the configuration
//  2. New to build an App
//  3. App.Orchestrator().ExecuteAgent / Stream, or App.Serve
package agentcore

import (
	"context"
	"errors"
	"fmt"
	"maps"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentcore/config"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/embedding"
	"github.com/hupe1980/agentcore/engine"
	"github.com/hupe1980/agentcore/internal/retry"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/memory"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/model/anthropic"
	"github.com/hupe1980/agentcore/model/openai"
	"github.com/hupe1980/agentcore/profile"
	"github.com/hupe1980/agentcore/server"
	"github.com/hupe1980/agentcore/session"
	"github.com/hupe1980/agentcore/tool"
)

// Options override components built from the config.
type Options struct {
	// Backend replaces the configured generation backend.
	Backend model.Backend
	// Embedder replaces the configured embedding backend.
	Embedder core.Embedder
	// Profiles replaces the configured profile store.
	Profiles core.ProfileStore
	// Callbacks are registered on the orchestrator.
	Callbacks []engine.Callback
	Logger    logging.Logger
}

// App aggregates the wired components.
type App struct {
	cfg     config.Config
	orch    *engine.Orchestrator
	memory  *memory.SQLiteStore
	metrics *engine.Metrics
	logger  logging.Logger
	closers []func() error
}

// New builds an App from cfg. Close releases its databases.
func New(cfg config.Config, optFns ...func(o *Options)) (*App, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)
	app := &App{cfg: cfg, logger: logger}

	embedder := opts.Embedder
	if embedder == nil {
		var err error
		if embedder, err = newEmbedder(cfg, logger); err != nil {
			return nil, err
		}
	}
	if c, ok := embedder.(*embedding.CachedEmbedder); ok {
		app.closers = append(app.closers, func() error { c.Close(); return nil })
	}

	store, err := memory.NewSQLiteStore(cfg.Storage.MemoryDB, embedder, func(o *memory.Options) { o.Logger = logger })
	if err != nil {
		return nil, app.closeWith(err)
	}
	app.memory = store
	app.closers = append(app.closers, store.Close)

	profiles := opts.Profiles
	if profiles == nil {
		if profiles, err = newProfiles(cfg, logger, app); err != nil {
			return nil, app.closeWith(err)
		}
	}

	backend := opts.Backend
	if backend == nil {
		if backend, err = newBackend(cfg, logger); err != nil {
			return nil, app.closeWith(err)
		}
	}

	if cfg.Server.EnableMetrics {
		app.metrics = engine.NewMetrics("agentcore")
	}
	callbacks := engine.NewCallbackManager()
	callbacks.Register(opts.Callbacks...)

	eviction := session.EvictByCreation
	if cfg.Session.Eviction == "lru" {
		eviction = session.EvictLeastRecentlyUsed
	}
	buffer := session.NewInMemoryStore(func(o *session.Options) {
		o.DefaultWindow = cfg.Session.DefaultWindow
		o.MaxSessions = cfg.Session.MaxSessions
		o.Eviction = eviction
		o.Logger = logger
	})

	app.orch = engine.New(profiles, backend, func(o *engine.Options) {
		o.Config = engine.Config{
			MaxConcurrent:     cfg.Engine.MaxConcurrent,
			DefaultWindow:     cfg.Session.DefaultWindow,
			FallbackModel:     cfg.Engine.FallbackModel,
			GenerationTimeout: cfg.Backend.Timeout,
			PersistMemory:     cfg.Engine.PersistMemory,
			RecallLimit:       cfg.Engine.RecallLimit,
			RecallThreshold:   cfg.Engine.RecallThreshold,
			RecallCandidates:  cfg.Engine.RecallCandidates,
			StreamChunkDelay:  cfg.Stream.ChunkDelay,
			StreamBufferSize:  cfg.Stream.BufferSize,
		}
		o.Buffer = buffer
		o.Memory = store
		o.Tools = tool.NewRegistry(Catalog(cfg.Tools), func(o *tool.RegistryOptions) { o.Logger = logger })
		o.Metrics = app.metrics
		o.Callbacks = callbacks
		o.Logger = logger
	})
	return app, nil
}

// Orchestrator returns the wired orchestrator.
func (a *App) Orchestrator() *engine.Orchestrator { return a.orch }

// Memory returns the vector memory store.
func (a *App) Memory() *memory.SQLiteStore { return a.memory }

// Metrics returns the metrics, or nil when disabled.
func (a *App) Metrics() *engine.Metrics { return a.metrics }

// Server builds the HTTP server over the app.
func (a *App) Server() *server.Server {
	return server.New(a.orch, func(o *server.Options) {
		o.Memory = a.memory
		o.Metrics = a.metrics
		o.RequestTimeout = a.cfg.Server.RequestTimeout
		o.ShutdownTimeout = a.cfg.Server.ShutdownTimeout
		o.Logger = a.logger
	})
}

// Serve runs the HTTP server on the configured address until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	return a.Server().ListenAndServe(ctx, a.cfg.Server.Addr)
}

// Close releases the databases and caches in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) closeWith(err error) error {
	if cerr := a.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

// Catalog applies tool overrides to the default catalog. Disabled tools stay
// in the catalog but are never loaded.
func Catalog(tc config.ToolsConfig) []tool.Descriptor {
	disabled := make(map[string]bool, len(tc.Disabled))
	for _, name := range tc.Disabled {
		disabled[name] = true
	}
	catalog := tool.DefaultCatalog()
	for i, d := range catalog {
		if disabled[d.Name] {
			catalog[i].Active = false
		}
		if o, ok := tc.Overrides[d.Name]; ok {
			merged := maps.Clone(d.DefaultConfig)
			if merged == nil {
				merged = map[string]any{}
			}
			maps.Copy(merged, o)
			catalog[i].DefaultConfig = merged
		}
	}
	return catalog
}

func retryOptions(cfg config.Config) retry.Options {
	r := retry.DefaultOptions()
	r.MaxAttempts = cfg.Retry.MaxAttempts
	r.InitialDelay = cfg.Retry.InitialDelay
	r.MaxDelay = cfg.Retry.MaxDelay
	r.Retryable = retry.RetryableIs(core.ErrBackendUnreachable)
	return r
}

func newEmbedder(cfg config.Config, logger logging.Logger) (core.Embedder, error) {
	var inner core.Embedder
	switch cfg.Embedding.Provider {
	case "hash":
		inner = embedding.NewHashEmbedder(cfg.Embedding.Dimension)
	case "openai":
		inner = embedding.NewOpenAIEmbedder(func(o *embedding.OpenAIOptions) {
			o.Model = cfg.Embedding.Model
			o.BaseURL = cfg.Embedding.BaseURL
			o.APIKey = cfg.Embedding.APIKey
			if cfg.Embedding.Timeout > 0 {
				o.Timeout = cfg.Embedding.Timeout
			}
			o.Retry = retryOptions(cfg)
			o.Logger = logger
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrInvalidConfig, cfg.Embedding.Provider)
	}
	if cfg.Embedding.CacheSize <= 0 {
		return inner, nil
	}
	return embedding.NewCachedEmbedder(inner, cfg.Embedding.CacheSize)
}

func newBackend(cfg config.Config, logger logging.Logger) (model.Backend, error) {
	b := cfg.Backend
	switch b.Provider {
	case "openai":
		return openai.NewBackend(func(o *openai.Options) {
			if b.Model != "" {
				o.Model = b.Model
			}
			o.Temperature = b.Temperature
			if b.MaxTokens > 0 {
				o.MaxCompletionTokens = b.MaxTokens
			}
			o.BaseURL = b.BaseURL
			o.APIKey = b.APIKey
			if b.Timeout > 0 {
				o.Timeout = b.Timeout
			}
			o.Retry = retryOptions(cfg)
			o.Logger = logger
		}), nil
	case "anthropic":
		return anthropic.NewBackend(func(o *anthropic.Options) {
			if b.Model != "" {
				o.Model = anthropicsdk.Model(b.Model)
			}
			o.Temperature = b.Temperature
			if b.MaxTokens > 0 {
				o.MaxTokens = b.MaxTokens
			}
			o.BaseURL = b.BaseURL
			o.APIKey = b.APIKey
			if b.Timeout > 0 {
				o.Timeout = b.Timeout
			}
			o.Retry = retryOptions(cfg)
			o.Logger = logger
		}), nil
	case "mock":
		if b.Model != "" {
			return model.NewMockBackend(b.Model), nil
		}
		return model.NewMockBackend(), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend provider %q", config.ErrInvalidConfig, b.Provider)
	}
}

func newProfiles(cfg config.Config, logger logging.Logger, app *App) (core.ProfileStore, error) {
	if cfg.Storage.ProfileDB != "" {
		s, err := profile.OpenSQLStore(cfg.Storage.ProfileDB, func(o *profile.SQLOptions) { o.Logger = logger })
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, s.Close)
		return s, nil
	}
	s := profile.NewInMemoryStore(cfg.Profiles()...)
	s.SetDefaultModel(cfg.DefaultModel)
	return s, nil
}
