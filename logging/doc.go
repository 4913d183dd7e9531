// Package logging provides a minimal logging interface and adapters for agentcore.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the orchestrator, stores and tools use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - CoreLogger with contextual helpers (component, session, agent)
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "console", false)
//	orch := engine.New(profiles, backend, engine.WithLogger(logger))
//
// Three output formats are supported: "json" and "text" use log/slog handlers,
// "console" uses a colored clog handler meant for local development.
package logging
