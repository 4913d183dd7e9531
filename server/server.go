// Package server exposes the orchestrator, the memory store and the session
// buffer over HTTP. Streaming responses are delivered over a websocket or, for
// clients that cannot upgrade, as server-sent events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/engine"
	"github.com/hupe1980/agentcore/logging"
)

const maxBodyBytes = 1 << 20

// Options configure a Server.
type Options struct {
	// Memory backs the /v1/memory routes. Without it they answer 503.
	Memory core.MemoryStore
	// Metrics backs /metrics. Without it the route is not mounted.
	Metrics *engine.Metrics
	// RequestTimeout bounds non-streaming requests. Zero disables it.
	RequestTimeout time.Duration
	// WriteWait bounds a single websocket write.
	WriteWait time.Duration
	// ShutdownTimeout bounds graceful shutdown in ListenAndServe.
	ShutdownTimeout time.Duration
	// CheckOrigin decides websocket origin acceptance. Nil accepts same-origin only.
	CheckOrigin func(r *http.Request) bool
	Logger      logging.Logger
}

// Server is the HTTP front of an Orchestrator.
type Server struct {
	orch     *engine.Orchestrator
	memory   core.MemoryStore
	metrics  *engine.Metrics
	opts     Options
	logger   logging.Logger
	upgrader websocket.Upgrader
	router   chi.Router
}

// New creates a Server and mounts its routes.
func New(orch *engine.Orchestrator, optFns ...func(o *Options)) *Server {
	opts := Options{
		RequestTimeout:  2 * time.Minute,
		WriteWait:       10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	s := &Server{
		orch:    orch,
		memory:  opts.Memory,
		metrics: opts.Metrics,
		opts:    opts,
		logger:  logging.OrNoOp(opts.Logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		// streaming routes manage their own lifetime
		r.Get("/agents/{agentID}/stream", s.handleStreamWebSocket)
		r.Post("/agents/{agentID}/stream", s.handleStreamSSE)

		r.Group(func(r chi.Router) {
			if s.opts.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.opts.RequestTimeout))
			}
			r.Post("/agents/{agentID}/execute", s.handleExecute)
			r.Get("/models", s.handleModels)
			r.Delete("/sessions/{sessionID}", s.handleClearSession)

			r.Route("/memory", func(r chi.Router) {
				r.Use(s.requireMemory)
				r.Get("/", s.handleListMemories)
				r.Post("/", s.handleAddMemory)
				r.Post("/search", s.handleSearchMemories)
				r.Get("/stats", s.handleMemoryStats)
				r.Get("/{memoryID}", s.handleGetMemory)
				r.Put("/{memoryID}", s.handleUpdateMemory)
				r.Delete("/{memoryID}", s.handleDeleteMemory)
			})
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.listen", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.logger.Info("server.shutdown")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "active_invocations": s.orch.Active()})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	backend := s.orch.Backend()
	models, err := backend.ListModels(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	info := backend.Info()
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":      info.Provider,
		"default_model": info.DefaultModel,
		"models":        models,
	})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	s.orch.Buffer().Clear(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

// requestLogger logs one line per request on the server logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("server.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps typed failures onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrAgentNotFound), errors.Is(err, core.ErrMemoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, core.ErrBackendUnreachable),
		errors.Is(err, core.ErrMalformedResponse),
		errors.Is(err, core.ErrGenerationBackend),
		errors.Is(err, core.ErrEmbeddingBackend):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("server.error", "status", status, "error", err.Error())
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", core.ErrInvalidRequest, err)
	}
	return nil
}
