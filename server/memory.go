package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/agentcore/core"
)

// memoryLister is implemented by stores that can enumerate records.
type memoryLister interface {
	List(ctx context.Context, scope core.SearchScope, limit int) ([]core.MemoryRecord, error)
}

// SearchRequest is the body of POST /v1/memory/search.
type SearchRequest struct {
	Query     string           `json:"query"`
	Scope     core.SearchScope `json:"scope"`
	Limit     int              `json:"limit"`
	Threshold float64          `json:"threshold"`
}

// UpdateRequest is the body of PUT /v1/memory/{memoryID}.
type UpdateRequest struct {
	Content string `json:"content"`
}

func (s *Server) requireMemory(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.memory == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "memory store not configured"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req core.AddMemoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.memory.Add(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.memory.Get(r.Context(), chi.URLParam(r, "memoryID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.memory.Update(r.Context(), chi.URLParam(r, "memoryID"), req.Content); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.memory.Delete(r.Context(), chi.URLParam(r, "memoryID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Query == "" {
		s.writeError(w, fmt.Errorf("%w: query is required", core.ErrInvalidRequest))
		return
	}
	results, err := s.memory.Search(r.Context(), req.Query, req.Scope, req.Limit, req.Threshold)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if results == nil {
		results = []core.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.memory.(memoryLister)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "memory store cannot list records"})
		return
	}
	q := r.URL.Query()
	scope := core.SearchScope{
		OwnerKind:  core.OwnerKind(q.Get("owner_kind")),
		OwnerID:    q.Get("owner_id"),
		MemoryType: q.Get("memory_type"),
		SessionID:  q.Get("session_id"),
	}
	if scope.OwnerKind == "" {
		scope.OwnerKind = core.OwnerAgent
	}
	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, fmt.Errorf("%w: invalid limit %q", core.ErrInvalidRequest, v))
			return
		}
		limit = n
	}
	recs, err := lister.List(r.Context(), scope, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []core.MemoryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": recs})
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.memory.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func asExecutionError(err error) (*core.ExecutionError, bool) {
	var execErr *core.ExecutionError
	ok := errors.As(err, &execErr)
	return execErr, ok
}
