package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hupe1980/agentcore/core"
)

// ExecuteRequest is the body of the execute and stream routes. The agent id
// comes from the path.
type ExecuteRequest struct {
	SessionID     string `json:"session_id"`
	Query         string `json:"query"`
	ModelOverride string `json:"model_override,omitempty"`
}

func (e ExecuteRequest) toCore(agentID string) core.ExecutionRequest {
	return core.ExecutionRequest{
		AgentID:       agentID,
		SessionID:     e.SessionID,
		Query:         e.Query,
		ModelOverride: e.ModelOverride,
	}
}

// executeResponse adds the failure stage to the serialized result.
type executeResponse struct {
	core.ExecutionResult
	LatencyMS int64  `json:"latency_ms"`
	Stage     string `json:"stage,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body ExecuteRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	res := s.orch.ExecuteAgent(r.Context(), body.toCore(chi.URLParam(r, "agentID")))

	out := executeResponse{ExecutionResult: res, LatencyMS: res.Latency.Milliseconds()}
	status := http.StatusOK
	if !res.Success {
		status = statusFor(res.Err)
		if execErr, ok := asExecutionError(res.Err); ok {
			out.Stage = execErr.Stage
		}
	}
	writeJSON(w, status, out)
}

func (s *Server) handleStreamSSE(w http.ResponseWriter, r *http.Request) {
	var body ExecuteRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, fmt.Errorf("streaming unsupported by response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.orch.Stream(r.Context(), body.toCore(chi.URLParam(r, "agentID"))) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Warn("server.sse.encode_failed", "error", err.Error())
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
			// client went away; request context cancellation stops the stream
			return
		}
		flusher.Flush()
	}
}

// wsCommand is a client message on the websocket. A command without a type
// starts an execution; "cancel" aborts the running one.
type wsCommand struct {
	Type string `json:"type,omitempty"`
	ExecuteRequest
}

func (s *Server) handleStreamWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.logger.Warn("server.ws.upgrade_failed", "error", err.Error())
		return
	}
	defer conn.Close()
	agentID := chi.URLParam(r, "agentID")

	var first wsCommand
	if err := conn.ReadJSON(&first); err != nil {
		s.closeWS(conn, websocket.CloseUnsupportedData, "expected execute request")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the reader owns all reads; any read error or cancel command stops the run
	go func() {
		defer cancel()
		for {
			var cmd wsCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if cmd.Type == "cancel" {
				return
			}
		}
	}()

	for ev := range s.orch.Stream(ctx, first.toCore(agentID)) {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Warn("server.ws.write_failed", "error", err.Error())
			cancel()
			return
		}
	}
	s.closeWS(conn, websocket.CloseNormalClosure, "")
}

func (s *Server) closeWS(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteWait))
}
