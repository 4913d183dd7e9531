package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/retry"
	"github.com/hupe1980/agentcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const messageResponse = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
"content":[{"type":"text","text":"Hello "},{"type":"text","text":"there"}],
"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`

func newTestBackend(t *testing.T, h http.HandlerFunc) *Backend {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewBackend(func(o *Options) {
		o.BaseURL = srv.URL + "/"
		o.APIKey = "test"
		o.Retry = retry.Options{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			Multiplier:   2,
			Retryable:    retry.RetryableIs(core.ErrBackendUnreachable),
		}
	})
}

// -------------------- Anthropic Backend Tests --------------------

func TestBackend_ChatLiftsSystemAndMergesRoles(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		var body struct {
			Model  string `json:"model"`
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body.Model)
		require.Len(t, body.System, 1)
		assert.Equal(t, "be kind", body.System[0].Text)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "user", body.Messages[0].Role)
		assert.Equal(t, "a\n\nb", body.Messages[0].Content[0].Text)
		assert.Equal(t, "assistant", body.Messages[1].Role)
		_, _ = w.Write([]byte(messageResponse))
	})

	out, err := b.Chat(context.Background(), []model.Message{
		{Role: core.RoleSystem, Content: "be kind"},
		{Role: core.RoleUser, Content: "a"},
		{Role: core.RoleUser, Content: "b"},
		{Role: core.RoleAssistant, Content: "c"},
	}, "claude-test")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)
}

func TestBackend_OverloadedIsUnreachable(t *testing.T) {
	var calls atomic.Int32
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"down"}}`))
	})
	_, err := b.Generate(context.Background(), "hi", "")
	assert.ErrorIs(t, err, core.ErrBackendUnreachable)
	assert.ErrorIs(t, err, core.ErrGenerationBackend)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBackend_NoTextMalformed(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"msg_2","type":"message","role":"assistant","model":"m","content":[],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`))
	})
	_, err := b.Generate(context.Background(), "hi", "")
	assert.ErrorIs(t, err, core.ErrMalformedResponse)
}

func TestBackend_ListModels(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":"claude-a","type":"model","display_name":"A","created_at":"2024-10-22T00:00:00Z"}],"has_more":false,"first_id":"claude-a","last_id":"claude-a"}`))
	})
	models, err := b.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"claude-a"}, models)
}
