package embedding

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ core.Embedder = (*HashEmbedder)(nil)
	_ core.Embedder = (*OpenAIEmbedder)(nil)
	_ core.Embedder = (*CachedEmbedder)(nil)
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// -------------------- HashEmbedder Tests --------------------

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(context.Background(), "The quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "the QUICK brown fox!")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestHashEmbedder_EmptyIsZero(t *testing.T) {
	v, err := NewHashEmbedder(0).Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, v, 256)
	assert.Equal(t, 0.0, norm(v))
}

// -------------------- CachedEmbedder Tests --------------------

type countingEmbedder struct {
	calls atomic.Int32
	inner *HashEmbedder
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.inner.Embed(ctx, text)
}

func TestCachedEmbedder_HitsCache(t *testing.T) {
	inner := &countingEmbedder{inner: NewHashEmbedder(16)}
	c, err := NewCachedEmbedder(inner, 100)
	require.NoError(t, err)
	defer c.Close()

	first, err := c.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	c.Wait()

	second, err := c.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.calls.Load())

	// returned slices are independent copies
	second[0] = 42
	third, _ := c.Embed(context.Background(), "hello world")
	assert.NotEqual(t, float32(42), third[0])
}

// -------------------- OpenAIEmbedder Tests --------------------

func fastRetry() retry.Options {
	return retry.Options{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
		Retryable:    retry.RetryableIs(core.ErrBackendUnreachable),
	}
}

func TestOpenAIEmbedder_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25,0]}],"model":"nomic-embed-text","usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(func(o *OpenAIOptions) {
		o.BaseURL = srv.URL + "/v1/"
		o.APIKey = "test"
		o.Model = "nomic-embed-text"
		o.Retry = fastRetry()
	})
	v, err := e.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25, 0}, v)
}

func TestOpenAIEmbedder_Unreachable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(func(o *OpenAIOptions) {
		o.BaseURL = srv.URL + "/v1/"
		o.APIKey = "test"
		o.Retry = fastRetry()
	})
	_, err := e.Embed(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbeddingBackend)
	assert.ErrorIs(t, err, core.ErrBackendUnreachable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIEmbedder_EmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[],"model":"m","usage":{"prompt_tokens":0,"total_tokens":0}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(func(o *OpenAIOptions) {
		o.BaseURL = srv.URL + "/v1/"
		o.APIKey = "test"
		o.Retry = fastRetry()
	})
	_, err := e.Embed(context.Background(), "hi")
	assert.ErrorIs(t, err, core.ErrMalformedResponse)
	assert.ErrorIs(t, err, core.ErrEmbeddingBackend)
}
