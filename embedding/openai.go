package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/backenderr"
	"github.com/hupe1980/agentcore/internal/retry"
	"github.com/hupe1980/agentcore/logging"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIOptions configure the OpenAI compatible embedder.
type OpenAIOptions struct {
	// Model is the embedding model name.
	Model string
	// BaseURL points at any /v1 compatible endpoint, e.g.
	// http://localhost:11434/v1 for Ollama. Empty uses api.openai.com.
	BaseURL string
	// APIKey for the endpoint; local servers accept any value.
	APIKey string
	// Timeout bounds a single request.
	Timeout time.Duration
	// Retry controls retries of unreachable-backend failures.
	Retry retry.Options
	// Logger receives latency and failure records.
	Logger logging.Logger
}

// OpenAIEmbedder calls the embeddings endpoint of an OpenAI compatible API.
type OpenAIEmbedder struct {
	client *openai.Client
	opts   OpenAIOptions
}

// NewOpenAIEmbedder creates an embedder with its own client.
func NewOpenAIEmbedder(optFns ...func(o *OpenAIOptions)) *OpenAIEmbedder {
	opts := defaultOpenAIOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	clientOpts = append(clientOpts, option.WithMaxRetries(0))
	client := openai.NewClient(clientOpts...)
	return &OpenAIEmbedder{client: &client, opts: opts}
}

// NewOpenAIEmbedderFromClient creates an embedder from an existing client.
func NewOpenAIEmbedderFromClient(client *openai.Client, optFns ...func(o *OpenAIOptions)) *OpenAIEmbedder {
	opts := defaultOpenAIOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &OpenAIEmbedder{client: client, opts: opts}
}

func defaultOpenAIOptions() OpenAIOptions {
	r := retry.DefaultOptions()
	r.Retryable = retry.RetryableIs(core.ErrBackendUnreachable)
	return OpenAIOptions{
		Model:   "text-embedding-3-small",
		Timeout: 30 * time.Second,
		Retry:   r,
		Logger:  logging.NoOpLogger{},
	}
}

// Embed implements core.Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var vec []float32
	err := retry.Do(ctx, e.opts.Retry, func(ctx context.Context) error {
		v, err := e.embedOnce(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		e.opts.Logger.Warn("embedding.failed", "model", e.opts.Model, "duration", time.Since(start), "error", err.Error())
		return nil, err
	}
	e.opts.Logger.Debug("embedding.done", "model", e.opts.Model, "dimension", len(vec), "duration", time.Since(start))
	return vec, nil
}

func (e *OpenAIEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.opts.Model),
	})
	if err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, backenderr.Classify(core.ErrEmbeddingBackend, status, err)
	}
	if resp == nil || len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: %w: empty embedding", core.ErrEmbeddingBackend, core.ErrMalformedResponse)
	}
	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, x := range raw {
		vec[i] = float32(x)
	}
	return vec, nil
}
