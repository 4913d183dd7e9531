// Package openai implements model.Backend on the OpenAI Chat Completions API.
// Any /v1 compatible endpoint (Ollama, vLLM, LM Studio) works through BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/backenderr"
	"github.com/hupe1980/agentcore/internal/retry"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI backend.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	BaseURL             string
	APIKey              string
	// Timeout bounds a single request.
	Timeout time.Duration
	Retry   retry.Options
	Logger  logging.Logger
}

// Backend wraps the OpenAI client behind model.Backend.
type Backend struct {
	client *openai.Client
	opts   Options
}

var _ model.Backend = (*Backend)(nil)

// NewBackend creates a backend with its own client. SDK level retries are
// disabled in favour of Options.Retry.
func NewBackend(optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
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
	return &Backend{client: &client, opts: opts}
}

// NewBackendFromClient creates a backend from an existing client.
func NewBackendFromClient(client *openai.Client, optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

func defaultOptions() Options {
	r := retry.DefaultOptions()
	r.Retryable = retry.RetryableIs(core.ErrBackendUnreachable)
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		Timeout:             120 * time.Second,
		Retry:               r,
		Logger:              logging.NoOpLogger{},
	}
}

// Generate sends prompt as a single user message.
func (b *Backend) Generate(ctx context.Context, prompt, modelName string) (string, error) {
	return b.Chat(ctx, []model.Message{{Role: core.RoleUser, Content: prompt}}, modelName)
}

// Chat implements model.Backend.
func (b *Backend) Chat(ctx context.Context, messages []model.Message, modelName string) (string, error) {
	if modelName == "" {
		modelName = b.opts.Model
	}
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(messages),
		Model:               modelName,
		Temperature:         openai.Float(b.opts.Temperature),
		MaxCompletionTokens: openai.Int(b.opts.MaxCompletionTokens),
	}

	start := time.Now()
	var text string
	err := retry.Do(ctx, b.opts.Retry, func(ctx context.Context) error {
		t, err := b.complete(ctx, params)
		if err != nil {
			b.opts.Logger.Debug("openai.attempt.failed", "model", modelName, "error", err.Error())
			return err
		}
		text = t
		return nil
	})
	if err != nil {
		return "", err
	}
	b.opts.Logger.Debug("openai.chat.done", "model", modelName, "duration", time.Since(start), "chars", len(text))
	return text, nil
}

func (b *Backend) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}
	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %w: no choices returned", core.ErrGenerationBackend, core.ErrMalformedResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: %w: empty completion", core.ErrGenerationBackend, core.ErrMalformedResponse)
	}
	return text, nil
}

func buildMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// ListModels implements model.Backend.
func (b *Backend) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	err := retry.Do(ctx, b.opts.Retry, func(ctx context.Context) error {
		page, err := b.client.Models.List(ctx)
		if err != nil {
			return classify(err)
		}
		names = names[:0]
		for _, m := range page.Data {
			names = append(names, m.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Info implements model.Backend.
func (b *Backend) Info() model.Info {
	return model.Info{Provider: "openai", DefaultModel: b.opts.Model}
}

func classify(err error) error {
	status := 0
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return backenderr.Classify(core.ErrGenerationBackend, status, err)
}
