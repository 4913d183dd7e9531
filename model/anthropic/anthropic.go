// Package anthropic implements model.Backend on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/backenderr"
	"github.com/hupe1980/agentcore/internal/retry"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
)

// Options configure the Anthropic backend (model id, temperature, max tokens,
// API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	Retry       retry.Options
	Logger      logging.Logger
}

// Backend wraps the Anthropic client behind model.Backend.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

var _ model.Backend = (*Backend)(nil)

// NewBackend creates a backend using the official client.
func NewBackend(optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)
	return &Backend{client: &client, opts: opts}
}

// NewBackendFromClient creates a backend from an existing client.
func NewBackendFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
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
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
		Timeout:     120 * time.Second,
		Retry:       r,
		Logger:      logging.NoOpLogger{},
	}
}

// Generate sends prompt as a single user message.
func (b *Backend) Generate(ctx context.Context, prompt, modelName string) (string, error) {
	return b.Chat(ctx, []model.Message{{Role: core.RoleUser, Content: prompt}}, modelName)
}

// Chat implements model.Backend. System messages are lifted into the
// request's system blocks.
func (b *Backend) Chat(ctx context.Context, messages []model.Message, modelName string) (string, error) {
	m := b.opts.Model
	if modelName != "" {
		m = anthropic.Model(modelName)
	}
	params := anthropic.MessageNewParams{
		Model:       m,
		Messages:    buildMessages(messages),
		MaxTokens:   b.opts.MaxTokens,
		Temperature: anthropic.Float(b.opts.Temperature),
	}
	if system := extractSystem(messages); len(system) > 0 {
		params.System = system
	}

	start := time.Now()
	var text string
	err := retry.Do(ctx, b.opts.Retry, func(ctx context.Context) error {
		t, err := b.complete(ctx, params)
		if err != nil {
			b.opts.Logger.Debug("anthropic.attempt.failed", "model", string(m), "error", err.Error())
			return err
		}
		text = t
		return nil
	})
	if err != nil {
		return "", err
	}
	b.opts.Logger.Debug("anthropic.chat.done", "model", string(m), "duration", time.Since(start), "chars", len(text))
	return text, nil
}

func (b *Backend) complete(ctx context.Context, params anthropic.MessageNewParams) (string, error) {
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}
	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: %w: no text content", core.ErrGenerationBackend, core.ErrMalformedResponse)
	}
	return text, nil
}

// buildMessages converts chat messages, merging consecutive messages of the
// same role since the API requires alternating turns.
func buildMessages(messages []model.Message) []anthropic.MessageParam {
	var (
		out      []anthropic.MessageParam
		lastRole core.Role
		pending  []string
	)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		block := anthropic.NewTextBlock(strings.Join(pending, "\n\n"))
		if lastRole == core.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
		pending = nil
	}
	for _, m := range messages {
		if m.Role == core.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := m.Role
		if role != core.RoleAssistant {
			role = core.RoleUser
		}
		if role != lastRole {
			flush()
			lastRole = role
		}
		pending = append(pending, m.Content)
	}
	flush()
	return out
}

func extractSystem(messages []model.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range messages {
		if m.Role == core.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

// ListModels implements model.Backend.
func (b *Backend) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	err := retry.Do(ctx, b.opts.Retry, func(ctx context.Context) error {
		page, err := b.client.Models.List(ctx, anthropic.ModelListParams{})
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
	return model.Info{Provider: "anthropic", DefaultModel: string(b.opts.Model)}
}

func classify(err error) error {
	status := 0
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return backenderr.Classify(core.ErrGenerationBackend, status, err)
}
