// Package llm provides unified LLM provider interfaces and implementations.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
)

// AnthropicProvider implements the Provider interface for Anthropic's Claude API.
type AnthropicProvider struct {
	name         string
	client       *anthropic.Client
	model        string
	maxTokens    int
	metricPrefix string

	mu        sync.RWMutex
	available bool
}

// NewAnthropicProvider creates a new Anthropic provider from ProviderConfig.
func NewAnthropicProvider(name string, cfg ProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic provider %q: API key not configured", name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic provider %q: model not configured", name)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	L_debug("anthropic provider created", "name", name, "model", cfg.Model, "maxTokens", maxTokens)

	return &AnthropicProvider{
		name:         name,
		client:       &client,
		model:        cfg.Model,
		maxTokens:    maxTokens,
		metricPrefix: fmt.Sprintf("llm/%s/%s", name, cfg.Model),
		available:    true,
	}, nil
}

func (p *AnthropicProvider) Name() string  { return p.name }
func (p *AnthropicProvider) Type() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

func (p *AnthropicProvider) MaxTokens() int { return p.maxTokens }

func (p *AnthropicProvider) IsAvailable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.available
}

// WithMaxTokens clones the provider with a different output limit.
func (p *AnthropicProvider) WithMaxTokens(max int) Provider {
	clone := *p
	clone.maxTokens = max
	return &clone
}

// Complete sends a non-streaming messages request.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !p.IsAvailable() {
		return "", ErrUnavailable{Provider: p.name}
	}

	start := time.Now()
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, m := range req.History {
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)))

	maxTokens := p.maxTokens
	if req.MaxTokens > 0 && req.MaxTokens < maxTokens {
		maxTokens = req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	L_debug("anthropic: request started", "provider", p.name, "model", p.model, "messages", len(messages), "maxTokens", maxTokens)

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		MetricDuration(p.metricPrefix, "request", time.Since(start))
		MetricFailWithReason(p.metricPrefix, "request_status", string(Classify(err)))
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	L_debug("anthropic: response received",
		"provider", p.name,
		"stopReason", string(message.StopReason),
		"inputTokens", message.Usage.InputTokens,
		"outputTokens", message.Usage.OutputTokens,
	)
	MetricAdd(p.metricPrefix, "input_tokens", message.Usage.InputTokens)
	MetricAdd(p.metricPrefix, "output_tokens", message.Usage.OutputTokens)
	MetricDuration(p.metricPrefix, "request", time.Since(start))
	MetricSuccess(p.metricPrefix, "request_status")

	return text.String(), nil
}
