// Package llm provides unified LLM provider interfaces and implementations.
package llm

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/roelfdiedericks/xai-go"

	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
)

// safeInt32 converts int to int32 with bounds checking to prevent overflow.
func safeInt32(n int) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	if n < math.MinInt32 {
		return math.MinInt32
	}
	return int32(n)
}

// XAIProvider implements the Provider interface for xAI's Grok API.
type XAIProvider struct {
	name         string
	config       ProviderConfig
	model        string
	maxTokens    int
	metricPrefix string

	// Client management (lazy initialization)
	client   *xai.Client
	clientMu sync.Mutex
}

// NewXAIProvider creates a new xAI provider from ProviderConfig.
// The gRPC client is created lazily on first use.
func NewXAIProvider(name string, cfg ProviderConfig) (*XAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("xai provider %q: API key not configured", name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("xai provider %q: model not configured", name)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	L_debug("xai provider created", "name", name, "model", cfg.Model, "maxTokens", maxTokens)

	return &XAIProvider{
		name:         name,
		config:       cfg,
		model:        cfg.Model,
		maxTokens:    maxTokens,
		metricPrefix: fmt.Sprintf("llm/%s/%s", name, cfg.Model),
	}, nil
}

func (p *XAIProvider) getClient() (*xai.Client, error) {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	cfg := xai.Config{
		APIKey: xai.NewSecureString(p.config.APIKey),
	}
	if p.config.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(p.config.TimeoutSeconds) * time.Second
	}

	client, err := xai.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create xai client: %w", err)
	}

	p.client = client
	L_debug("xai client: initialized", "name", p.name)
	return p.client, nil
}

func (p *XAIProvider) Name() string  { return p.name }
func (p *XAIProvider) Type() string  { return "xai" }
func (p *XAIProvider) Model() string { return p.model }

func (p *XAIProvider) MaxTokens() int { return p.maxTokens }

func (p *XAIProvider) IsAvailable() bool { return p.config.APIKey != "" }

// WithMaxTokens clones the provider with a different output limit.
// The clone shares the underlying client.
func (p *XAIProvider) WithMaxTokens(max int) Provider {
	clone := &XAIProvider{
		name:         p.name,
		config:       p.config,
		model:        p.model,
		maxTokens:    max,
		metricPrefix: p.metricPrefix,
		client:       p.client,
	}
	return clone
}

// Complete sends a non-streaming chat request.
func (p *XAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	client, err := p.getClient()
	if err != nil {
		return "", ErrUnavailable{Provider: p.name, Reason: err.Error()}
	}

	start := time.Now()
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 && req.MaxTokens < maxTokens {
		maxTokens = req.MaxTokens
	}

	chatReq := xai.NewChatRequest().
		WithModel(p.model).
		WithMaxTokens(safeInt32(maxTokens))

	if req.System != "" {
		chatReq.SystemMessage(xai.SystemContent{Text: req.System})
	}
	for _, m := range req.History {
		if m.Role == RoleAssistant {
			chatReq.AssistantMessage(xai.AssistantContent{Text: m.Content})
		} else {
			chatReq.UserMessage(xai.UserContent{Text: m.Content})
		}
	}
	chatReq.UserMessage(xai.UserContent{Text: req.Prompt})

	L_debug("xai: request started", "provider", p.name, "model", p.model, "messages", len(req.History)+1, "maxTokens", maxTokens)

	resp, err := client.CompleteChat(ctx, chatReq)
	if err != nil {
		MetricDuration(p.metricPrefix, "request", time.Since(start))
		MetricFailWithReason(p.metricPrefix, "request_status", string(Classify(err)))
		return "", fmt.Errorf("xai completion: %w", err)
	}

	L_debug("xai: response received",
		"provider", p.name,
		"inputTokens", resp.Usage.PromptTokens,
		"outputTokens", resp.Usage.CompletionTokens,
		"responseLen", len(resp.Content),
	)
	MetricAdd(p.metricPrefix, "input_tokens", int64(resp.Usage.PromptTokens))
	MetricAdd(p.metricPrefix, "output_tokens", int64(resp.Usage.CompletionTokens))
	MetricDuration(p.metricPrefix, "request", time.Since(start))
	MetricSuccess(p.metricPrefix, "request_status")

	return resp.Content, nil
}
