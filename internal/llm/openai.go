// Package llm provides unified LLM provider interfaces and implementations.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
)

// OpenAIProvider implements the Provider interface for OpenAI-compatible APIs.
// Works with OpenAI, OpenRouter, LM Studio, and other compatible APIs via BaseURL.
type OpenAIProvider struct {
	name         string
	client       *openai.Client
	model        string
	maxTokens    int
	baseURL      string
	metricPrefix string // e.g., "llm/openai/gpt-4o"

	mu        sync.RWMutex
	available bool
}

// NewOpenAIProvider creates a new OpenAI-compatible provider from ProviderConfig.
// API key is optional for local servers like LM Studio.
func NewOpenAIProvider(name string, cfg ProviderConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai provider %q: model not configured", name)
	}

	// API key is optional for local servers (LM Studio, LocalAI, etc.)
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "not-needed"
	}

	config := openai.DefaultConfig(apiKey)
	baseURL := cfg.BaseURL
	if baseURL != "" {
		// OpenAI-compatible APIs expect the /v1 suffix
		if !strings.HasSuffix(baseURL, "/v1") && !strings.HasSuffix(baseURL, "/v1/") {
			baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
		}
		config.BaseURL = baseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	displayURL := baseURL
	if displayURL == "" {
		displayURL = "(default)"
	}
	L_debug("openai provider created", "name", name, "model", cfg.Model, "baseURL", displayURL, "maxTokens", maxTokens)

	return &OpenAIProvider{
		name:         name,
		client:       openai.NewClientWithConfig(config),
		model:        cfg.Model,
		maxTokens:    maxTokens,
		baseURL:      baseURL,
		metricPrefix: fmt.Sprintf("llm/%s/%s", name, cfg.Model),
		available:    true,
	}, nil
}

func (p *OpenAIProvider) Name() string  { return p.name }
func (p *OpenAIProvider) Type() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) MaxTokens() int { return p.maxTokens }

func (p *OpenAIProvider) IsAvailable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.available
}

// WithMaxTokens clones the provider with a different output limit.
func (p *OpenAIProvider) WithMaxTokens(max int) Provider {
	clone := *p
	clone.maxTokens = max
	return &clone
}

// Complete sends a non-streaming chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !p.IsAvailable() {
		return "", ErrUnavailable{Provider: p.name}
	}

	start := time.Now()
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	maxTokens := p.maxTokens
	if req.MaxTokens > 0 && req.MaxTokens < maxTokens {
		maxTokens = req.MaxTokens
	}

	L_debug("openai: request started", "provider", p.name, "model", p.model, "messages", len(messages), "maxTokens", maxTokens)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages:  messages,
	})
	if err != nil {
		MetricDuration(p.metricPrefix, "request", time.Since(start))
		MetricFailWithReason(p.metricPrefix, "request_status", string(Classify(err)))
		return "", fmt.Errorf("openai completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		MetricFailWithReason(p.metricPrefix, "request_status", "empty_response")
		return "", fmt.Errorf("openai completion: no choices returned")
	}

	L_debug("openai: response received",
		"provider", p.name,
		"inputTokens", resp.Usage.PromptTokens,
		"outputTokens", resp.Usage.CompletionTokens,
		"finishReason", resp.Choices[0].FinishReason,
	)
	MetricAdd(p.metricPrefix, "input_tokens", int64(resp.Usage.PromptTokens))
	MetricAdd(p.metricPrefix, "output_tokens", int64(resp.Usage.CompletionTokens))
	MetricDuration(p.metricPrefix, "request", time.Since(start))
	MetricSuccess(p.metricPrefix, "request_status")

	return resp.Choices[0].Message.Content, nil
}
