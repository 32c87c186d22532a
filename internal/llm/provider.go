// Package llm provides unified LLM provider interfaces and implementations.
package llm

import (
	"context"
)

// Provider is the unified interface for all LLM backends.
// Implementations: AnthropicProvider, OpenAIProvider, XAIProvider
type Provider interface {
	// Identity
	Name() string  // Provider instance name (e.g., "anthropic", "openai-main")
	Type() string  // Provider type (e.g., "anthropic", "openai", "xai")
	Model() string // Current model name

	// Availability
	IsAvailable() bool // Ready to accept requests
	MaxTokens() int    // Current output limit

	// Cloning with overrides
	WithMaxTokens(max int) Provider // Clone with output limit override

	// Complete sends a full conversation and returns the assistant's reply.
	// The call blocks until the provider responds or ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Message represents a conversation message (provider-agnostic).
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CompletionRequest carries everything a provider needs for one completion.
// History is oldest-first and excludes the current Prompt, which is sent
// as the final user message.
type CompletionRequest struct {
	System    string    // System prompt (persona + verbosity instruction)
	History   []Message // Prior turns, oldest first
	Prompt    string    // The current user message
	MaxTokens int       // Output limit override (0 = provider default)
}

// RoleUser and RoleAssistant are the only roles that appear in History.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotSupported is returned when a provider doesn't support an operation
type ErrNotSupported struct {
	Provider  string
	Operation string
}

func (e ErrNotSupported) Error() string {
	return e.Provider + " does not support " + e.Operation
}

// ErrUnavailable is returned when a provider is not available
type ErrUnavailable struct {
	Provider string
	Reason   string
}

func (e ErrUnavailable) Error() string {
	if e.Reason != "" {
		return e.Provider + " is unavailable: " + e.Reason
	}
	return e.Provider + " is unavailable"
}

// ProviderConfig is the configuration for a single provider instance
type ProviderConfig struct {
	Type           string `json:"type"`           // "anthropic", "openai", "xai"
	APIKey         string `json:"apiKey"`         // For cloud providers
	BaseURL        string `json:"baseURL"`        // For OpenAI-compatible endpoints
	Model          string `json:"model"`          // Model name
	MaxTokens      int    `json:"maxTokens"`      // Output limit override
	TimeoutSeconds int    `json:"timeoutSeconds"` // Request timeout
}
