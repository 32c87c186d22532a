// Package llm provides unified LLM provider interfaces and implementations.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	. "github.com/hwestman/personabot/internal/logging"
)

// RegistryConfig is the configuration for the LLM registry.
type RegistryConfig struct {
	Providers map[string]ProviderConfig `json:"providers"` // instance name -> config
	Default   string                    `json:"default"`   // instance name used for chat
}

// Registry manages LLM provider instances.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
}

// NewRegistry creates provider instances from configuration.
// A provider that fails to construct is skipped with a warning so one bad
// entry doesn't take the whole bot down.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	r := &Registry{
		providers:   make(map[string]Provider),
		defaultName: cfg.Default,
	}

	for name, pc := range cfg.Providers {
		p, err := newProvider(name, pc)
		if err != nil {
			L_warn("llm: provider skipped", "name", name, "error", err)
			continue
		}
		r.providers[name] = p
		L_info("llm: provider registered", "name", name, "type", p.Type(), "model", p.Model())
	}

	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no usable LLM providers configured")
	}

	if r.defaultName == "" {
		// Deterministic fallback when the config doesn't name one
		names := r.Names()
		r.defaultName = names[0]
		L_warn("llm: no default provider configured, using first", "name", r.defaultName)
	}
	if _, ok := r.providers[r.defaultName]; !ok {
		return nil, fmt.Errorf("default LLM provider %q is not configured", r.defaultName)
	}

	return r, nil
}

// newProvider constructs a provider instance from its config.
func newProvider(name string, cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "anthropic":
		return NewAnthropicProvider(name, cfg)
	case "openai":
		return NewOpenAIProvider(name, cfg)
	case "xai":
		return NewXAIProvider(name, cfg)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}

// Default returns the provider used for chat completions.
func (r *Registry) Default() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[r.defaultName]
}

// Get returns a provider by instance name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Complete runs a completion against the default provider.
func (r *Registry) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	p := r.Default()
	if p == nil {
		return "", ErrUnavailable{Provider: "default", Reason: "no provider registered"}
	}
	return p.Complete(ctx, req)
}
