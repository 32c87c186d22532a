// Package settings resolves effective configuration values through the
// channel -> guild -> system-default cascade. A scope's defined value wins
// outright; there is no merging. Store failures never block an
// interaction: resolution falls back to the static defaults.
package settings

import (
	"context"
	"fmt"

	"github.com/hwestman/personabot/internal/bus"
	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
)

// Scope identifies one level of the cascade. System defaults are static
// and not a store scope.
type Scope string

const (
	ScopeChannel Scope = "channel"
	ScopeGuild   Scope = "guild"
)

// Recognized setting keys.
const (
	KeyVerbosity      = "verbosity"
	KeyDefaultPersona = "default_persona"
	KeyMaxContext     = "max_context_messages"
	KeyMentionReplies = "mention_responses"
)

// KeyAdminRole holds the guild role id allowed to use admin commands.
// It is written by /admin_role and read directly by the channel
// adapters; it does not resolve through the cascade.
const KeyAdminRole = "admin_role"

// Verbosity levels.
const (
	VerbosityConcise  = "concise"
	VerbosityNormal   = "normal"
	VerbosityDetailed = "detailed"
)

// defaults must define every recognized key; resolution of a key missing
// here is a programming error.
var defaults = map[string]string{
	KeyVerbosity:      VerbosityNormal,
	KeyDefaultPersona: "muppet",
	KeyMaxContext:     "40",
	KeyMentionReplies: "enabled",
}

// allowedValues guards writes; empty slice means free-form.
var allowedValues = map[string][]string{
	KeyVerbosity:      {VerbosityConcise, VerbosityNormal, VerbosityDetailed},
	KeyDefaultPersona: nil, // validated against the persona manager by the command layer
	KeyMaxContext:     {"10", "20", "40", "60"},
	KeyMentionReplies: {"enabled", "disabled"},
}

// Store is the persistence boundary for scoped settings.
type Store interface {
	GetSetting(ctx context.Context, scope Scope, scopeID, key string) (string, bool, error)
	SetSetting(ctx context.Context, scope Scope, scopeID, key, value string) error
}

// Resolver walks the cascade for one bot instance.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Default returns the static system default for a recognized key.
// Panics on unrecognized keys: defaults are part of the program, and a
// missing one is a bug, not a runtime condition.
func Default(key string) string {
	v, ok := defaults[key]
	if !ok {
		panic(fmt.Sprintf("settings: no system default for key %q", key))
	}
	return v
}

// Keys returns all recognized setting keys.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	return keys
}

// Recognized reports whether key has a system default.
func Recognized(key string) bool {
	_, ok := defaults[key]
	return ok
}

// ValidValue reports whether value is acceptable for key.
func ValidValue(key, value string) bool {
	allowed, ok := allowedValues[key]
	if !ok {
		return false
	}
	if len(allowed) == 0 {
		return value != ""
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// Resolve returns the effective value of key for (channelID, guildID):
// channel scope first, then guild scope, then the system default. Store
// errors degrade to the default and report ok=false so the caller can
// record a resolution failure without aborting.
func (r *Resolver) Resolve(ctx context.Context, key, channelID, guildID string) (value string, ok bool) {
	def := Default(key) // panics on unrecognized key before any I/O

	type lookup struct {
		scope Scope
		id    string
	}
	chain := []lookup{
		{ScopeChannel, channelID},
		{ScopeGuild, guildID},
	}

	for _, lk := range chain {
		if lk.id == "" {
			continue
		}
		v, found, err := r.store.GetSetting(ctx, lk.scope, lk.id, key)
		if err != nil {
			L_debug("settings: store read failed, using default", "scope", lk.scope, "key", key, "error", err)
			MetricInc("settings", "resolve_failed")
			return def, false
		}
		if found {
			return v, true
		}
	}
	return def, true
}

// Effective is the resolved configuration an interaction runs with.
type Effective struct {
	Verbosity      string
	DefaultPersona string
	MaxContext     int
	MentionReplies bool
	// Degraded is set when any store lookup failed and a default was
	// substituted; the orchestrator notes it on the interaction.
	Degraded bool
}

// ResolveAll resolves every key an interaction needs in one pass.
func (r *Resolver) ResolveAll(ctx context.Context, channelID, guildID string) Effective {
	eff := Effective{}

	var ok bool
	eff.Verbosity, ok = r.Resolve(ctx, KeyVerbosity, channelID, guildID)
	eff.Degraded = eff.Degraded || !ok
	eff.DefaultPersona, ok = r.Resolve(ctx, KeyDefaultPersona, channelID, guildID)
	eff.Degraded = eff.Degraded || !ok

	maxCtx, ok := r.Resolve(ctx, KeyMaxContext, channelID, guildID)
	eff.Degraded = eff.Degraded || !ok
	eff.MaxContext = parseMaxContext(maxCtx)

	mention, ok := r.Resolve(ctx, KeyMentionReplies, channelID, guildID)
	eff.Degraded = eff.Degraded || !ok
	eff.MentionReplies = mention != "disabled"

	return eff
}

// Change describes one persisted settings write. Published on
// bus.TopicSettingsChanged after the store accepts it.
type Change struct {
	Scope   Scope
	ScopeID string
	Key     string
	Value   string
}

// Set validates and persists a scoped override.
func (r *Resolver) Set(ctx context.Context, scope Scope, scopeID, key, value string) error {
	if !Recognized(key) {
		return fmt.Errorf("unrecognized setting %q", key)
	}
	if !ValidValue(key, value) {
		return fmt.Errorf("invalid value %q for setting %q", value, key)
	}
	if err := r.store.SetSetting(ctx, scope, scopeID, key, value); err != nil {
		return fmt.Errorf("saving %s setting: %w", scope, err)
	}
	L_info("settings: updated", "scope", scope, "scope_id", scopeID, "key", key, "value", value)
	bus.Publish(bus.TopicSettingsChanged, Change{Scope: scope, ScopeID: scopeID, Key: key, Value: value})
	return nil
}

func parseMaxContext(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 40
		}
		n = n*10 + int(c-'0')
	}
	if n <= 0 || n > 200 {
		return 40
	}
	return n
}

// VerbosityInstruction returns the reply-style line appended to the system
// prompt for a verbosity level.
func VerbosityInstruction(level string) string {
	switch level {
	case VerbosityConcise:
		return " Keep your response brief: 2-3 sentences at most."
	case VerbosityDetailed:
		return " Provide a comprehensive, detailed response."
	default:
		return ""
	}
}

// VerbosityMaxTokens returns the completion token hint for a verbosity level.
func VerbosityMaxTokens(level string) int {
	switch level {
	case VerbosityConcise:
		return 300
	case VerbosityDetailed:
		return 4000
	default:
		return 1000
	}
}
