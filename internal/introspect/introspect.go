// Package introspect lets the bot explain itself: a registry of shipped
// features for /features, and embedded component docs that /introspect
// feeds to the active persona.
package introspect

import (
	"fmt"
	"strings"
)

// Feature describes one versioned bot capability.
type Feature struct {
	// ID is the snake_case identifier used in commands and config.
	ID string
	// Name is the human-readable feature name.
	Name string
	// Version is the feature's own semantic version.
	Version string
	// Since is the bot version that first shipped the feature.
	Since string
	// Toggleable features can be switched off in the config file.
	Toggleable  bool
	Description string
}

var features = []Feature{
	{
		ID:          "personas",
		Name:        "Persona System",
		Version:     "1.0.0",
		Since:       "0.1.0",
		Toggleable:  false,
		Description: "Multi-personality AI responses with 5 distinct personas",
	},
	{
		ID:          "reminders",
		Name:        "Reminders",
		Version:     "1.0.0",
		Since:       "0.1.0",
		Toggleable:  true,
		Description: "Scheduled reminder system with persona-aware delivery",
	},
	{
		ID:          "image_generation",
		Name:        "Image Generation",
		Version:     "1.0.0",
		Since:       "0.2.0",
		Toggleable:  true,
		Description: "DALL-E 3 powered image creation with size and style options",
	},
	{
		ID:          "introspection",
		Name:        "Self-Introspection",
		Version:     "1.0.0",
		Since:       "0.1.0",
		Toggleable:  false,
		Description: "Bot can explain its own internals and architecture",
	},
	{
		ID:          "rate_limiting",
		Name:        "Rate Limiting",
		Version:     "1.0.0",
		Since:       "0.1.0",
		Toggleable:  false,
		Description: "Prevents spam with configurable request limits per user",
	},
	{
		ID:          "verbosity_control",
		Name:        "Verbosity Control",
		Version:     "1.0.0",
		Since:       "0.1.0",
		Toggleable:  false,
		Description: "Per-channel response length settings (concise/normal/detailed)",
	},
	{
		ID:          "guild_settings",
		Name:        "Guild Settings",
		Version:     "1.0.0",
		Since:       "0.1.0",
		Toggleable:  false,
		Description: "Server-wide configuration and defaults",
	},
	{
		ID:          "multi_channel",
		Name:        "Multi-Channel",
		Version:     "1.0.0",
		Since:       "0.3.0",
		Toggleable:  true,
		Description: "Discord, Telegram and local console front ends",
	},
	{
		ID:          "multi_provider",
		Name:        "Multi-Provider",
		Version:     "1.0.0",
		Since:       "0.3.0",
		Toggleable:  false,
		Description: "OpenAI, Anthropic and xAI completion backends with failover",
	},
	{
		ID:          "web_status",
		Name:        "Web Status",
		Version:     "1.0.0",
		Since:       "0.3.0",
		Toggleable:  true,
		Description: "HTTP status page with health, metrics and usage counters",
	},
}

// Features returns every registered feature.
func Features() []Feature {
	return features
}

// Lookup finds a feature by ID.
func Lookup(id string) (Feature, bool) {
	for _, f := range features {
		if f.ID == id {
			return f, true
		}
	}
	return Feature{}, false
}

// Toggleable returns the features that can be switched in configuration.
func Toggleable() []Feature {
	var out []Feature
	for _, f := range features {
		if f.Toggleable {
			out = append(out, f)
		}
	}
	return out
}

// FormatFeatureList renders the /features table. version is the bot
// build version.
func FormatFeatureList(version string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 Bot Features (v%s)\n\n", version)
	b.WriteString("Feature              Version  Status    Toggleable\n")
	b.WriteString("─────────────────────────────────────────────────────\n")
	for _, f := range features {
		toggle := "No"
		if f.Toggleable {
			toggle = "Yes"
		}
		fmt.Fprintf(&b, "%-20s %-8s ✅ ON     %s\n", f.Name, f.Version, toggle)
	}
	b.WriteString("\nToggleable features are switched in the config file and applied on reload.")
	return b.String()
}
