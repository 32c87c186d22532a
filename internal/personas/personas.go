// Package personas holds the bot's personalities: each persona is a named
// system prompt the model answers with. Five personas ship builtin; a
// personas.toml file can add or override entries without a rebuild.
package personas

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	. "github.com/hwestman/personabot/internal/logging"
)

// DefaultPersona is used when a user has no stored preference.
const DefaultPersona = "muppet"

// fallbackPrompt answers for unknown personas instead of erroring.
const fallbackPrompt = "You are a helpful assistant."

// Persona is one selectable personality.
type Persona struct {
	Key          string `toml:"-"`
	Name         string `toml:"name"`
	Description  string `toml:"description"`
	SystemPrompt string `toml:"system_prompt"`
}

// Prompt modifiers sharpen how a persona answers a specific command.
const (
	ModifierExplain = "explain"
	ModifierSimple  = "simple"
	ModifierSteps   = "steps"
	ModifierRecipe  = "recipe"
)

var modifierSuffixes = map[string]string{
	ModifierExplain: " Focus on providing clear explanations.",
	ModifierSimple:  " Explain in a simple and concise way. Give analogies a beginner might understand.",
	ModifierSteps:   " Break this out into clear, actionable steps.",
	ModifierRecipe:  " Respond with a recipe if this prompt has food. If it does not have food, return 'Give me some food to work with'.",
}

// Manager resolves personas and composes system prompts. Immutable after
// construction, so it needs no locking.
type Manager struct {
	personas map[string]Persona
}

// NewManager returns a Manager with the builtin personas.
func NewManager() *Manager {
	return &Manager{personas: builtin()}
}

// NewManagerWithOverlay loads personas.toml from path (when it exists) on
// top of the builtins. A broken overlay file is logged and skipped; the
// builtins always remain available.
func NewManagerWithOverlay(path string) *Manager {
	m := NewManager()
	if path == "" {
		return m
	}
	if _, err := os.Stat(path); err != nil {
		return m
	}

	var overlay struct {
		Personas map[string]Persona `toml:"personas"`
	}
	if _, err := toml.DecodeFile(path, &overlay); err != nil {
		L_warn("personas: overlay file unreadable, using builtins", "path", path, "error", err)
		return m
	}

	for key, p := range overlay.Personas {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" || p.SystemPrompt == "" {
			L_warn("personas: skipping overlay entry without key or prompt", "key", key)
			continue
		}
		p.Key = key
		if p.Name == "" {
			p.Name = key
		}
		m.personas[key] = p
		L_debug("personas: overlay loaded", "key", key, "name", p.Name)
	}
	return m
}

// Get returns the persona for key.
func (m *Manager) Get(key string) (Persona, bool) {
	p, ok := m.personas[key]
	return p, ok
}

// Exists reports whether key names a known persona.
func (m *Manager) Exists(key string) bool {
	_, ok := m.personas[key]
	return ok
}

// List returns all personas sorted by key.
func (m *Manager) List() []Persona {
	out := make([]Persona, 0, len(m.personas))
	for _, p := range m.personas {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// SystemPrompt composes the system prompt for a persona with an optional
// modifier suffix. Unknown personas get the generic assistant prompt;
// unknown modifiers are ignored.
func (m *Manager) SystemPrompt(personaKey, modifier string) string {
	base := fallbackPrompt
	if p, ok := m.personas[personaKey]; ok {
		base = p.SystemPrompt
	}
	if suffix, ok := modifierSuffixes[modifier]; ok {
		base += suffix
	}
	return base
}

// FormatList renders the persona roster for the /personas reply.
func (m *Manager) FormatList(current string) string {
	var b strings.Builder
	b.WriteString("🎭 **Available personas**\n\n")
	for _, p := range m.List() {
		marker := "  "
		if p.Key == current {
			marker = "▸ "
		}
		fmt.Fprintf(&b, "%s**%s** (`%s`) — %s\n", marker, p.Name, p.Key, p.Description)
	}
	b.WriteString("\nUse /set_persona to switch.")
	return b.String()
}

func builtin() map[string]Persona {
	return map[string]Persona{
		"obi": {
			Key:         "obi",
			Name:        "Obi-Wan",
			Description: "A wise Jedi Master who speaks with patience, diplomacy, and philosophical insight",
			SystemPrompt: "You are Obi-Wan Kenobi, a wise and patient Jedi Master. You speak with calm " +
				"authority, offer measured guidance, and favor diplomacy over confrontation. You draw on " +
				"philosophical insight and occasionally reference the Force, but you always give genuinely " +
				"helpful, practical answers.",
		},
		"muppet": {
			Key:         "muppet",
			Name:        "Muppet Friend",
			Description: "A warm, enthusiastic friend who brings Muppet-style joy, humor, and heart to every conversation!",
			SystemPrompt: "You are an enthusiastic, warm-hearted Muppet-style friend. You bring joy, humor " +
				"and heart to every conversation, celebrate the user's questions with genuine excitement, and " +
				"sprinkle in playful asides. Underneath the fun you always give accurate, helpful answers.",
		},
		"chef": {
			Key:         "chef",
			Name:        "Chef",
			Description: "A passionate chef who shares recipes and cooking wisdom",
			SystemPrompt: "You are a passionate professional chef. You love sharing recipes, techniques and " +
				"cooking wisdom, explain why steps matter, and suggest variations and substitutions. Keep " +
				"measurements precise and instructions practical for a home kitchen.",
		},
		"teacher": {
			Key:         "teacher",
			Name:        "Teacher",
			Description: "A patient teacher who explains things clearly",
			SystemPrompt: "You are a patient, encouraging teacher. You explain concepts clearly, check " +
				"understanding as you go, build from fundamentals, and use concrete examples. You never " +
				"condescend and you adapt your depth to the question being asked.",
		},
		"analyst": {
			Key:         "analyst",
			Name:        "Step-by-Step Analyst",
			Description: "An analyst who breaks things down into clear steps",
			SystemPrompt: "You are a methodical analyst. You break every problem into clear, numbered steps, " +
				"state your assumptions, weigh alternatives explicitly, and summarize your conclusion at the " +
				"end. Precision beats flourish.",
		},
	}
}
