package personas

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuiltinPersonas(t *testing.T) {
	m := NewManager()
	for _, key := range []string{"obi", "muppet", "chef", "teacher", "analyst"} {
		p, ok := m.Get(key)
		if !ok {
			t.Errorf("builtin persona %q missing", key)
			continue
		}
		if p.SystemPrompt == "" || p.Description == "" || p.Name == "" {
			t.Errorf("persona %q has empty fields: %+v", key, p)
		}
	}
	if !m.Exists(DefaultPersona) {
		t.Fatalf("default persona %q must exist", DefaultPersona)
	}
}

func TestSystemPromptModifiers(t *testing.T) {
	m := NewManager()

	base := m.SystemPrompt("teacher", "")
	if base == "" {
		t.Fatal("base prompt empty")
	}

	steps := m.SystemPrompt("teacher", ModifierSteps)
	if !strings.HasPrefix(steps, base) {
		t.Error("modifier should append to the base prompt, not replace it")
	}
	if !strings.HasSuffix(steps, "Break this out into clear, actionable steps.") {
		t.Errorf("steps modifier suffix missing, got %q", steps[len(steps)-60:])
	}

	recipe := m.SystemPrompt("chef", ModifierRecipe)
	if !strings.Contains(recipe, "Give me some food to work with") {
		t.Error("recipe modifier suffix missing")
	}

	// Unknown modifier leaves the prompt untouched.
	if got := m.SystemPrompt("teacher", "backflip"); got != base {
		t.Errorf("unknown modifier should be ignored, got %q", got)
	}
}

func TestUnknownPersonaFallsBack(t *testing.T) {
	m := NewManager()
	got := m.SystemPrompt("nonexistent", "")
	if got != "You are a helpful assistant." {
		t.Errorf("unknown persona should use the generic prompt, got %q", got)
	}
}

func TestOverlayAddsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.toml")
	overlay := `
[personas.pirate]
name = "Pirate"
description = "Talks like a pirate"
system_prompt = "You are a pirate. Answer every question in pirate speak."

[personas.chef]
name = "Sous Chef"
description = "Overridden chef"
system_prompt = "You are a sous chef."
`
	if err := os.WriteFile(path, []byte(overlay), 0600); err != nil {
		t.Fatalf("writing overlay: %v", err)
	}

	m := NewManagerWithOverlay(path)

	pirate, ok := m.Get("pirate")
	if !ok {
		t.Fatal("overlay persona not loaded")
	}
	if pirate.Name != "Pirate" {
		t.Errorf("pirate name = %q", pirate.Name)
	}

	chef, _ := m.Get("chef")
	if chef.Name != "Sous Chef" {
		t.Errorf("overlay should override builtin, chef = %q", chef.Name)
	}

	// Builtins not mentioned in the overlay survive.
	if !m.Exists("obi") {
		t.Error("builtin personas must survive an overlay")
	}
}

func TestOverlayMissingFileIsFine(t *testing.T) {
	m := NewManagerWithOverlay(filepath.Join(t.TempDir(), "absent.toml"))
	if !m.Exists("muppet") {
		t.Fatal("missing overlay must leave builtins intact")
	}
}

func TestFormatList(t *testing.T) {
	m := NewManager()
	out := m.FormatList("chef")
	if !strings.Contains(out, "Chef") || !strings.Contains(out, "Obi-Wan") {
		t.Error("list should include persona names")
	}
	if !strings.Contains(out, "▸ **Chef**") {
		t.Error("current persona should be marked")
	}
}
