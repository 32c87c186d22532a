package introspect

import (
	"strings"
	"testing"
)

func TestFeatureIDsUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, f := range Features() {
		if seen[f.ID] {
			t.Errorf("duplicate feature id %q", f.ID)
		}
		seen[f.ID] = true
		if f.Name == "" || f.Version == "" || f.Since == "" || f.Description == "" {
			t.Errorf("feature %q has empty metadata", f.ID)
		}
	}
	if len(seen) < 8 {
		t.Errorf("expected at least 8 features, got %d", len(seen))
	}
}

func TestLookup(t *testing.T) {
	f, ok := Lookup("personas")
	if !ok {
		t.Fatal("personas feature missing")
	}
	if f.Name != "Persona System" {
		t.Errorf("name = %q", f.Name)
	}
	if f.Toggleable {
		t.Error("personas must not be toggleable")
	}
	if _, ok := Lookup("nonexistent"); ok {
		t.Error("Lookup(nonexistent) = true")
	}
}

func TestToggleable(t *testing.T) {
	list := Toggleable()
	if len(list) == 0 {
		t.Fatal("no toggleable features")
	}
	for _, f := range list {
		if !f.Toggleable {
			t.Errorf("feature %q returned from Toggleable but is not", f.ID)
		}
	}
}

func TestFormatFeatureList(t *testing.T) {
	out := FormatFeatureList("1.2.3")
	for _, want := range []string{"Bot Features (v1.2.3)", "Persona System", "Toggleable", "Reminders"} {
		if !strings.Contains(out, want) {
			t.Errorf("feature list missing %q:\n%s", want, out)
		}
	}
}

func TestComponentsEmbedded(t *testing.T) {
	got := Components()
	want := []string{"commands", "database", "overview", "personas", "reminders"}
	if len(got) != len(want) {
		t.Fatalf("components = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("components = %v, want %v", got, want)
		}
	}
}

func TestComponentContent(t *testing.T) {
	d, ok := Component("overview")
	if !ok {
		t.Fatal("overview doc missing")
	}
	if d.Title != "Bot Architecture Overview" {
		t.Errorf("title = %q", d.Title)
	}
	if !strings.Contains(d.Body, "Orchestrator") {
		t.Error("overview body lost its content")
	}
	if strings.HasPrefix(d.Body, "---") {
		t.Error("frontmatter leaked into body")
	}

	// Lookup is forgiving about case and whitespace.
	if _, ok := Component("  Database "); !ok {
		t.Error("case-insensitive lookup failed")
	}
	if _, ok := Component("flux_capacitor"); ok {
		t.Error("unknown component reported as present")
	}
}

func TestParseDocRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"no frontmatter": "# Just markdown\n\nbody\n",
		"unterminated":   "---\nid: x\ntitle: y\n",
		"missing id":     "---\ntitle: y\n---\nbody\n",
		"empty body":     "---\nid: x\ntitle: y\n---\n\n",
		"invalid yaml":   "---\n\t(not yaml\n---\nbody\n",
	}
	for name, raw := range cases {
		if _, err := parseDoc([]byte(raw)); err == nil {
			t.Errorf("%s: parseDoc accepted malformed input", name)
		}
	}
}
