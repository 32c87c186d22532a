package commands

import (
	"testing"

	"github.com/hwestman/personabot/internal/introspect"
)

func TestDefinitionsCoverCommandSurface(t *testing.T) {
	wantSlash := []string{
		"ping", "help", "personas", "set_persona",
		"hey", "explain", "simple", "steps", "recipe",
		"imagine", "forget", "remind", "reminders", "introspect",
		"set_channel_verbosity", "set_guild_setting", "settings", "admin_role",
	}
	wantMenus := []string{"Analyze Message", "Explain Message", "Analyze User"}

	var slash, menus []string
	for _, def := range Definitions() {
		if def.Target == "" {
			slash = append(slash, def.Name)
		} else {
			menus = append(menus, def.Name)
		}
	}

	if len(slash) != len(wantSlash) {
		t.Fatalf("slash commands = %d, want %d: %v", len(slash), len(wantSlash), slash)
	}
	for i, name := range wantSlash {
		if slash[i] != name {
			t.Errorf("slash[%d] = %q, want %q", i, slash[i], name)
		}
	}
	if len(menus) != len(wantMenus) {
		t.Fatalf("context menus = %d, want %d: %v", len(menus), len(wantMenus), menus)
	}
	for i, name := range wantMenus {
		if menus[i] != name {
			t.Errorf("menus[%d] = %q, want %q", i, menus[i], name)
		}
	}
}

func TestDefinitionFlags(t *testing.T) {
	adminOnly := map[string]bool{
		"introspect": true, "set_channel_verbosity": true,
		"set_guild_setting": true, "settings": true,
	}
	deferred := map[string]bool{
		"hey": true, "explain": true, "simple": true, "steps": true,
		"recipe": true, "imagine": true, "introspect": true,
		"Analyze Message": true, "Explain Message": true, "Analyze User": true,
	}

	for _, def := range Definitions() {
		if got := adminOnly[def.Name]; def.Admin != got {
			t.Errorf("%s: Admin = %v, want %v", def.Name, def.Admin, got)
		}
		if got := deferred[def.Name]; def.Deferred != got {
			t.Errorf("%s: Deferred = %v, want %v", def.Name, def.Deferred, got)
		}
	}

	def, ok := Lookup("admin_role")
	if !ok || !def.ServerAdmin {
		t.Error("admin_role should require the server admin permission")
	}
	if def.Admin {
		t.Error("admin_role is gated on server admin, not the bot admin role")
	}
}

func TestDefinitionOptionShapes(t *testing.T) {
	def, _ := Lookup("remind")
	if len(def.Options) != 2 || def.Options[0].Name != "time" || def.Options[1].Name != "message" {
		t.Fatalf("remind options = %+v", def.Options)
	}
	if !def.Options[0].Required || !def.Options[1].Required {
		t.Error("remind options should both be required")
	}

	def, _ = Lookup("imagine")
	var sizeChoices, styleChoices int
	for _, opt := range def.Options {
		switch opt.Name {
		case "size":
			sizeChoices = len(opt.Choices)
		case "style":
			styleChoices = len(opt.Choices)
		}
	}
	if sizeChoices != 3 || styleChoices != 2 {
		t.Errorf("imagine choices: size=%d style=%d", sizeChoices, styleChoices)
	}

	def, _ = Lookup("set_guild_setting")
	if len(def.Options) != 2 || !def.Options[1].Autocomplete {
		t.Errorf("set_guild_setting options = %+v", def.Options)
	}

	def, _ = Lookup("set_channel_verbosity")
	if def.Options[1].Type != OptionChannel {
		t.Errorf("channel option type = %v", def.Options[1].Type)
	}

	def, _ = Lookup("admin_role")
	if def.Options[0].Type != OptionRole {
		t.Errorf("role option type = %v", def.Options[0].Type)
	}

	def, _ = Lookup("reminders")
	if def.Options[1].Type != OptionInteger {
		t.Errorf("id option type = %v", def.Options[1].Type)
	}
}

// Every introspect choice must resolve to an embedded doc, and every doc
// must be offered as a choice.
func TestIntrospectChoicesMatchDocs(t *testing.T) {
	def, ok := Lookup("introspect")
	if !ok {
		t.Fatal("introspect not registered")
	}
	var choices []string
	for _, c := range def.Options[0].Choices {
		choices = append(choices, c.Value)
	}

	docs := introspect.Components()
	if len(choices) != len(docs) {
		t.Fatalf("choices = %v, docs = %v", choices, docs)
	}
	for _, v := range choices {
		if _, ok := introspect.Component(v); !ok {
			t.Errorf("choice %q has no doc", v)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, ok := Lookup("frobnicate"); ok {
		t.Error("unknown command should not resolve")
	}
}
