package commands

import (
	"reflect"
	"testing"
)

func TestOptionsFromText(t *testing.T) {
	tests := []struct {
		command string
		text    string
		want    map[string]string
	}{
		{"hey", "hello there persona", map[string]string{"message": "hello there persona"}},
		{"set_persona", "chef", map[string]string{"persona": "chef"}},
		{"imagine", "a sunset over calm water", map[string]string{"prompt": "a sunset over calm water"}},
		{"remind", "30m take out the trash", map[string]string{"time": "30m", "message": "take out the trash"}},
		{"remind", "2h", map[string]string{"time": "2h"}},
		{"reminders", "cancel 3", map[string]string{"action": "cancel", "id": "3"}},
		{"reminders", "list", map[string]string{"action": "list"}},
		{"reminders", "", nil},
		{"set_guild_setting", "verbosity detailed", map[string]string{"setting": "verbosity", "value": "detailed"}},
		{"set_guild_setting", "default_persona chef", map[string]string{"setting": "default_persona", "value": "chef"}},
		{"set_channel_verbosity", "concise", map[string]string{"level": "concise"}},
		{"introspect", "overview", map[string]string{"component": "overview"}},
		{"ping", "ignored words", nil},
	}
	for _, tt := range tests {
		d, ok := Lookup(tt.command)
		if !ok {
			t.Fatalf("command %q not in registry", tt.command)
		}
		got := OptionsFromText(d, tt.text)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("OptionsFromText(%s, %q) = %v, want %v", tt.command, tt.text, got, tt.want)
		}
	}
}

func TestPrimaryOption(t *testing.T) {
	hey, _ := Lookup("hey")
	if hey.PrimaryOption() != "message" {
		t.Errorf("hey primary = %q", hey.PrimaryOption())
	}
	ping, _ := Lookup("ping")
	if ping.PrimaryOption() != "" {
		t.Errorf("ping primary = %q", ping.PrimaryOption())
	}
}
