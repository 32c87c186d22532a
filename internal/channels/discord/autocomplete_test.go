package discord

import (
	"encoding/json"
	"testing"

	"github.com/hwestman/personabot/internal/settings"
)

func TestSetGuildSettingValueAdvertisesAutocomplete(t *testing.T) {
	cmd := wireByName(t, "set_guild_setting")
	opts := make(map[string]ApplicationCommandOption, len(cmd.Options))
	for _, o := range cmd.Options {
		opts[o.Name] = o
	}
	if !opts["value"].Autocomplete {
		t.Error("value option should advertise autocomplete")
	}
	if opts["setting"].Autocomplete {
		t.Error("setting option should not advertise autocomplete")
	}
}

func autocompleteData(setting string) *InteractionData {
	return &InteractionData{
		Name: "set_guild_setting",
		Options: []OptionValue{
			{Name: "setting", Type: optionString, Value: json.RawMessage(`"` + setting + `"`)},
			{Name: "value", Type: optionString, Value: json.RawMessage(`""`)},
		},
	}
}

func TestSuggestValuesPerSetting(t *testing.T) {
	cases := []struct {
		setting string
		want    int
		first   string
	}{
		{settings.KeyVerbosity, 3, settings.VerbosityConcise},
		{settings.KeyDefaultPersona, 5, "obi"},
		{settings.KeyMaxContext, 4, "10"},
		{settings.KeyMentionReplies, 2, "enabled"},
	}
	for _, tc := range cases {
		got := suggestValues(autocompleteData(tc.setting))
		if len(got) != tc.want {
			t.Errorf("%s: %d suggestions, want %d", tc.setting, len(got), tc.want)
			continue
		}
		if got[0].Value != tc.first {
			t.Errorf("%s: first suggestion = %q, want %q", tc.setting, got[0].Value, tc.first)
		}
	}
}

func TestSuggestValuesUnknownSettingOrCommand(t *testing.T) {
	if got := suggestValues(autocompleteData("no_such_setting")); got != nil {
		t.Errorf("unknown setting suggested %v", got)
	}
	if got := suggestValues(&InteractionData{Name: "hey"}); got != nil {
		t.Errorf("foreign command suggested %v", got)
	}
	if got := suggestValues(nil); got != nil {
		t.Errorf("nil data suggested %v", got)
	}
}

func TestAutocompleteResultNeverNullsChoices(t *testing.T) {
	resp := autocompleteResult(&InteractionData{Name: "hey"})
	if resp.Type != callbackAutocompleteResult {
		t.Fatalf("callback type = %d, want %d", resp.Type, callbackAutocompleteResult)
	}
	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Data struct {
			Choices []OptionChoice `json:"choices"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Data.Choices == nil {
		t.Errorf("choices marshaled as null: %s", body)
	}
}
