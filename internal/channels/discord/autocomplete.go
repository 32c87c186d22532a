package discord

import (
	"context"
	"time"

	. "github.com/hwestman/personabot/internal/logging"
	"github.com/hwestman/personabot/internal/settings"
)

// Discord allows three seconds to answer an autocomplete interaction.
const autocompleteTimeout = 3 * time.Second

// settingSuggestions holds the labeled values offered while an admin
// types the value for /set_guild_setting, keyed by the setting chosen
// in the first option.
var settingSuggestions = map[string][]OptionChoice{
	settings.KeyVerbosity: {
		{Name: "concise - Brief responses (2-3 sentences)", Value: settings.VerbosityConcise},
		{Name: "normal - Balanced responses", Value: settings.VerbosityNormal},
		{Name: "detailed - Comprehensive responses", Value: settings.VerbosityDetailed},
	},
	settings.KeyDefaultPersona: {
		{Name: "obi - Obi-Wan Kenobi (wise mentor)", Value: "obi"},
		{Name: "muppet - Enthusiastic Muppet friend", Value: "muppet"},
		{Name: "chef - Passionate cooking expert", Value: "chef"},
		{Name: "teacher - Patient educator", Value: "teacher"},
		{Name: "analyst - Step-by-step analyst", Value: "analyst"},
	},
	settings.KeyMaxContext: {
		{Name: "10 messages (minimal context)", Value: "10"},
		{Name: "20 messages (light context)", Value: "20"},
		{Name: "40 messages (default)", Value: "40"},
		{Name: "60 messages (extended context)", Value: "60"},
	},
	settings.KeyMentionReplies: {
		{Name: "enabled - Respond when @mentioned", Value: "enabled"},
		{Name: "disabled - Ignore mentions", Value: "disabled"},
	},
}

// suggestValues picks the suggestion list for an autocomplete
// interaction. Only set_guild_setting offers suggestions, and they
// depend on which setting the admin selected.
func suggestValues(data *InteractionData) []OptionChoice {
	if data == nil || data.Name != "set_guild_setting" {
		return nil
	}
	for _, opt := range data.Options {
		if opt.Name == "setting" {
			return settingSuggestions[opt.Text()]
		}
	}
	return nil
}

// autocompleteResult builds the callback body for an autocomplete
// interaction. The choices array must be present even when empty; the
// API rejects a null there.
func autocompleteResult(data *InteractionData) interactionResponse {
	choices := suggestValues(data)
	if choices == nil {
		choices = []OptionChoice{}
	}
	return interactionResponse{
		Type: callbackAutocompleteResult,
		Data: &autocompletePayload{Choices: choices},
	}
}

// answerAutocomplete responds to a gateway autocomplete interaction
// through the callback endpoint. Webhook mode answers inline in the
// HTTP handler instead.
func (b *Bot) answerAutocomplete(ic *Interaction) {
	L_debug("discord: autocomplete", "command", ic.Data.Name)
	ctx, cancel := context.WithTimeout(context.Background(), autocompleteTimeout)
	defer cancel()
	if err := b.client.CreateInteractionResponse(ctx, ic.ID, ic.Token, autocompleteResult(ic.Data)); err != nil {
		L_warn("discord: autocomplete response failed", "error", err)
	}
}
