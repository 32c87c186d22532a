// Package commands decides what every inbound interaction means: the
// registry of command definitions the channel adapters sync and list,
// and the router that turns requests into orchestrator plans.
package commands

// OptionType is the wire type of a command option.
type OptionType string

const (
	OptionString  OptionType = "string"
	OptionInteger OptionType = "integer"
	OptionChannel OptionType = "channel"
	OptionRole    OptionType = "role"
)

// Choice is one fixed value for a string option.
type Choice struct {
	Name  string
	Value string
}

// Option is one named parameter of a slash command.
type Option struct {
	Name         string
	Description  string
	Type         OptionType
	Required     bool
	Autocomplete bool
	Choices      []Choice
}

// Target classifies a context-menu command by what it is invoked on.
type Target string

const (
	TargetMessage Target = "message"
	TargetUser    Target = "user"
)

// Definition describes one command for registration and dispatch.
type Definition struct {
	Name        string
	Description string
	Options     []Option

	// Admin commands need guild-manage rights or the configured admin
	// role; ServerAdmin commands need full administrator rights.
	Admin       bool
	ServerAdmin bool

	// Deferred commands acknowledge with a placeholder and edit the
	// result in later; the rest reply in one send.
	Deferred bool

	// Target is set for context-menu commands, empty for chat input.
	Target Target
}

func choices(values ...string) []Choice {
	out := make([]Choice, 0, len(values))
	for _, v := range values {
		out = append(out, Choice{Name: v, Value: v})
	}
	return out
}

// Definitions returns every command the bot registers: slash commands
// first, context menus last. The order is the registration order.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        "ping",
			Description: "Test bot responsiveness",
		},
		{
			Name:        "help",
			Description: "Show available commands and usage information",
		},
		{
			Name:        "personas",
			Description: "List all available personas and show your current one",
		},
		{
			Name:        "set_persona",
			Description: "Set your default persona",
			Options: []Option{{
				Name:        "persona",
				Description: "The persona to set as your default",
				Type:        OptionString,
				Required:    true,
				Choices:     choices("muppet", "chef", "obi", "teacher", "analyst"),
			}},
		},
		{
			Name:        "hey",
			Description: "Chat with your current persona",
			Deferred:    true,
			Options: []Option{{
				Name:        "message",
				Description: "Your message to the persona",
				Type:        OptionString,
				Required:    true,
			}},
		},
		{
			Name:        "explain",
			Description: "Get a detailed explanation from your persona",
			Deferred:    true,
			Options: []Option{{
				Name:        "topic",
				Description: "What you want explained",
				Type:        OptionString,
				Required:    true,
			}},
		},
		{
			Name:        "simple",
			Description: "Get a simple explanation with analogies",
			Deferred:    true,
			Options: []Option{{
				Name:        "topic",
				Description: "What you want explained simply",
				Type:        OptionString,
				Required:    true,
			}},
		},
		{
			Name:        "steps",
			Description: "Break something down into clear, actionable steps",
			Deferred:    true,
			Options: []Option{{
				Name:        "task",
				Description: "What you want broken down into steps",
				Type:        OptionString,
				Required:    true,
			}},
		},
		{
			Name:        "recipe",
			Description: "Get a recipe for the specified food",
			Deferred:    true,
			Options: []Option{{
				Name:        "food",
				Description: "The food you want a recipe for",
				Type:        OptionString,
				Required:    true,
			}},
		},
		{
			Name:        "imagine",
			Description: "Generate an image using DALL-E 3",
			Deferred:    true,
			Options: []Option{
				{
					Name:        "prompt",
					Description: "Describe the image you want to generate",
					Type:        OptionString,
					Required:    true,
				},
				{
					Name:        "size",
					Description: "Image dimensions (default: square)",
					Type:        OptionString,
					Choices: []Choice{
						{Name: "Square (1024x1024)", Value: "square"},
						{Name: "Landscape (1792x1024)", Value: "landscape"},
						{Name: "Portrait (1024x1792)", Value: "portrait"},
					},
				},
				{
					Name:        "style",
					Description: "Image style (default: vivid)",
					Type:        OptionString,
					Choices: []Choice{
						{Name: "Vivid - dramatic and hyper-real", Value: "vivid"},
						{Name: "Natural - more realistic", Value: "natural"},
					},
				},
			},
		},
		{
			Name:        "forget",
			Description: "Clear your conversation history with the bot",
		},
		{
			Name:        "remind",
			Description: "Set a reminder - your persona will remind you later",
			Options: []Option{
				{
					Name:        "time",
					Description: "When to remind you (e.g., 30m, 2h, 1d, 1h30m)",
					Type:        OptionString,
					Required:    true,
				},
				{
					Name:        "message",
					Description: "What to remind you about",
					Type:        OptionString,
					Required:    true,
				},
			},
		},
		{
			Name:        "reminders",
			Description: "View or manage your reminders",
			Options: []Option{
				{
					Name:        "action",
					Description: "What to do with reminders",
					Type:        OptionString,
					Choices:     choices("list", "cancel"),
				},
				{
					Name:        "id",
					Description: "Reminder ID to cancel (use with 'cancel' action)",
					Type:        OptionInteger,
				},
			},
		},
		{
			Name:        "introspect",
			Description: "Let your persona explain their own implementation (Admin)",
			Admin:       true,
			Deferred:    true,
			Options: []Option{{
				Name:        "component",
				Description: "Which part of the bot to explain",
				Type:        OptionString,
				Required:    true,
				Choices: []Choice{
					{Name: "Overview - Bot architecture", Value: "overview"},
					{Name: "Personas - Personality system", Value: "personas"},
					{Name: "Reminders - Scheduling system", Value: "reminders"},
					{Name: "Commands - How I process commands", Value: "commands"},
					{Name: "Database - How I remember things", Value: "database"},
				},
			}},
		},
		{
			Name:        "set_channel_verbosity",
			Description: "Set the verbosity level for a channel (Admin)",
			Admin:       true,
			Options: []Option{
				{
					Name:        "level",
					Description: "The verbosity level",
					Type:        OptionString,
					Required:    true,
					Choices:     choices("concise", "normal", "detailed"),
				},
				{
					Name:        "channel",
					Description: "Target channel (defaults to current channel)",
					Type:        OptionChannel,
				},
			},
		},
		{
			Name:        "set_guild_setting",
			Description: "Set a guild-wide bot setting (Admin)",
			Admin:       true,
			Options: []Option{
				{
					Name:        "setting",
					Description: "The setting to change",
					Type:        OptionString,
					Required:    true,
					Choices: choices("verbosity", "default_persona",
						"max_context_messages", "mention_responses"),
				},
				{
					Name:         "value",
					Description:  "The value to set",
					Type:         OptionString,
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        "settings",
			Description: "View current bot settings for this guild and channel (Admin)",
			Admin:       true,
		},
		{
			Name:        "admin_role",
			Description: "Set which role can manage bot settings (Server Admin only)",
			ServerAdmin: true,
			Options: []Option{{
				Name:        "role",
				Description: "The role to grant bot management permissions",
				Type:        OptionRole,
				Required:    true,
			}},
		},

		// Context menus.
		{
			Name:     "Analyze Message",
			Target:   TargetMessage,
			Deferred: true,
		},
		{
			Name:     "Explain Message",
			Target:   TargetMessage,
			Deferred: true,
		},
		{
			Name:     "Analyze User",
			Target:   TargetUser,
			Deferred: true,
		},
	}
}

// Lookup finds a definition by name.
func Lookup(name string) (Definition, bool) {
	for _, d := range Definitions() {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}
