// Package discord connects the bot to Discord. It speaks the REST API
// for replies, command registration and reminder delivery, and receives
// events either over the realtime gateway websocket or as signed
// webhook posts on the interactions endpoint, depending on the
// configured mode.
package discord

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Interaction types (received).
const (
	interactionPing               = 1
	interactionApplicationCommand = 2
	interactionMessageComponent   = 3
	interactionAutocomplete       = 4
	interactionModalSubmit        = 5
)

// Interaction callback types (sent).
const (
	callbackPong               = 1
	callbackChannelMessage     = 4
	callbackDeferredMessage    = 5
	callbackDeferredUpdate     = 6
	callbackUpdateMessage      = 7
	callbackAutocompleteResult = 8
	callbackModal              = 9
)

// Application command types.
const (
	commandChatInput   = 1
	commandUserMenu    = 2
	commandMessageMenu = 3
)

// Command option types.
const (
	optionString  = 3
	optionInteger = 4
	optionChannel = 7
	optionRole    = 8
)

// Message component types.
const (
	componentActionRow = 1
	componentButton    = 2
	componentTextInput = 4
)

// Button styles.
const (
	buttonPrimary   = 1
	buttonSecondary = 2
)

// Text input styles.
const (
	textInputShort     = 1
	textInputParagraph = 2
)

// Permission bits checked on interaction members. Either grants admin
// command access without the configured admin role.
const (
	permAdministrator = 1 << 3
	permManageGuild   = 1 << 5
)

// User is a Discord user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

// Tag returns the loggable @username form.
func (u User) Tag() string {
	return "@" + u.Username
}

// Member is a user's guild membership. Permissions is the computed
// permission bitset as a decimal string; Discord sends it on
// interactions but not on message events.
type Member struct {
	User        *User    `json:"user,omitempty"`
	Roles       []string `json:"roles"`
	Permissions string   `json:"permissions,omitempty"`
}

// HasPermission reports whether the member's permission bitset includes
// any of the given bits. Malformed bitsets read as no permissions.
func (m *Member) HasPermission(bits int64) bool {
	if m == nil || m.Permissions == "" {
		return false
	}
	v, err := strconv.ParseInt(m.Permissions, 10, 64)
	if err != nil {
		return false
	}
	return v&bits != 0
}

// HasRole reports whether the member holds the given role id.
func (m *Member) HasRole(roleID string) bool {
	if m == nil || roleID == "" {
		return false
	}
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Message is a channel message, as received from MESSAGE_CREATE or
// returned by the message endpoints.
type Message struct {
	ID        string  `json:"id"`
	ChannelID string  `json:"channel_id"`
	GuildID   string  `json:"guild_id,omitempty"`
	Author    User    `json:"author"`
	Member    *Member `json:"member,omitempty"`
	Content   string  `json:"content"`
	Mentions  []User  `json:"mentions,omitempty"`
}

// Interaction is an INTERACTION_CREATE payload or a webhook post body.
type Interaction struct {
	ID            string           `json:"id"`
	ApplicationID string           `json:"application_id"`
	Type          int              `json:"type"`
	Data          *InteractionData `json:"data,omitempty"`
	GuildID       string           `json:"guild_id,omitempty"`
	ChannelID     string           `json:"channel_id,omitempty"`
	Member        *Member          `json:"member,omitempty"`
	User          *User            `json:"user,omitempty"`
	Token         string           `json:"token"`
	// Message is the message the component sits on, set for component
	// interactions only.
	Message *Message `json:"message,omitempty"`
}

// Invoker returns the user who triggered the interaction: Member.User
// in guilds, User in DMs.
func (ic *Interaction) Invoker() User {
	if ic.Member != nil && ic.Member.User != nil {
		return *ic.Member.User
	}
	if ic.User != nil {
		return *ic.User
	}
	return User{}
}

// InteractionData is the type-dependent payload of an interaction.
type InteractionData struct {
	ID       string        `json:"id,omitempty"`
	Name     string        `json:"name,omitempty"`
	Type     int           `json:"type,omitempty"`
	Options  []OptionValue `json:"options,omitempty"`
	Resolved *Resolved     `json:"resolved,omitempty"`
	TargetID string        `json:"target_id,omitempty"`

	// Component interactions.
	CustomID      string `json:"custom_id,omitempty"`
	ComponentType int    `json:"component_type,omitempty"`

	// Modal submissions: one action row per text input.
	Components []ComponentRow `json:"components,omitempty"`
}

// OptionValue is one submitted command option. Value arrives as the
// option's native JSON type.
type OptionValue struct {
	Name  string          `json:"name"`
	Type  int             `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Text flattens the option value to a string: strings pass through,
// numbers and booleans are formatted, snowflakes stay snowflakes.
func (o OptionValue) Text() string {
	var s string
	if err := json.Unmarshal(o.Value, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(o.Value, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	var b bool
	if err := json.Unmarshal(o.Value, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return strings.Trim(string(o.Value), `"`)
}

// Resolved carries full objects for ids referenced by the interaction,
// such as the target of a context-menu command.
type Resolved struct {
	Users    map[string]User    `json:"users,omitempty"`
	Messages map[string]Message `json:"messages,omitempty"`
}

// ComponentRow is a received action row, used when reading modal
// submission values.
type ComponentRow struct {
	Type       int              `json:"type"`
	Components []ComponentValue `json:"components"`
}

// ComponentValue is one submitted component inside a modal row.
type ComponentValue struct {
	Type     int    `json:"type"`
	CustomID string `json:"custom_id"`
	Value    string `json:"value"`
}

// actionRow is a sent action row. Components holds buttons or a text
// input depending on where the row is used.
type actionRow struct {
	Type       int   `json:"type"`
	Components []any `json:"components"`
}

type buttonComponent struct {
	Type     int    `json:"type"`
	Style    int    `json:"style"`
	Label    string `json:"label"`
	CustomID string `json:"custom_id"`
	Disabled bool   `json:"disabled,omitempty"`
}

// textInputComponent always serializes required: Discord defaults the
// field to true, so omitting it would make optional inputs mandatory.
type textInputComponent struct {
	Type        int    `json:"type"`
	CustomID    string `json:"custom_id"`
	Style       int    `json:"style"`
	Label       string `json:"label"`
	Required    bool   `json:"required"`
	Placeholder string `json:"placeholder,omitempty"`
	MinLength   int    `json:"min_length,omitempty"`
	MaxLength   int    `json:"max_length,omitempty"`
}

// messagePayload is the body for message sends, edits, interaction
// message callbacks and followups. Components distinguishes "leave
// unchanged" (nil) from "clear" (pointer to empty slice), which matters
// when a button reply replaces the message it was clicked on.
type messagePayload struct {
	Content    string       `json:"content,omitempty"`
	Components *[]actionRow `json:"components,omitempty"`
}

// modalPayload is the data for a modal callback.
type modalPayload struct {
	CustomID   string      `json:"custom_id"`
	Title      string      `json:"title"`
	Components []actionRow `json:"components"`
}

// autocompletePayload is the data for an autocomplete result callback.
type autocompletePayload struct {
	Choices []OptionChoice `json:"choices"`
}

// interactionResponse is the body posted to the interaction callback
// endpoint and written inline by the webhook handler.
type interactionResponse struct {
	Type int `json:"type"`
	Data any `json:"data,omitempty"`
}

// ApplicationCommand is a command definition for registration.
type ApplicationCommand struct {
	Name string `json:"name"`
	// Type defaults to chat input when omitted.
	Type        int                        `json:"type,omitempty"`
	Description string                     `json:"description,omitempty"`
	Options     []ApplicationCommandOption `json:"options,omitempty"`
	// DefaultMemberPermissions hides the command from members lacking
	// the bits, encoded as a decimal string per the API.
	DefaultMemberPermissions *string `json:"default_member_permissions,omitempty"`
}

// ApplicationCommandOption is one declared option of a slash command.
type ApplicationCommandOption struct {
	Type         int            `json:"type"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Required     bool           `json:"required,omitempty"`
	Autocomplete bool           `json:"autocomplete,omitempty"`
	Choices      []OptionChoice `json:"choices,omitempty"`
}

// OptionChoice is one fixed value of a string option.
type OptionChoice struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
