// Package interaction defines the shared types that flow between the
// channels, the orchestrator and the stores: identities, inbound requests
// and conversation turns. It is a leaf package with no dependencies on the
// rest of the bot so every layer can import it.
package interaction

import (
	"time"

	"github.com/google/uuid"
)

// Identity scopes all per-entity state. BotID distinguishes independently
// configured bot instances sharing the same database; no lookup may cross
// bot boundaries.
type Identity struct {
	BotID     string
	UserID    string
	ChannelID string
	GuildID   string
}

// RateKey is the (bot, user) key used for rate limiting.
func (id Identity) RateKey() string {
	return id.BotID + "\x00" + id.UserID
}

// ConversationKey is the (bot, user, channel) key scoping message history.
func (id Identity) ConversationKey() string {
	return id.BotID + "\x00" + id.UserID + "\x00" + id.ChannelID
}

// Kind classifies an inbound event.
type Kind string

const (
	KindMessage     Kind = "message"      // plain message / mention / DM
	KindCommand     Kind = "command"      // slash-style command
	KindButton      Kind = "button"       // component click
	KindModal       Kind = "modal"        // modal submission
	KindContextMenu Kind = "context_menu" // right-click menu invocation
)

// Request is one inbound event requiring a reply. It is immutable once
// built and owned exclusively by the orchestrator task processing it.
type Request struct {
	ID       string
	Kind     Kind
	Identity Identity

	// Command name for KindCommand/KindContextMenu ("hey", "Analyze Message").
	Command string
	// Prompt text: message content, main command option, or modal prompt.
	Prompt string
	// Options carries named command options (already flattened to strings).
	Options map[string]string
	// ComponentID is the custom id for KindButton ("persona_chef", "confirm_x").
	ComponentID string
	// ModalFields carries modal input values by field id.
	ModalFields map[string]string
	// TargetText is the subject of a context-menu invocation.
	TargetText string
	// Admin is set by the channel adapter when the invoker may use
	// admin commands (guild manager, configured admin role, or a
	// trusted surface like the local console).
	Admin bool

	ReceivedAt time.Time
}

// NewRequest builds a Request with a fresh id and arrival timestamp.
func NewRequest(kind Kind, id Identity) *Request {
	return &Request{
		ID:         uuid.NewString(),
		Kind:       kind,
		Identity:   id,
		ReceivedAt: time.Now(),
	}
}

// Option returns a named option value, or "" when absent.
func (r *Request) Option(name string) string {
	if r.Options == nil {
		return ""
	}
	return r.Options[name]
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a conversation history.
type Turn struct {
	Role    Role
	Content string
	At      time.Time
}

// Outcomes recorded by the usage-stats sink.
const (
	OutcomeDelivered   = "delivered"
	OutcomeFailed      = "failed"
	OutcomeExpired     = "expired"
	OutcomeRateLimited = "rate_limited"
)
