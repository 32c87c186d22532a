// Package orchestrator turns one inbound interaction into a correctly
// sequenced outbound reply: rate check, settings resolution, deferred
// acknowledgment, deadline-bounded completion, fence-safe splitting and
// ordered delivery. Each request runs its own state machine; terminal
// states are final and late upstream results are discarded.
package orchestrator

import (
	"context"
	"time"

	"github.com/hwestman/personabot/internal/interaction"
	"github.com/hwestman/personabot/internal/llm"
	"github.com/hwestman/personabot/internal/settings"
)

// Handle is the transport's opaque reference to a sent acknowledgment.
// The orchestrator only round-trips it back into EditAcknowledgment.
type Handle any

// Transport delivers replies for one channel backend. All methods are
// fallible I/O; the orchestrator retries each failed call once before
// giving up on the interaction.
type Transport interface {
	// Acknowledge sends the initial reply. Empty text requests the
	// transport's native "processing" placeholder; non-empty text is a
	// complete reply that coincides with the acknowledgment.
	Acknowledge(ctx context.Context, req *interaction.Request, text string) (Handle, error)

	// EditAcknowledgment replaces the placeholder with real content.
	// Called at most once per interaction.
	EditAcknowledgment(ctx context.Context, req *interaction.Request, h Handle, text string) error

	// SendFollowup sends an additional ordered chunk after the edit.
	SendFollowup(ctx context.Context, req *interaction.Request, text string) error

	// MaxMessageLen is the platform's per-message size limit in bytes.
	MaxMessageLen() int
}

// FileSender is implemented by transports that can attach files to a
// reply. Transports without it get the text portion only.
type FileSender interface {
	SendFile(ctx context.Context, req *interaction.Request, name string, data []byte) error
}

// ModalOpener is implemented by transports that can answer an
// interaction by opening an input form instead of sending text.
type ModalOpener interface {
	OpenModal(ctx context.Context, req *interaction.Request, m Modal) error
}

// ButtonSender is implemented by transports that can attach clickable
// buttons to a quick reply. Others get the text alone.
type ButtonSender interface {
	AcknowledgeWithButtons(ctx context.Context, req *interaction.Request, text string, buttons []Button) (Handle, error)
}

// Button is one clickable component on a quick reply. Clicks come back
// as KindButton requests carrying the ID.
type Button struct {
	ID       string
	Label    string
	Primary  bool
	Disabled bool
}

// Modal describes an input form a quick plan may open.
type Modal struct {
	ID     string
	Title  string
	Fields []ModalField
}

// ModalField is one text input in a modal.
type ModalField struct {
	ID          string
	Label       string
	Placeholder string
	Paragraph   bool
	Required    bool
	MinLen      int
	MaxLen      int
}

// File is a binary attachment produced by a deferred interaction.
type File struct {
	Name string
	Data []byte
}

// Completer is the LLM boundary. Implementations must honor ctx
// cancellation promptly; *llm.Registry satisfies this.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// StatsSink records one finished interaction, fire-and-forget.
type StatsSink interface {
	Record(id interaction.Identity, kind interaction.Kind, command, outcome string, latency time.Duration)
}

// Plan is what the command router decides a request means.
type Plan struct {
	// Quick interactions ack and reply in a single send.
	Quick bool
	// Reply is the final text for a quick interaction.
	Reply string
	// Modal, when set on a quick plan, is opened as the acknowledgment
	// on transports that support it. Reply is the text fallback.
	Modal *Modal
	// Buttons are attached to the quick reply where the transport
	// supports components.
	Buttons []Button

	// Prompt and System describe the completion for deferred interactions.
	Prompt string
	System string
	// MaxTokens caps the completion (0 = provider default).
	MaxTokens int
	// Prefix is prepended to the completion text before splitting.
	Prefix string
	// Run, when set, replaces the completer for this interaction. Image
	// generation uses it to return attachments alongside text.
	Run func(ctx context.Context) (string, []File, error)
	// RecordHistory appends the user prompt and assistant reply to the
	// conversation. Context-menu lookups and one-shot tools leave it off.
	RecordHistory bool
	// SkipHistory suppresses loading prior turns into the completion.
	SkipHistory bool
}

// Planner maps a request plus its effective settings to a Plan.
// A Plan carrying a user-facing validation message is a normal quick
// plan; an error return means the router itself broke.
type Planner interface {
	Plan(ctx context.Context, req *interaction.Request, eff settings.Effective) (Plan, error)
}

// Config tunes the orchestrator deadlines. Zero values select defaults.
type Config struct {
	AckDeadline      time.Duration // default 3s, measured from Request.ReceivedAt
	CompleteDeadline time.Duration // default 15m, measured from acknowledgment
	SendTimeout      time.Duration // per transport call, default 10s
	RetryBackoff     time.Duration // before the single transport retry, default 100ms
}

const (
	defaultAckDeadline      = 3 * time.Second
	defaultCompleteDeadline = 15 * time.Minute
	defaultSendTimeout      = 10 * time.Second
	defaultRetryBackoff     = 100 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.AckDeadline <= 0 {
		c.AckDeadline = defaultAckDeadline
	}
	if c.CompleteDeadline <= 0 {
		c.CompleteDeadline = defaultCompleteDeadline
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	return c
}
