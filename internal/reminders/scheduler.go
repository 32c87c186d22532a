package reminders

import (
	"context"
	"fmt"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/hwestman/personabot/internal/llm"
	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
	"github.com/hwestman/personabot/internal/personas"
	"github.com/hwestman/personabot/internal/store"
)

const (
	// tickSpec drives the due check. Reminder resolution is one minute.
	tickSpec = "@every 1m"

	tickTimeout     = 45 * time.Second
	flavorTimeout   = 20 * time.Second
	flavorMaxTokens = 150
)

// deliveryInstruction is appended to the persona prompt when rendering
// the delivery line.
const deliveryInstruction = "Your task is to deliver a reminder to the user in your characteristic style. " +
	"Keep it brief (1-2 sentences max) but in-character. " +
	"Make it feel personal and warm, not robotic. " +
	"The reminder message is: \"%s\""

// Store is the persistence the scheduler needs.
type Store interface {
	DueReminders(ctx context.Context, now time.Time) ([]store.Reminder, error)
	MarkReminderDelivered(ctx context.Context, id int64) error
	GetUserPersona(ctx context.Context, botID, userID string) (string, error)
}

// Completer renders the persona-flavored delivery line.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Deliverer routes a finished reminder back into the channel it came
// from. The channel manager implements this.
type Deliverer interface {
	Deliver(ctx context.Context, botID, channelID, userID, text string) error
}

// Scheduler wakes once a minute and delivers due reminders.
type Scheduler struct {
	store     Store
	personas  *personas.Manager
	completer Completer
	deliverer Deliverer

	cron *cronlib.Cron
	now  func() time.Time
}

// New assembles a Scheduler. Call Start to begin ticking.
func New(st Store, pm *personas.Manager, completer Completer, deliverer Deliverer) *Scheduler {
	return &Scheduler{
		store:     st,
		personas:  pm,
		completer: completer,
		deliverer: deliverer,
		now:       time.Now,
	}
}

// SetNow overrides the clock; tests use this for deterministic due sets.
func (s *Scheduler) SetNow(now func() time.Time) {
	s.now = now
}

// Start begins the minute tick. Idempotent only in the sense that a
// second Start replaces the previous cron instance; callers start once.
func (s *Scheduler) Start() {
	s.cron = cronlib.New()
	if _, err := s.cron.AddFunc(tickSpec, s.tick); err != nil {
		panic(fmt.Sprintf("reminders: bad tick spec %q: %v", tickSpec, err))
	}
	s.cron.Start()
	L_info("reminders: scheduler started", "tick", tickSpec)
}

// Stop halts the tick and waits for an in-flight delivery pass.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	L_info("reminders: scheduler stopped")
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()
	s.deliverDue(ctx)
}

// deliverDue loads and delivers everything due. Every processed row is
// marked delivered, even on failure, so a broken channel can never make
// the same reminder fire again each minute.
func (s *Scheduler) deliverDue(ctx context.Context) {
	due, err := s.store.DueReminders(ctx, s.now())
	if err != nil {
		L_warn("reminders: due query failed", "error", err)
		return
	}
	if len(due) == 0 {
		L_trace("reminders: nothing due")
		return
	}
	L_info("reminders: processing due reminders", "count", len(due))

	for _, r := range due {
		text := s.flavored(ctx, r)
		if err := s.deliverer.Deliver(ctx, r.BotID, r.ChannelID, r.UserID, text); err != nil {
			MetricInc("reminders", "delivery_failed")
			L_warn("reminders: delivery failed", "id", r.ID, "user", r.UserID, "error", err)
		} else {
			MetricInc("reminders", "delivered")
			L_info("reminders: delivered", "id", r.ID, "user", r.UserID)
		}
		if err := s.store.MarkReminderDelivered(ctx, r.ID); err != nil {
			L_error("reminders: mark delivered failed", "id", r.ID, "error", err)
		}
	}
}

// flavored renders the delivery line in the owner's persona voice,
// falling back to a canned per-persona line when the model is down.
func (s *Scheduler) flavored(ctx context.Context, r store.Reminder) string {
	personaKey, err := s.store.GetUserPersona(ctx, r.BotID, r.UserID)
	if err != nil {
		L_debug("reminders: persona lookup failed, using default", "user", r.UserID, "error", err)
	}
	if personaKey == "" || !s.personas.Exists(personaKey) {
		personaKey = personas.DefaultPersona
	}

	system := fmt.Sprintf("%s\n\n"+deliveryInstruction, s.personas.SystemPrompt(personaKey, ""), r.Message)

	cctx, cancel := context.WithTimeout(ctx, flavorTimeout)
	defer cancel()
	out, err := s.completer.Complete(cctx, llm.CompletionRequest{
		System:    system,
		Prompt:    "Please deliver this reminder to me now.",
		MaxTokens: flavorMaxTokens,
	})
	if err != nil || strings.TrimSpace(out) == "" {
		MetricInc("reminders", "flavor_fallbacks")
		L_warn("reminders: flavored delivery unavailable, using fallback", "id", r.ID, "error", err)
		return Fallback(personaKey, r.Message)
	}
	return strings.TrimSpace(out)
}

// Fallback is the canned delivery line per persona, used when the model
// cannot be reached.
func Fallback(personaKey, text string) string {
	switch personaKey {
	case "obi":
		return fmt.Sprintf("The Force whispers that the time has come, young one. You asked me to remind you: **%s**", text)
	case "muppet":
		return fmt.Sprintf("*waves arms excitedly* Hey hey hey! Time for your reminder! You said: **%s**", text)
	case "chef":
		return fmt.Sprintf("*taps spoon on counter* Just like checking on a dish in the oven, here's your reminder: **%s**", text)
	case "teacher":
		return fmt.Sprintf("Time for your reminder! Here's what you wanted to remember: **%s**", text)
	case "analyst":
		return fmt.Sprintf("Reminder notification: **%s**", text)
	default:
		return fmt.Sprintf("⏰ Reminder: **%s**", text)
	}
}

// FormatList renders a user's pending reminders for /reminders.
func FormatList(rs []store.Reminder, now time.Time) string {
	if len(rs) == 0 {
		return "You have no pending reminders."
	}
	var b strings.Builder
	b.WriteString("⏰ **Your reminders**\n\n")
	for _, r := range rs {
		fmt.Fprintf(&b, "`#%d` in %s — %s\n", r.ID, FormatLead(r.RemindAt.Sub(now)), r.Message)
	}
	b.WriteString("\nUse `/reminders action:cancel id:<number>` to cancel one.")
	return b.String()
}
