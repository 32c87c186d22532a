package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hwestman/personabot/internal/history"
	"github.com/hwestman/personabot/internal/imagine"
	"github.com/hwestman/personabot/internal/interaction"
	"github.com/hwestman/personabot/internal/introspect"
	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
	"github.com/hwestman/personabot/internal/orchestrator"
	"github.com/hwestman/personabot/internal/personas"
	"github.com/hwestman/personabot/internal/ratelimit"
	"github.com/hwestman/personabot/internal/reminders"
	"github.com/hwestman/personabot/internal/settings"
	"github.com/hwestman/personabot/internal/store"
)

// User-facing strings shared across handlers.
const (
	msgUnknownCommand   = "Unknown command. Use `/help` to see available commands."
	msgUnknownComponent = "Unknown component interaction."
	msgUnknownModal     = "Unknown modal submission."
	msgAdminOnly        = "🔒 This command requires admin permissions."
	msgGuildOnly        = "This command only works in a server."
	msgStoreError       = "❌ Something went wrong saving that. Please try again."
)

// Store is the persistence the router needs: persona preferences,
// reminders, and the raw guild-settings write behind /admin_role.
type Store interface {
	GetUserPersona(ctx context.Context, botID, userID string) (string, error)
	SetUserPersona(ctx context.Context, botID, userID, persona string) error
	SetSetting(ctx context.Context, scope settings.Scope, scopeID, key, value string) error
	AddReminder(ctx context.Context, r *store.Reminder) error
	ListReminders(ctx context.Context, botID, userID string) ([]store.Reminder, error)
	CancelReminder(ctx context.Context, botID, userID string, id int64) (bool, error)
}

// ImageGenerator produces one image for /imagine.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, size imagine.Size, style imagine.Style) (*imagine.Result, error)
}

// Router owns every command's semantics. The channel adapters only carry
// requests in and replies out; the orchestrator calls Plan once per
// request after the rate check and settings resolution.
type Router struct {
	version  string
	started  time.Time
	store    Store
	resolver *settings.Resolver
	personas *personas.Manager
	history  *history.Context
	limiter  *ratelimit.Limiter
	images   ImageGenerator

	now func() time.Time
}

// New wires the router. images may be nil when no image provider is
// configured; /imagine then reports itself unavailable.
func New(version string, st Store, resolver *settings.Resolver, pm *personas.Manager,
	hist *history.Context, limiter *ratelimit.Limiter, images ImageGenerator) *Router {
	return &Router{
		version:  version,
		started:  time.Now(),
		store:    st,
		resolver: resolver,
		personas: pm,
		history:  hist,
		limiter:  limiter,
		images:   images,
		now:      time.Now,
	}
}

// SetNow overrides the clock for tests.
func (r *Router) SetNow(now func() time.Time) {
	r.now = now
	r.started = now()
}

func quick(text string) orchestrator.Plan {
	return orchestrator.Plan{Quick: true, Reply: text}
}

// Plan implements orchestrator.Planner.
func (r *Router) Plan(ctx context.Context, req *interaction.Request, eff settings.Effective) (orchestrator.Plan, error) {
	switch req.Kind {
	case interaction.KindCommand:
		return r.planCommand(ctx, req, eff)
	case interaction.KindContextMenu:
		return r.planContextMenu(ctx, req, eff)
	case interaction.KindButton:
		return r.planButton(ctx, req)
	case interaction.KindModal:
		return r.planModal(ctx, req, eff)
	case interaction.KindMessage:
		return r.planMessage(ctx, req, eff)
	}
	L_warn("commands: request with unknown kind", "request", req.ID, "kind", req.Kind)
	return quick(msgUnknownCommand), nil
}

func (r *Router) planCommand(ctx context.Context, req *interaction.Request, eff settings.Effective) (orchestrator.Plan, error) {
	def, ok := Lookup(req.Command)
	if !ok || def.Target != "" {
		MetricInc("commands", "unknown")
		L_debug("commands: unknown command", "request", req.ID, "command", req.Command)
		return quick(msgUnknownCommand), nil
	}
	if (def.Admin || def.ServerAdmin) && !req.Admin {
		MetricInc("commands", "admin_denied")
		L_debug("commands: admin command denied", "request", req.ID, "command", req.Command, "user", req.Identity.UserID)
		return quick(msgAdminOnly), nil
	}

	switch req.Command {
	case "ping":
		ms := r.now().Sub(req.ReceivedAt).Milliseconds()
		return quick(fmt.Sprintf("Pong! (%dms)", ms)), nil

	case "help":
		return orchestrator.Plan{Quick: true, Reply: helpText, Buttons: helpButtons()}, nil

	case "personas":
		current := r.personaFor(ctx, req, eff)
		return orchestrator.Plan{
			Quick:   true,
			Reply:   r.personas.FormatList(current),
			Buttons: personaButtons(),
		}, nil

	case "set_persona":
		return r.planSetPersona(ctx, req), nil

	case "forget":
		return r.planForget(ctx, req), nil

	case "hey", "explain", "simple", "steps", "recipe":
		return r.planChat(ctx, req, eff), nil

	case "imagine":
		return r.planImagine(req), nil

	case "remind":
		return r.planRemind(ctx, req), nil

	case "reminders":
		return r.planReminders(ctx, req), nil

	case "introspect":
		return r.planIntrospect(ctx, req, eff), nil

	case "settings":
		return planSettingsView(eff), nil

	case "set_channel_verbosity":
		return r.planSetChannelVerbosity(ctx, req), nil

	case "set_guild_setting":
		return r.planSetGuildSetting(ctx, req), nil

	case "admin_role":
		return r.planAdminRole(ctx, req), nil
	}

	// Registry and dispatch drifted apart; treat it like an unknown command.
	L_error("commands: registered command has no handler", "command", req.Command)
	return quick(msgUnknownCommand), nil
}

// personaFor resolves the persona an interaction speaks with: the user's
// stored preference when it names a known persona, the effective default
// otherwise. Store failures degrade to the default silently.
func (r *Router) personaFor(ctx context.Context, req *interaction.Request, eff settings.Effective) string {
	key, err := r.store.GetUserPersona(ctx, req.Identity.BotID, req.Identity.UserID)
	if err != nil {
		L_warn("commands: user persona unavailable, using default", "user", req.Identity.UserID, "error", err)
	}
	if key == "" || !r.personas.Exists(key) {
		return eff.DefaultPersona
	}
	return key
}

func (r *Router) planSetPersona(ctx context.Context, req *interaction.Request) orchestrator.Plan {
	name := strings.ToLower(strings.TrimSpace(req.Option("persona")))
	if !r.personas.Exists(name) {
		return quick("Invalid persona. Use `/personas` to see available options.")
	}
	if err := r.store.SetUserPersona(ctx, req.Identity.BotID, req.Identity.UserID, name); err != nil {
		L_error("commands: persona preference not saved", "user", req.Identity.UserID, "error", err)
		return quick(msgStoreError)
	}
	MetricInc("commands", "persona_set")
	return quick(fmt.Sprintf("Your persona has been set to: `%s`", name))
}

func (r *Router) planForget(ctx context.Context, req *interaction.Request) orchestrator.Plan {
	if err := r.history.Clear(ctx, req.Identity); err != nil {
		L_error("commands: history not cleared", "user", req.Identity.UserID, "error", err)
		return quick("❌ Something went wrong clearing your history. Please try again.")
	}
	r.limiter.Reset(req.Identity.BotID, req.Identity.UserID)
	MetricInc("commands", "forget")
	return quick("🧹 Your conversation history has been cleared! I'll start fresh from now on.")
}

// chatOptionName maps an AI command to the option holding its prompt.
func chatOptionName(command string) string {
	switch command {
	case "explain", "simple":
		return "topic"
	case "steps":
		return "task"
	case "recipe":
		return "food"
	}
	return "message"
}

// chatModifier maps an AI command to its persona prompt modifier.
func chatModifier(command string) string {
	switch command {
	case "explain":
		return personas.ModifierExplain
	case "simple":
		return personas.ModifierSimple
	case "steps":
		return personas.ModifierSteps
	case "recipe":
		return personas.ModifierRecipe
	}
	return ""
}

func (r *Router) planChat(ctx context.Context, req *interaction.Request, eff settings.Effective) orchestrator.Plan {
	option := chatOptionName(req.Command)
	prompt := strings.TrimSpace(req.Option(option))
	if prompt == "" {
		return quick(fmt.Sprintf("Please provide a %s.", option))
	}

	persona := r.personaFor(ctx, req, eff)
	MetricInc("commands", "chat")
	return orchestrator.Plan{
		Prompt:        prompt,
		System:        r.personas.SystemPrompt(persona, chatModifier(req.Command)) + settings.VerbosityInstruction(eff.Verbosity),
		MaxTokens:     settings.VerbosityMaxTokens(eff.Verbosity),
		RecordHistory: true,
	}
}

func (r *Router) planImagine(req *interaction.Request) orchestrator.Plan {
	if r.images == nil {
		return quick("❌ Image generation is not configured on this bot.")
	}
	prompt := strings.TrimSpace(req.Option("prompt"))
	if prompt == "" {
		return quick("Please provide a prompt.")
	}
	size, ok := imagine.ParseSize(req.Option("size"))
	if !ok {
		return quick("Invalid size. Choose square, landscape or portrait.")
	}
	style, ok := imagine.ParseStyle(req.Option("style"))
	if !ok {
		return quick("Invalid style. Choose vivid or natural.")
	}

	images := r.images
	return orchestrator.Plan{
		SkipHistory: true,
		Run: func(ctx context.Context) (string, []orchestrator.File, error) {
			res, err := images.Generate(ctx, prompt, size, style)
			if err != nil {
				return "", nil, err
			}
			text := fmt.Sprintf("🎨 **%s**", prompt)
			if res.RevisedPrompt != "" && res.RevisedPrompt != prompt {
				text += fmt.Sprintf("\n\n_DALL-E interpreted this as: %s_", res.RevisedPrompt)
			}
			return text, []orchestrator.File{{Name: res.Name, Data: res.Data}}, nil
		},
	}
}

func (r *Router) planRemind(ctx context.Context, req *interaction.Request) orchestrator.Plan {
	lead, err := reminders.Parse(req.Option("time"))
	if err != nil {
		return quick(fmt.Sprintf("❌ I couldn't read that time (%v). Try formats like `30m`, `2h`, `1d` or `1h30m`.", err))
	}
	message := strings.TrimSpace(req.Option("message"))
	if message == "" {
		return quick("Please provide a message.")
	}

	now := r.now()
	rem := &store.Reminder{
		BotID:     req.Identity.BotID,
		UserID:    req.Identity.UserID,
		ChannelID: req.Identity.ChannelID,
		Message:   message,
		RemindAt:  now.Add(lead),
		CreatedAt: now,
	}
	if err := r.store.AddReminder(ctx, rem); err != nil {
		L_error("commands: reminder not saved", "user", req.Identity.UserID, "error", err)
		return quick(msgStoreError)
	}
	MetricInc("commands", "reminder_set")
	return quick(fmt.Sprintf("⏰ Got it! I'll remind you in %s: **%s**", reminders.FormatLead(lead), message))
}

func (r *Router) planReminders(ctx context.Context, req *interaction.Request) orchestrator.Plan {
	action := req.Option("action")
	if action == "" {
		action = "list"
	}

	switch action {
	case "list":
		list, err := r.store.ListReminders(ctx, req.Identity.BotID, req.Identity.UserID)
		if err != nil {
			L_error("commands: reminders not listed", "user", req.Identity.UserID, "error", err)
			return quick("❌ Something went wrong loading your reminders. Please try again.")
		}
		return quick(reminders.FormatList(list, r.now()))

	case "cancel":
		id, err := strconv.ParseInt(req.Option("id"), 10, 64)
		if err != nil || id <= 0 {
			return quick("Please provide the reminder ID to cancel, e.g. `/reminders action:cancel id:3`.")
		}
		ok, err := r.store.CancelReminder(ctx, req.Identity.BotID, req.Identity.UserID, id)
		if err != nil {
			L_error("commands: reminder not cancelled", "user", req.Identity.UserID, "id", id, "error", err)
			return quick(msgStoreError)
		}
		if !ok {
			return quick(fmt.Sprintf("❌ No pending reminder `#%d` found.", id))
		}
		MetricInc("commands", "reminder_cancelled")
		return quick(fmt.Sprintf("🗑️ Reminder `#%d` cancelled.", id))
	}
	return quick("Unknown action. Use `list` or `cancel`.")
}

const introspectFraming = "\n\nYou are explaining your own implementation to a curious admin. " +
	"Stay fully in character, but be technically accurate: everything below " +
	"describes how you actually work. Walk through it in your own words.\n\n" +
	"--- IMPLEMENTATION NOTES ---\n"

func (r *Router) planIntrospect(ctx context.Context, req *interaction.Request, eff settings.Effective) orchestrator.Plan {
	doc, ok := introspect.Component(req.Option("component"))
	if !ok {
		return quick("I don't have information about that component.")
	}

	persona := r.personaFor(ctx, req, eff)
	MetricInc("commands", "introspect")
	return orchestrator.Plan{
		Prompt:      fmt.Sprintf("Please explain your %s to me.", strings.ToLower(doc.Title)),
		System:      r.personas.SystemPrompt(persona, "") + introspectFraming + doc.Body,
		MaxTokens:   settings.VerbosityMaxTokens(settings.VerbosityDetailed),
		Prefix:      fmt.Sprintf("🔍 **%s**\n\n", doc.Title),
		SkipHistory: true,
	}
}

func planSettingsView(eff settings.Effective) orchestrator.Plan {
	mention := "enabled"
	if !eff.MentionReplies {
		mention = "disabled"
	}

	var b strings.Builder
	b.WriteString("⚙️ **Effective bot settings for this channel**\n\n")
	fmt.Fprintf(&b, "Verbosity: `%s`\n", eff.Verbosity)
	fmt.Fprintf(&b, "Default persona: `%s`\n", eff.DefaultPersona)
	fmt.Fprintf(&b, "Max context messages: `%d`\n", eff.MaxContext)
	fmt.Fprintf(&b, "Mention responses: `%s`\n", mention)
	if eff.Degraded {
		b.WriteString("\n⚠️ The settings store is currently unavailable; these are the system defaults.")
	}
	return quick(b.String())
}

func (r *Router) planSetChannelVerbosity(ctx context.Context, req *interaction.Request) orchestrator.Plan {
	level := req.Option("level")
	target := req.Option("channel")
	explicit := target != ""
	if !explicit {
		target = req.Identity.ChannelID
	}

	if err := r.resolver.Set(ctx, settings.ScopeChannel, target, settings.KeyVerbosity, level); err != nil {
		return quick(fmt.Sprintf("❌ %v", err))
	}
	MetricInc("commands", "setting_updated")
	if explicit {
		return quick(fmt.Sprintf("✅ Verbosity for channel `%s` set to `%s`.", target, level))
	}
	return quick(fmt.Sprintf("✅ Verbosity for this channel set to `%s`.", level))
}

func (r *Router) planSetGuildSetting(ctx context.Context, req *interaction.Request) orchestrator.Plan {
	if req.Identity.GuildID == "" {
		return quick(msgGuildOnly)
	}
	key := req.Option("setting")
	value := strings.TrimSpace(req.Option("value"))

	// The persona key is free-form in the settings layer; it is validated
	// against the roster here, where the manager is available.
	if key == settings.KeyDefaultPersona && !r.personas.Exists(strings.ToLower(value)) {
		return quick("Invalid persona. Use `/personas` to see available options.")
	}

	if err := r.resolver.Set(ctx, settings.ScopeGuild, req.Identity.GuildID, key, value); err != nil {
		MetricInc("commands", "setting_rejected")
		return quick(fmt.Sprintf("❌ %v", err))
	}
	MetricInc("commands", "setting_updated")
	return quick(fmt.Sprintf("✅ Guild setting `%s` set to `%s`.", key, value))
}

func (r *Router) planAdminRole(ctx context.Context, req *interaction.Request) orchestrator.Plan {
	if req.Identity.GuildID == "" {
		return quick(msgGuildOnly)
	}
	roleID := strings.TrimSpace(req.Option("role"))
	if roleID == "" {
		return quick("Please provide a role.")
	}

	if err := r.store.SetSetting(ctx, settings.ScopeGuild, req.Identity.GuildID, settings.KeyAdminRole, roleID); err != nil {
		L_error("commands: admin role not saved", "guild", req.Identity.GuildID, "error", err)
		return quick(msgStoreError)
	}
	L_info("commands: admin role updated", "guild", req.Identity.GuildID, "role", roleID)
	return quick("✅ Members with that role can now manage bot settings.")
}

func (r *Router) planContextMenu(ctx context.Context, req *interaction.Request, eff settings.Effective) (orchestrator.Plan, error) {
	target := strings.TrimSpace(req.TargetText)
	persona := r.personaFor(ctx, req, eff)

	var modifier, prompt, prefix string
	switch req.Command {
	case "Analyze Message", "Explain Message":
		if target == "" {
			return quick("That message has no text to analyze."), nil
		}
		modifier = personas.ModifierSteps
		if req.Command == "Explain Message" {
			modifier = personas.ModifierExplain
		}
		prompt = fmt.Sprintf("Please analyze this message: %q", target)
		prefix = fmt.Sprintf("📝 **%s:**\n", req.Command)

	case "Analyze User":
		if target == "" {
			return quick("I couldn't tell who to analyze."), nil
		}
		modifier = personas.ModifierExplain
		prompt = "Please provide general information about chat users and their roles in communities. The user being analyzed is: " + target
		prefix = "👤 **User Analysis:**\n"

	default:
		MetricInc("commands", "unknown")
		return quick(msgUnknownCommand), nil
	}

	MetricInc("commands", "context_menu")
	return orchestrator.Plan{
		Prompt:      prompt,
		System:      r.personas.SystemPrompt(persona, modifier) + settings.VerbosityInstruction(eff.Verbosity),
		MaxTokens:   settings.VerbosityMaxTokens(eff.Verbosity),
		Prefix:      prefix,
		SkipHistory: true,
	}, nil
}

func (r *Router) planMessage(ctx context.Context, req *interaction.Request, eff settings.Effective) (orchestrator.Plan, error) {
	text := strings.TrimSpace(req.Prompt)
	if strings.HasPrefix(text, "!") {
		return r.planBang(req, strings.TrimPrefix(text, "!")), nil
	}
	if text == "" {
		return quick("👋 Hey! Say something after the mention and I'll answer."), nil
	}

	persona := r.personaFor(ctx, req, eff)
	MetricInc("commands", "chat")
	return orchestrator.Plan{
		Prompt:        text,
		System:        r.personas.SystemPrompt(persona, "") + settings.VerbosityInstruction(eff.Verbosity),
		MaxTokens:     settings.VerbosityMaxTokens(eff.Verbosity),
		RecordHistory: true,
	}, nil
}
