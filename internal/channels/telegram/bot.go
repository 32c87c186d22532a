// Package telegram runs the bot on Telegram through long polling.
// Slash commands map onto the shared command registry, inline keyboards
// carry quick-reply buttons, and group chats only get replies when the
// bot is mentioned or answered directly.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/hwestman/personabot/internal/channels/types"
	"github.com/hwestman/personabot/internal/commands"
	"github.com/hwestman/personabot/internal/config"
	"github.com/hwestman/personabot/internal/interaction"
	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
	"github.com/hwestman/personabot/internal/orchestrator"
	"github.com/hwestman/personabot/internal/settings"
)

// settingsTimeout bounds the store lookups done while deciding whether
// to answer a group message.
const settingsTimeout = 2 * time.Second

// Dispatcher receives mapped requests together with the transport that
// can answer them.
type Dispatcher interface {
	OnEvent(tr orchestrator.Transport, req *interaction.Request)
}

// Bot is the Telegram channel. One instance serves every chat the bot
// is a member of.
type Bot struct {
	cfg      config.TelegramConfig
	orch     Dispatcher
	resolver *settings.Resolver
	bot      *tele.Bot
	allowed  map[int64]bool

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	lastErr   error
}

// New connects to the Telegram API and registers all handlers. The
// connection is validated immediately, so a bad token fails here
// rather than at Start.
func New(cfg config.TelegramConfig, orch Dispatcher, resolver *settings.Resolver) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}

	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	L_debug("telegram: creating bot", "tokenLength", len(cfg.Token))

	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	L_info("telegram: connected",
		"bot", "@"+tb.Me.Username,
		"name", tb.Me.FirstName,
		"id", tb.Me.ID,
	)

	b := &Bot{
		cfg:      cfg,
		orch:     orch,
		resolver: resolver,
		bot:      tb,
		allowed:  allowedSet(cfg.AllowedUsers),
	}
	b.setupHandlers()
	L_debug("telegram: handlers registered")

	return b, nil
}

func allowedSet(ids []int64) map[int64]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// setupHandlers wires one handler per registry command plus the free
// text and callback fallthroughs. Context menus and the role-based
// admin_role command have no Telegram equivalent.
func (b *Bot) setupHandlers() {
	for _, def := range commands.Definitions() {
		if def.Target != "" || def.Name == "admin_role" {
			continue
		}
		def := def
		b.bot.Handle("/"+def.Name, func(c tele.Context) error {
			return b.handleCommand(c, def)
		})
	}

	b.bot.Handle("/start", func(c tele.Context) error {
		return c.Send("Hello! I'm a persona bot. Send me a message to chat, or try /help for the full command list.")
	})

	b.bot.Handle(tele.OnText, b.handleText)
	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// Name implements channels.ManagedChannel.
func (b *Bot) Name() string { return "telegram" }

// Start publishes the command menu and launches the long poller.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.bot.SetCommands(menuCommands()); err != nil {
		L_warn("telegram: command menu sync failed", "error", err)
		b.setErr(err)
	}

	b.mu.Lock()
	b.running = true
	b.startedAt = time.Now()
	b.mu.Unlock()

	go b.bot.Start()
	L_info("telegram: polling started", "bot", "@"+b.bot.Me.Username)
	return nil
}

// Stop halts the long poller and waits for it to wind down.
func (b *Bot) Stop() error {
	b.mu.Lock()
	running := b.running
	b.running = false
	b.mu.Unlock()

	if running {
		b.bot.Stop()
		L_info("telegram: stopped")
	}
	return nil
}

// Status implements channels.ManagedChannel.
func (b *Bot) Status() types.ChannelStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return types.ChannelStatus{
		Running:   b.running,
		Connected: b.running,
		Error:     b.lastErr,
		StartedAt: b.startedAt,
		Info:      "@" + b.bot.Me.Username,
	}
}

// BotID implements channels.Deliverer.
func (b *Bot) BotID() string {
	return strconv.FormatInt(b.bot.Me.ID, 10)
}

// DeliverReminder sends a due reminder into the chat it was created in,
// linking the user so group members get a proper notification.
func (b *Bot) DeliverReminder(ctx context.Context, channelID, userID, text string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", channelID, err)
	}
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram user id %q: %w", userID, err)
	}

	chat := &tele.Chat{ID: chatID}
	body := fmt.Sprintf(`<a href="tg://user?id=%d">⏰ Reminder</a>`, uid) + "\n" + FormatMessage(text)
	if _, err := b.bot.Send(chat, body, &tele.SendOptions{ParseMode: tele.ModeHTML}); err != nil {
		_, err = b.bot.Send(chat, "⏰ Reminder: "+text)
		if err != nil {
			return fmt.Errorf("telegram reminder send: %w", err)
		}
	}
	return nil
}

func (b *Bot) setErr(err error) {
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()
}

// handleCommand maps a registered slash command onto a request and
// hands it to the orchestrator.
func (b *Bot) handleCommand(c tele.Context, def commands.Definition) error {
	m := c.Message()
	if m == nil || !b.allowedSender(m.Sender) {
		return nil
	}
	MetricInc("telegram", "commands")

	req := b.requestFromCommand(m, def)
	if def.Admin || def.ServerAdmin {
		req.Admin = b.isAdmin(m.Chat, m.Sender)
	}

	b.orch.OnEvent(&chatTransport{bot: b, chat: m.Chat}, req)
	return nil
}

// handleText covers everything that is not a registered command: plain
// persona chat, bang commands, and group mentions.
func (b *Bot) handleText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil || m.Sender.IsBot {
		return nil
	}
	if !b.allowedSender(m.Sender) {
		return nil
	}

	text := strings.TrimSpace(m.Text)
	if text == "" {
		return nil
	}

	if isGroup(m.Chat) && !strings.HasPrefix(text, "!") {
		if !b.addressesMe(m) {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), settingsTimeout)
		mode, _ := b.resolver.Resolve(ctx, settings.KeyMentionReplies,
			chatIDString(m.Chat), groupID(m.Chat))
		cancel()
		if mode == "disabled" {
			L_debug("telegram: mention replies disabled", "chat", m.Chat.ID)
			return nil
		}
	}
	MetricInc("telegram", "messages")

	req := b.requestFromMessage(m, b.stripBotMention(text))
	b.orch.OnEvent(&chatTransport{bot: b, chat: m.Chat}, req)
	return nil
}

// handleCallback turns inline keyboard presses into button requests.
// The press is acknowledged right away so the client stops its
// spinner; the real answer arrives as an edit of the source message.
func (b *Bot) handleCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || cb.Message == nil || !b.allowedSender(cb.Sender) {
		return nil
	}
	if err := c.Respond(&tele.CallbackResponse{}); err != nil {
		L_debug("telegram: callback respond failed", "error", err)
	}
	MetricInc("telegram", "callbacks")

	req := b.requestFromCallback(cb)
	req.Admin = b.isAdmin(cb.Message.Chat, cb.Sender)

	b.orch.OnEvent(&callbackTransport{bot: b, msg: cb.Message}, req)
	return nil
}

func (b *Bot) requestFromCommand(m *tele.Message, def commands.Definition) *interaction.Request {
	req := interaction.NewRequest(interaction.KindCommand, b.identity(m.Chat, m.Sender))
	req.Command = def.Name
	req.Options = commands.OptionsFromText(def, m.Payload)
	if prompt, ok := req.Options[def.PrimaryOption()]; ok {
		req.Prompt = prompt
	}
	return req
}

func (b *Bot) requestFromMessage(m *tele.Message, prompt string) *interaction.Request {
	req := interaction.NewRequest(interaction.KindMessage, b.identity(m.Chat, m.Sender))
	req.Prompt = prompt
	return req
}

func (b *Bot) requestFromCallback(cb *tele.Callback) *interaction.Request {
	req := interaction.NewRequest(interaction.KindButton, b.identity(cb.Message.Chat, cb.Sender))
	req.ComponentID = strings.TrimPrefix(cb.Data, "\f")
	return req
}

func (b *Bot) identity(chat *tele.Chat, sender *tele.User) interaction.Identity {
	id := interaction.Identity{
		BotID:     strconv.FormatInt(b.bot.Me.ID, 10),
		ChannelID: chatIDString(chat),
		GuildID:   groupID(chat),
	}
	if sender != nil {
		id.UserID = strconv.FormatInt(sender.ID, 10)
	}
	return id
}

// allowedSender enforces the configured user allow list. An empty list
// leaves the bot open to everyone.
func (b *Bot) allowedSender(sender *tele.User) bool {
	if sender == nil {
		return false
	}
	if b.allowed == nil {
		return true
	}
	if !b.allowed[sender.ID] {
		L_debug("telegram: sender not on allow list", "userID", sender.ID)
		return false
	}
	return true
}

// isAdmin reports whether the sender may run admin commands. Group
// admins qualify through their chat role. In private chats only
// allow-listed users qualify; by the time this runs the sender has
// already passed allowedSender, so a non-empty list means trusted.
func (b *Bot) isAdmin(chat *tele.Chat, sender *tele.User) bool {
	if chat == nil || sender == nil {
		return false
	}
	if !isGroup(chat) {
		return b.allowed != nil
	}
	member, err := b.bot.ChatMemberOf(chat, sender)
	if err != nil {
		L_warn("telegram: chat member lookup failed", "chat", chat.ID, "error", err)
		return false
	}
	return member.Role == tele.Creator || member.Role == tele.Administrator
}

// addressesMe reports whether a group message mentions the bot or
// replies to one of its messages.
func (b *Bot) addressesMe(m *tele.Message) bool {
	if strings.Contains(m.Text, "@"+b.bot.Me.Username) {
		return true
	}
	return m.ReplyTo != nil && m.ReplyTo.Sender != nil && m.ReplyTo.Sender.ID == b.bot.Me.ID
}

func (b *Bot) stripBotMention(text string) string {
	text = strings.ReplaceAll(text, "@"+b.bot.Me.Username, "")
	return strings.TrimSpace(text)
}

func isGroup(chat *tele.Chat) bool {
	return chat != nil && chat.Type != tele.ChatPrivate
}

func chatIDString(chat *tele.Chat) string {
	if chat == nil {
		return ""
	}
	return strconv.FormatInt(chat.ID, 10)
}

// groupID returns the chat id for group chats and "" for private ones,
// so group-wide settings share the chat's scope and private chats fall
// through to system defaults.
func groupID(chat *tele.Chat) string {
	if !isGroup(chat) {
		return ""
	}
	return strconv.FormatInt(chat.ID, 10)
}

// menuCommands builds the native "/" menu shown in Telegram clients.
func menuCommands() []tele.Command {
	var cmds []tele.Command
	for _, def := range commands.Definitions() {
		if def.Target != "" || def.Name == "admin_role" {
			continue
		}
		cmds = append(cmds, tele.Command{
			Text:        def.Name,
			Description: def.Description,
		})
	}
	return cmds
}
