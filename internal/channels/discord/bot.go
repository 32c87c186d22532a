package discord

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hwestman/personabot/internal/channels/types"
	"github.com/hwestman/personabot/internal/config"
	"github.com/hwestman/personabot/internal/interaction"
	. "github.com/hwestman/personabot/internal/logging"
	"github.com/hwestman/personabot/internal/orchestrator"
	"github.com/hwestman/personabot/internal/settings"
)

const startTimeout = 15 * time.Second

// Dispatcher starts orchestration of one inbound request. The
// orchestrator implements it.
type Dispatcher interface {
	OnEvent(tr orchestrator.Transport, req *interaction.Request)
}

// SettingsStore is the direct settings read the adapter needs for
// admin-role checks.
type SettingsStore interface {
	GetSetting(ctx context.Context, scope settings.Scope, scopeID, key string) (string, bool, error)
}

// Bot is the Discord channel. It registers the command surface, turns
// interactions and messages into orchestrator requests, and carries
// replies and reminders back through the REST API.
type Bot struct {
	cfg      config.DiscordConfig
	orch     Dispatcher
	resolver *settings.Resolver
	st       SettingsStore

	client  *Client
	sess    *session
	webhook *webhookHandler

	mu        sync.Mutex
	botUser   User
	startedAt time.Time
	running   bool
	lastErr   error
}

// New builds the channel. In webhook mode the interactions handler is
// ready immediately; Start still validates the token.
func New(cfg config.DiscordConfig, orch Dispatcher, resolver *settings.Resolver, st SettingsStore) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token not configured")
	}
	if cfg.AppID == "" {
		return nil, fmt.Errorf("discord application id not configured")
	}

	b := &Bot{
		cfg:      cfg,
		orch:     orch,
		resolver: resolver,
		st:       st,
		client:   NewClient(cfg.Token, cfg.AppID),
	}

	if cfg.Mode == "webhook" {
		h, err := newWebhookHandler(b, cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		b.webhook = h
	}
	return b, nil
}

// Name implements channels.ManagedChannel.
func (b *Bot) Name() string { return "discord" }

// BotID routes reminders back to this channel.
func (b *Bot) BotID() string { return b.cfg.AppID }

// Start validates credentials, syncs the command set and, in gateway
// mode, opens the realtime connection.
func (b *Bot) Start(ctx context.Context) error {
	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	me, err := b.client.CurrentUser(startCtx)
	if err != nil {
		b.setErr(err)
		return fmt.Errorf("verifying token: %w", err)
	}
	b.mu.Lock()
	b.botUser = me
	b.mu.Unlock()

	// A failed sync leaves stale commands but the bot still works;
	// log and carry on.
	if err := b.syncCommands(startCtx); err != nil {
		L_warn("discord: command sync failed", "error", err)
	}

	if b.cfg.Mode != "webhook" {
		url, err := b.client.GatewayURL(startCtx)
		if err != nil {
			b.setErr(err)
			return fmt.Errorf("resolving gateway: %w", err)
		}
		sess := newSession(b.cfg.Token, url, b.handleDispatch)
		if err := sess.Open(ctx); err != nil {
			b.setErr(err)
			return err
		}
		b.sess = sess
	}

	b.mu.Lock()
	b.running = true
	b.startedAt = time.Now()
	b.lastErr = nil
	b.mu.Unlock()

	L_info("discord: started", "user", me.Tag(), "mode", b.mode())
	return nil
}

// Stop closes the gateway connection, if any.
func (b *Bot) Stop() error {
	if b.sess != nil {
		b.sess.Close()
		b.sess = nil
	}
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
	L_info("discord: stopped")
	return nil
}

// Status implements channels.ManagedChannel.
func (b *Bot) Status() types.ChannelStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	connected := b.running
	if b.sess != nil {
		connected = b.sess.Connected()
	}
	info := ""
	if b.botUser.ID != "" {
		info = b.botUser.Tag() + " (" + b.mode() + ")"
	}
	return types.ChannelStatus{
		Running:   b.running,
		Connected: connected,
		Error:     b.lastErr,
		StartedAt: b.startedAt,
		Info:      info,
	}
}

// InteractionHandler returns the signed-webhook endpoint handler, or
// nil in gateway mode. The web server mounts it.
func (b *Bot) InteractionHandler() http.Handler {
	if b.webhook == nil {
		return nil
	}
	return b.webhook
}

// DeliverReminder implements channels.Deliverer: the reminder text is
// posted to the origin channel with a mention so the user is pinged.
func (b *Bot) DeliverReminder(ctx context.Context, channelID, userID, text string) error {
	content := fmt.Sprintf("<@%s> %s", userID, text)
	_, err := b.client.CreateMessage(ctx, channelID, messagePayload{Content: content})
	return err
}

func (b *Bot) mode() string {
	if b.cfg.Mode == "webhook" {
		return "webhook"
	}
	return "gateway"
}

func (b *Bot) setErr(err error) {
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()
}
