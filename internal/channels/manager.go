package channels

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/hwestman/personabot/internal/bus"
	"github.com/hwestman/personabot/internal/channels/console"
	"github.com/hwestman/personabot/internal/channels/discord"
	"github.com/hwestman/personabot/internal/channels/telegram"
	"github.com/hwestman/personabot/internal/config"
	. "github.com/hwestman/personabot/internal/logging"
	"github.com/hwestman/personabot/internal/orchestrator"
	"github.com/hwestman/personabot/internal/settings"
	"github.com/hwestman/personabot/internal/store"
)

const (
	retryInitialBackoff = 5 * time.Second
	retryMaxBackoff     = 5 * time.Minute
)

// Manager owns the lifecycle of all configured channels.
type Manager struct {
	orch     *orchestrator.Orchestrator
	resolver *settings.Resolver
	st       *store.Store

	mu          sync.RWMutex
	channels    map[string]ManagedChannel
	retrying    map[string]bool
	retryCancel map[string]context.CancelFunc

	cfg   *config.Config
	ctx   context.Context
	subID bus.SubscriptionID
}

// NewManager creates a channel manager. StartAll brings channels up.
func NewManager(orch *orchestrator.Orchestrator, resolver *settings.Resolver, st *store.Store) *Manager {
	return &Manager{
		orch:        orch,
		resolver:    resolver,
		st:          st,
		channels:    make(map[string]ManagedChannel),
		retrying:    make(map[string]bool),
		retryCancel: make(map[string]context.CancelFunc),
	}
}

// StartAll starts every channel enabled in cfg. A channel that fails to
// start is retried in the background; StartAll itself never fails.
func (m *Manager) StartAll(ctx context.Context, cfg *config.Config) {
	m.ctx = ctx
	m.cfg = cfg

	if cfg.Discord.Enabled() {
		m.launch(ctx, "discord", m.startDiscord)
	} else {
		L_info("discord: disabled, no token configured")
	}

	if cfg.Telegram.Enabled() {
		m.launch(ctx, "telegram", m.startTelegram)
	} else {
		L_info("telegram: disabled, no token configured")
	}

	m.subID = bus.Subscribe(bus.TopicConfigReloaded, func(ev bus.Event) {
		cfg, ok := ev.Data.(*config.Config)
		if !ok {
			L_error("channels: config reload event with unexpected payload")
			return
		}
		m.Reload(cfg)
	})
}

// launch runs start once and falls back to background retry on failure.
func (m *Manager) launch(ctx context.Context, name string, start func(context.Context) error) {
	if err := start(ctx); err != nil {
		L_warn(name+": initial start failed, will retry in background", "error", err)
		m.startRetry(ctx, name, start)
	}
}

func (m *Manager) startDiscord(ctx context.Context) error {
	bot, err := discord.New(m.cfg.Discord, m.orch, m.resolver, m.st)
	if err != nil {
		return err
	}
	if err := bot.Start(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.channels["discord"] = bot
	m.mu.Unlock()

	bus.Publish(bus.TopicChannelUp, "discord")
	L_info("discord: channel ready and listening")
	return nil
}

func (m *Manager) startTelegram(ctx context.Context) error {
	bot, err := telegram.New(m.cfg.Telegram, m.orch, m.resolver)
	if err != nil {
		return err
	}
	if err := bot.Start(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.channels["telegram"] = bot
	m.mu.Unlock()

	bus.Publish(bus.TopicChannelUp, "telegram")
	L_info("telegram: bot ready and listening")
	return nil
}

// startRetry reconnects a failed channel in the background, doubling
// the backoff up to retryMaxBackoff. At most one retry loop runs per
// channel.
func (m *Manager) startRetry(ctx context.Context, name string, start func(context.Context) error) {
	m.mu.Lock()
	if m.retrying[name] {
		m.mu.Unlock()
		return
	}
	m.retrying[name] = true
	retryCtx, cancel := context.WithCancel(ctx)
	m.retryCancel[name] = cancel
	m.mu.Unlock()

	go func() {
		backoff := retryInitialBackoff
		attempt := 1

		for {
			select {
			case <-retryCtx.Done():
				L_info(name + ": shutdown requested, stopping retry")
				return
			case <-time.After(backoff):
			}

			L_info(name+": retrying connection", "attempt", attempt, "backoff", backoff)

			if err := start(retryCtx); err != nil {
				L_warn(name+": connection failed", "error", err, "nextRetry", backoff)
				attempt++
				backoff *= 2
				if backoff > retryMaxBackoff {
					backoff = retryMaxBackoff
				}
				continue
			}

			m.mu.Lock()
			m.retrying[name] = false
			m.mu.Unlock()
			L_info(name+": ready after retry", "attempts", attempt)
			return
		}
	}()
}

// Reload applies a new configuration. Channels whose section changed
// are stopped and restarted; unchanged channels keep running.
func (m *Manager) Reload(cfg *config.Config) {
	m.mu.Lock()
	old := m.cfg
	m.cfg = cfg
	m.mu.Unlock()

	if old == nil || !reflect.DeepEqual(old.Discord, cfg.Discord) {
		m.reloadChannel("discord", cfg.Discord.Enabled(), m.startDiscord)
	}
	if old == nil || !reflect.DeepEqual(old.Telegram, cfg.Telegram) {
		m.reloadChannel("telegram", cfg.Telegram.Enabled(), m.startTelegram)
	}
}

func (m *Manager) reloadChannel(name string, enabled bool, start func(context.Context) error) {
	m.mu.Lock()
	ch := m.channels[name]
	cancel := m.retryCancel[name]
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if ch != nil {
		L_info(name + ": stopping for config reload")
		if err := ch.Stop(); err != nil {
			L_warn(name+": stop failed during reload", "error", err)
		}
		m.mu.Lock()
		delete(m.channels, name)
		m.retrying[name] = false
		m.mu.Unlock()
		bus.Publish(bus.TopicChannelDown, name)
	}

	if !enabled {
		L_info(name + ": disabled by new config")
		return
	}

	if err := start(m.ctx); err != nil {
		L_error(name+": failed to start with new config", "error", err)
		m.startRetry(m.ctx, name, start)
	} else {
		L_info(name + ": reloaded with new config")
	}
}

// StopAll gracefully shuts down every running channel and retry loop.
func (m *Manager) StopAll() {
	if m.subID != 0 {
		bus.Unsubscribe(m.subID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for name, cancel := range m.retryCancel {
		cancel()
		delete(m.retryCancel, name)
	}

	for name, ch := range m.channels {
		L_debug("channels: stopping", "channel", name)
		if err := ch.Stop(); err != nil {
			L_error("channels: stop failed", "channel", name, "error", err)
		}
		bus.Publish(bus.TopicChannelDown, name)
	}
	m.channels = make(map[string]ManagedChannel)
	m.retrying = make(map[string]bool)
}

// RunConsole starts the interactive console channel and blocks until
// the user exits it. The console is never started by StartAll.
func (m *Manager) RunConsole(ctx context.Context, version string) error {
	c := console.New(m.orch, version)

	m.mu.Lock()
	m.channels["console"] = c
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.channels, "console")
		m.mu.Unlock()
	}()

	return c.Run(ctx)
}

// Get returns a running channel by name, or nil.
func (m *Manager) Get(name string) ManagedChannel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[name]
}

// Status snapshots every running channel for the status page.
func (m *Manager) Status() map[string]ChannelStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]ChannelStatus, len(m.channels))
	for name, ch := range m.channels {
		result[name] = ch.Status()
	}
	return result
}

// Deliver routes a reminder to the channel owning botID. It implements
// the reminder scheduler's Deliverer.
func (m *Manager) Deliver(ctx context.Context, botID, channelID, userID, text string) error {
	m.mu.RLock()
	var target Deliverer
	for _, ch := range m.channels {
		if d, ok := ch.(Deliverer); ok && d.BotID() == botID {
			target = d
			break
		}
	}
	m.mu.RUnlock()

	if target == nil {
		return fmt.Errorf("no running channel for bot %q", botID)
	}
	return target.DeliverReminder(ctx, channelID, userID, text)
}
