package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hwestman/personabot/internal/bus"
	"github.com/hwestman/personabot/internal/channels"
	"github.com/hwestman/personabot/internal/channels/discord"
	"github.com/hwestman/personabot/internal/commands"
	"github.com/hwestman/personabot/internal/config"
	"github.com/hwestman/personabot/internal/history"
	"github.com/hwestman/personabot/internal/imagine"
	"github.com/hwestman/personabot/internal/llm"
	. "github.com/hwestman/personabot/internal/logging"
	"github.com/hwestman/personabot/internal/orchestrator"
	"github.com/hwestman/personabot/internal/personas"
	"github.com/hwestman/personabot/internal/ratelimit"
	"github.com/hwestman/personabot/internal/reminders"
	"github.com/hwestman/personabot/internal/settings"
	"github.com/hwestman/personabot/internal/stats"
	"github.com/hwestman/personabot/internal/store"
	"github.com/hwestman/personabot/internal/web"
)

// drainTimeout bounds how long shutdown waits for in-flight
// interactions to finish.
const drainTimeout = 30 * time.Second

// bot holds every long-lived component in construction order.
type bot struct {
	cfg       *config.Config
	store     *store.Store
	resolver  *settings.Resolver
	history   *history.Context
	personas  *personas.Manager
	registry  *llm.Registry
	limiter   *ratelimit.Limiter
	router    *commands.Router
	recorder  *stats.Recorder
	orch      *orchestrator.Orchestrator
	manager   *channels.Manager
	scheduler *reminders.Scheduler

	web     *web.Server
	watcher *config.Watcher
}

// buildBot wires the core stack shared by run and console modes.
// Network channels, the web server and the config watcher are started
// separately by startNetwork.
func buildBot(cfg *config.Config) (*bot, error) {
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	registry, err := llm.NewRegistry(cfg.LLM)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, fmt.Errorf("constructing llm providers: %w", err)
	}

	resolver := settings.NewResolver(st)
	hist := history.New(st)
	pm := personas.NewManagerWithOverlay(cfg.PersonasPath())
	limiter := ratelimit.New(cfg.RateWindow())

	// Image generation rides on the OpenAI credential; without one the
	// router reports /imagine as unavailable.
	var images commands.ImageGenerator
	if pc, ok := cfg.LLM.Providers["openai"]; ok && pc.APIKey != "" {
		gen := imagine.New(pc.APIKey)
		gen.SetModel(cfg.Imagine.Model)
		images = gen
	}

	router := commands.New(version, st, resolver, pm, hist, limiter, images)
	recorder := stats.NewRecorder(st)

	orch := orchestrator.New(orchestrator.Config{
		AckDeadline:      time.Duration(cfg.Timeouts.AckSeconds) * time.Second,
		CompleteDeadline: time.Duration(cfg.Timeouts.CompleteSeconds) * time.Second,
		SendTimeout:      time.Duration(cfg.Timeouts.SendSeconds) * time.Second,
	}, limiter, resolver, hist, router, registry, recorder)

	manager := channels.NewManager(orch, resolver, st)
	scheduler := reminders.New(st, pm, registry, manager)

	return &bot{
		cfg:       cfg,
		store:     st,
		resolver:  resolver,
		history:   hist,
		personas:  pm,
		registry:  registry,
		limiter:   limiter,
		router:    router,
		recorder:  recorder,
		orch:      orch,
		manager:   manager,
		scheduler: scheduler,
	}, nil
}

// startNetwork brings up the configured channels, the reminder
// scheduler, the web server and the config file watcher.
func (b *bot) startNetwork(ctx context.Context, cfgPath string) {
	b.manager.StartAll(ctx, b.cfg)
	b.scheduler.Start()

	if b.cfg.Web.Enabled() {
		srv, err := web.NewServer(b.cfg.Web, version, b.manager, b.store, b.interactionsHandler)
		if err != nil {
			L_error("web: not started", "error", err)
		} else {
			b.web = srv
			b.web.Start() //nolint:errcheck
		}
	}

	watcher, err := config.Watch(cfgPath, func() {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			L_error("config: reload failed, keeping old config", "error", err)
			return
		}
		L_info("config: reloaded", "path", cfgPath)
		bus.Publish(bus.TopicConfigReloaded, cfg)
	})
	if err != nil {
		L_warn("config: live reload unavailable", "error", err)
		return
	}
	b.watcher = watcher
}

// interactionsHandler exposes the Discord signed-webhook endpoint to
// the web server. Returns nil unless Discord runs in webhook mode.
func (b *bot) interactionsHandler() http.Handler {
	ch := b.manager.Get("discord")
	if ch == nil {
		return nil
	}
	d, ok := ch.(*discord.Bot)
	if !ok {
		return nil
	}
	return d.InteractionHandler()
}

// shutdown stops intake first, then drains in-flight work, then closes
// the writers. Reverse of construction order.
func (b *bot) shutdown() {
	if b.watcher != nil {
		b.watcher.Stop() //nolint:errcheck
	}
	if b.web != nil {
		b.web.Stop() //nolint:errcheck
	}
	b.scheduler.Stop()
	b.manager.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := b.orch.Drain(ctx); err != nil {
		L_warn("orchestrator: drain incomplete", "error", err)
	}

	b.recorder.Close()
	if err := b.store.Close(); err != nil {
		L_warn("store: close failed", "error", err)
	}
}
