package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/hwestman/personabot/internal/history"
	"github.com/hwestman/personabot/internal/interaction"
	"github.com/hwestman/personabot/internal/ratelimit"
	"github.com/hwestman/personabot/internal/settings"
)

// Orchestrator dispatches one task per inbound request. It is shared by
// every channel; the Transport passed to OnEvent binds a request to the
// channel it arrived on.
type Orchestrator struct {
	cfg       Config
	limiter   *ratelimit.Limiter
	resolver  *settings.Resolver
	history   *history.Context
	planner   Planner
	completer Completer
	stats     StatsSink

	wg sync.WaitGroup
}

// New wires the orchestrator. stats may be nil (recording becomes a no-op).
func New(cfg Config, limiter *ratelimit.Limiter, resolver *settings.Resolver,
	hist *history.Context, planner Planner, completer Completer, stats StatsSink) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		limiter:   limiter,
		resolver:  resolver,
		history:   hist,
		planner:   planner,
		completer: completer,
		stats:     stats,
	}
}

// OnEvent starts a new interaction task. Fire-and-forget: the caller (a
// channel's event loop) is never blocked by orchestration.
func (o *Orchestrator) OnEvent(tr Transport, req *interaction.Request) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		t := &task{o: o, tr: tr, req: req, state: StateReceived}
		t.run()
	}()
}

// Process runs one interaction synchronously. Used by tests and by
// callers that manage their own concurrency.
func (o *Orchestrator) Process(tr Transport, req *interaction.Request) {
	t := &task{o: o, tr: tr, req: req, state: StateReceived}
	t.run()
}

// Drain waits for all in-flight interactions, bounded by ctx.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) record(id interaction.Identity, kind interaction.Kind, command, outcome string, latency time.Duration) {
	if o.stats == nil {
		return
	}
	o.stats.Record(id, kind, command, outcome, latency)
}
