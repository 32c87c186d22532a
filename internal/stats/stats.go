// Package stats records per-interaction usage rows without ever blocking
// the reply path. Records are queued to a single background writer; when
// the queue is full the record is dropped and counted, never waited on.
package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hwestman/personabot/internal/interaction"
	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
	"github.com/hwestman/personabot/internal/store"
)

const queueSize = 256

// Sink is where usage rows end up. *store.Store satisfies this.
type Sink interface {
	InsertUsage(ctx context.Context, u store.UsageRecord) error
}

// Recorder queues usage records for background insertion.
type Recorder struct {
	sink  Sink
	queue chan store.UsageRecord

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewRecorder starts the background writer.
func NewRecorder(sink Sink) *Recorder {
	r := &Recorder{
		sink:  sink,
		queue: make(chan store.UsageRecord, queueSize),
		done:  make(chan struct{}),
	}
	go r.writeLoop()
	return r
}

// Record queues one usage row. Never blocks; a full queue drops the row.
func (r *Recorder) Record(id interaction.Identity, kind interaction.Kind, command, outcome string, latency time.Duration) {
	if r.closed.Load() {
		return
	}
	rec := store.UsageRecord{
		BotID:     id.BotID,
		UserID:    id.UserID,
		ChannelID: id.ChannelID,
		GuildID:   id.GuildID,
		Kind:      string(kind),
		Command:   command,
		Outcome:   outcome,
		Latency:   latency,
		At:        time.Now(),
	}

	select {
	case r.queue <- rec:
	default:
		MetricInc("stats", "dropped")
		L_warn("stats: queue full, record dropped", "kind", kind, "outcome", outcome)
	}
}

// writeLoop drains the queue until Close.
func (r *Recorder) writeLoop() {
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.sink.InsertUsage(ctx, rec); err != nil {
			MetricInc("stats", "write_errors")
			L_warn("stats: insert failed", "error", err)
		} else {
			MetricInc("stats", "recorded")
		}
		cancel()
	}
	close(r.done)
}

// Close stops accepting records and waits for queued rows to be written.
// Records arriving after Close are silently discarded.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.queue)
		<-r.done
	})
}
