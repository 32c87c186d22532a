package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hwestman/personabot/internal/interaction"
	"github.com/hwestman/personabot/internal/store"
)

type memSink struct {
	mu      sync.Mutex
	rows    []store.UsageRecord
	failAll bool
	block   chan struct{} // when non-nil, InsertUsage waits on it
}

func (m *memSink) InsertUsage(ctx context.Context, u store.UsageRecord) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("disk on fire")
	}
	m.rows = append(m.rows, u)
	return nil
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func TestRecordAndDrain(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder(sink)

	id := interaction.Identity{BotID: "b1", UserID: "u1", ChannelID: "c1"}
	for i := 0; i < 10; i++ {
		r.Record(id, interaction.KindCommand, "hey", interaction.OutcomeDelivered, 150*time.Millisecond)
	}
	r.Close()

	if sink.count() != 10 {
		t.Fatalf("wrote %d rows, want 10", sink.count())
	}
	sink.mu.Lock()
	row := sink.rows[0]
	sink.mu.Unlock()
	if row.BotID != "b1" || row.Outcome != "delivered" || row.Command != "hey" {
		t.Errorf("row = %+v", row)
	}
}

func TestRecordNeverBlocksWhenQueueFull(t *testing.T) {
	sink := &memSink{block: make(chan struct{})}
	r := NewRecorder(sink)
	id := interaction.Identity{BotID: "b1", UserID: "u1"}

	// One record is stuck inside InsertUsage, queueSize more fill the
	// queue, the rest must be dropped without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize*2; i++ {
			r.Record(id, interaction.KindMessage, "", interaction.OutcomeDelivered, 0)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(sink.block)
	r.Close()

	// Everything that made it into the queue got written.
	if sink.count() == 0 || sink.count() > queueSize+1 {
		t.Errorf("wrote %d rows, want between 1 and %d", sink.count(), queueSize+1)
	}
}

func TestSinkErrorsAreSwallowed(t *testing.T) {
	sink := &memSink{failAll: true}
	r := NewRecorder(sink)
	id := interaction.Identity{BotID: "b1", UserID: "u1"}

	r.Record(id, interaction.KindCommand, "hey", interaction.OutcomeFailed, 0)
	r.Close() // must not panic or hang
}

func TestRecordAfterCloseIsIgnored(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder(sink)
	r.Close()

	// Must not panic.
	r.Record(interaction.Identity{BotID: "b1"}, interaction.KindCommand, "hey", interaction.OutcomeDelivered, 0)
	if sink.count() != 0 {
		t.Errorf("record after close was written")
	}
}
