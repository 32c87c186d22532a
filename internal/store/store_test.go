package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hwestman/personabot/internal/interaction"
	"github.com/hwestman/personabot/internal/settings"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSchemaIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	// Re-running migrations against an up-to-date database must be a no-op.
	if err := InitSchema(s.db); err != nil {
		t.Fatalf("second InitSchema: %v", err)
	}
}

func TestScopeSettings(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, settings.ScopeChannel, "c1", settings.KeyVerbosity)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatal("missing setting reported as present")
	}

	if err := s.SetSetting(ctx, settings.ScopeChannel, "c1", settings.KeyVerbosity, "concise"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.GetSetting(ctx, settings.ScopeChannel, "c1", settings.KeyVerbosity)
	if err != nil || !ok || v != "concise" {
		t.Fatalf("get = (%q, %v, %v), want (concise, true, nil)", v, ok, err)
	}

	// Upsert overwrites
	if err := s.SetSetting(ctx, settings.ScopeChannel, "c1", settings.KeyVerbosity, "detailed"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, _, _ = s.GetSetting(ctx, settings.ScopeChannel, "c1", settings.KeyVerbosity)
	if v != "detailed" {
		t.Errorf("after overwrite = %q", v)
	}

	// Guild scope is independent of channel scope with the same id
	if err := s.SetSetting(ctx, settings.ScopeGuild, "c1", settings.KeyVerbosity, "concise"); err != nil {
		t.Fatalf("guild set: %v", err)
	}
	v, _, _ = s.GetSetting(ctx, settings.ScopeChannel, "c1", settings.KeyVerbosity)
	if v != "detailed" {
		t.Errorf("channel value clobbered by guild write: %q", v)
	}
}

func TestConversationTurns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := interaction.Identity{BotID: "b1", UserID: "u1", ChannelID: "c1"}

	for i := 0; i < 5; i++ {
		turn := interaction.Turn{Role: interaction.RoleUser, Content: string(rune('a' + i)), At: time.Now()}
		if i%2 == 1 {
			turn.Role = interaction.RoleAssistant
		}
		if err := s.AppendTurn(ctx, id, turn); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	turns, err := s.ReadTurns(ctx, id, 3)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	// Most-recent 3 of a..e are c, d, e, oldest first
	if turns[0].Content != "c" || turns[2].Content != "e" {
		t.Errorf("wrong window: %q .. %q", turns[0].Content, turns[2].Content)
	}
	if turns[2].Role != interaction.RoleUser {
		t.Errorf("turn e role = %v", turns[2].Role)
	}

	// Unlimited read returns everything
	all, err := s.ReadTurns(ctx, id, 0)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("got %d turns, want 5", len(all))
	}

	// Other conversations are untouched
	other := interaction.Identity{BotID: "b1", UserID: "u2", ChannelID: "c1"}
	turns, _ = s.ReadTurns(ctx, other, 0)
	if len(turns) != 0 {
		t.Errorf("foreign conversation has %d turns", len(turns))
	}

	if err := s.ClearTurns(ctx, id); err != nil {
		t.Fatalf("clear: %v", err)
	}
	turns, _ = s.ReadTurns(ctx, id, 0)
	if len(turns) != 0 {
		t.Errorf("%d turns survive clear", len(turns))
	}
}

func TestUserPersona(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p, err := s.GetUserPersona(ctx, "b1", "u1")
	if err != nil {
		t.Fatalf("get unset: %v", err)
	}
	if p != "" {
		t.Errorf("unset persona = %q, want empty", p)
	}

	if err := s.SetUserPersona(ctx, "b1", "u1", "chef"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetUserPersona(ctx, "b1", "u1", "obi"); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, _ = s.GetUserPersona(ctx, "b1", "u1")
	if p != "obi" {
		t.Errorf("persona = %q, want obi", p)
	}

	// Bot boundary
	p, _ = s.GetUserPersona(ctx, "b2", "u1")
	if p != "" {
		t.Errorf("persona crossed bot boundary: %q", p)
	}
}

func TestUsageStats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	records := []UsageRecord{
		{BotID: "b1", UserID: "u1", ChannelID: "c1", Kind: "command", Command: "hey", Outcome: "delivered", Latency: 1200 * time.Millisecond},
		{BotID: "b1", UserID: "u2", ChannelID: "c1", Kind: "command", Command: "hey", Outcome: "delivered"},
		{BotID: "b1", UserID: "u1", ChannelID: "c1", Kind: "message", Outcome: "failed"},
		{BotID: "b2", UserID: "u1", ChannelID: "c9", Kind: "command", Outcome: "delivered"},
	}
	for i, r := range records {
		if err := s.InsertUsage(ctx, r); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	counts, err := s.CountUsageByOutcome(ctx, "b1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["delivered"] != 2 || counts["failed"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestReminders(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	past := &Reminder{BotID: "b1", UserID: "u1", ChannelID: "c1", Message: "stretch", RemindAt: now.Add(-time.Minute)}
	future := &Reminder{BotID: "b1", UserID: "u1", ChannelID: "c1", Message: "standup", RemindAt: now.Add(time.Hour)}
	for _, r := range []*Reminder{past, future} {
		if err := s.AddReminder(ctx, r); err != nil {
			t.Fatalf("add: %v", err)
		}
		if r.ID == 0 {
			t.Fatal("reminder ID not assigned")
		}
	}

	due, err := s.DueReminders(ctx, now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].Message != "stretch" {
		t.Fatalf("due = %+v", due)
	}

	if err := s.MarkReminderDelivered(ctx, due[0].ID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	due, _ = s.DueReminders(ctx, now)
	if len(due) != 0 {
		t.Errorf("delivered reminder still due: %+v", due)
	}

	pending, err := s.ListReminders(ctx, "b1", "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].Message != "standup" {
		t.Errorf("pending = %+v", pending)
	}
}
