package interaction

import "testing"

func TestRateKeyScopesByBotAndUser(t *testing.T) {
	a := Identity{BotID: "bot1", UserID: "u1", ChannelID: "c1"}
	b := Identity{BotID: "bot1", UserID: "u1", ChannelID: "c2"}
	c := Identity{BotID: "bot2", UserID: "u1", ChannelID: "c1"}
	d := Identity{BotID: "bot1", UserID: "u2", ChannelID: "c1"}

	if a.RateKey() != b.RateKey() {
		t.Error("rate key should ignore the channel")
	}
	if a.RateKey() == c.RateKey() {
		t.Error("different bots must not share a rate key")
	}
	if a.RateKey() == d.RateKey() {
		t.Error("different users must not share a rate key")
	}
}

func TestConversationKeyScopesByChannel(t *testing.T) {
	a := Identity{BotID: "bot1", UserID: "u1", ChannelID: "c1"}
	b := Identity{BotID: "bot1", UserID: "u1", ChannelID: "c2"}

	if a.ConversationKey() == b.ConversationKey() {
		t.Error("different channels must not share a conversation key")
	}
}

func TestKeySeparatorPreventsCollisions(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide.
	x := Identity{BotID: "ab", UserID: "c"}
	y := Identity{BotID: "a", UserID: "bc"}
	if x.RateKey() == y.RateKey() {
		t.Error("concatenation collision in rate key")
	}
}

func TestNewRequest(t *testing.T) {
	id := Identity{BotID: "bot1", UserID: "u1", ChannelID: "c1"}

	r1 := NewRequest(KindCommand, id)
	r2 := NewRequest(KindCommand, id)

	if r1.ID == "" {
		t.Fatal("request id should be set")
	}
	if r1.ID == r2.ID {
		t.Error("request ids should be unique")
	}
	if r1.Kind != KindCommand {
		t.Errorf("kind = %q, want %q", r1.Kind, KindCommand)
	}
	if r1.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should be set")
	}
}

func TestOptionLookup(t *testing.T) {
	r := &Request{Options: map[string]string{"topic": "goroutines"}}

	if got := r.Option("topic"); got != "goroutines" {
		t.Errorf("Option(topic) = %q, want goroutines", got)
	}
	if got := r.Option("missing"); got != "" {
		t.Errorf("Option(missing) = %q, want empty", got)
	}

	empty := &Request{}
	if got := empty.Option("topic"); got != "" {
		t.Errorf("Option on nil map = %q, want empty", got)
	}
}
