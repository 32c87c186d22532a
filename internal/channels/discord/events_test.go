package discord

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/hwestman/personabot/internal/config"
	"github.com/hwestman/personabot/internal/interaction"
	"github.com/hwestman/personabot/internal/orchestrator"
	"github.com/hwestman/personabot/internal/settings"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	reqs []*interaction.Request
	trs  []orchestrator.Transport
}

func (d *fakeDispatcher) OnEvent(tr orchestrator.Transport, req *interaction.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trs = append(d.trs, tr)
	d.reqs = append(d.reqs, req)
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.reqs)
}

func (d *fakeDispatcher) last(t *testing.T) *interaction.Request {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.reqs) == 0 {
		t.Fatal("no request dispatched")
	}
	return d.reqs[len(d.reqs)-1]
}

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: make(map[string]string)}
}

func (f *fakeSettings) key(scope settings.Scope, scopeID, key string) string {
	return string(scope) + "/" + scopeID + "/" + key
}

func (f *fakeSettings) GetSetting(_ context.Context, scope settings.Scope, scopeID, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[f.key(scope, scopeID, key)]
	return v, ok, nil
}

func (f *fakeSettings) SetSetting(_ context.Context, scope settings.Scope, scopeID, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[f.key(scope, scopeID, key)] = value
	return nil
}

func (f *fakeSettings) set(scope settings.Scope, scopeID, key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[f.key(scope, scopeID, key)] = value
}

func newTestBot(t *testing.T) (*Bot, *fakeDispatcher, *fakeSettings) {
	t.Helper()
	fs := newFakeSettings()
	d := &fakeDispatcher{}
	b, err := New(config.DiscordConfig{Token: "t", AppID: "app1"}, d, settings.NewResolver(fs), fs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.botUser = User{ID: "bot9", Username: "personabot"}
	return b, d, fs
}

func guildMember(userID string, perms string, roles ...string) *Member {
	return &Member{
		User:        &User{ID: userID, Username: "someone"},
		Roles:       roles,
		Permissions: perms,
	}
}

func TestRequestFromSlashCommand(t *testing.T) {
	b, _, _ := newTestBot(t)

	ic := &Interaction{
		ID:        "i1",
		Type:      interactionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "c1",
		Token:     "tok",
		Member:    guildMember("u1", "0"),
		Data: &InteractionData{
			Name: "explain",
			Type: commandChatInput,
			Options: []OptionValue{
				{Name: "topic", Type: optionString, Value: json.RawMessage(`"goroutines"`)},
			},
		},
	}

	req := b.requestFromInteraction(ic)
	if req == nil {
		t.Fatal("no request built")
	}
	if req.Kind != interaction.KindCommand {
		t.Fatalf("kind = %q", req.Kind)
	}
	if req.Command != "explain" {
		t.Errorf("command = %q", req.Command)
	}
	if got := req.Option("topic"); got != "goroutines" {
		t.Errorf("topic option = %q", got)
	}
	want := interaction.Identity{BotID: "app1", UserID: "u1", ChannelID: "c1", GuildID: "g1"}
	if req.Identity != want {
		t.Errorf("identity = %+v", req.Identity)
	}
	if req.Admin {
		t.Error("plain member should not be admin")
	}
}

func TestRequestFromContextMenus(t *testing.T) {
	b, _, _ := newTestBot(t)

	t.Run("message menu", func(t *testing.T) {
		ic := &Interaction{
			ID:        "i2",
			Type:      interactionApplicationCommand,
			ChannelID: "c1",
			User:      &User{ID: "u1"},
			Data: &InteractionData{
				Name:     "Analyze Message",
				Type:     commandMessageMenu,
				TargetID: "m7",
				Resolved: &Resolved{
					Messages: map[string]Message{"m7": {ID: "m7", Content: "the target text"}},
				},
			},
		}
		req := b.requestFromInteraction(ic)
		if req.Kind != interaction.KindContextMenu {
			t.Fatalf("kind = %q", req.Kind)
		}
		if req.Command != "Analyze Message" {
			t.Errorf("command = %q", req.Command)
		}
		if req.TargetText != "the target text" {
			t.Errorf("target = %q", req.TargetText)
		}
	})

	t.Run("user menu", func(t *testing.T) {
		ic := &Interaction{
			ID:        "i3",
			Type:      interactionApplicationCommand,
			ChannelID: "c1",
			User:      &User{ID: "u1"},
			Data: &InteractionData{
				Name:     "Analyze User",
				Type:     commandUserMenu,
				TargetID: "u9",
				Resolved: &Resolved{
					Users: map[string]User{"u9": {ID: "u9", Username: "margot"}},
				},
			},
		}
		req := b.requestFromInteraction(ic)
		if req.Kind != interaction.KindContextMenu {
			t.Fatalf("kind = %q", req.Kind)
		}
		if req.TargetText != "margot" {
			t.Errorf("target = %q", req.TargetText)
		}
	})
}

func TestRequestFromComponentAndModal(t *testing.T) {
	b, _, _ := newTestBot(t)

	button := &Interaction{
		ID:        "i4",
		Type:      interactionMessageComponent,
		ChannelID: "c1",
		User:      &User{ID: "u1"},
		Data:      &InteractionData{CustomID: "persona_chef", ComponentType: componentButton},
	}
	req := b.requestFromInteraction(button)
	if req.Kind != interaction.KindButton || req.ComponentID != "persona_chef" {
		t.Fatalf("button request = %+v", req)
	}

	modal := &Interaction{
		ID:        "i5",
		Type:      interactionModalSubmit,
		ChannelID: "c1",
		User:      &User{ID: "u1"},
		Data: &InteractionData{
			CustomID: "help_feedback_modal",
			Components: []ComponentRow{
				{Type: componentActionRow, Components: []ComponentValue{
					{Type: componentTextInput, CustomID: "help_topic", Value: "reminders"},
				}},
				{Type: componentActionRow, Components: []ComponentValue{
					{Type: componentTextInput, CustomID: "help_details", Value: "more detail"},
				}},
			},
		},
	}
	req = b.requestFromInteraction(modal)
	if req.Kind != interaction.KindModal || req.ComponentID != "help_feedback_modal" {
		t.Fatalf("modal request = %+v", req)
	}
	if req.ModalFields["help_topic"] != "reminders" || req.ModalFields["help_details"] != "more detail" {
		t.Errorf("modal fields = %v", req.ModalFields)
	}
}

func TestAdminFromPermissionsAndRole(t *testing.T) {
	b, _, fs := newTestBot(t)
	fs.set(settings.ScopeGuild, "g1", settings.KeyAdminRole, "r5")

	cases := []struct {
		name   string
		member *Member
		guild  string
		want   bool
	}{
		{"administrator bit", guildMember("u1", "8"), "g1", true},
		{"manage guild bit", guildMember("u1", "32"), "g1", true},
		{"combined bits", guildMember("u1", "104"), "g1", true},
		{"admin role holder", guildMember("u1", "0", "r5"), "g1", true},
		{"other role only", guildMember("u1", "0", "r2"), "g1", false},
		{"no rights", guildMember("u1", "0"), "g1", false},
		{"garbage bitset", guildMember("u1", "not-a-number"), "g1", false},
		{"direct message", nil, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := b.isAdmin(tc.guild, tc.member); got != tc.want {
				t.Errorf("isAdmin = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHandleMessageGating(t *testing.T) {
	mention := "<@bot9>"

	cases := []struct {
		name      string
		msg       Message
		disabled  bool
		dispatch  bool
		wantKind  interaction.Kind
		wantQuery string
	}{
		{
			name:     "bot author ignored",
			msg:      Message{Author: User{ID: "x", Bot: true}, ChannelID: "c1", Content: mention + " hi"},
			dispatch: false,
		},
		{
			name:     "guild message without mention ignored",
			msg:      Message{Author: User{ID: "u1"}, GuildID: "g1", ChannelID: "c1", Content: "hello there"},
			dispatch: false,
		},
		{
			name: "guild mention dispatched and stripped",
			msg: Message{
				Author: User{ID: "u1"}, GuildID: "g1", ChannelID: "c1",
				Content:  mention + " what is a monad?",
				Mentions: []User{{ID: "bot9"}},
			},
			dispatch:  true,
			wantKind:  interaction.KindMessage,
			wantQuery: "what is a monad?",
		},
		{
			name: "guild mention suppressed by setting",
			msg: Message{
				Author: User{ID: "u1"}, GuildID: "g1", ChannelID: "c1",
				Content:  mention + " hello",
				Mentions: []User{{ID: "bot9"}},
			},
			disabled: true,
			dispatch: false,
		},
		{
			name:      "direct message always dispatched",
			msg:       Message{Author: User{ID: "u1"}, ChannelID: "d1", Content: "hi there"},
			dispatch:  true,
			wantKind:  interaction.KindMessage,
			wantQuery: "hi there",
		},
		{
			name:      "bang command needs no mention",
			msg:       Message{Author: User{ID: "u1"}, GuildID: "g1", ChannelID: "c1", Content: "!ping"},
			dispatch:  true,
			wantKind:  interaction.KindMessage,
			wantQuery: "!ping",
		},
		{
			name:     "empty content ignored",
			msg:      Message{Author: User{ID: "u1"}, ChannelID: "d1", Content: "   "},
			dispatch: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, d, fs := newTestBot(t)
			if tc.disabled {
				fs.set(settings.ScopeChannel, tc.msg.ChannelID, settings.KeyMentionReplies, "disabled")
			}
			b.handleMessage(&tc.msg)

			if !tc.dispatch {
				if d.count() != 0 {
					t.Fatalf("unexpected dispatch: %+v", d.last(t))
				}
				return
			}
			req := d.last(t)
			if req.Kind != tc.wantKind {
				t.Errorf("kind = %q", req.Kind)
			}
			if req.Prompt != tc.wantQuery {
				t.Errorf("prompt = %q, want %q", req.Prompt, tc.wantQuery)
			}
			if req.Identity.BotID != "app1" || req.Identity.UserID != "u1" {
				t.Errorf("identity = %+v", req.Identity)
			}
		})
	}
}

func TestStripMentions(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"<@bot9> hello", "hello"},
		{"<@!bot9> hello", "hello"},
		{"hello <@bot9> there", "hello  there"},
		{"no mention at all", "no mention at all"},
	}
	for _, tc := range cases {
		if got := stripMentions(tc.in, "bot9"); got != tc.want {
			t.Errorf("stripMentions(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestOptionValueText(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`"plain"`, "plain"},
		{`42`, "42"},
		{`4.5`, "4.5"},
		{`true`, "true"},
	}
	for _, tc := range cases {
		o := OptionValue{Value: json.RawMessage(tc.raw)}
		if got := o.Text(); got != tc.want {
			t.Errorf("Text(%s) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestInteractionDispatchWrapsGatewayTransport(t *testing.T) {
	b, d, _ := newTestBot(t)

	ic := &Interaction{
		ID:        "i1",
		Type:      interactionApplicationCommand,
		ChannelID: "c1",
		Token:     "tok",
		User:      &User{ID: "u1"},
		Data:      &InteractionData{Name: "ping", Type: commandChatInput},
	}

	b.handleInteraction(ic, nil)
	if d.count() != 1 {
		t.Fatalf("dispatched %d requests", d.count())
	}
	if _, ok := d.trs[0].(orchestrator.ModalOpener); !ok {
		t.Error("gateway transport should open modals")
	}

	b.handleInteraction(ic, &inlineAck{callbackType: callbackDeferredMessage})
	if _, ok := d.trs[1].(orchestrator.ModalOpener); ok {
		t.Error("webhook transport must not claim modal support")
	}
}
