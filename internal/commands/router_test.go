package commands

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hwestman/personabot/internal/history"
	"github.com/hwestman/personabot/internal/imagine"
	"github.com/hwestman/personabot/internal/interaction"
	"github.com/hwestman/personabot/internal/orchestrator"
	"github.com/hwestman/personabot/internal/personas"
	"github.com/hwestman/personabot/internal/ratelimit"
	"github.com/hwestman/personabot/internal/settings"
	"github.com/hwestman/personabot/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// memStore backs the router, the settings resolver and the history
// context in one in-memory fake.
type memStore struct {
	mu        sync.Mutex
	personas  map[string]string
	settings  map[string]string
	turns     map[string][]interaction.Turn
	reminders []store.Reminder
	nextID    int64

	personaErr  error
	reminderErr error
}

func newMemStore() *memStore {
	return &memStore{
		personas: make(map[string]string),
		settings: make(map[string]string),
		turns:    make(map[string][]interaction.Turn),
	}
}

func (m *memStore) GetUserPersona(ctx context.Context, botID, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.personaErr != nil {
		return "", m.personaErr
	}
	return m.personas[botID+"/"+userID], nil
}

func (m *memStore) SetUserPersona(ctx context.Context, botID, userID, persona string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.personaErr != nil {
		return m.personaErr
	}
	m.personas[botID+"/"+userID] = persona
	return nil
}

func (m *memStore) GetSetting(ctx context.Context, scope settings.Scope, scopeID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[string(scope)+"/"+scopeID+"/"+key]
	return v, ok, nil
}

func (m *memStore) SetSetting(ctx context.Context, scope settings.Scope, scopeID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[string(scope)+"/"+scopeID+"/"+key] = value
	return nil
}

func (m *memStore) setting(scope settings.Scope, scopeID, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[string(scope)+"/"+scopeID+"/"+key]
}

func (m *memStore) AddReminder(ctx context.Context, r *store.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reminderErr != nil {
		return m.reminderErr
	}
	m.nextID++
	r.ID = m.nextID
	m.reminders = append(m.reminders, *r)
	return nil
}

func (m *memStore) ListReminders(ctx context.Context, botID, userID string) ([]store.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reminderErr != nil {
		return nil, m.reminderErr
	}
	var out []store.Reminder
	for _, r := range m.reminders {
		if r.BotID == botID && r.UserID == userID && !r.Delivered {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CancelReminder(ctx context.Context, botID, userID string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reminderErr != nil {
		return false, m.reminderErr
	}
	for i, r := range m.reminders {
		if r.ID == id && r.BotID == botID && r.UserID == userID && !r.Delivered {
			m.reminders = append(m.reminders[:i], m.reminders[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) AppendTurn(ctx context.Context, id interaction.Identity, turn interaction.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := id.ConversationKey()
	m.turns[key] = append(m.turns[key], turn)
	return nil
}

func (m *memStore) ReadTurns(ctx context.Context, id interaction.Identity, limit int) ([]interaction.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.turns[id.ConversationKey()]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]interaction.Turn, len(all))
	copy(out, all)
	return out, nil
}

func (m *memStore) ClearTurns(ctx context.Context, id interaction.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.turns, id.ConversationKey())
	return nil
}

func (m *memStore) turnCount(id interaction.Identity) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns[id.ConversationKey()])
}

type fakeImages struct {
	mu        sync.Mutex
	res       *imagine.Result
	err       error
	gotPrompt string
	gotSize   imagine.Size
	gotStyle  imagine.Style
}

func (f *fakeImages) Generate(ctx context.Context, prompt string, size imagine.Size, style imagine.Style) (*imagine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotPrompt, f.gotSize, f.gotStyle = prompt, size, style
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		return f.res, nil
	}
	return &imagine.Result{Name: "imagine.png", Data: []byte{1, 2, 3}, MIME: "image/png"}, nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	r   *Router
	st  *memStore
	img *fakeImages
	lim *ratelimit.Limiter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{st: newMemStore(), img: &fakeImages{}, lim: ratelimit.New(10, time.Minute)}
	f.r = New("1.2.3", f.st, settings.NewResolver(f.st), personas.NewManager(),
		history.New(f.st), f.lim, f.img)
	f.r.SetNow(func() time.Time { return testBase })
	return f
}

func defaultEff() settings.Effective {
	return settings.Effective{
		Verbosity:      settings.VerbosityNormal,
		DefaultPersona: personas.DefaultPersona,
		MaxContext:     40,
		MentionReplies: true,
	}
}

func testIdentity() interaction.Identity {
	return interaction.Identity{BotID: "b1", UserID: "u1", ChannelID: "c1", GuildID: "g1"}
}

func commandReq(name string, opts map[string]string) *interaction.Request {
	req := interaction.NewRequest(interaction.KindCommand, testIdentity())
	req.Command = name
	req.Options = opts
	req.ReceivedAt = testBase
	return req
}

func (f *fixture) plan(t *testing.T, req *interaction.Request) orchestrator.Plan {
	t.Helper()
	p, err := f.r.Plan(context.Background(), req, defaultEff())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	return p
}

// ---------------------------------------------------------------------------
// Slash commands
// ---------------------------------------------------------------------------

func TestPlanPing(t *testing.T) {
	f := newFixture(t)
	f.r.SetNow(func() time.Time { return testBase.Add(250 * time.Millisecond) })

	p := f.plan(t, commandReq("ping", nil))
	if !p.Quick {
		t.Fatal("ping should be quick")
	}
	if p.Reply != "Pong! (250ms)" {
		t.Errorf("reply = %q", p.Reply)
	}
}

func TestPlanHelpCarriesButtons(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, commandReq("help", nil))
	if !p.Quick || p.Reply != helpText {
		t.Fatalf("unexpected help plan: quick=%v", p.Quick)
	}
	if len(p.Buttons) != 2 {
		t.Fatalf("buttons = %d, want 2", len(p.Buttons))
	}
	if p.Buttons[0].ID != "show_help_modal" || !p.Buttons[0].Primary {
		t.Errorf("first button = %+v", p.Buttons[0])
	}
	if p.Buttons[1].ID != "show_persona_modal" {
		t.Errorf("second button = %+v", p.Buttons[1])
	}
}

func TestPlanPersonasListsRosterWithButtons(t *testing.T) {
	f := newFixture(t)
	f.st.personas["b1/u1"] = "chef"

	p := f.plan(t, commandReq("personas", nil))
	if !p.Quick {
		t.Fatal("personas should be quick")
	}
	if !strings.Contains(p.Reply, "Available personas") {
		t.Errorf("reply missing header: %q", p.Reply)
	}
	if !strings.Contains(p.Reply, "▸ **Chef**") {
		t.Errorf("current persona not marked: %q", p.Reply)
	}
	if len(p.Buttons) != 5 {
		t.Errorf("buttons = %d, want 5", len(p.Buttons))
	}
}

func TestPlanSetPersona(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, commandReq("set_persona", map[string]string{"persona": "chef"}))
	if p.Reply != "Your persona has been set to: `chef`" {
		t.Errorf("reply = %q", p.Reply)
	}
	if f.st.personas["b1/u1"] != "chef" {
		t.Errorf("stored persona = %q", f.st.personas["b1/u1"])
	}

	p = f.plan(t, commandReq("set_persona", map[string]string{"persona": "shakespeare"}))
	if p.Reply != "Invalid persona. Use `/personas` to see available options." {
		t.Errorf("reply = %q", p.Reply)
	}
}

func TestPlanForgetClearsHistoryAndRateWindow(t *testing.T) {
	f := newFixture(t)
	id := testIdentity()
	f.st.AppendTurn(context.Background(), id, interaction.Turn{Role: interaction.RoleUser, Content: "hi"})
	f.st.AppendTurn(context.Background(), id, interaction.Turn{Role: interaction.RoleAssistant, Content: "hello"})

	for i := 0; i < 10; i++ {
		f.lim.Check("b1", "u1")
	}
	if res := f.lim.Check("b1", "u1"); res.Allowed {
		t.Fatal("limiter should be exhausted before forget")
	}

	p := f.plan(t, commandReq("forget", nil))
	if !strings.Contains(p.Reply, "history has been cleared") {
		t.Errorf("reply = %q", p.Reply)
	}
	if n := f.st.turnCount(id); n != 0 {
		t.Errorf("turns remaining = %d", n)
	}
	if res := f.lim.Check("b1", "u1"); !res.Allowed {
		t.Error("limiter window should be reset by forget")
	}
}

func TestPlanChatBuildsPersonaPrompt(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, commandReq("hey", map[string]string{"message": "how are you?"}))
	if p.Quick {
		t.Fatal("hey should be deferred")
	}
	if p.Prompt != "how are you?" {
		t.Errorf("prompt = %q", p.Prompt)
	}
	if !strings.Contains(p.System, "Muppet-style friend") {
		t.Errorf("system missing default persona: %q", p.System)
	}
	if !p.RecordHistory {
		t.Error("chat should record history")
	}
	if p.MaxTokens != settings.VerbosityMaxTokens(settings.VerbosityNormal) {
		t.Errorf("max tokens = %d", p.MaxTokens)
	}
}

func TestPlanChatAppliesModifierAndVerbosity(t *testing.T) {
	f := newFixture(t)
	eff := defaultEff()
	eff.Verbosity = settings.VerbosityConcise

	req := commandReq("explain", map[string]string{"topic": "goroutines"})
	p, err := f.r.Plan(context.Background(), req, eff)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if !strings.Contains(p.System, "Focus on providing clear explanations.") {
		t.Errorf("system missing explain modifier: %q", p.System)
	}
	if !strings.Contains(p.System, "2-3 sentences at most") {
		t.Errorf("system missing concise instruction: %q", p.System)
	}
	if p.MaxTokens != 300 {
		t.Errorf("max tokens = %d, want 300", p.MaxTokens)
	}
}

func TestPlanChatUsesStoredPersona(t *testing.T) {
	f := newFixture(t)
	f.st.personas["b1/u1"] = "chef"

	p := f.plan(t, commandReq("recipe", map[string]string{"food": "ramen"}))
	if !strings.Contains(p.System, "professional chef") {
		t.Errorf("system = %q", p.System)
	}
	if !strings.Contains(p.System, "recipe if this prompt has food") {
		t.Errorf("system missing recipe modifier: %q", p.System)
	}
}

func TestPlanChatMissingOption(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, commandReq("steps", nil))
	if !p.Quick || p.Reply != "Please provide a task." {
		t.Errorf("plan = quick=%v reply=%q", p.Quick, p.Reply)
	}
}

func TestPlanUnknownCommand(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, commandReq("frobnicate", nil))
	if p.Reply != msgUnknownCommand {
		t.Errorf("reply = %q", p.Reply)
	}

	// Context-menu names are not reachable as chat input commands.
	p = f.plan(t, commandReq("Analyze Message", nil))
	if p.Reply != msgUnknownCommand {
		t.Errorf("reply = %q", p.Reply)
	}
}

// ---------------------------------------------------------------------------
// Admin commands
// ---------------------------------------------------------------------------

func TestAdminGate(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, commandReq("settings", nil))
	if p.Reply != msgAdminOnly {
		t.Fatalf("non-admin reply = %q", p.Reply)
	}

	req := commandReq("settings", nil)
	req.Admin = true
	p = f.plan(t, req)
	if !strings.Contains(p.Reply, "Effective bot settings") {
		t.Errorf("admin reply = %q", p.Reply)
	}
}

func TestPlanSettingsView(t *testing.T) {
	f := newFixture(t)
	req := commandReq("settings", nil)
	req.Admin = true

	eff := defaultEff()
	eff.Verbosity = settings.VerbosityDetailed
	p, err := f.r.Plan(context.Background(), req, eff)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	for _, want := range []string{"Verbosity: `detailed`", "Default persona: `muppet`", "Max context messages: `40`", "Mention responses: `enabled`"} {
		if !strings.Contains(p.Reply, want) {
			t.Errorf("reply missing %q:\n%s", want, p.Reply)
		}
	}
	if strings.Contains(p.Reply, "unavailable") {
		t.Error("healthy settings should not warn")
	}

	eff.Degraded = true
	p, _ = f.r.Plan(context.Background(), req, eff)
	if !strings.Contains(p.Reply, "store is currently unavailable") {
		t.Errorf("degraded reply missing warning: %q", p.Reply)
	}
}

func TestPlanSetChannelVerbosity(t *testing.T) {
	f := newFixture(t)

	req := commandReq("set_channel_verbosity", map[string]string{"level": "concise"})
	req.Admin = true
	p := f.plan(t, req)
	if p.Reply != "✅ Verbosity for this channel set to `concise`." {
		t.Errorf("reply = %q", p.Reply)
	}
	if got := f.st.setting(settings.ScopeChannel, "c1", settings.KeyVerbosity); got != "concise" {
		t.Errorf("stored = %q", got)
	}

	req = commandReq("set_channel_verbosity", map[string]string{"level": "detailed", "channel": "c9"})
	req.Admin = true
	p = f.plan(t, req)
	if !strings.Contains(p.Reply, "`c9`") {
		t.Errorf("reply = %q", p.Reply)
	}
	if got := f.st.setting(settings.ScopeChannel, "c9", settings.KeyVerbosity); got != "detailed" {
		t.Errorf("stored = %q", got)
	}
}

func TestPlanSetGuildSetting(t *testing.T) {
	f := newFixture(t)

	req := commandReq("set_guild_setting", map[string]string{"setting": "verbosity", "value": "concise"})
	req.Admin = true
	p := f.plan(t, req)
	if p.Reply != "✅ Guild setting `verbosity` set to `concise`." {
		t.Errorf("reply = %q", p.Reply)
	}
	if got := f.st.setting(settings.ScopeGuild, "g1", settings.KeyVerbosity); got != "concise" {
		t.Errorf("stored = %q", got)
	}

	// Values are validated before anything is written.
	req = commandReq("set_guild_setting", map[string]string{"setting": "verbosity", "value": "shouty"})
	req.Admin = true
	p = f.plan(t, req)
	if !strings.Contains(p.Reply, "invalid value") {
		t.Errorf("reply = %q", p.Reply)
	}

	// The persona roster is checked here, not in the settings layer.
	req = commandReq("set_guild_setting", map[string]string{"setting": "default_persona", "value": "shakespeare"})
	req.Admin = true
	p = f.plan(t, req)
	if p.Reply != "Invalid persona. Use `/personas` to see available options." {
		t.Errorf("reply = %q", p.Reply)
	}

	req = commandReq("set_guild_setting", map[string]string{"setting": "default_persona", "value": "obi"})
	req.Admin = true
	p = f.plan(t, req)
	if !strings.HasPrefix(p.Reply, "✅") {
		t.Errorf("reply = %q", p.Reply)
	}

	// Outside a guild there is no scope to write to.
	req = commandReq("set_guild_setting", map[string]string{"setting": "verbosity", "value": "concise"})
	req.Admin = true
	req.Identity.GuildID = ""
	p = f.plan(t, req)
	if p.Reply != msgGuildOnly {
		t.Errorf("reply = %q", p.Reply)
	}
}

func TestPlanAdminRole(t *testing.T) {
	f := newFixture(t)

	req := commandReq("admin_role", map[string]string{"role": "role-42"})
	req.Admin = true
	p := f.plan(t, req)
	if !strings.HasPrefix(p.Reply, "✅") {
		t.Errorf("reply = %q", p.Reply)
	}
	if got := f.st.setting(settings.ScopeGuild, "g1", settings.KeyAdminRole); got != "role-42" {
		t.Errorf("stored role = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Reminders
// ---------------------------------------------------------------------------

func TestPlanRemind(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, commandReq("remind", map[string]string{"time": "45m", "message": "stretch"}))
	if p.Reply != "⏰ Got it! I'll remind you in 45m: **stretch**" {
		t.Errorf("reply = %q", p.Reply)
	}
	if len(f.st.reminders) != 1 {
		t.Fatalf("reminders stored = %d", len(f.st.reminders))
	}
	rem := f.st.reminders[0]
	if !rem.RemindAt.Equal(testBase.Add(45 * time.Minute)) {
		t.Errorf("remind at = %v", rem.RemindAt)
	}
	if rem.ChannelID != "c1" || rem.BotID != "b1" {
		t.Errorf("reminder identity = %+v", rem)
	}
}

func TestPlanRemindRejectsBadTime(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, commandReq("remind", map[string]string{"time": "soon", "message": "x"}))
	if !strings.Contains(p.Reply, "couldn't read that time") {
		t.Errorf("reply = %q", p.Reply)
	}
	if len(f.st.reminders) != 0 {
		t.Error("nothing should be stored for a bad duration")
	}
}

func TestPlanRemindersListAndCancel(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, commandReq("reminders", nil))
	if p.Reply != "You have no pending reminders." {
		t.Errorf("empty list reply = %q", p.Reply)
	}

	f.plan(t, commandReq("remind", map[string]string{"time": "2h", "message": "call mom"}))
	p = f.plan(t, commandReq("reminders", map[string]string{"action": "list"}))
	if !strings.Contains(p.Reply, "call mom") || !strings.Contains(p.Reply, "`#1`") {
		t.Errorf("list reply = %q", p.Reply)
	}

	p = f.plan(t, commandReq("reminders", map[string]string{"action": "cancel", "id": "1"}))
	if p.Reply != "🗑️ Reminder `#1` cancelled." {
		t.Errorf("cancel reply = %q", p.Reply)
	}
	if len(f.st.reminders) != 0 {
		t.Error("reminder should be gone after cancel")
	}

	p = f.plan(t, commandReq("reminders", map[string]string{"action": "cancel", "id": "1"}))
	if p.Reply != "❌ No pending reminder `#1` found." {
		t.Errorf("missing cancel reply = %q", p.Reply)
	}

	p = f.plan(t, commandReq("reminders", map[string]string{"action": "cancel"}))
	if !strings.Contains(p.Reply, "Please provide the reminder ID") {
		t.Errorf("no-id reply = %q", p.Reply)
	}
}

// ---------------------------------------------------------------------------
// Imagine
// ---------------------------------------------------------------------------

func TestPlanImagine(t *testing.T) {
	f := newFixture(t)
	f.img.res = &imagine.Result{
		Name:          "imagine.png",
		Data:          []byte("png-bytes"),
		MIME:          "image/png",
		RevisedPrompt: "a highly detailed corgi wearing a spacesuit",
	}

	p := f.plan(t, commandReq("imagine", map[string]string{"prompt": "a corgi in space", "size": "landscape"}))
	if p.Quick || p.Run == nil {
		t.Fatalf("imagine should be deferred with a Run closure (quick=%v)", p.Quick)
	}

	text, files, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !strings.Contains(text, "a corgi in space") || !strings.Contains(text, "highly detailed corgi") {
		t.Errorf("caption = %q", text)
	}
	if len(files) != 1 || files[0].Name != "imagine.png" {
		t.Fatalf("files = %+v", files)
	}
	if f.img.gotSize != imagine.SizeLandscape || f.img.gotStyle != imagine.StyleVivid {
		t.Errorf("generator saw size=%q style=%q", f.img.gotSize, f.img.gotStyle)
	}
}

func TestPlanImagineErrorsSurfaceToOrchestrator(t *testing.T) {
	f := newFixture(t)
	f.img.err = errors.New("content policy violation")

	p := f.plan(t, commandReq("imagine", map[string]string{"prompt": "something"}))
	if _, _, err := p.Run(context.Background()); err == nil {
		t.Fatal("Run() should surface generator errors")
	}
}

func TestPlanImagineValidation(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, commandReq("imagine", map[string]string{"prompt": "x", "size": "hexagonal"}))
	if !strings.Contains(p.Reply, "Invalid size") {
		t.Errorf("reply = %q", p.Reply)
	}

	p = f.plan(t, commandReq("imagine", nil))
	if p.Reply != "Please provide a prompt." {
		t.Errorf("reply = %q", p.Reply)
	}
}

func TestPlanImagineUnconfigured(t *testing.T) {
	st := newMemStore()
	r := New("1.2.3", st, settings.NewResolver(st), personas.NewManager(),
		history.New(st), ratelimit.New(10, time.Minute), nil)

	p, err := r.Plan(context.Background(), commandReq("imagine", map[string]string{"prompt": "x"}), defaultEff())
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if !strings.Contains(p.Reply, "not configured") {
		t.Errorf("reply = %q", p.Reply)
	}
}

// ---------------------------------------------------------------------------
// Introspect
// ---------------------------------------------------------------------------

func TestPlanIntrospect(t *testing.T) {
	f := newFixture(t)

	req := commandReq("introspect", map[string]string{"component": "database"})
	req.Admin = true
	p := f.plan(t, req)
	if p.Quick {
		t.Fatal("introspect should be deferred")
	}
	if p.Prefix != "🔍 **Database & Memory**\n\n" {
		t.Errorf("prefix = %q", p.Prefix)
	}
	if !strings.Contains(p.System, "IMPLEMENTATION NOTES") {
		t.Errorf("system missing framing: %q", truncateForLog(p.System))
	}
	if !strings.Contains(p.System, "conversation_turns") {
		t.Errorf("system missing doc body: %q", truncateForLog(p.System))
	}
	if !p.SkipHistory {
		t.Error("introspect should not load conversation history")
	}
}

func TestPlanIntrospectUnknownComponent(t *testing.T) {
	f := newFixture(t)

	req := commandReq("introspect", map[string]string{"component": "flux_capacitor"})
	req.Admin = true
	p := f.plan(t, req)
	if p.Reply != "I don't have information about that component." {
		t.Errorf("reply = %q", p.Reply)
	}
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// ---------------------------------------------------------------------------
// Context menus and plain messages
// ---------------------------------------------------------------------------

func TestPlanContextMenus(t *testing.T) {
	f := newFixture(t)

	req := interaction.NewRequest(interaction.KindContextMenu, testIdentity())
	req.Command = "Analyze Message"
	req.TargetText = "we should rewrite everything in assembly"
	p := f.plan(t, req)
	if p.Quick {
		t.Fatal("context menu should be deferred")
	}
	if p.Prompt != `Please analyze this message: "we should rewrite everything in assembly"` {
		t.Errorf("prompt = %q", p.Prompt)
	}
	if p.Prefix != "📝 **Analyze Message:**\n" {
		t.Errorf("prefix = %q", p.Prefix)
	}
	if !strings.Contains(p.System, "clear, actionable steps") {
		t.Errorf("system missing steps modifier: %q", p.System)
	}

	req = interaction.NewRequest(interaction.KindContextMenu, testIdentity())
	req.Command = "Explain Message"
	req.TargetText = "monads are monoids"
	p = f.plan(t, req)
	if !strings.Contains(p.System, "clear explanations") {
		t.Errorf("system missing explain modifier: %q", p.System)
	}

	req = interaction.NewRequest(interaction.KindContextMenu, testIdentity())
	req.Command = "Analyze User"
	req.TargetText = "somebody#1234"
	p = f.plan(t, req)
	if p.Prefix != "👤 **User Analysis:**\n" {
		t.Errorf("prefix = %q", p.Prefix)
	}
	if !strings.Contains(p.Prompt, "somebody#1234") {
		t.Errorf("prompt = %q", p.Prompt)
	}

	req = interaction.NewRequest(interaction.KindContextMenu, testIdentity())
	req.Command = "Analyze Message"
	p = f.plan(t, req)
	if !p.Quick {
		t.Error("empty target should short-circuit to a quick reply")
	}
}

func TestPlanMessageChat(t *testing.T) {
	f := newFixture(t)

	req := interaction.NewRequest(interaction.KindMessage, testIdentity())
	req.Prompt = "what's the capital of France?"
	p := f.plan(t, req)
	if p.Quick {
		t.Fatal("plain messages should be deferred chat")
	}
	if p.Prompt != "what's the capital of France?" || !p.RecordHistory {
		t.Errorf("plan = %+v", p)
	}

	req = interaction.NewRequest(interaction.KindMessage, testIdentity())
	req.Prompt = "   "
	p = f.plan(t, req)
	if !p.Quick || !strings.Contains(p.Reply, "Say something") {
		t.Errorf("empty message reply = %q", p.Reply)
	}
}
