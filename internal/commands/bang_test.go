package commands

import (
	"strings"
	"testing"
	"time"

	"github.com/hwestman/personabot/internal/interaction"
)

func bangReq(text string) *interaction.Request {
	req := interaction.NewRequest(interaction.KindMessage, testIdentity())
	req.Prompt = text
	req.ReceivedAt = testBase
	return req
}

func TestPlanBangCommands(t *testing.T) {
	f := newFixture(t)
	cur := testBase
	f.r.SetNow(func() time.Time { return cur })
	cur = testBase.Add(90*time.Second + 40*time.Millisecond)

	cases := []struct {
		text string
		want string
	}{
		{"!help", "**Bang Commands (!)**"},
		{"!ping", "🏓 Pong! (90040ms)"},
		{"!status", "✅ Online and operational"},
		{"!uptime", "⏱️ Uptime: 1m 30s"},
		{"!features", "Persona System"},
		{"!", "**Bang Commands (!)**"},
	}
	for _, c := range cases {
		p := f.plan(t, bangReq(c.text))
		if !p.Quick {
			t.Errorf("%s: should be quick", c.text)
		}
		if !strings.Contains(p.Reply, c.want) {
			t.Errorf("%s: reply %q missing %q", c.text, p.Reply, c.want)
		}
	}
}

func TestPlanBangVersion(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, bangReq("!version"))
	if !strings.Contains(p.Reply, "**Persona Bot v1.2.3**") {
		t.Errorf("reply = %q", p.Reply)
	}
	if !strings.Contains(p.Reply, "• Reminders v") {
		t.Errorf("reply missing feature rows: %q", p.Reply)
	}
}

func TestPlanBangUnknown(t *testing.T) {
	f := newFixture(t)

	p := f.plan(t, bangReq("!selfdestruct now"))
	if p.Reply != "Unknown command: `!selfdestruct`\nUse `!help` to see available commands." {
		t.Errorf("reply = %q", p.Reply)
	}
}

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{5*time.Minute + 7*time.Second, "5m 7s"},
		{3*time.Hour + 2*time.Minute, "3h 2m 0s"},
		{49*time.Hour + 30*time.Minute + 5*time.Second, "2d 1h 30m 5s"},
	}
	for _, c := range cases {
		if got := formatUptime(c.d); got != c.want {
			t.Errorf("formatUptime(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}
