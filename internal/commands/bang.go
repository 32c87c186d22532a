package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/hwestman/personabot/internal/interaction"
	"github.com/hwestman/personabot/internal/introspect"
	. "github.com/hwestman/personabot/internal/metrics"
	"github.com/hwestman/personabot/internal/orchestrator"
)

// Bang commands are quick text commands on the message path, prefixed
// with "!". They work on every channel, including ones that have no
// native slash commands.
const bangHelpText = "**Bang Commands (!)**\n\n" +
	"**Info Commands:**\n" +
	"`!help` - Show this help message\n" +
	"`!status` - Show bot status and uptime\n" +
	"`!version` - Show bot and feature versions\n" +
	"`!uptime` - Show how long the bot has been running\n\n" +
	"**Quick Commands:**\n" +
	"`!ping` - Quick ping (text only)\n" +
	"`!features` - List all features with versions"

func (r *Router) planBang(req *interaction.Request, raw string) orchestrator.Plan {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return quick(bangHelpText)
	}
	name := strings.ToLower(fields[0])
	MetricInc("commands", "bang")

	switch name {
	case "help":
		return quick(bangHelpText)
	case "ping":
		return quick(fmt.Sprintf("🏓 Pong! (%dms)", r.now().Sub(req.ReceivedAt).Milliseconds()))
	case "status":
		return quick(r.statusText())
	case "version":
		return quick(r.versionText())
	case "uptime":
		return quick("⏱️ Uptime: " + formatUptime(r.now().Sub(r.started)))
	case "features":
		return quick(introspect.FormatFeatureList(r.version))
	}
	return quick(fmt.Sprintf("Unknown command: `!%s`\nUse `!help` to see available commands.", name))
}

func (r *Router) statusText() string {
	up := r.now().Sub(r.started)
	secs := int64(up.Seconds())
	return fmt.Sprintf("**Bot Status**\n✅ Online and operational\n⏱️ Uptime: %dh %dm %ds\n📦 Version: %s",
		secs/3600, (secs%3600)/60, secs%60, r.version)
}

func (r *Router) versionText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Persona Bot v%s**\n\n", r.version)
	b.WriteString("**Feature Versions:**\n")
	for _, f := range introspect.Features() {
		fmt.Fprintf(&b, "• %s v%s\n", f.Name, f.Version)
	}
	return b.String()
}

func formatUptime(d time.Duration) string {
	secs := int64(d.Seconds())
	days := secs / 86400
	hours := (secs % 86400) / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
