package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hwestman/personabot/internal/channels"
	"github.com/hwestman/personabot/internal/introspect"
	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
)

// usageWindow is the lookback for the interaction outcome rollup.
const usageWindow = 24 * time.Hour

// pageMarkdown converts the status page body from GitHub-flavored
// markdown; handleIndex wraps the result in pageShell.
var pageMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

const pageShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>PersonaBot</title>
<style>
body { font-family: sans-serif; max-width: 56rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
table { border-collapse: collapse; margin: 0.5rem 0 1.5rem; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.7rem; text-align: left; }
th { background: #f0f0f0; }
h1, h2 { border-bottom: 1px solid #ddd; padding-bottom: 0.2rem; }
code { background: #f4f4f4; padding: 0.1rem 0.3rem; }
</style>
</head>
<body>
%s</body>
</html>
`

// handleHealthz handles GET /healthz - liveness probe, no auth.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := MetricSnapshot()
	writeJSON(w, struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Uptime  string `json:"uptime"`
	}{
		Status:  "ok",
		Version: s.version,
		Uptime:  snap.Uptime,
	})
}

// handleIndex handles GET / - the operator status page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	md := s.statusMarkdown(r.Context())

	var buf bytes.Buffer
	if err := pageMarkdown.Convert([]byte(md), &buf); err != nil {
		L_error("web: status page render failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, pageShell, buf.String())
}

// handleStats handles GET /stats - the machine-readable status.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type channelView struct {
		Running   bool      `json:"running"`
		Connected bool      `json:"connected"`
		Error     string    `json:"error,omitempty"`
		StartedAt time.Time `json:"started_at,omitzero"`
		Info      string    `json:"info,omitempty"`
	}

	chans := make(map[string]channelView)
	if s.chans != nil {
		for name, st := range s.chans.Status() {
			cv := channelView{
				Running:   st.Running,
				Connected: st.Connected,
				StartedAt: st.StartedAt,
				Info:      st.Info,
			}
			if st.Error != nil {
				cv.Error = st.Error.Error()
			}
			chans[name] = cv
		}
	}

	var usage map[string]int64
	if s.usage != nil {
		var err error
		usage, err = s.usage.CountUsageSince(r.Context(), time.Now().Add(-usageWindow))
		if err != nil {
			L_warn("web: usage rollup failed", "error", err)
			usage = nil
		}
	}

	writeJSON(w, struct {
		Version     string                 `json:"version"`
		GeneratedAt time.Time              `json:"generated_at"`
		Channels    map[string]channelView `json:"channels"`
		Usage       map[string]int64       `json:"usage_24h,omitempty"`
		Metrics     Snapshot               `json:"metrics"`
	}{
		Version:     s.version,
		GeneratedAt: time.Now().UTC(),
		Channels:    chans,
		Usage:       usage,
		Metrics:     MetricSnapshot(),
	})
}

// handleInteractions mounts the Discord signed-webhook endpoint. The
// provider is consulted per request so mode switches on config reload
// take effect immediately.
func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	var h http.Handler
	if s.interactions != nil {
		h = s.interactions()
	}
	if h == nil {
		http.Error(w, "Discord webhook mode is not active", http.StatusServiceUnavailable)
		return
	}
	h.ServeHTTP(w, r)
}

// statusMarkdown assembles the status page body. Data sources that
// fail or were not wired render as "unavailable" rather than erroring
// the whole page.
func (s *Server) statusMarkdown(ctx context.Context) string {
	snap := MetricSnapshot()

	var b strings.Builder
	b.WriteString("# PersonaBot\n\n")
	fmt.Fprintf(&b, "- **Version:** %s\n", s.version)
	fmt.Fprintf(&b, "- **Uptime:** %s\n", snap.Uptime)
	fmt.Fprintf(&b, "- **Generated:** %s\n\n", time.Now().UTC().Format(time.RFC3339))

	b.WriteString("## Channels\n\n")
	if s.chans == nil {
		b.WriteString("unavailable\n\n")
	} else {
		writeChannelTable(&b, s.chans.Status())
	}

	fmt.Fprintf(&b, "## Interactions (last %s)\n\n", usageWindow)
	if s.usage == nil {
		b.WriteString("unavailable\n\n")
	} else if usage, err := s.usage.CountUsageSince(ctx, time.Now().Add(-usageWindow)); err != nil {
		L_warn("web: usage rollup failed", "error", err)
		b.WriteString("unavailable\n\n")
	} else {
		writeUsageTable(&b, usage)
	}

	b.WriteString("## Metrics\n\n")
	writeMetricTables(&b, snap)

	b.WriteString("## Features\n\n")
	b.WriteString("| Feature | Version | Since | Toggleable |\n")
	b.WriteString("|---------|---------|-------|------------|\n")
	for _, f := range introspect.Features() {
		toggle := "no"
		if f.Toggleable {
			toggle = "yes"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", f.Name, f.Version, f.Since, toggle)
	}
	b.WriteString("\n")

	return b.String()
}

func writeChannelTable(b *strings.Builder, status map[string]channels.ChannelStatus) {
	if len(status) == 0 {
		b.WriteString("no channels running\n\n")
		return
	}

	b.WriteString("| Channel | State | Since | Info |\n")
	b.WriteString("|---------|-------|-------|------|\n")
	for _, name := range sortedKeys(status) {
		st := status[name]
		since := ""
		if !st.StartedAt.IsZero() {
			since = st.StartedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", name, stateText(st), since, st.Info)
	}
	b.WriteString("\n")
}

func writeUsageTable(b *strings.Builder, usage map[string]int64) {
	if len(usage) == 0 {
		b.WriteString("no interactions recorded\n\n")
		return
	}

	b.WriteString("| Outcome | Count |\n")
	b.WriteString("|---------|-------|\n")
	for _, outcome := range sortedKeys(usage) {
		fmt.Fprintf(b, "| %s | %d |\n", outcome, usage[outcome])
	}
	b.WriteString("\n")
}

func writeMetricTables(b *strings.Builder, snap Snapshot) {
	type row struct{ topic, name, value string }
	var counters, timings []row

	for _, topic := range sortedKeys(snap.Topics) {
		t := snap.Topics[topic]
		for _, name := range sortedKeys(t.Counters) {
			counters = append(counters, row{topic, name, fmt.Sprintf("%d", t.Counters[name].Count)})
		}
		for _, name := range sortedKeys(t.Gauges) {
			counters = append(counters, row{topic, name, fmt.Sprintf("%d", t.Gauges[name].Value)})
		}
		for _, name := range sortedKeys(t.Outcomes) {
			set := t.Outcomes[name]
			for _, outcome := range sortedKeys(set.Outcomes) {
				counters = append(counters, row{topic, name + " " + outcome, fmt.Sprintf("%d", set.Outcomes[outcome])})
			}
		}
		for _, name := range sortedKeys(t.Timings) {
			tm := t.Timings[name]
			timings = append(timings, row{topic, name,
				fmt.Sprintf("%d calls, avg %s, max %s", tm.Count, tm.Average().Round(time.Millisecond), tm.Max.Round(time.Millisecond))})
		}
	}

	if len(counters) == 0 && len(timings) == 0 {
		b.WriteString("no metrics recorded\n\n")
		return
	}

	if len(counters) > 0 {
		b.WriteString("| Topic | Counter | Value |\n")
		b.WriteString("|-------|---------|-------|\n")
		for _, r := range counters {
			fmt.Fprintf(b, "| %s | %s | %s |\n", r.topic, r.name, r.value)
		}
		b.WriteString("\n")
	}
	if len(timings) > 0 {
		b.WriteString("| Topic | Operation | Timing |\n")
		b.WriteString("|-------|-----------|--------|\n")
		for _, r := range timings {
			fmt.Fprintf(b, "| %s | %s | %s |\n", r.topic, r.name, r.value)
		}
		b.WriteString("\n")
	}
}

// stateText condenses a channel status into one table cell.
func stateText(st channels.ChannelStatus) string {
	switch {
	case !st.Running && st.Error != nil:
		return "stopped: " + st.Error.Error()
	case !st.Running:
		return "stopped"
	case st.Error != nil:
		return "degraded: " + st.Error.Error()
	case !st.Connected:
		return "starting"
	default:
		return "running"
	}
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L_error("web: response encode failed", "error", err)
	}
}
