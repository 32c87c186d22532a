// Package console is the interactive terminal channel: a full-screen
// chat panel with an optional log pane, talking to the orchestrator
// like any other channel. It runs an operator session, so every
// request carries admin rights.
package console

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hwestman/personabot/internal/channels/types"
	"github.com/hwestman/personabot/internal/commands"
	"github.com/hwestman/personabot/internal/interaction"
	"github.com/hwestman/personabot/internal/logging"
	"github.com/hwestman/personabot/internal/orchestrator"
)

// botID identifies the console in reminder routing.
const botID = "console"

// Processor runs one interaction to completion before returning.
type Processor interface {
	Process(tr orchestrator.Transport, req *interaction.Request)
}

// Console owns the terminal session. It blocks the calling goroutine
// for its whole lifetime, so the manager runs it in the foreground
// instead of through StartAll.
type Console struct {
	orch    Processor
	version string

	mu        sync.Mutex
	program   *tea.Program
	running   bool
	startedAt time.Time
}

func New(orch Processor, version string) *Console {
	return &Console{orch: orch, version: version}
}

// Run takes over the terminal until the user exits or ctx is
// canceled. Log output is routed into the log pane while it runs.
func (c *Console) Run(ctx context.Context) error {
	m := newModel(c)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	c.mu.Lock()
	c.program = p
	c.running = true
	c.startedAt = time.Now()
	c.mu.Unlock()

	logging.SetHookExclusive(func(level, msg string) {
		p.Send(logLineMsg{level: level, line: msg})
	})
	logging.L_info("console: session started", "version", c.version)

	defer func() {
		logging.SetHookExclusive(nil)
		c.mu.Lock()
		c.program = nil
		c.running = false
		c.mu.Unlock()
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		// Normal shutdown path: the surrounding context was canceled.
		return nil
	}
	return err
}

// Name implements channels.ManagedChannel.
func (c *Console) Name() string { return "console" }

// Start is a no-op; the console only runs through Run.
func (c *Console) Start(ctx context.Context) error { return nil }

// Stop is a no-op; the session ends when the user exits.
func (c *Console) Stop() error { return nil }

// Status implements channels.ManagedChannel.
func (c *Console) Status() types.ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.ChannelStatus{
		Running:   c.running,
		Connected: c.running,
		StartedAt: c.startedAt,
		Info:      "terminal",
	}
}

// BotID implements channels.Deliverer.
func (c *Console) BotID() string { return botID }

// DeliverReminder drops a due reminder into the chat pane.
func (c *Console) DeliverReminder(ctx context.Context, channelID, userID, text string) error {
	c.mu.Lock()
	p := c.program
	c.mu.Unlock()
	if p == nil {
		return fmt.Errorf("console session not running")
	}
	p.Send(reminderMsg{text: text})
	return nil
}

// buildRequest turns an input line into a request. Slash input maps
// onto the shared command registry; everything else, bang commands
// included, travels the message path.
func buildRequest(text string) (*interaction.Request, error) {
	id := interaction.Identity{
		BotID:     botID,
		UserID:    "operator",
		ChannelID: "console",
	}

	if strings.HasPrefix(text, "/") {
		name, payload, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
		def, ok := commands.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown command /%s, try /help", name)
		}
		req := interaction.NewRequest(interaction.KindCommand, id)
		req.Command = def.Name
		req.Options = commands.OptionsFromText(def, payload)
		if prompt, ok := req.Options[def.PrimaryOption()]; ok {
			req.Prompt = prompt
		}
		req.Admin = true
		return req, nil
	}

	req := interaction.NewRequest(interaction.KindMessage, id)
	req.Prompt = text
	req.Admin = true
	return req, nil
}

// consoleTransport feeds deliveries back into the running program.
// The channel is buffered and permanently drained by the model, so
// late deliveries after a timeout never block the orchestrator.
type consoleTransport struct {
	replies chan tea.Msg
}

// maxMessageLen is effectively unlimited; the terminal has no
// platform message cap worth splitting for.
const maxMessageLen = 64 * 1024

func (t *consoleTransport) Acknowledge(ctx context.Context, req *interaction.Request, text string) (orchestrator.Handle, error) {
	if text == "" {
		// The busy indicator is the placeholder.
		return nil, nil
	}
	t.push(replyMsg{text: text})
	return nil, nil
}

func (t *consoleTransport) EditAcknowledgment(ctx context.Context, req *interaction.Request, h orchestrator.Handle, text string) error {
	t.push(replyMsg{text: text})
	return nil
}

func (t *consoleTransport) SendFollowup(ctx context.Context, req *interaction.Request, text string) error {
	t.push(replyMsg{text: text})
	return nil
}

func (t *consoleTransport) MaxMessageLen() int { return maxMessageLen }

// SendFile saves the attachment to disk and reports where, since a
// terminal cannot display binary content inline.
func (t *consoleTransport) SendFile(ctx context.Context, req *interaction.Request, name string, data []byte) error {
	path := filepath.Join(os.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save attachment: %w", err)
	}
	t.push(fileSavedMsg{path: path})
	return nil
}

// push never blocks. The model drains the channel for the program's
// lifetime; a full buffer means the session is gone and the delivery
// has nowhere to land.
func (t *consoleTransport) push(msg tea.Msg) {
	select {
	case t.replies <- msg:
	default:
	}
}

// pushWait blocks briefly before giving up, for signals the UI must
// not miss while it is still alive.
func (t *consoleTransport) pushWait(msg tea.Msg, d time.Duration) {
	select {
	case t.replies <- msg:
	case <-time.After(d):
	}
}

var (
	_ orchestrator.Transport  = (*consoleTransport)(nil)
	_ orchestrator.FileSender = (*consoleTransport)(nil)
)
