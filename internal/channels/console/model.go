package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type replyMsg struct{ text string }
type fileSavedMsg struct{ path string }
type reminderMsg struct{ text string }
type logLineMsg struct {
	level string
	line  string
}
type taskDoneMsg struct{}

const maxLogLines = 500

type model struct {
	con *Console

	chatViewport viewport.Model
	logsViewport viewport.Model
	input        textarea.Model

	chatLines []string
	logLines  []string
	showLogs  bool
	busy      bool
	ready     bool
	width     int
	height    int

	// replies carries transport deliveries out of the processing
	// goroutine; the model drains it for the program's lifetime.
	replies chan tea.Msg
}

func newModel(c *Console) model {
	ti := textarea.New()
	ti.Placeholder = "Type a message, /command, or !command..."
	ti.Focus()
	ti.CharLimit = 10000
	ti.SetHeight(3)
	ti.ShowLineNumbers = false

	m := model{
		con:          c,
		chatViewport: viewport.New(80, 20),
		logsViewport: viewport.New(40, 20),
		input:        ti,
		showLogs:     true,
		replies:      make(chan tea.Msg, 32),
	}

	m.chatLines = append(m.chatLines,
		botStyle.Render(fmt.Sprintf("Persona bot v%s console. Chat away, or use /help and !help.", c.version)),
		helpStyle.Render("Enter to send, Ctrl+L to toggle logs, Ctrl+C to quit"),
		"",
	)
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitForReply())
}

// waitForReply re-arms after every message so the replies channel
// always has a reader, even between interactions.
func (m model) waitForReply() tea.Cmd {
	return func() tea.Msg {
		return <-m.replies
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "ctrl+l":
			m.showLogs = !m.showLogs
			return m, func() tea.Msg {
				return tea.WindowSizeMsg{Width: m.width, Height: m.height}
			}

		case "enter":
			if m.busy {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			return m.submit(text)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		m.refreshChat()
		m.refreshLogs()

	case replyMsg:
		m.appendReply(msg.text)
		return m, m.waitForReply()

	case fileSavedMsg:
		m.chatLines = append(m.chatLines, helpStyle.Render("📎 Attachment saved to "+msg.path), "")
		m.refreshChat()
		return m, m.waitForReply()

	case taskDoneMsg:
		m.busy = false
		return m, m.waitForReply()

	case reminderMsg:
		m.chatLines = append(m.chatLines, reminderStyle.Render("⏰ "+msg.text), "")
		m.refreshChat()
		return m, nil

	case logLineMsg:
		timestamp := time.Now().Format("15:04:05")
		m.logLines = append(m.logLines,
			logStyleFor(msg.level).Render(fmt.Sprintf("%s [%s] %s", timestamp, msg.level, msg.line)))
		if len(m.logLines) > maxLogLines {
			m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
		}
		m.refreshLogs()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.chatViewport, cmd = m.chatViewport.Update(msg)
	cmds = append(cmds, cmd)
	if m.showLogs {
		m.logsViewport, cmd = m.logsViewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// submit maps the input line to a request and runs it in the
// background; deliveries stream back through the replies channel.
func (m model) submit(text string) (tea.Model, tea.Cmd) {
	m.input.Reset()

	req, err := buildRequest(text)
	if err != nil {
		m.chatLines = append(m.chatLines, errorStyle.Render(err.Error()), "")
		m.refreshChat()
		return m, nil
	}

	m.chatLines = append(m.chatLines, userStyle.Render("You: ")+text, "")
	m.refreshChat()
	m.busy = true

	tr := &consoleTransport{replies: m.replies}
	orch := m.con.orch
	return m, func() tea.Msg {
		orch.Process(tr, req)
		tr.pushWait(taskDoneMsg{}, 5*time.Second)
		return nil
	}
}

func (m *model) appendReply(text string) {
	for i, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if i == 0 {
			m.chatLines = append(m.chatLines, botStyle.Render("Bot: ")+line)
		} else {
			m.chatLines = append(m.chatLines, line)
		}
	}
	m.chatLines = append(m.chatLines, "")
	m.refreshChat()
}

func (m *model) resize() {
	chatWidth := m.width
	logsWidth := 0
	if m.showLogs {
		chatWidth = m.width * 55 / 100
		logsWidth = m.width - chatWidth - 1
	}

	contentHeight := m.height - 10

	m.chatViewport.Width = chatWidth - 4
	m.chatViewport.Height = contentHeight
	m.logsViewport.Width = logsWidth - 4
	m.logsViewport.Height = contentHeight
	m.input.SetWidth(chatWidth - 6)
}

func (m *model) refreshChat() {
	wrap := lipgloss.NewStyle().Width(m.chatViewport.Width)
	m.chatViewport.SetContent(wrap.Render(strings.Join(m.chatLines, "\n")))
	m.chatViewport.GotoBottom()
}

func (m *model) refreshLogs() {
	if !m.showLogs {
		return
	}
	wrap := lipgloss.NewStyle().Width(m.logsViewport.Width)
	m.logsViewport.SetContent(wrap.Render(strings.Join(m.logLines, "\n")))
	m.logsViewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	chatWidth := m.width
	logsWidth := 0
	if m.showLogs {
		chatWidth = m.width * 55 / 100
		logsWidth = m.width - chatWidth - 1
	}

	inputView := inputPromptStyle.Render("> ") + m.input.View()
	if m.busy {
		inputView = inputPromptStyle.Render("⏳ Thinking...")
	}

	chatPanel := focusedBorder.
		Width(chatWidth - 2).
		Height(m.height - 3).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("💬 Chat"),
			m.chatViewport.View(),
			"",
			inputView,
		))

	content := chatPanel
	if m.showLogs {
		logsPanel := unfocusedBorder.
			Width(logsWidth - 2).
			Height(m.height - 3).
			Render(lipgloss.JoinVertical(lipgloss.Left,
				titleStyle.Render("📋 Logs"),
				m.logsViewport.View(),
			))
		content = lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, logsPanel)
	}

	return lipgloss.JoinVertical(lipgloss.Left, content, m.renderStatusBar())
}

func (m model) renderStatusBar() string {
	status := "✅ Ready"
	if m.busy {
		status = "⏳ Thinking..."
	}

	logsState := "on"
	if !m.showLogs {
		logsState = "off"
	}
	left := statusBarStyle.Render(fmt.Sprintf("%s │ v%s", status, m.con.version))
	right := statusBarStyle.Render(fmt.Sprintf("Ctrl+L: logs (%s) | Enter: send | Ctrl+C: quit", logsState))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return left + statusBarStyle.Render(strings.Repeat(" ", gap)) + right
}
