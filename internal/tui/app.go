package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"portfolio-chat/internal/chat"
	"portfolio-chat/internal/stream"
	"portfolio-chat/internal/utils"
)

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	footerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	toolStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	confirmStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	inputBackground = lipgloss.AdaptiveColor{Light: "252", Dark: "236"}
	userStyle       = lipgloss.NewStyle().Padding(0, 1).Background(inputBackground)
	codeStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	msgBoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Background(inputBackground)
)

type model struct {
	cfg    chat.Config
	logger *utils.Logger
	client *chat.Client
	ctx    context.Context

	width  int
	height int

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap

	sessionID  string
	connecting bool
	connectErr error
	expanded   bool
	snippets   int
	status     string
	statusErr  bool
}

type sessionMsg struct {
	id  string
	err error
}

type deliveryMsg struct {
	d stream.Delivery
}

type snippetMsg struct {
	path string
	err  error
}

// Run starts the chat UI and blocks until the user quits. The session is
// released on every exit path.
func Run(ctx context.Context, cfg chat.Config, client *chat.Client, logger *utils.Logger) error {
	defer client.Close()

	m := newModel(ctx, cfg, client, logger)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func newModel(ctx context.Context, cfg chat.Config, client *chat.Client, logger *utils.Logger) model {
	input := textarea.New()
	input.Placeholder = "Ask about your portfolio"
	input.Focus()
	input.Prompt = ""
	input.ShowLineNumbers = false
	input.SetHeight(3)
	input.CharLimit = 4000
	input.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	input.FocusedStyle.Base = input.FocusedStyle.Base.Background(inputBackground)
	input.BlurredStyle.Base = input.BlurredStyle.Base.Background(inputBackground)
	input.FocusedStyle.CursorLine = input.FocusedStyle.CursorLine.Background(inputBackground)
	input.BlurredStyle.CursorLine = input.BlurredStyle.CursorLine.Background(inputBackground)

	spin := spinner.New()
	spin.Spinner = spinner.Line
	spin.Style = dimStyle

	return model{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		ctx:        ctx,
		viewport:   viewport.New(0, 0),
		input:      input,
		spinner:    spin,
		help:       help.New(),
		keys:       defaultKeyMap,
		connecting: true,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(connectCmd(m.ctx, m.client), m.spinner.Tick, textarea.Blink)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.syncViewport()
		return m, nil

	case sessionMsg:
		m.connecting = false
		m.connectErr = msg.err
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Could not start a session: %v (ctrl+r to retry)", msg.err), true)
		} else {
			m.sessionID = msg.id
			m.setStatus("", false)
		}
		return m, nil

	case deliveryMsg:
		if !m.client.Handle(msg.d) {
			return m, nil
		}
		var cmd tea.Cmd
		if msg.d.Done {
			if err := m.client.LastError(); err != nil {
				m.setStatus("Response interrupted: "+err.Error(), true)
			}
			m.input.Focus()
		} else if h := m.client.Live(); h != nil {
			cmd = listenCmd(h)
		}
		m.syncViewport()
		return m, cmd

	case snippetMsg:
		if msg.err != nil {
			m.setStatus("Could not save code: "+msg.err.Error(), true)
		} else {
			m.setStatus("Code saved to "+msg.path, false)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.client.Waiting() {
			m.syncViewport()
		}
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.client.Cancel()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.layout()
			m.syncViewport()
			return m, nil
		case key.Matches(msg, m.keys.Cancel):
			if m.client.Waiting() {
				m.client.Cancel()
				m.setStatus("Stopped.", false)
			}
			return m, nil
		case key.Matches(msg, m.keys.Expand):
			m.expanded = !m.expanded
			m.syncViewport()
			return m, nil
		case key.Matches(msg, m.keys.Snippet):
			code, ok := latestCode(m.client.Segments())
			if !ok {
				m.setStatus("No code block in the conversation yet.", false)
				return m, nil
			}
			m.snippets++
			return m, saveSnippetCmd(m.cfg.DataDir, m.snippets, code)
		case key.Matches(msg, m.keys.Retry):
			if m.sessionID == "" && !m.connecting {
				m.connecting = true
				m.setStatus("", false)
				return m, connectCmd(m.ctx, m.client)
			}
			return m, nil
		case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case key.Matches(msg, m.keys.Send):
			return m.submit()
		}
	}

	if _, isKey := msg.(tea.KeyMsg); isKey && m.client.Waiting() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	if m.client.Waiting() {
		return m, nil
	}
	text := m.input.Value()
	h, err := m.client.Submit(m.ctx, text)
	switch {
	case errors.Is(err, chat.ErrEmptyQuery):
		return m, nil
	case errors.Is(err, chat.ErrNoSession):
		if m.connecting {
			m.setStatus("Still connecting, try again in a moment.", false)
		} else {
			m.setStatus("No session. Press ctrl+r to reconnect.", true)
		}
		return m, nil
	case err != nil:
		m.setStatus(err.Error(), true)
		return m, nil
	}
	m.input.Reset()
	m.input.Blur()
	m.setStatus("", false)
	m.syncViewport()
	m.viewport.GotoBottom()
	return m, listenCmd(h)
}

func (m *model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(msgBoxStyle.Width(max(m.width-2, 1)).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m model) renderHeader() string {
	title := headerStyle.Render("Portfolio Chat")
	var state string
	switch {
	case m.sessionID != "":
		state = dimStyle.Render("session " + shortID(m.sessionID))
	case m.connecting:
		state = dimStyle.Render(m.spinner.View() + " connecting")
	default:
		state = errStyle.Render("offline")
	}
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(state)
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + state
}

func (m model) renderStatusBar() string {
	if m.status == "" {
		return footerStyle.Render(m.cfg.Backend.Kind + " backend")
	}
	if m.statusErr {
		return errStyle.Render(m.status)
	}
	return confirmStyle.Render(m.status)
}

func (m *model) layout() {
	if m.width == 0 {
		return
	}
	m.input.SetWidth(max(m.width-4, 1))
	m.help.Width = m.width
	chrome := 1 + (m.input.Height() + 2) + 1 + lipgloss.Height(m.help.View(m.keys)) + 1
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chrome, 1)
}

func (m *model) transcriptLines() []string {
	segs := m.client.Segments()
	if len(segs) == 0 {
		headline := headerStyle.Render(emptyHeadline)
		return []string{"", lipgloss.PlaceHorizontal(m.viewport.Width, lipgloss.Center, headline)}
	}
	lines := renderTranscript(segs, m.viewport.Width-1, m.expanded)
	if m.client.Waiting() {
		lines = append(lines, "", dimStyle.Render("Waiting for response "+m.spinner.View()))
	}
	return lines
}

func (m *model) syncViewport() {
	if m.viewport.Width <= 0 || m.viewport.Height <= 0 {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.transcriptLines(), "\n"))
	if atBottom || m.client.Waiting() {
		m.viewport.GotoBottom()
	}
}

func connectCmd(ctx context.Context, client *chat.Client) tea.Cmd {
	return func() tea.Msg {
		id, err := client.Connect(ctx)
		return sessionMsg{id: id, err: err}
	}
}

// listenCmd waits for the next delivery of h. Update re-arms it until the
// terminal delivery arrives.
func listenCmd(h *stream.Handle) tea.Cmd {
	return func() tea.Msg {
		return deliveryMsg{d: h.Recv()}
	}
}

func saveSnippetCmd(dir string, n int, code string) tea.Cmd {
	return func() tea.Msg {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return snippetMsg{err: err}
		}
		name := fmt.Sprintf("snippet-%s-%d.txt", time.Now().Format("20060102-150405"), n)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
			return snippetMsg{err: err}
		}
		return snippetMsg{path: path}
	}
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
