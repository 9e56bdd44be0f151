package console

import (
	"context"
	"fmt"
	"strings"

	"warden/pkg/channel"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type entryMsg Entry

type dispatchDoneMsg struct{}

type model struct {
	ctx     context.Context
	adapter *Adapter
	handler channel.Handler

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	entries   []Entry
	width     int
	height    int
	isReady   bool
	isBusy    bool
	followLog bool
}

func newModel(ctx context.Context, adapter *Adapter, handler channel.Handler) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Type a message, !command, or :group / :admin / :join / :leave"
	in.Focus()
	in.CharLimit = 0

	return &model{
		ctx:       ctx,
		adapter:   adapter,
		handler:   handler,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case entryMsg:
		m.entries = append(m.entries, Entry(typed))
		m.refreshViewport(false)
		return m, nil
	case dispatchDoneMsg:
		m.isBusy = false
		return m, nil
	case spinner.TickMsg:
		if !m.isBusy {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}
		if m.handleViewportKey(typed) {
			return m, nil
		}
		if typed.String() == "enter" {
			return m, m.submit()
		}
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) submit() tea.Cmd {
	if m.isBusy {
		return nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	if isExitCommand(text) {
		return tea.Quit
	}

	m.entries = append(m.entries, Entry{Role: "user", Text: text})
	m.input.SetValue("")
	m.isBusy = true
	m.followLog = true
	m.refreshViewport(true)

	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		m.adapter.Submit(m.ctx, text, m.handler)
		return dispatchDoneMsg{}
	})
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("warden console")
	m.adapter.mu.Lock()
	group, admin := m.adapter.group, m.adapter.senderAdmin
	m.adapter.mu.Unlock()
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"sender:%s · group:%s · admin:%s · public:%s",
		m.adapter.sender(), onOff(group), onOff(admin), onOff(m.adapter.PublicMode()),
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("Enter send  ·  PgUp/PgDn scroll  ·  End jump latest  ·  Ctrl+C/Esc quit")
	if m.isBusy {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s dispatching...", m.spinner.View()))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("You")+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := max(8, m.height-10)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		sections = append(sections, m.renderEntry(entry))
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderEntry(entry Entry) string {
	body := strings.TrimSpace(entry.Text)
	switch entry.Role {
	case "user":
		return lipgloss.JoinVertical(lipgloss.Left,
			m.theme.userTitle.Render("you"),
			m.theme.userBox.Width(m.viewport.Width).Render(body),
		)
	case "bot":
		return lipgloss.JoinVertical(lipgloss.Left,
			m.theme.botTitle.Render("bot"),
			m.theme.botBox.Width(m.viewport.Width).Render(body),
		)
	case "action":
		return m.theme.action.Render("⚑ " + body)
	default:
		return m.theme.hint.Render("· " + body)
	}
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
