// Command roster-cli is a terminal chat client for a running roster service.
//
// Usage:
//
//	roster serve &
//	go run ./cmd/cli --server http://localhost:8080
//
// Commands:
//
//	/exit - Exit the program
//	/clear - Clear the filters applied to the user list
//	<message> - Ask about or change user records
//
// Esc stops a reply that is still streaming.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nstogner/roster/pkg/client"
	"github.com/nstogner/roster/pkg/config"
	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/logging"
	"github.com/nstogner/roster/pkg/stream"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	messageStyle = lipgloss.NewStyle().PaddingLeft(2)
	filterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1) // Red
)

const (
	tableHeight = 8
	welcome     = "Ask a question or request a change to the user list."
)

type turnEventMsg struct{ ev stream.Event }

type turnDoneMsg struct {
	reply client.Reply
	err   error
}

type usersMsg struct {
	users []domain.User
	err   error
}

type entry struct {
	role domain.Role
	text string
}

type model struct {
	ctx     context.Context
	client  *client.Client
	session *client.Session

	// events carries stream events from the running turn. One waitForEvent
	// command is always outstanding on it.
	events chan tea.Msg
	// cancel is set while a turn is in flight.
	cancel context.CancelFunc
	status string
	notice string

	width  int
	height int
	err    error

	// UI Components
	viewport viewport.Model
	textarea textarea.Model
	table    table.Model
	spinner  spinner.Model

	// Data
	entries  []entry
	partial  string
	renderer *glamour.TermRenderer
}

func initialModel(ctx context.Context, c *client.Client, window int) model {
	ta := textarea.New()
	ta.Placeholder = "Ask about users, e.g. \"show developers under 40\""
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 500

	ta.SetWidth(80)
	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(80, 10)
	vp.SetContent(welcome)
	// Letters belong to the input; only paging keys scroll the transcript.
	vp.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
	}

	tbl := table.New(
		table.WithColumns(columns(80)),
		table.WithHeight(tableHeight),
		table.WithFocused(false),
	)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle

	// Use "light" style to avoid terminal queries that leak into input
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	return model{
		ctx:      ctx,
		client:   c,
		session:  c.NewSession(window),
		events:   make(chan tea.Msg),
		viewport: vp,
		textarea: ta,
		table:    tbl,
		spinner:  sp,
		renderer: r,
	}
}

func columns(width int) []table.Column {
	w := (width - 14) / 4
	if w < 10 {
		w = 10
	}
	return []table.Column{
		{Title: "Name", Width: w},
		{Title: "Email", Width: w},
		{Title: "Role", Width: w / 2},
		{Title: "Department", Width: w},
		{Title: "Age", Width: 4},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForEvent(m.events), m.loadUsers())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	var tiCmd, vpCmd tea.Cmd
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, tiCmd, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textarea.SetWidth(msg.Width)
		m.table.SetColumns(columns(msg.Width))
		m.table.SetWidth(msg.Width)
		m.viewport.Width = msg.Width
		// Title, table with header and border, spacer, status, error.
		m.viewport.Height = msg.Height - m.textarea.Height() - tableHeight - 6
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}

		// Recreate renderer with new width
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(m.width-4),
		)
		m.refreshView()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.cancel != nil {
				m.cancel()
				m.status = "Stopping..."
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEnter:
			if m.cancel != nil {
				return m, nil
			}
			m, cmd := m.send()
			return m, cmd
		}

	case turnEventMsg:
		cmds = append(cmds, waitForEvent(m.events))
		// Events can trail the done message of a cancelled turn.
		if m.cancel == nil {
			break
		}
		switch msg.ev.Kind {
		case stream.EventStatus:
			m.status = msg.ev.Status
		case stream.EventMetadata:
			cmds = append(cmds, m.loadUsers())
		case stream.EventContent:
			m.status = ""
			m.partial += msg.ev.Content
			m.refreshView()
		}

	case turnDoneMsg:
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.status = ""
		m.partial = ""
		switch {
		case errors.Is(msg.err, context.Canceled):
			m.notice = "Reply stopped; it was not added to the conversation."
		case client.IsUnavailable(msg.err):
			m.err = fmt.Errorf("chat is unavailable: the service has no model configured")
		case msg.err != nil:
			slog.Error("Chat turn failed", "error", msg.err)
			m.err = msg.err
		default:
			m.entries = append(m.entries, entry{role: domain.RoleAssistant, text: msg.reply.Content})
			if msg.reply.Refresh {
				cmds = append(cmds, m.loadUsers())
			}
		}
		m.refreshView()

	case usersMsg:
		if msg.err != nil {
			slog.Error("Failed to load users", "error", msg.err)
			m.err = msg.err
			break
		}
		m.table.SetRows(rows(msg.users))

	case spinner.TickMsg:
		if m.cancel != nil {
			var spCmd tea.Cmd
			m.spinner, spCmd = m.spinner.Update(msg)
			cmds = append(cmds, spCmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("Error: %v", m.err))
	}

	var statusView string
	switch {
	case m.status != "":
		statusView = m.spinner.View() + " " + statusStyle.Render(m.status)
	case m.notice != "":
		statusView = filterStyle.Render(m.notice)
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("Roster"),
		" ",
		filterStyle.Render(filterSummary(m.session.Filters())),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		m.table.View(),
		"",
		m.viewport.View(),
		statusView,
		errorView,
		m.textarea.View(),
	)
}

// Actions

func (m model) send() (model, tea.Cmd) {
	v := strings.TrimSpace(m.textarea.Value())
	m.textarea.Reset()
	if v == "" {
		return m, nil
	}

	m.err = nil
	m.notice = ""
	switch v {
	case "/exit":
		return m, tea.Quit
	case "/clear":
		m.session.ClearFilters()
		return m, m.loadUsers()
	}

	m.entries = append(m.entries, entry{role: domain.RoleUser, text: v})
	m.refreshView()

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.status = "Sending..."

	sess, events := m.session, m.events
	run := func() tea.Msg {
		reply, err := sess.Send(ctx, v, func(ev stream.Event) {
			events <- turnEventMsg{ev}
		})
		return turnDoneMsg{reply: reply, err: err}
	}
	return m, tea.Batch(run, m.spinner.Tick)
}

func (m model) loadUsers() tea.Cmd {
	ctx, c, f := m.ctx, m.client, m.session.Filters()
	return func() tea.Msg {
		users, err := c.Users(ctx, f)
		return usersMsg{users: users, err: err}
	}
}

func (m *model) refreshView() {
	if len(m.entries) == 0 && m.partial == "" {
		m.viewport.SetContent(welcome)
		return
	}
	var sb strings.Builder
	for _, e := range m.entries {
		if e.role == domain.RoleUser {
			sb.WriteString(userStyle.Render("You: "))
			sb.WriteString("\n")
			sb.WriteString(messageStyle.Render(e.text))
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(senderStyle.Render("Assistant: "))
		sb.WriteString("\n")
		sb.WriteString(m.render(e.text))
		sb.WriteString("\n")
	}
	if m.partial != "" {
		sb.WriteString(senderStyle.Render("Assistant: "))
		sb.WriteString("\n")
		sb.WriteString(messageStyle.Render(m.partial))
		sb.WriteString("\n")
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m *model) render(text string) string {
	if m.renderer == nil {
		return messageStyle.Render(text)
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return messageStyle.Render(text)
	}
	return out
}

func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func rows(users []domain.User) []table.Row {
	out := make([]table.Row, 0, len(users))
	for _, u := range users {
		age := ""
		if u.Age != nil {
			age = strconv.Itoa(*u.Age)
		}
		out = append(out, table.Row{u.Name, u.Email, u.Role, u.Department, age})
	}
	return out
}

// filterSummary describes the applied filters in one line.
func filterSummary(f domain.FilterSpec) string {
	if f.IsEmpty() {
		return "all users"
	}
	var parts []string
	if f.Name != "" {
		parts = append(parts, fmt.Sprintf("name~%q", f.Name))
	}
	if f.Email != "" {
		parts = append(parts, fmt.Sprintf("email~%q", f.Email))
	}
	if f.Phone != "" {
		parts = append(parts, "phone~"+f.Phone)
	}
	if len(f.Role) > 0 {
		parts = append(parts, "role: "+strings.Join(f.Role, ", "))
	}
	if len(f.Department) > 0 {
		parts = append(parts, "department: "+strings.Join(f.Department, ", "))
	}
	switch {
	case f.MinAge != "" && f.MaxAge != "":
		parts = append(parts, "age "+f.MinAge+"-"+f.MaxAge)
	case f.MinAge != "":
		parts = append(parts, "age >= "+f.MinAge)
	case f.MaxAge != "":
		parts = append(parts, "age <= "+f.MaxAge)
	}
	if f.SortBy != "" {
		order := f.SortOrder
		if order == "" {
			order = f.SortBy.DefaultOrder()
		}
		parts = append(parts, fmt.Sprintf("sorted by %s %s", f.SortBy, order))
	}
	return strings.Join(parts, " | ")
}

// --- Main ---

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "roster-cli:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		serverURL string
		window    int
		logCfg    config.LogConfig
	)

	cmd := &cobra.Command{
		Use:           "roster-cli",
		Short:         "Chat with a roster service from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The terminal is owned by the UI, so logs go to a file.
			logger, closeLog, err := logging.New(logCfg)
			if err != nil {
				return err
			}
			defer closeLog()
			slog.SetDefault(logger)
			slog.Info("Logging initialized", "level", logCfg.Level, "server", serverURL)

			c := client.New(serverURL, nil)
			p := tea.NewProgram(initialModel(cmd.Context(), c, window), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "roster service URL")
	cmd.Flags().IntVar(&window, "history", 20, "conversation turns sent with each message")
	cmd.Flags().StringVar(&logCfg.Output, "log-file", "roster-cli.log", "log file")
	cmd.Flags().StringVar(&logCfg.Level, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}
