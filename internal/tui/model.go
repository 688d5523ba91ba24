// Package tui is the presentation layer: a bubbletea program rendering
// reconciled snapshots and forwarding sessions, and translating key presses
// into session-manager calls. All state it holds is a projection; the core
// components own the real thing.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"portwatch/internal/discovery"
	"portwatch/internal/forward"
	"portwatch/pkg/logging"
)

// portRow is one table line: a single (process, port) pair.
type portRow struct {
	rec     discovery.ProcessRecord
	binding discovery.PortBinding
}

// Config wires the model to the core.
type Config struct {
	Manager    *forward.Manager
	RemoteHost string // target for forward requests; empty means local-only
	LogCh      <-chan logging.Entry
	// OnQuit cancels the monitor loop; the caller runs manager shutdown
	// after the program exits.
	OnQuit func()
}

type Model struct {
	cfg  Config
	keys keyMap
	help help.Model

	table   table.Model
	spinner spinner.Model
	filter  textinput.Model
	prompt  textinput.Model

	records []discovery.ProcessRecord
	rows    []portRow

	sessions     map[forward.SessionID]forward.Session
	sessionOrder []forward.SessionID

	seq      uint64
	backend  discovery.BackendKind
	target   string
	degraded error
	gotFirst bool

	filtering    bool
	prompting    bool
	promptReason string
	promptReply  chan promptResult

	statusMsg string
	lastLog   *logging.Entry
	showHelp  bool
	quitting  bool

	width  int
	height int
}

func New(cfg Config) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	filter := textinput.New()
	filter.Placeholder = "name, user or port"
	filter.Prompt = "/"
	filter.CharLimit = 64

	prompt := textinput.New()
	prompt.EchoMode = textinput.EchoPassword
	prompt.EchoCharacter = '•'
	prompt.Prompt = "password: "
	prompt.CharLimit = 256

	columns := []table.Column{
		{Title: "PID", Width: 7},
		{Title: "NAME", Width: 20},
		{Title: "USER", Width: 10},
		{Title: "PROTO", Width: 5},
		{Title: "PORT", Width: 6},
		{Title: "ADDR", Width: 15},
		{Title: "FORWARD", Width: 10},
	}
	tbl := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	tbl.SetStyles(styles)

	return Model{
		cfg:      cfg,
		keys:     defaultKeyMap(),
		help:     help.New(),
		table:    tbl,
		spinner:  sp,
		filter:   filter,
		prompt:   prompt,
		sessions: make(map[forward.SessionID]forward.Session),
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, textinput.Blink}
	if m.cfg.LogCh != nil {
		cmds = append(cmds, waitForLog(m.cfg.LogCh))
	}
	return tea.Batch(cmds...)
}

func waitForLog(ch <-chan logging.Entry) tea.Cmd {
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return nil
		}
		return LogMsg{Entry: entry}
	}
}

// sessionForPort finds the session currently holding a port, if any.
func (m Model) sessionForPort(port int) (forward.Session, bool) {
	for _, id := range m.sessionOrder {
		s := m.sessions[id]
		if s.Port == port {
			return s, true
		}
	}
	return forward.Session{}, false
}

// rebuildRows flattens the record list into one row per port binding,
// applying the filter.
func (m *Model) rebuildRows() {
	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	m.rows = m.rows[:0]
	for _, rec := range m.records {
		if needle != "" && !matchRecord(rec, needle) {
			continue
		}
		for _, b := range rec.Ports {
			m.rows = append(m.rows, portRow{rec: rec, binding: b})
		}
	}

	tableRows := make([]table.Row, len(m.rows))
	for i, row := range m.rows {
		tableRows[i] = m.renderRow(row)
	}
	m.table.SetRows(tableRows)
}

func matchRecord(rec discovery.ProcessRecord, needle string) bool {
	if strings.Contains(strings.ToLower(rec.Name), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(rec.User), needle) {
		return true
	}
	for _, b := range rec.Ports {
		if strings.Contains(itoa(b.Port), needle) {
			return true
		}
	}
	return false
}

// selectedRow returns the port row under the cursor.
func (m Model) selectedRow() (portRow, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.rows) {
		return portRow{}, false
	}
	return m.rows[idx], true
}
