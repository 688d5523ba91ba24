package tui

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"portwatch/internal/credentials"
	"portwatch/internal/forward"
	"portwatch/internal/reporting"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.table.SetWidth(msg.Width - 4)
		h := msg.Height - 12
		if h < 4 {
			h = 4
		}
		m.table.SetHeight(h)
		return m, nil

	case reporting.SnapshotDiffMsg:
		m.seq = msg.Diff.Seq
		m.backend = msg.Backend
		m.target = msg.Target
		m.degraded = nil
		m.gotFirst = true
		m.records = msg.Diff.Live()
		m.rebuildRows()
		return m, nil

	case reporting.DiscoveryDegradedMsg:
		m.degraded = msg.Err
		return m, nil

	case reporting.SessionMsg:
		m.applySession(msg.Session)
		m.rebuildRows()
		return m, nil

	case PromptRequestMsg:
		if m.prompting {
			// One prompt at a time; a second requester loses.
			msg.Reply <- promptResult{err: credentials.ErrNoCredential}
			return m, nil
		}
		m.prompting = true
		m.promptReason = msg.Reason
		m.promptReply = msg.Reply
		m.prompt.SetValue("")
		m.prompt.Focus()
		return m, textinput.Blink

	case LogMsg:
		entry := msg.Entry
		m.lastLog = &entry
		return m, waitForLog(m.cfg.LogCh)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) applySession(s forward.Session) {
	if _, known := m.sessions[s.ID]; !known {
		m.sessionOrder = append(m.sessionOrder, s.ID)
	}
	m.sessions[s.ID] = s
	if s.State == forward.StateClosed {
		m.dropSession(s.ID)
	}
	switch s.State {
	case forward.StateFailed:
		m.statusMsg = errorStyle.Render(fmt.Sprintf("tunnel %d failed: %v", s.Port, s.LastError))
	case forward.StateActive:
		m.statusMsg = fmt.Sprintf("forwarding port %d to %s", s.Port, s.RemoteHost)
	}
}

func (m *Model) dropSession(id forward.SessionID) {
	delete(m.sessions, id)
	for i, other := range m.sessionOrder {
		if other == id {
			m.sessionOrder = append(m.sessionOrder[:i], m.sessionOrder[i+1:]...)
			break
		}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Modal states first: the password prompt and the filter input swallow
	// everything except their own exit keys.
	if m.prompting {
		switch msg.String() {
		case "enter":
			m.promptReply <- promptResult{secret: m.prompt.Value()}
			m.prompting = false
			m.prompt.Blur()
			return m, nil
		case "esc", "ctrl+c":
			m.promptReply <- promptResult{err: credentials.ErrNoCredential}
			m.prompting = false
			m.prompt.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}

	if m.filtering {
		switch msg.String() {
		case "enter":
			m.filtering = false
			m.filter.Blur()
			return m, nil
		case "esc":
			m.filtering = false
			m.filter.SetValue("")
			m.filter.Blur()
			m.rebuildRows()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.rebuildRows()
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.cfg.OnQuit != nil {
			m.cfg.OnQuit()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		m.filter.Focus()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Forward):
		return m.forwardSelected()

	case key.Matches(msg, m.keys.Unforward):
		return m.unforwardSelected()

	case key.Matches(msg, m.keys.Copy):
		return m.copySelected()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) forwardSelected() (tea.Model, tea.Cmd) {
	row, ok := m.selectedRow()
	if !ok {
		return m, nil
	}
	if m.cfg.RemoteHost == "" {
		m.statusMsg = errorStyle.Render("no remote host configured; start with portwatch user@host")
		return m, nil
	}
	_, err := m.cfg.Manager.Forward(row.binding.Port, m.cfg.RemoteHost)
	if err != nil {
		if errors.Is(err, forward.ErrDuplicatePort) {
			m.statusMsg = errorStyle.Render(fmt.Sprintf("port %d is already forwarded", row.binding.Port))
		} else {
			m.statusMsg = errorStyle.Render(err.Error())
		}
		return m, nil
	}
	m.statusMsg = fmt.Sprintf("starting tunnel for port %d…", row.binding.Port)
	return m, nil
}

func (m Model) unforwardSelected() (tea.Model, tea.Cmd) {
	row, ok := m.selectedRow()
	if !ok {
		return m, nil
	}
	s, ok := m.sessionForPort(row.binding.Port)
	if !ok {
		m.statusMsg = errorStyle.Render(fmt.Sprintf("port %d is not forwarded", row.binding.Port))
		return m, nil
	}
	if s.State == forward.StateFailed {
		// Terminal already; just clear it from the panel.
		m.dropSession(s.ID)
		m.rebuildRows()
		return m, nil
	}
	if err := m.cfg.Manager.Unforward(s.ID); err != nil {
		m.statusMsg = errorStyle.Render(err.Error())
		return m, nil
	}
	m.statusMsg = fmt.Sprintf("closing tunnel for port %d…", s.Port)
	return m, nil
}

func (m Model) copySelected() (tea.Model, tea.Cmd) {
	row, ok := m.selectedRow()
	if !ok {
		return m, nil
	}
	addr := fmt.Sprintf("localhost:%d", row.binding.Port)
	if s, ok := m.sessionForPort(row.binding.Port); ok {
		addr = fmt.Sprintf("%s:%d", s.LocalSpec(), s.Port)
	}
	if err := clipboard.WriteAll(addr); err != nil {
		m.statusMsg = errorStyle.Render("clipboard unavailable: " + err.Error())
		return m, nil
	}
	m.statusMsg = fmt.Sprintf("copied %s", addr)
	return m, nil
}
