package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/mattn/go-runewidth"

	"portwatch/internal/discovery"
	"portwatch/internal/forward"
)

func itoa(n int) string { return strconv.Itoa(n) }

func (m Model) renderRow(row portRow) table.Row {
	name := row.rec.Name
	if !row.rec.Live {
		name += " †"
	}
	fwd := ""
	if s, ok := m.sessionForPort(row.binding.Port); ok {
		fwd = s.State.String()
	}
	return table.Row{
		itoa(int(row.rec.PID)),
		runewidth.Truncate(name, 20, "…"),
		runewidth.Truncate(row.rec.User, 10, "…"),
		row.binding.Proto,
		itoa(row.binding.Port),
		runewidth.Truncate(row.binding.Addr, 15, "…"),
		fwd,
	}
}

func (m Model) View() string {
	if m.quitting {
		return "closing tunnels…\n"
	}

	var b strings.Builder

	title := titleStyle.Render("portwatch") + statusStyle.Render(fmt.Sprintf("  %s · %s backend · poll %d", m.target, m.backend, m.seq))
	if m.backend == discovery.BackendFallback {
		title += statusStyle.Render("  (reduced fidelity: no command lines)")
	}
	if m.degraded != nil {
		title += "  " + degradedStyle.Render("DEGRADED: "+m.degraded.Error())
	}
	b.WriteString(title + "\n\n")

	if !m.gotFirst {
		b.WriteString(m.spinner.View() + " waiting for first snapshot…\n")
		return b.String()
	}

	b.WriteString(baseStyle.Render(m.table.View()) + "\n")

	// Command line of the selected process, when the backend exposes one.
	if row, ok := m.selectedRow(); ok && row.rec.Cmdline != "" {
		width := m.width - 4
		if width < 20 {
			width = 76
		}
		b.WriteString(statusStyle.Render(runewidth.Truncate(row.rec.Cmdline, width, "…")) + "\n")
	}

	if len(m.sessionOrder) > 0 {
		b.WriteString("\n" + titleStyle.Render("Tunnels") + "\n")
		for _, id := range m.sessionOrder {
			b.WriteString(m.renderSession(m.sessions[id]) + "\n")
		}
	}

	if m.filtering {
		b.WriteString("\n" + m.filter.View() + "\n")
	} else if m.filter.Value() != "" {
		b.WriteString("\n" + statusStyle.Render("filter: "+m.filter.Value()+" (/ to edit, esc to clear)") + "\n")
	}

	if m.prompting {
		box := fmt.Sprintf("Password needed: %s\n%s\n%s",
			m.promptReason,
			m.prompt.View(),
			statusStyle.Render("enter to submit · esc to skip"))
		b.WriteString("\n" + promptStyle.Render(box) + "\n")
	}

	if m.statusMsg != "" {
		b.WriteString("\n" + m.statusMsg + "\n")
	}
	if m.lastLog != nil {
		line := fmt.Sprintf("[%s] %s: %s", m.lastLog.Level, m.lastLog.Subsystem, m.lastLog.Message)
		b.WriteString(statusStyle.Render(runewidth.Truncate(line, max(m.width-2, 40), "…")) + "\n")
	}

	if m.showHelp {
		b.WriteString("\n" + m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		b.WriteString("\n" + m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return b.String()
}

func (m Model) renderSession(s forward.Session) string {
	style := statusStyle
	switch s.State {
	case forward.StateActive:
		style = sessionActiveStyle
	case forward.StateFailed:
		style = sessionFailedStyle
	}
	line := fmt.Sprintf("  %s  port %d -> %s  [%s]", s.ID, s.Port, s.RemoteHost, s.State)
	if s.LastError != nil {
		line += "  " + s.LastError.Error()
	}
	rendered := style.Render(line)
	if s.State == forward.StateFailed && s.Diagnostic != "" {
		rendered += "\n" + statusStyle.Render(indent(s.Diagnostic, "      "))
	}
	return rendered
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
