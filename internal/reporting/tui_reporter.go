package reporting

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"portwatch/internal/forward"
)

// TUIReporter forwards core events into the bubbletea program as messages.
// Events reported before the program is attached are buffered and flushed
// on attach, so nothing from the first poll races the TUI startup.
type TUIReporter struct {
	mu      sync.Mutex
	program *tea.Program
	backlog []tea.Msg
}

func NewTUIReporter() *TUIReporter { return &TUIReporter{} }

// Attach hands the running program to the reporter and flushes buffered
// events in their original order.
func (r *TUIReporter) Attach(p *tea.Program) {
	r.mu.Lock()
	r.program = p
	backlog := r.backlog
	r.backlog = nil
	r.mu.Unlock()
	for _, msg := range backlog {
		p.Send(msg)
	}
}

func (r *TUIReporter) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	if p == nil {
		r.backlog = append(r.backlog, msg)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	p.Send(msg)
}

func (r *TUIReporter) SnapshotDiff(msg SnapshotDiffMsg) { r.send(msg) }

func (r *TUIReporter) Degraded(err error) { r.send(DiscoveryDegradedMsg{Err: err}) }

func (r *TUIReporter) Session(s forward.Session) { r.send(SessionMsg{Session: s}) }
