package reporting

import (
	"portwatch/internal/forward"
	"portwatch/pkg/logging"
)

// ConsoleReporter logs state changes instead of rendering them. Used when
// stdout is not a terminal and in tests.
type ConsoleReporter struct{}

func NewConsoleReporter() *ConsoleReporter { return &ConsoleReporter{} }

func (r *ConsoleReporter) SnapshotDiff(msg SnapshotDiffMsg) {
	d := msg.Diff
	for _, rec := range d.Added {
		logging.Info("Snapshot", "new: pid %d %s ports %v", rec.PID, rec.Name, rec.Ports)
	}
	for _, rec := range d.Updated {
		logging.Info("Snapshot", "changed: pid %d %s ports %v", rec.PID, rec.Name, rec.Ports)
	}
	for _, rec := range d.Removed {
		logging.Info("Snapshot", "gone: pid %d %s", rec.PID, rec.Name)
	}
}

func (r *ConsoleReporter) Degraded(err error) {
	logging.Warn("Snapshot", "poll failed, keeping previous state: %v", err)
}

func (r *ConsoleReporter) Session(s forward.Session) {
	if s.LastError != nil {
		logging.Error("Session", s.LastError, "%s port %d -> %s: %s", s.ID, s.Port, s.RemoteHost, s.State)
		return
	}
	logging.Info("Session", "%s port %d -> %s: %s", s.ID, s.Port, s.RemoteHost, s.State)
}
