// Package reporting carries state changes from the core (monitor loop,
// forward manager) to whichever presentation layer is attached: the
// bubbletea TUI in interactive runs, a console logger otherwise.
package reporting

import (
	"portwatch/internal/discovery"
	"portwatch/internal/forward"
	"portwatch/internal/reconcile"
)

// SnapshotDiffMsg delivers one reconciled diff. Diffs arrive strictly in
// poll order; the monitor loop does not start the next poll until the
// previous diff has been handed to the reporter.
type SnapshotDiffMsg struct {
	Diff    reconcile.Diff
	Backend discovery.BackendKind
	Target  string
}

// DiscoveryDegradedMsg signals that the latest poll failed. The previously
// displayed snapshot remains valid; polling retries on the next cycle.
type DiscoveryDegradedMsg struct {
	Err error
}

// SessionMsg delivers a forwarding-session state change.
type SessionMsg struct {
	Session forward.Session
}

// Reporter receives core state changes. Implementations must not block the
// caller for long: the monitor loop and the session manager call in.
type Reporter interface {
	SnapshotDiff(msg SnapshotDiffMsg)
	Degraded(err error)
	Session(s forward.Session)
}
