package forward

import "time"

// SessionID identifies one forwarding session for its whole lifetime.
type SessionID string

// State is the lifecycle state of a forwarding session.
type State int

const (
	// StatePending: tunnel requested, subprocess launch in flight.
	StatePending State = iota
	// StateActive: subprocess running, no unexpected exit observed.
	StateActive
	// StateClosing: explicit teardown requested, waiting for exit.
	StateClosing
	// StateClosed: terminal, resources released.
	StateClosed
	// StateFailed: subprocess exited or crashed before explicit teardown.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateActive:
		return "Active"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// live reports whether the state still holds its port.
func (s State) live() bool {
	return s == StatePending || s == StateActive || s == StateClosing
}

// Session is the read-only projection of one tunnel handed to the
// presentation layer. The manager owns the mutable counterpart.
type Session struct {
	ID         SessionID
	Port       int
	RemoteHost string
	BindAddr   string
	State      State
	Created    time.Time
	PID        int
	LastError  error
	// Diagnostic is the captured tail of the subprocess's stderr, reported
	// with Failed transitions.
	Diagnostic string
}

// LocalSpec is the address the tunnel serves, for display and clipboard.
func (s Session) LocalSpec() string {
	addr := s.BindAddr
	if addr == "" || addr == "*" {
		addr = "localhost"
	}
	return addr
}
