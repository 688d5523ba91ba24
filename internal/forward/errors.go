package forward

import "errors"

var (
	// ErrDuplicatePort is returned when a live session already holds the
	// requested port. At most one tunnel may exist per port.
	ErrDuplicatePort = errors.New("a forwarding session already exists for this port")

	// ErrSessionNotFound is returned for unknown or already-closed session
	// ids. The active-session set is never mutated on this path.
	ErrSessionNotFound = errors.New("forwarding session not found")
)
