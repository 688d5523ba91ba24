package discovery

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBackend means no discovery backend could be initialized at
	// startup. Fatal: the caller should exit non-zero.
	ErrNoBackend = errors.New("no viable discovery backend")

	// ErrDiscoveryTimeout means a poll exceeded its deadline. Recoverable:
	// the previous snapshot stays valid and the next cycle retries.
	ErrDiscoveryTimeout = errors.New("discovery poll timed out")
)

// DiscoveryError wraps a failure of the underlying listing mechanism
// (command missing, remote connection broken, permission denied).
type DiscoveryError struct {
	Backend BackendKind
	Err     error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery via %s backend failed: %v", e.Backend, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }
