package discovery

import (
	"context"
	"sort"
	"time"
)

// BackendKind identifies the mechanism used to enumerate processes and
// their listening ports.
type BackendKind string

const (
	// BackendNative reads the process table directly via gopsutil.
	BackendNative BackendKind = "native"
	// BackendFallback parses the output of a generic listing utility
	// (lsof). Reduced fidelity: no full command lines.
	BackendFallback BackendKind = "fallback"
	// BackendMock replays a canned snapshot sequence.
	BackendMock BackendKind = "mock"
)

// PortBinding is one listening socket owned by a process.
type PortBinding struct {
	Port  int
	Proto string // "tcp" or "udp"
	Addr  string // bind address, "*" when wildcard
}

// ProcessRecord is one observed process with at least one listening port.
// Identity across snapshots is (PID, Name); a PID that reappears with a
// different command name is a new entity.
type ProcessRecord struct {
	PID     int32
	Name    string
	Cmdline string // empty on fallback backends
	User    string
	Ports   []PortBinding
	Live    bool
}

// SamePorts reports whether two records expose an identical port set.
// Both sides must be in canonical order (see SortPorts).
func (r ProcessRecord) SamePorts(other ProcessRecord) bool {
	if len(r.Ports) != len(other.Ports) {
		return false
	}
	for i, p := range r.Ports {
		if p != other.Ports[i] {
			return false
		}
	}
	return true
}

// SortPorts puts the record's port bindings into canonical order so that
// diffing is independent of enumeration order.
func (r *ProcessRecord) SortPorts() {
	sort.Slice(r.Ports, func(i, j int) bool {
		if r.Ports[i].Port != r.Ports[j].Port {
			return r.Ports[i].Port < r.Ports[j].Port
		}
		return r.Ports[i].Proto < r.Ports[j].Proto
	})
}

// Snapshot is one atomic observation of all listening processes, totally
// ordered by Seq.
type Snapshot struct {
	Seq       uint64
	Taken     time.Time
	Processes map[int32]ProcessRecord
}

// Source enumerates processes with listening ports on a target.
type Source interface {
	// Poll takes one snapshot. It may block on I/O; callers bound it with a
	// context deadline. Returns a *DiscoveryError or ErrDiscoveryTimeout on
	// failure.
	Poll(ctx context.Context) (Snapshot, error)
	// Backend reports which enumeration mechanism is active, so the
	// presentation layer can disclose reduced fidelity.
	Backend() BackendKind
	// Target describes where polling happens ("local" or user@host).
	Target() string
}
