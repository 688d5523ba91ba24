package discovery

import (
	"context"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"portwatch/pkg/logging"
)

// Function variables for mocking in tests.
var (
	netConnections = gnet.ConnectionsWithContext
	newProcess     = process.NewProcessWithContext
)

// NativeSource enumerates listening sockets through the process-table API
// (gopsutil). Full fidelity: command lines and owning users are available.
type NativeSource struct {
	seq uint64
}

// NewNativeSource probes the process-table API once and returns a source,
// or a *DiscoveryError when the API is unusable on this platform (the
// caller then falls back to parsing lsof output).
func NewNativeSource(ctx context.Context) (*NativeSource, error) {
	if _, err := netConnections(ctx, "inet"); err != nil {
		return nil, &DiscoveryError{Backend: BackendNative, Err: err}
	}
	return &NativeSource{}, nil
}

func (s *NativeSource) Backend() BackendKind { return BackendNative }
func (s *NativeSource) Target() string       { return "local" }

// Poll takes one snapshot of all processes with listening sockets.
func (s *NativeSource) Poll(ctx context.Context) (Snapshot, error) {
	conns, err := netConnections(ctx, "inet")
	if err != nil {
		if ctx.Err() != nil {
			return Snapshot{}, ErrDiscoveryTimeout
		}
		return Snapshot{}, &DiscoveryError{Backend: BackendNative, Err: err}
	}

	byPID := make(map[int32][]PortBinding)
	for _, c := range conns {
		if c.Pid == 0 {
			continue
		}
		var proto string
		switch c.Type {
		case syscall.SOCK_STREAM:
			if c.Status != "LISTEN" {
				continue
			}
			proto = "tcp"
		case syscall.SOCK_DGRAM:
			// A bound UDP socket with no peer is a listener for our purposes.
			if c.Raddr.Port != 0 {
				continue
			}
			proto = "udp"
		default:
			continue
		}
		addr := c.Laddr.IP
		if addr == "" || addr == "0.0.0.0" || addr == "::" {
			addr = "*"
		}
		byPID[c.Pid] = append(byPID[c.Pid], PortBinding{
			Port:  int(c.Laddr.Port),
			Proto: proto,
			Addr:  addr,
		})
	}

	records := make(map[int32]ProcessRecord, len(byPID))
	for pid, ports := range byPID {
		rec := ProcessRecord{PID: pid, Ports: ports, Live: true}
		p, perr := newProcess(ctx, pid)
		if perr != nil {
			// Raced with process exit between the socket scan and the
			// metadata read. Keep the ports under a placeholder name.
			rec.Name = "pid:" + strconv.Itoa(int(pid))
		} else {
			if name, nerr := p.NameWithContext(ctx); nerr == nil {
				rec.Name = name
			} else {
				rec.Name = "pid:" + strconv.Itoa(int(pid))
			}
			if cmdline, cerr := p.CmdlineWithContext(ctx); cerr == nil {
				rec.Cmdline = cmdline
			}
			if user, uerr := p.UsernameWithContext(ctx); uerr == nil {
				rec.User = user
			}
		}
		rec.SortPorts()
		records[pid] = rec
	}

	if ctx.Err() != nil {
		return Snapshot{}, ErrDiscoveryTimeout
	}

	snap := Snapshot{
		Seq:       atomic.AddUint64(&s.seq, 1),
		Taken:     time.Now(),
		Processes: records,
	}
	logging.Debug("Discovery", "native poll %d: %d listening processes", snap.Seq, len(records))
	return snap, nil
}
