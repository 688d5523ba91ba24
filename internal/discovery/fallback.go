package discovery

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"portwatch/internal/credentials"
	"portwatch/pkg/logging"
)

// listCommand is the fixed command string the fallback backend runs, locally
// or piped to a remote shell. lsof exits 1 when a sub-listing is empty, so
// the trailing true keeps the shell's exit status clean.
const listCommand = `lsof -nP -iTCP -sTCP:LISTEN -FpcLPn 2>/dev/null; lsof -nP -iUDP -FpcLPn 2>/dev/null; true`

// Runner executes the fixed listing command somewhere and returns its
// combined stdout.
type Runner interface {
	Run(ctx context.Context, command string, stdin string) ([]byte, error)
	Target() string
}

// PasswordFunc supplies a privileged-command password on demand. It is the
// credential broker's Password method in production.
type PasswordFunc func(ctx context.Context, reason string) (string, error)

// LocalRunner executes the listing command through the local shell.
type LocalRunner struct{}

func (LocalRunner) Target() string { return "local" }

func (LocalRunner) Run(ctx context.Context, command string, stdin string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	return cmd.Output()
}

// FallbackSource parses lsof field output produced by a Runner. Used both
// locally (when the native backend is unavailable) and remotely (Runner
// pipes the command over ssh). Fidelity is reduced: lsof reports command
// names but not full command lines.
type FallbackSource struct {
	runner   Runner
	password PasswordFunc    // nil disables the sudo attempt
	credCtx  context.Context // bounds credential prompts, see SetCredentialContext
	seq      uint64

	sudoUnavailable atomic.Bool // set once the user has declined
}

// NewFallbackSource builds a fallback source over the given runner. When
// password is non-nil, listing is attempted with sudo so other users'
// processes are visible; if no credential can be obtained the source
// degrades to an unprivileged listing instead of failing the poll.
func NewFallbackSource(runner Runner, password PasswordFunc) *FallbackSource {
	return &FallbackSource{runner: runner, password: password}
}

// SetCredentialContext installs the context credential prompts run under.
// A human typing a password must not be raced against the poll deadline,
// so prompts are bound to the run's lifetime instead of one poll's. Unset,
// prompts fall back to the poll context.
func (s *FallbackSource) SetCredentialContext(ctx context.Context) {
	s.credCtx = ctx
}

func (s *FallbackSource) Backend() BackendKind { return BackendFallback }
func (s *FallbackSource) Target() string       { return s.runner.Target() }

// Probe runs the listing command once to verify lsof is usable on the
// target. Returns a *DiscoveryError when it is not.
func (s *FallbackSource) Probe(ctx context.Context) error {
	if _, err := s.runner.Run(ctx, "command -v lsof >/dev/null", ""); err != nil {
		return &DiscoveryError{Backend: BackendFallback, Err: err}
	}
	return nil
}

func (s *FallbackSource) Poll(ctx context.Context) (Snapshot, error) {
	command := listCommand
	stdin := ""
	if s.password != nil && !s.sudoUnavailable.Load() {
		credCtx := s.credCtx
		if credCtx == nil {
			credCtx = ctx
		}
		secret, err := s.password(credCtx, "list all users' listening processes")
		switch {
		case err == nil:
			command = "sudo -S -p '' sh -c " + shellQuote(listCommand)
			stdin = secret + "\n"
		case errors.Is(err, credentials.ErrNoCredential):
			// The user declined (or no prompt exists). Privileged listing
			// is optional: degrade to own-user visibility and stop asking.
			s.sudoUnavailable.Store(true)
			logging.Warn("Discovery", "no credential for privileged listing, showing current user only")
		default:
			// Transient (prompt interrupted, context cancelled). Poll
			// unprivileged this cycle and ask again next time.
			logging.Debug("Discovery", "credential fetch failed, polling unprivileged: %v", err)
		}
	}

	out, err := s.runner.Run(ctx, command, stdin)
	if err != nil {
		var exitErr *exec.ExitError
		if ctx.Err() == context.DeadlineExceeded {
			return Snapshot{}, ErrDiscoveryTimeout
		}
		if errors.As(err, &exitErr) {
			err = errors.New(strings.TrimSpace(string(exitErr.Stderr)) + ": " + err.Error())
		}
		return Snapshot{}, &DiscoveryError{Backend: BackendFallback, Err: err}
	}

	records := parseListOutput(string(out))
	snap := Snapshot{
		Seq:       atomic.AddUint64(&s.seq, 1),
		Taken:     time.Now(),
		Processes: records,
	}
	logging.Debug("Discovery", "fallback poll %d on %s: %d listening processes", snap.Seq, s.Target(), len(records))
	return snap, nil
}

// parseListOutput decodes lsof -F field output. Each line carries a field
// tag in its first byte: p (pid, starts a process set), c (command name),
// L (login name), P (protocol), n (address). Unknown tags are skipped.
func parseListOutput(out string) map[int32]ProcessRecord {
	records := make(map[int32]ProcessRecord)

	var cur ProcessRecord
	var curProto string
	flush := func() {
		if cur.PID == 0 {
			return
		}
		if prev, ok := records[cur.PID]; ok {
			// Second lsof invocation (UDP) re-lists the same pid.
			prev.Ports = append(prev.Ports, cur.Ports...)
			prev.SortPorts()
			records[cur.PID] = prev
			return
		}
		cur.SortPorts()
		records[cur.PID] = cur
	}

	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		tag, value := line[0], line[1:]
		switch tag {
		case 'p':
			flush()
			pid, err := strconv.Atoi(value)
			if err != nil {
				cur = ProcessRecord{}
				continue
			}
			cur = ProcessRecord{PID: int32(pid), Live: true}
			curProto = ""
		case 'c':
			cur.Name = value
		case 'L':
			cur.User = value
		case 'P':
			curProto = strings.ToLower(value)
		case 'n':
			if cur.PID == 0 {
				continue
			}
			if strings.Contains(value, "->") {
				// Connected socket (laddr->raddr), not a listener. lsof's
				// UDP listing includes these; the native backend drops them
				// by peer port.
				continue
			}
			addr, port, ok := splitHostPort(value)
			if !ok {
				continue
			}
			proto := curProto
			if proto == "" {
				proto = "tcp"
			}
			cur.Ports = append(cur.Ports, PortBinding{Port: port, Proto: proto, Addr: addr})
		}
	}
	flush()

	// lsof can emit socket lines with no resolvable port; drop processes
	// that ended up with none.
	for pid, rec := range records {
		if len(rec.Ports) == 0 {
			delete(records, pid)
		}
	}
	return records
}

// splitHostPort parses lsof name fields like "*:80", "127.0.0.1:8080" and
// "[::1]:631".
func splitHostPort(name string) (addr string, port int, ok bool) {
	idx := strings.LastIndex(name, ":")
	if idx < 0 {
		return "", 0, false
	}
	port, err := strconv.Atoi(name[idx+1:])
	if err != nil || port <= 0 {
		return "", 0, false
	}
	addr = strings.Trim(name[:idx], "[]")
	if addr == "" || addr == "0.0.0.0" || addr == "::" {
		addr = "*"
	}
	return addr, port, true
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
