// Package forward owns the set of active reverse-forwarding tunnels. Each
// session maps a selected port to one ssh subprocess; the manager enforces
// at-most-one tunnel per port and guarantees no subprocess outlives the
// parent on any exit path.
package forward

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"portwatch/pkg/logging"
)

// UpdateFunc receives a read-only session projection on every state change.
type UpdateFunc func(Session)

// Options tunes the manager. Zero values select the defaults.
type Options struct {
	BindAddr string        // local side of the tunnel, default "localhost"
	SSHBin   string        // default "ssh"
	Grace    time.Duration // SIGTERM-to-SIGKILL window, default 3s
}

const defaultGrace = 3 * time.Second

type managedSession struct {
	Session
	proc    tunnelProcess
	stopReq bool
	exited  chan struct{} // closed when the subprocess has been reaped
}

// Manager is the only mutator of the active-session set; everything else
// observes read-only projections.
type Manager struct {
	mu       sync.Mutex
	sessions map[SessionID]*managedSession
	byPort   map[int]SessionID
	updateFn UpdateFunc
	opts     Options
	nextID   int
	wg       sync.WaitGroup
}

func NewManager(updateFn UpdateFunc, opts Options) *Manager {
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}
	return &Manager{
		sessions: make(map[SessionID]*managedSession),
		byPort:   make(map[int]SessionID),
		updateFn: updateFn,
		opts:     opts,
	}
}

// Forward requests a reverse tunnel for port on remoteHost. It returns
// immediately with the new session id; the subprocess launch happens in the
// background and state changes arrive through the update callback. Returns
// ErrDuplicatePort while any Pending, Active or Closing session holds the
// port.
func (m *Manager) Forward(port int, remoteHost string) (SessionID, error) {
	m.mu.Lock()
	if id, ok := m.byPort[port]; ok {
		if s, live := m.sessions[id]; live && s.State.live() {
			m.mu.Unlock()
			return "", fmt.Errorf("port %d: %w", port, ErrDuplicatePort)
		}
	}

	m.nextID++
	id := SessionID(fmt.Sprintf("sess-%d", m.nextID))
	s := &managedSession{
		Session: Session{
			ID:         id,
			Port:       port,
			RemoteHost: remoteHost,
			BindAddr:   m.opts.BindAddr,
			State:      StatePending,
			Created:    time.Now(),
		},
		exited: make(chan struct{}),
	}
	m.sessions[id] = s
	m.byPort[port] = id
	snap := s.Session
	m.wg.Add(1)
	m.mu.Unlock()

	logging.Info("Forward", "session %s: forwarding port %d to %s", id, port, remoteHost)
	m.report(snap)
	go m.run(s)
	return id, nil
}

// run launches the tunnel subprocess and supervises it until exit. Health
// is observed by blocking on the subprocess: an exit without an explicit
// teardown request transitions the session to Failed, never silently away.
func (m *Manager) run(s *managedSession) {
	defer m.wg.Done()

	proc, err := spawnTunnel(tunnelSpec{
		Port:       s.Port,
		RemoteHost: s.RemoteHost,
		BindAddr:   s.BindAddr,
		SSHBin:     m.opts.SSHBin,
	})

	m.mu.Lock()
	if err != nil {
		s.State = StateFailed
		s.LastError = err
		snap := s.Session
		m.release(s)
		close(s.exited)
		m.mu.Unlock()
		logging.Error("Forward", err, "session %s: tunnel failed to start", s.ID)
		m.report(snap)
		return
	}
	s.proc = proc
	s.PID = proc.PID()
	if s.stopReq {
		// Teardown was requested while the launch was in flight.
		s.State = StateClosing
	} else {
		s.State = StateActive
	}
	closing := s.State == StateClosing
	snap := s.Session
	m.mu.Unlock()
	m.report(snap)
	if closing {
		m.signalStop(s, proc)
	}

	waitErr := proc.Wait()
	close(s.exited)

	m.mu.Lock()
	if s.stopReq {
		s.State = StateClosed
		s.LastError = nil
	} else {
		s.State = StateFailed
		s.LastError = waitErr
		if waitErr == nil {
			s.LastError = fmt.Errorf("tunnel for port %d exited unexpectedly", s.Port)
		}
		s.Diagnostic = proc.Diagnostic()
	}
	snap = s.Session
	m.release(s)
	m.mu.Unlock()

	if snap.State == StateFailed {
		logging.Error("Forward", snap.LastError, "session %s: tunnel for port %d failed", snap.ID, snap.Port)
	} else {
		logging.Info("Forward", "session %s: closed", snap.ID)
	}
	m.report(snap)
}

// Unforward requests teardown of a live session. Unknown, Closed and Failed
// ids return ErrSessionNotFound without mutating anything; an already
// Closing session is a no-op.
func (m *Manager) Unforward(id SessionID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || !s.State.live() {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	if s.State == StateClosing {
		m.mu.Unlock()
		return nil
	}
	s.stopReq = true
	s.State = StateClosing
	proc := s.proc
	snap := s.Session
	m.mu.Unlock()

	logging.Info("Forward", "session %s: closing", id)
	m.report(snap)
	if proc != nil {
		m.signalStop(s, proc)
	}
	// A Pending session without a subprocess yet is handled by run once the
	// launch returns.
	return nil
}

// signalStop sends SIGTERM and escalates to SIGKILL after the grace window
// if the process has not exited.
func (m *Manager) signalStop(s *managedSession, proc tunnelProcess) {
	if err := proc.Terminate(); err != nil {
		logging.Debug("Forward", "session %s: terminate: %v", s.ID, err)
	}
	go func() {
		select {
		case <-s.exited:
		case <-time.After(m.opts.Grace):
			logging.Warn("Forward", "session %s: did not exit within %v, killing", s.ID, m.opts.Grace)
			_ = proc.Kill()
		}
	}()
}

// Shutdown synchronously drives every live session to Closed. Bounded by
// ctx: on expiry remaining subprocesses are force-killed so nothing
// orphaned survives the parent.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	live := make([]SessionID, 0, len(m.sessions))
	for id, s := range m.sessions {
		if s.State.live() {
			live = append(live, id)
		}
	}
	m.mu.Unlock()

	if len(live) > 0 {
		logging.Info("Forward", "shutting down %d forwarding session(s)", len(live))
	}
	for _, id := range live {
		if err := m.Unforward(id); err != nil {
			logging.Debug("Forward", "shutdown unforward %s: %v", id, err)
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.mu.Lock()
		for _, s := range m.sessions {
			if s.proc != nil {
				_ = s.proc.Kill()
			}
		}
		m.mu.Unlock()
		<-done
	}
}

// Sessions returns read-only projections of all known sessions, ordered by
// creation.
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Session)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// release drops a terminal session from the active set. Caller holds mu.
func (m *Manager) release(s *managedSession) {
	delete(m.sessions, s.ID)
	if cur, ok := m.byPort[s.Port]; ok && cur == s.ID {
		delete(m.byPort, s.Port)
	}
}

func (m *Manager) report(snap Session) {
	if m.updateFn != nil {
		m.updateFn(snap)
	}
}
