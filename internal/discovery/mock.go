package discovery

import (
	"context"
	"sync"
	"time"
)

// MockSource replays a canned sequence of snapshots for --mock runs and for
// deterministic reconciler/session-manager tests. After the sequence is
// exhausted the last frame repeats.
type MockSource struct {
	mu     sync.Mutex
	frames []map[int32]ProcessRecord
	idx    int
	seq    uint64
}

func NewMockSource(frames []map[int32]ProcessRecord) *MockSource {
	return &MockSource{frames: frames}
}

func (s *MockSource) Backend() BackendKind { return BackendMock }
func (s *MockSource) Target() string       { return "mock" }

func (s *MockSource) Poll(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, ErrDiscoveryTimeout
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := map[int32]ProcessRecord{}
	if len(s.frames) > 0 {
		if s.idx >= len(s.frames) {
			s.idx = len(s.frames) - 1
		}
		frame = s.frames[s.idx]
		s.idx++
	}

	// Copy so the canned frame is never aliased by consumers.
	records := make(map[int32]ProcessRecord, len(frame))
	for pid, rec := range frame {
		rec.Ports = append([]PortBinding(nil), rec.Ports...)
		rec.SortPorts()
		rec.Live = true
		records[pid] = rec
	}

	s.seq++
	return Snapshot{Seq: s.seq, Taken: time.Now(), Processes: records}, nil
}

// DefaultMockFrames is the sequence used by --mock: a stable web server, a
// database that restarts with a new pid, and a short-lived dev server that
// appears and disappears to exercise the removal debounce.
func DefaultMockFrames() []map[int32]ProcessRecord {
	web := ProcessRecord{
		PID: 101, Name: "nginx", Cmdline: "nginx -g daemon off;", User: "www-data",
		Ports: []PortBinding{{Port: 80, Proto: "tcp", Addr: "*"}, {Port: 443, Proto: "tcp", Addr: "*"}},
	}
	db := ProcessRecord{
		PID: 202, Name: "postgres", Cmdline: "postgres -D /var/lib/postgresql/data", User: "postgres",
		Ports: []PortBinding{{Port: 5432, Proto: "tcp", Addr: "127.0.0.1"}},
	}
	dbReborn := db
	dbReborn.PID = 210
	dev := ProcessRecord{
		PID: 303, Name: "node", Cmdline: "node server.js", User: "dev",
		Ports: []PortBinding{{Port: 3000, Proto: "tcp", Addr: "127.0.0.1"}},
	}
	devMore := dev
	devMore.Ports = []PortBinding{
		{Port: 3000, Proto: "tcp", Addr: "127.0.0.1"},
		{Port: 9229, Proto: "tcp", Addr: "127.0.0.1"},
	}

	return []map[int32]ProcessRecord{
		{101: web, 202: db},
		{101: web, 202: db, 303: dev},
		{101: web, 202: db, 303: devMore},
		{101: web, 303: devMore},
		{101: web, 210: dbReborn, 303: devMore},
		{101: web, 210: dbReborn},
		{101: web, 210: dbReborn},
	}
}
