package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portwatch/internal/credentials"
	"portwatch/internal/discovery"
	"portwatch/internal/forward"
	"portwatch/internal/reconcile"
	"portwatch/internal/reporting"
)

func testRecord(pid int32, name, user string, ports ...int) discovery.ProcessRecord {
	r := discovery.ProcessRecord{PID: pid, Name: name, User: user, Live: true}
	for _, p := range ports {
		r.Ports = append(r.Ports, discovery.PortBinding{Port: p, Proto: "tcp", Addr: "*"})
	}
	return r
}

func diffMsg(records ...discovery.ProcessRecord) reporting.SnapshotDiffMsg {
	return reporting.SnapshotDiffMsg{
		Diff:    reconcile.Diff{Seq: 1, Unchanged: records},
		Backend: discovery.BackendNative,
		Target:  "local",
	}
}

func updated(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model
}

func TestSnapshotDiffBuildsOneRowPerPort(t *testing.T) {
	m := New(Config{})

	m = updated(t, m, diffMsg(
		testRecord(10, "nginx", "www-data", 80, 443),
		testRecord(20, "postgres", "postgres", 5432),
	))

	assert.True(t, m.gotFirst)
	assert.Equal(t, uint64(1), m.seq)
	require.Len(t, m.rows, 3)
	assert.Equal(t, 80, m.rows[0].binding.Port)
	assert.Equal(t, 443, m.rows[1].binding.Port)
	assert.Equal(t, 5432, m.rows[2].binding.Port)
}

func TestSnapshotDiffClearsDegraded(t *testing.T) {
	m := New(Config{})
	m = updated(t, m, reporting.DiscoveryDegradedMsg{Err: assert.AnError})
	assert.Error(t, m.degraded)

	m = updated(t, m, diffMsg(testRecord(10, "nginx", "root", 80)))
	assert.NoError(t, m.degraded)
}

func TestFilterMatchesNameUserAndPort(t *testing.T) {
	rec := testRecord(10, "nginx", "www-data", 80, 443)

	assert.True(t, matchRecord(rec, "ngin"))
	assert.True(t, matchRecord(rec, "www"))
	assert.True(t, matchRecord(rec, "443"))
	assert.False(t, matchRecord(rec, "postgres"))
}

func TestFilterNarrowsRows(t *testing.T) {
	m := New(Config{})
	m = updated(t, m, diffMsg(
		testRecord(10, "nginx", "www-data", 80),
		testRecord(20, "postgres", "postgres", 5432),
	))
	require.Len(t, m.rows, 2)

	m.filter.SetValue("post")
	m.rebuildRows()
	require.Len(t, m.rows, 1)
	assert.Equal(t, "postgres", m.rows[0].rec.Name)
}

func TestSessionLifecycleInPanel(t *testing.T) {
	m := New(Config{})

	s := forward.Session{ID: "sess-1", Port: 8080, RemoteHost: "dev@host", State: forward.StateActive}
	m = updated(t, m, reporting.SessionMsg{Session: s})
	require.Len(t, m.sessionOrder, 1)
	got, ok := m.sessionForPort(8080)
	require.True(t, ok)
	assert.Equal(t, forward.StateActive, got.State)

	// Closed sessions leave the panel.
	s.State = forward.StateClosed
	m = updated(t, m, reporting.SessionMsg{Session: s})
	assert.Empty(t, m.sessionOrder)
	_, ok = m.sessionForPort(8080)
	assert.False(t, ok)
}

func TestFailedSessionStaysVisible(t *testing.T) {
	m := New(Config{})

	s := forward.Session{ID: "sess-1", Port: 8080, RemoteHost: "dev@host", State: forward.StateFailed, LastError: assert.AnError}
	m = updated(t, m, reporting.SessionMsg{Session: s})

	require.Len(t, m.sessionOrder, 1)
	got, ok := m.sessionForPort(8080)
	require.True(t, ok)
	assert.Equal(t, forward.StateFailed, got.State)
}

func TestStaleRecordIsMarked(t *testing.T) {
	m := New(Config{})
	rec := testRecord(10, "nginx", "root", 80)
	rec.Live = false

	row := m.renderRow(portRow{rec: rec, binding: rec.Ports[0]})
	assert.Contains(t, row[1], "†")
}

func TestViewBeforeFirstSnapshotShowsSpinner(t *testing.T) {
	m := New(Config{})
	assert.Contains(t, m.View(), "waiting for first snapshot")
}

func TestViewDisclosesFallbackFidelity(t *testing.T) {
	m := New(Config{})
	msg := diffMsg(testRecord(10, "nginx", "root", 80))
	msg.Backend = discovery.BackendFallback
	m = updated(t, m, msg)

	assert.Contains(t, m.View(), "reduced fidelity")
}

func TestViewShowsDegraded(t *testing.T) {
	m := New(Config{})
	m = updated(t, m, diffMsg(testRecord(10, "nginx", "root", 80)))
	m = updated(t, m, reporting.DiscoveryDegradedMsg{Err: assert.AnError})

	assert.Contains(t, m.View(), "DEGRADED")
}

func TestPromptRequestOpensModal(t *testing.T) {
	m := New(Config{})
	reply := make(chan promptResult, 1)
	m = updated(t, m, PromptRequestMsg{Reason: "sudo for lsof", Reply: reply})

	assert.True(t, m.prompting)
	assert.Contains(t, m.View(), "sudo for lsof")

	// Escape dismisses and reports no credential.
	m = updated(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.prompting)
	r := <-reply
	assert.ErrorIs(t, r.err, credentials.ErrNoCredential)
}

func TestPromptSubmitDeliversSecret(t *testing.T) {
	m := New(Config{})
	reply := make(chan promptResult, 1)
	m = updated(t, m, PromptRequestMsg{Reason: "sudo for lsof", Reply: reply})

	m = updated(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("hunter2")})
	m = updated(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, m.prompting)
	r := <-reply
	require.NoError(t, r.err)
	assert.Equal(t, "hunter2", r.secret)
}

func TestSecondPromptWhileModalOpenIsRefused(t *testing.T) {
	m := New(Config{})
	first := make(chan promptResult, 1)
	m = updated(t, m, PromptRequestMsg{Reason: "one", Reply: first})

	second := make(chan promptResult, 1)
	m = updated(t, m, PromptRequestMsg{Reason: "two", Reply: second})

	r := <-second
	assert.ErrorIs(t, r.err, credentials.ErrNoCredential)
	assert.Equal(t, "one", m.promptReason)
}

func TestPrompterBeforeAttachIsNonInteractive(t *testing.T) {
	p := NewPrompter()
	_, err := p.Prompt(context.Background(), "sudo for lsof")
	assert.ErrorIs(t, err, credentials.ErrNoCredential)
}
