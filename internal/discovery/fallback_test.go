package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portwatch/internal/credentials"
)

const sampleListOutput = `p812
cnginx
Lwww-data
PTCP
n0.0.0.0:80
n*:443
p1201
cpostgres
Lpostgres
PTCP
n127.0.0.1:5432
p77
ccupsd
Lroot
PTCP
n[::1]:631
p77
ccupsd
Lroot
PUDP
n*:631
p530
cdhclient
Lroot
PUDP
n192.168.1.5:68->192.168.1.1:67
`

func TestParseListOutput(t *testing.T) {
	records := parseListOutput(sampleListOutput)
	require.Len(t, records, 3)

	nginx := records[812]
	assert.Equal(t, "nginx", nginx.Name)
	assert.Equal(t, "www-data", nginx.User)
	assert.Equal(t, "", nginx.Cmdline, "lsof does not expose command lines")
	require.Len(t, nginx.Ports, 2)
	assert.Equal(t, PortBinding{Port: 80, Proto: "tcp", Addr: "*"}, nginx.Ports[0])
	assert.Equal(t, PortBinding{Port: 443, Proto: "tcp", Addr: "*"}, nginx.Ports[1])

	pg := records[1201]
	assert.Equal(t, "postgres", pg.Name)
	require.Len(t, pg.Ports, 1)
	assert.Equal(t, PortBinding{Port: 5432, Proto: "tcp", Addr: "127.0.0.1"}, pg.Ports[0])

	// The UDP listing re-lists pid 77; both sockets merge into one record.
	cups := records[77]
	require.Len(t, cups.Ports, 2)
	assert.Equal(t, PortBinding{Port: 631, Proto: "tcp", Addr: "::1"}, cups.Ports[0])
	assert.Equal(t, PortBinding{Port: 631, Proto: "udp", Addr: "*"}, cups.Ports[1])

	// The DHCP client only holds a connected socket; it is not a listener.
	_, present := records[530]
	assert.False(t, present)
}

// lsof's UDP listing includes connected sockets in laddr->raddr form. Their
// peer port must never be mistaken for a local listener.
func TestParseListOutputSkipsConnectedSockets(t *testing.T) {
	out := "p530\ncdhclient\nLroot\nPUDP\nn192.168.1.5:68->192.168.1.1:67\n" +
		"p641\ncchronyd\nLchrony\nPUDP\nn10.0.0.9:51843->162.159.200.1:123\nn*:323\n"
	records := parseListOutput(out)

	require.Len(t, records, 1)
	chrony := records[641]
	require.Len(t, chrony.Ports, 1)
	assert.Equal(t, PortBinding{Port: 323, Proto: "udp", Addr: "*"}, chrony.Ports[0])
}

func TestParseListOutputDropsPortlessProcesses(t *testing.T) {
	out := "p99\ncweird\nLroot\nPTCP\nnno-port-here\n"
	records := parseListOutput(out)
	assert.Empty(t, records)
}

func TestParseListOutputEmpty(t *testing.T) {
	assert.Empty(t, parseListOutput(""))
}

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		name     string
		wantAddr string
		wantPort int
		wantOK   bool
	}{
		{"*:80", "*", 80, true},
		{"0.0.0.0:8080", "*", 8080, true},
		{"127.0.0.1:5432", "127.0.0.1", 5432, true},
		{"[::]:22", "*", 22, true},
		{"[::1]:631", "::1", 631, true},
		{"[fe80::1]:9000", "fe80::1", 9000, true},
		{"*:*", "", 0, false},
		{"no-colon", "", 0, false},
	}
	for _, tc := range tests {
		addr, port, ok := splitHostPort(tc.name)
		assert.Equalf(t, tc.wantOK, ok, "input %q", tc.name)
		if tc.wantOK {
			assert.Equalf(t, tc.wantAddr, addr, "input %q", tc.name)
			assert.Equalf(t, tc.wantPort, port, "input %q", tc.name)
		}
	}
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, shellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

// fakeRunner records the commands it is asked to run.
type fakeRunner struct {
	output   string
	err      error
	commands []string
	stdins   []string
}

func (r *fakeRunner) Target() string { return "fake" }

func (r *fakeRunner) Run(ctx context.Context, command string, stdin string) ([]byte, error) {
	r.commands = append(r.commands, command)
	r.stdins = append(r.stdins, stdin)
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.output), nil
}

func TestFallbackPollWithoutCredentials(t *testing.T) {
	runner := &fakeRunner{output: sampleListOutput}
	src := NewFallbackSource(runner, nil)

	snap, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Len(t, snap.Processes, 3)
	require.Len(t, runner.commands, 1)
	assert.Equal(t, listCommand, runner.commands[0])
	assert.Equal(t, "", runner.stdins[0])
}

func TestFallbackPollWithCredentialUsesSudo(t *testing.T) {
	runner := &fakeRunner{output: sampleListOutput}
	src := NewFallbackSource(runner, func(ctx context.Context, reason string) (string, error) {
		return "secret123", nil
	})

	_, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, runner.commands, 1)
	assert.True(t, strings.HasPrefix(runner.commands[0], "sudo -S -p '' "), runner.commands[0])
	assert.Equal(t, "secret123\n", runner.stdins[0])
}

func TestFallbackDegradesWhenCredentialDeclined(t *testing.T) {
	runner := &fakeRunner{output: sampleListOutput}
	asks := 0
	src := NewFallbackSource(runner, func(ctx context.Context, reason string) (string, error) {
		asks++
		return "", credentials.ErrNoCredential
	})

	// First poll asks, is declined, degrades to an unprivileged listing.
	snap, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Processes, 3)
	assert.Equal(t, listCommand, runner.commands[0])

	// Subsequent polls do not ask again.
	_, err = src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, asks)
}

// A transient prompt failure (interrupted, context torn down) must not
// permanently disable the sudo attempt; only a decline does.
func TestFallbackRetriesAfterTransientCredentialError(t *testing.T) {
	runner := &fakeRunner{output: sampleListOutput}
	asks := 0
	src := NewFallbackSource(runner, func(ctx context.Context, reason string) (string, error) {
		asks++
		if asks == 1 {
			return "", context.Canceled
		}
		return "secret123", nil
	})

	// First poll fails transiently and runs unprivileged.
	_, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, listCommand, runner.commands[0])

	// Second poll asks again and gets to use sudo.
	_, err = src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, asks)
	assert.True(t, strings.HasPrefix(runner.commands[1], "sudo -S -p '' "), runner.commands[1])
	assert.Equal(t, "secret123\n", runner.stdins[1])
}

// The credential prompt waits on a human; it must run under the run-scoped
// context, never under the per-poll deadline.
func TestFallbackPromptIgnoresPollDeadline(t *testing.T) {
	runner := &fakeRunner{output: sampleListOutput}
	var promptCtx context.Context
	src := NewFallbackSource(runner, func(ctx context.Context, reason string) (string, error) {
		promptCtx = ctx
		return "secret123", nil
	})
	src.SetCredentialContext(context.Background())

	pollCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := src.Poll(pollCtx)
	require.NoError(t, err)

	require.NotNil(t, promptCtx)
	_, hasDeadline := promptCtx.Deadline()
	assert.False(t, hasDeadline, "prompt must not inherit the poll deadline")
}

func TestFallbackPollSeqIsMonotonic(t *testing.T) {
	runner := &fakeRunner{output: sampleListOutput}
	src := NewFallbackSource(runner, nil)

	first, err := src.Poll(context.Background())
	require.NoError(t, err)
	second, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestFallbackPollRunError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("sh: lsof: not found")}
	src := NewFallbackSource(runner, nil)

	_, err := src.Poll(context.Background())
	require.Error(t, err)
	var derr *DiscoveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, BackendFallback, derr.Backend)
}

func TestFallbackProbeFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("connection refused")}
	src := NewFallbackSource(runner, nil)

	err := src.Probe(context.Background())
	require.Error(t, err)
	var derr *DiscoveryError
	assert.ErrorAs(t, err, &derr)
}
