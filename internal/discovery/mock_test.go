package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSourceReplaysFrames(t *testing.T) {
	frames := []map[int32]ProcessRecord{
		{1: {PID: 1, Name: "a", Ports: []PortBinding{{Port: 80, Proto: "tcp", Addr: "*"}}}},
		{1: {PID: 1, Name: "a", Ports: []PortBinding{{Port: 80, Proto: "tcp", Addr: "*"}}},
			2: {PID: 2, Name: "b", Ports: []PortBinding{{Port: 443, Proto: "tcp", Addr: "*"}}}},
	}
	src := NewMockSource(frames)
	assert.Equal(t, BackendMock, src.Backend())

	snap, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Len(t, snap.Processes, 1)

	snap, err = src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Seq)
	assert.Len(t, snap.Processes, 2)

	// Past the end the last frame repeats, seq keeps advancing.
	snap, err = src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Seq)
	assert.Len(t, snap.Processes, 2)
}

func TestMockSourceDoesNotAliasFrames(t *testing.T) {
	frames := []map[int32]ProcessRecord{
		{1: {PID: 1, Name: "a", Ports: []PortBinding{{Port: 80, Proto: "tcp", Addr: "*"}}}},
	}
	src := NewMockSource(frames)

	snap, err := src.Poll(context.Background())
	require.NoError(t, err)
	snap.Processes[1].Ports[0] = PortBinding{Port: 9999, Proto: "tcp", Addr: "*"}

	again, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 80, again.Processes[1].Ports[0].Port)
}

func TestMockSourceRecordsAreLive(t *testing.T) {
	src := NewMockSource(DefaultMockFrames())
	snap, err := src.Poll(context.Background())
	require.NoError(t, err)
	for _, rec := range snap.Processes {
		assert.True(t, rec.Live)
	}
}

func TestMockSourceCancelledContext(t *testing.T) {
	src := NewMockSource(DefaultMockFrames())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Poll(ctx)
	assert.ErrorIs(t, err, ErrDiscoveryTimeout)
}

// The canned sequence must exercise pid reuse and debounced removal: the
// database restarts under a new pid and the dev server disappears.
func TestDefaultMockFramesShape(t *testing.T) {
	frames := DefaultMockFrames()
	require.GreaterOrEqual(t, len(frames), 5)

	first, last := frames[0], frames[len(frames)-1]
	_, hadOld := first[202]
	_, hasOld := last[202]
	_, hasNew := last[210]
	assert.True(t, hadOld)
	assert.False(t, hasOld)
	assert.True(t, hasNew)
	_, devGone := last[303]
	assert.False(t, devGone)
}
