package trace

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w1xm/em2rs/em2rs"
	"github.com/w1xm/em2rs/simulator"
)

func readAll(t *testing.T, r *Reader) []Record {
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w.Now = func() time.Time {
		clock = clock.Add(5 * time.Millisecond)
		return clock
	}
	sim := simulator.New(1)
	c := em2rs.NewSyncClient(BlockingTransport(sim.Slave(1), 1, w), em2rs.NewStepperConfig(1, 10000))

	p, err := em2rs.NewPathConfig(0)
	require.NoError(t, err)
	p.Position = 5000
	p.Velocity = 300
	require.NoError(t, c.ApplyPathConfig(p))
	_, err = c.IsPathCompleted()
	require.NoError(t, err)

	records := readAll(t, NewReader(&buf))
	want, err := em2rs.PathOps(p)
	require.NoError(t, err)
	want = append(want, em2rs.ReadOp(em2rs.AddrMotionStatus, 1))
	var got []em2rs.Op
	for _, r := range records {
		got = append(got, r.Op())
		assert.Equal(t, byte(1), r.Slave)
		assert.Equal(t, 5*time.Millisecond, r.Duration)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("traced ops: got(-)/want(+):\n%s", diff)
	}
	last := records[len(records)-1]
	assert.Equal(t, []uint16{em2rs.StatusEnabled}, last.Values)
	assert.True(t, records[0].Time.Equal(time.Date(2024, 3, 1, 12, 0, 0, 5e6, time.UTC)))
	assert.Contains(t, last.String(), "slave 1: read 0x1003 x1 -> [0002]")
}

func TestErrorsPassThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.trace")
	w, err := Create(path)
	require.NoError(t, err)
	sim := simulator.New()
	c := em2rs.NewClient(Transport(sim.ContextSlave(4), 4, w), em2rs.NewStepperConfig(4, 10000))
	err = c.StopMotor(context.Background())
	assert.ErrorIs(t, err, simulator.ErrNoResponse)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	records := readAll(t, r)
	require.Len(t, records, 1)
	assert.True(t, records[0].Write)
	assert.Equal(t, []uint16{em2rs.PRQuickStop}, records[0].Values)
	assert.Equal(t, simulator.ErrNoResponse.Error(), records[0].Err)
}

func TestSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.trace")
	sim := simulator.New(1)
	var sessions []string
	for i := 0; i < 2; i++ {
		w, err := Create(path)
		require.NoError(t, err)
		sessions = append(sessions, w.Session)
		c := em2rs.NewSyncClient(BlockingTransport(sim.Slave(1), 1, w), em2rs.NewStepperConfig(1, 10000))
		require.NoError(t, c.StopMotor())
		require.NoError(t, w.Close())
	}
	assert.NotEqual(t, sessions[0], sessions[1])

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	records := readAll(t, r)
	require.Len(t, records, 2)
	assert.Equal(t, sessions[0], records[0].Session)
	assert.Equal(t, sessions[1], records[1].Session)
}
