package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w1xm/em2rs/em2rs"
	"github.com/w1xm/em2rs/internal/config"
	"github.com/w1xm/em2rs/simulator"
)

const testConfig = `
bus:
  simulate: true
motors:
  - name: az
    slave: 1
    pulse_per_rev: 10000
    paths:
      - {slot: 0, position: 5000, velocity: 300}
  - name: el
    slave: 2
    pulse_per_rev: 10000
`

func newTestServer(t *testing.T) (*Server, *simulator.Simulator, *httptest.Server) {
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	sim := simulator.New(1, 2)
	s, err := NewServer(cfg, sim.ContextSlave)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, sim, ts
}

func getStatus(t *testing.T, ts *httptest.Server) Status {
	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return status
}

func post(t *testing.T, ts *httptest.Server, cmd Command) int {
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/command", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestStatus(t *testing.T) {
	s, _, ts := newTestServer(t)
	require.NoError(t, s.poll(context.Background()))

	status := getStatus(t, ts)
	assert.True(t, status.Connected)
	require.Len(t, status.Motors, 2)
	az := status.Motors["az"]
	assert.Equal(t, byte(1), az.Slave)
	assert.Equal(t, []string{"enabled"}, az.Flags)
	assert.Empty(t, az.Alarms)
	assert.Empty(t, az.Error)
}

func TestCommands(t *testing.T) {
	s, sim, ts := newTestServer(t)

	assert.Equal(t, http.StatusNoContent, post(t, ts, Command{Command: "apply_path", Motor: "az", Slot: 0}))
	assert.Equal(t, http.StatusNoContent, post(t, ts, Command{Command: "start_path", Motor: "az", Slot: 0}))
	sim.Advance(2 * time.Second)
	assert.Equal(t, int32(5000), sim.Drive(1).Position())
	assert.Zero(t, sim.Drive(2).Position())

	require.NoError(t, s.poll(context.Background()))
	assert.Contains(t, getStatus(t, ts).Motors["az"].Flags, "path_complete")

	assert.Equal(t, http.StatusNoContent, post(t, ts, Command{Command: "zero", Motor: "az"}))
	assert.Zero(t, sim.Drive(1).Position())
}

func TestBadCommands(t *testing.T) {
	_, _, ts := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, post(t, ts, Command{Command: "explode", Motor: "az"}))
	assert.Equal(t, http.StatusBadRequest, post(t, ts, Command{Command: "stop", Motor: "roll"}))
	assert.Equal(t, http.StatusBadRequest, post(t, ts, Command{Command: "start_path", Motor: "el", Slot: 9}))
	assert.Equal(t, http.StatusBadRequest, post(t, ts, Command{Command: "jog", Motor: "el", Direction: "up"}))
	// el has no path in slot 0
	assert.Equal(t, http.StatusBadRequest, post(t, ts, Command{Command: "apply_path", Motor: "el", Slot: 0}))

	resp, err := http.Post(ts.URL+"/api/command", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStopAll(t *testing.T) {
	_, sim, ts := newTestServer(t)
	for _, m := range []string{"az", "el"} {
		require.Equal(t, http.StatusNoContent, post(t, ts, Command{Command: "jog", Motor: m, Direction: "cw"}))
	}
	sim.Advance(500 * time.Millisecond)
	require.Equal(t, http.StatusNoContent, post(t, ts, Command{Command: "stop"}))
	for _, id := range []byte{1, 2} {
		pos := sim.Drive(id).Position()
		assert.Greater(t, pos, int32(0))
		sim.Advance(500 * time.Millisecond)
		assert.Equal(t, pos, sim.Drive(id).Position())
	}
}

func TestDisconnected(t *testing.T) {
	s, sim, ts := newTestServer(t)
	sim.Drive(2).SetOffline(true)
	require.NoError(t, s.poll(context.Background()))
	status := getStatus(t, ts)
	assert.True(t, status.Connected)
	assert.NotEmpty(t, status.Motors["el"].Error)

	sim.Drive(1).SetOffline(true)
	err := s.poll(context.Background())
	require.Error(t, err)
	assert.True(t, em2rs.IsTransportError(err))
	assert.False(t, getStatus(t, ts).Connected)
}

func TestSocket(t *testing.T) {
	s, sim, ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for ctx.Err() == nil {
			s.poll(ctx)
			time.Sleep(10 * time.Millisecond)
		}
	}()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var status Status
	for !status.Connected {
		require.NoError(t, conn.ReadJSON(&status))
	}
	assert.Contains(t, status.Motors, "az")

	require.NoError(t, conn.WriteJSON(Command{Command: "jog", Motor: "el", Direction: "ccw"}))
	assert.Eventually(t, func() bool {
		return sim.Drive(2).Register(em2rs.AddrControlWord) == em2rs.CWJogCounterClockwise
	}, time.Second, 10*time.Millisecond)
}

func TestEvery(t *testing.T) {
	var n int
	poll := every(time.Millisecond, func(context.Context) error {
		n++
		return nil
	})
	require.NoError(t, poll(context.Background()))
	require.NoError(t, poll(context.Background()))
	assert.Equal(t, 2, n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, every(time.Hour, func(context.Context) error { return nil })(ctx), context.Canceled)
}
