package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w1xm/em2rs/em2rs"
)

func newClient(t *testing.T, s *Simulator, id byte) *em2rs.SyncClient {
	c := em2rs.NewSyncClient(s.Slave(id), em2rs.NewStepperConfig(id, 10000).WithPhaseCurrent(2.0))
	require.NoError(t, c.Init())
	return c
}

func path(t *testing.T, slot uint8, pos int32, absolute bool) em2rs.PathConfig {
	p, err := em2rs.NewPathConfig(slot)
	require.NoError(t, err)
	p.Position = pos
	p.Absolute = absolute
	p.Velocity = 300
	return p
}

func TestInit(t *testing.T) {
	s := New(1)
	newClient(t, s, 1)
	d := s.Drive(1)
	assert.Equal(t, uint16(10000), d.Register(em2rs.AddrPulsePerRev))
	assert.Equal(t, uint16(200), d.Register(em2rs.AddrPeakCurrent))
}

func TestPath(t *testing.T) {
	s := New(1)
	c := newClient(t, s, 1)
	require.NoError(t, c.ApplyPathConfig(path(t, 0, 5000, true)))
	require.NoError(t, c.StartPath(0))

	done, err := c.IsPathCompleted()
	require.NoError(t, err)
	assert.False(t, done)
	status, err := c.MotionStatus()
	require.NoError(t, err)
	assert.True(t, status.Running())

	s.Advance(2 * time.Second)
	done, err = c.IsPathCompleted()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, int32(5000), s.Drive(1).Position())

	// Relative moves add up.
	require.NoError(t, c.ApplyPathConfig(path(t, 1, -2000, false)))
	require.NoError(t, c.StartPath(1))
	s.Advance(2 * time.Second)
	require.NoError(t, c.StartPath(1))
	s.Advance(2 * time.Second)
	assert.Equal(t, int32(1000), s.Drive(1).Position())
}

func TestPathTakesTime(t *testing.T) {
	s := New(1)
	c := newClient(t, s, 1)
	// 60 rpm at 10000 pulses/rev is 10000 pulses/s.
	p := path(t, 2, 10000, true)
	p.Velocity = 60
	p.Acceleration = 0
	p.Deceleration = 0
	require.NoError(t, c.ApplyPathConfig(p))
	require.NoError(t, c.StartPath(2))
	s.Advance(500 * time.Millisecond)
	assert.InDelta(t, 5000, s.Drive(1).Position(), 200)
	s.Advance(600 * time.Millisecond)
	assert.Equal(t, int32(10000), s.Drive(1).Position())
}

func TestSoftLimits(t *testing.T) {
	s := New(1)
	c := newClient(t, s, 1)
	require.NoError(t, c.SetSoftLimitMax(3000))
	require.NoError(t, c.SetSoftLimitMin(-3000))
	require.NoError(t, c.SoftLimitControl(true))
	require.NoError(t, c.ApplyPathConfig(path(t, 0, 5000, true)))
	require.NoError(t, c.StartPath(0))
	s.Advance(2 * time.Second)
	assert.Equal(t, int32(3000), s.Drive(1).Position())

	limits, err := c.SoftLimits()
	require.NoError(t, err)
	assert.Equal(t, em2rs.SoftLimits{Max: 3000, Min: -3000}, limits)
}

func TestHoming(t *testing.T) {
	s := New(1)
	c := newClient(t, s, 1)
	require.NoError(t, c.ApplyPathConfig(path(t, 0, 4000, true)))
	require.NoError(t, c.StartPath(0))
	s.Advance(2 * time.Second)

	h := em2rs.DefaultHomingConfig()
	h.Position = 100
	h.StopPosition = -20
	require.NoError(t, c.ApplyHomingConfig(h))
	homed, err := c.IsHomingCompleted()
	require.NoError(t, err)
	assert.False(t, homed, "configuring must not start homing")

	require.NoError(t, c.StartHoming())
	s.Advance(5 * time.Second)
	homed, err = c.IsHomingCompleted()
	require.NoError(t, err)
	assert.True(t, homed)
	assert.Equal(t, int32(-20), s.Drive(1).Position())
}

func TestJogAndStop(t *testing.T) {
	s := New(1)
	c := newClient(t, s, 1)
	require.NoError(t, c.JogMotor(em2rs.CounterClockwise))
	s.Advance(1 * time.Second)
	pos := s.Drive(1).Position()
	assert.Less(t, pos, int32(0))

	require.NoError(t, c.StopMotor())
	s.Advance(1 * time.Second)
	assert.Equal(t, pos, s.Drive(1).Position())
	status, err := c.MotionStatus()
	require.NoError(t, err)
	assert.False(t, status.Running())

	require.NoError(t, c.ManualZero())
	assert.Equal(t, int32(0), s.Drive(1).Position())
}

func TestAlarm(t *testing.T) {
	s := New(1)
	c := newClient(t, s, 1)
	s.Drive(1).RaiseAlarm(em2rs.AlarmOverCurrent)

	alarm, err := c.CurrentAlarm()
	require.NoError(t, err)
	assert.True(t, alarm.OverCurrent())
	assert.Equal(t, []string{"over_current"}, alarm.Active())

	require.NoError(t, c.ApplyPathConfig(path(t, 0, 5000, true)))
	require.NoError(t, c.StartPath(0))
	s.Advance(1 * time.Second)
	assert.Equal(t, int32(0), s.Drive(1).Position(), "faulted drive must not move")

	require.NoError(t, c.ResetCurrentAlarm())
	alarm, err = c.CurrentAlarm()
	require.NoError(t, err)
	assert.False(t, alarm.Any())
	status, err := c.MotionStatus()
	require.NoError(t, err)
	assert.False(t, status.Fault())
}

func TestEEPROM(t *testing.T) {
	s := New(1)
	c := newClient(t, s, 1)
	d := s.Drive(1)
	require.NoError(t, c.SetMotorInductance(1500))
	assert.Equal(t, uint16(1000), d.Saved(em2rs.AddrMotorInductance))
	require.NoError(t, c.SaveParamEEPROM())
	assert.Equal(t, uint16(1500), d.Saved(em2rs.AddrMotorInductance))
	saved, err := c.SaveStatus()
	require.NoError(t, err)
	assert.Equal(t, em2rs.SaveSucceeded, saved)

	require.NoError(t, c.ConfigureInput(2, em2rs.InputEnable, false))
	require.NoError(t, c.ParamReset())
	assert.Equal(t, uint16(1500), d.Register(em2rs.AddrMotorInductance))
	assert.Zero(t, d.Register(em2rs.AddrSI1+2))

	require.NoError(t, c.FactoryReset())
	assert.Equal(t, uint16(1000), d.Register(em2rs.AddrMotorInductance))
}

func TestNoResponse(t *testing.T) {
	s := New(1)
	c := newClient(t, s, 1)
	s.Drive(1).SetOffline(true)
	err := c.StopMotor()
	var te *em2rs.TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Timeout())

	missing := em2rs.NewClient(s.ContextSlave(7), em2rs.NewStepperConfig(7, 10000))
	_, err = missing.MotionStatus(context.Background())
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestBothModesAgree(t *testing.T) {
	s := New(1, 2)
	blocking := newClient(t, s, 1)
	async := em2rs.NewClient(s.ContextSlave(2), em2rs.NewStepperConfig(2, 10000).WithPhaseCurrent(2.0))
	ctx := context.Background()
	require.NoError(t, async.Init(ctx))

	require.NoError(t, blocking.ApplyPathConfig(path(t, 3, 7000, true)))
	require.NoError(t, async.ApplyPathConfig(ctx, path(t, 3, 7000, true)))
	require.NoError(t, blocking.StartPath(3))
	require.NoError(t, async.StartPath(ctx, 3))
	s.Advance(3 * time.Second)

	for addr := em2rs.AddrPath0; addr < em2rs.AddrPath0+(em2rs.MaxSlot+1)*em2rs.PathStride; addr++ {
		assert.Equal(t, s.Drive(1).Register(addr), s.Drive(2).Register(addr), "%#04x", addr)
	}
	assert.Equal(t, s.Drive(1).Position(), s.Drive(2).Position())
	assert.Equal(t, int32(7000), s.Drive(2).Position())
}

func TestRun(t *testing.T) {
	s := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c := em2rs.NewClient(s.ContextSlave(1), em2rs.NewStepperConfig(1, 10000))
	require.NoError(t, c.ApplyPathConfig(ctx, path(t, 0, 100, true)))
	require.NoError(t, c.StartPath(ctx, 0))
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(100), s.Drive(1).Position())
}
