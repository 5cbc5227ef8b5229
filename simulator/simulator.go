// Package simulator emulates EM2RS drives on an RS-485 line, including
// enough of the motion controller for paths, homing and jogging to finish.
package simulator

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/w1xm/em2rs/em2rs"
	"golang.org/x/sync/errgroup"
)

// Discrete simulation step size
const stepSize = 10 * time.Millisecond

// ErrNoResponse is returned for requests to a drive that is missing or
// offline, the way a real bus times out.
var ErrNoResponse error = noResponse{}

type noResponse struct{}

func (noResponse) Error() string { return "simulator: no response from drive" }
func (noResponse) Timeout() bool { return true }

// Simulator is one bus with any number of drives on it.
type Simulator struct {
	// mu serializes requests like a half-duplex line
	mu     sync.Mutex
	drives map[byte]*Drive

	// Logger, when set, receives every request.
	Logger *log.Logger
}

func New(ids ...byte) *Simulator {
	s := &Simulator{drives: make(map[byte]*Drive)}
	for _, id := range ids {
		s.drives[id] = NewDrive(id)
	}
	return s
}

// Drive returns the drive with slave id, or nil.
func (s *Simulator) Drive(id byte) *Drive {
	return s.drives[id]
}

// Run steps every drive in real time until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, d := range s.drives {
		d := d
		g.Go(func() error {
			t := time.NewTicker(stepSize)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-t.C:
				}
				d.Step(stepSize)
			}
		})
	}
	return g.Wait()
}

// Advance moves simulated time forward by d in fixed steps.
func (s *Simulator) Advance(d time.Duration) {
	for ; d > 0; d -= stepSize {
		dt := stepSize
		if d < dt {
			dt = d
		}
		for _, drive := range s.drives {
			drive.Step(dt)
		}
	}
}

func (s *Simulator) request(id byte, op em2rs.Op) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Logger != nil {
		s.Logger.Printf("srv->sim %d: %v", id, op)
	}
	d := s.drives[id]
	if d == nil {
		return nil, ErrNoResponse
	}
	if op.Kind == em2rs.OpRead {
		return d.read(op.Addr, op.Count)
	}
	return nil, d.write(op.Addr, op.Values)
}

// Slave returns a blocking transport to drive id.
func (s *Simulator) Slave(id byte) em2rs.BlockingTransport {
	return slave{s, id}
}

// ContextSlave returns a transport to drive id.
func (s *Simulator) ContextSlave(id byte) em2rs.Transport {
	return contextSlave{s, id}
}

type slave struct {
	s  *Simulator
	id byte
}

func (c slave) ReadRegisters(addr, count uint16) ([]uint16, error) {
	return c.s.request(c.id, em2rs.ReadOp(addr, count))
}

func (c slave) WriteRegisters(addr uint16, values []uint16) error {
	_, err := c.s.request(c.id, em2rs.WriteOp(addr, values...))
	return err
}

type contextSlave struct {
	s  *Simulator
	id byte
}

func (c contextSlave) ReadRegisters(ctx context.Context, addr, count uint16) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.s.request(c.id, em2rs.ReadOp(addr, count))
}

func (c contextSlave) WriteRegisters(ctx context.Context, addr uint16, values []uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.s.request(c.id, em2rs.WriteOp(addr, values...))
	return err
}

type mode int

const (
	idle mode = iota
	pathMove
	velocityMove
	homingSeek
	homingReturn
	jog
)

// Drive is the register bank and motion state of one drive.
type Drive struct {
	id byte

	mu      sync.Mutex
	mem     map[uint16]uint16
	saved   map[uint16]uint16
	offline bool

	mode mode
	// Position in pulses and velocity in pulses/s.
	pos, vel float64
	target   float64
	dir      float64
	maxVel   float64
	acc, dec float64
	jogLeft  time.Duration
}

func NewDrive(id byte) *Drive {
	d := &Drive{id: id}
	d.factoryReset()
	d.saved = copyMem(d.mem)
	return d
}

func copyMem(m map[uint16]uint16) map[uint16]uint16 {
	out := make(map[uint16]uint16, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *Drive) factoryReset() {
	d.mem = map[uint16]uint16{
		em2rs.AddrPulsePerRev:         10000,
		em2rs.AddrMotorInductance:     1000,
		em2rs.AddrPeakCurrent:         100,
		em2rs.AddrRS485ID:             uint16(d.id),
		em2rs.AddrRS485Baudrate:       5,
		em2rs.AddrBusVoltage:          240,
		em2rs.AddrJogVelocity:         60,
		em2rs.AddrJogInterval:         100,
		em2rs.AddrJogRunningTime:      0,
		em2rs.AddrJogAccDecTime:       100,
		em2rs.AddrVersionInformation:  0x0102,
		em2rs.AddrFirmwareInformation: 0x0001,
		em2rs.AddrMotionStatus:        em2rs.StatusEnabled,
		em2rs.AddrSaveParameterStatus: uint16(em2rs.SaveSucceeded),
	}
	d.mode = idle
	d.vel = 0
}

// paramReset keeps the motor parameters.
func (d *Drive) paramReset() {
	keep := map[uint16]uint16{}
	for _, addr := range []uint16{em2rs.AddrPulsePerRev, em2rs.AddrMotorDirection, em2rs.AddrMotorInductance, em2rs.AddrPeakCurrent} {
		keep[addr] = d.mem[addr]
	}
	d.factoryReset()
	for addr, v := range keep {
		d.mem[addr] = v
	}
}

// Position returns the position counter in pulses.
func (d *Drive) Position() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int32(math.Round(d.pos))
}

// Register returns the raw value at addr.
func (d *Drive) Register(addr uint16) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mem[addr]
}

// Saved returns the value at addr as of the last EEPROM save.
func (d *Drive) Saved(addr uint16) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saved[addr]
}

// SetOffline makes the drive stop answering requests.
func (d *Drive) SetOffline(offline bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offline = offline
}

// RaiseAlarm latches alarm bits and stops the motor.
func (d *Drive) RaiseAlarm(mask uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mem[em2rs.AddrCurrentAlarm] |= mask
	d.mem[em2rs.AddrMotionStatus] |= em2rs.StatusFault
	d.mode = idle
	d.vel = 0
	d.setStatus(em2rs.StatusRunning, false)
}

func (d *Drive) read(addr, count uint16) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offline {
		return nil, ErrNoResponse
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = d.mem[addr+uint16(i)]
	}
	return out, nil
}

func (d *Drive) write(addr uint16, values []uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offline {
		return ErrNoResponse
	}
	for i, v := range values {
		d.mem[addr+uint16(i)] = v
	}
	switch addr {
	case em2rs.AddrPRControl:
		d.prCommand(values[0])
	case em2rs.AddrControlWord:
		d.controlWord(values[0])
	}
	return nil
}

func (d *Drive) setStatus(mask uint16, on bool) {
	d.mem[em2rs.AddrMotionStatus] = em2rs.SetBits(d.mem[em2rs.AddrMotionStatus], mask, on)
}

func (d *Drive) faulted() bool {
	return d.mem[em2rs.AddrMotionStatus]&em2rs.StatusFault != 0
}

func (d *Drive) prCommand(v uint16) {
	switch {
	case v == em2rs.PRQuickStop:
		d.mode = idle
		d.vel = 0
		d.setStatus(em2rs.StatusRunning, false)
		d.setStatus(em2rs.StatusCommandComplete, true)
	case d.faulted():
	case v >= em2rs.PRRunPath && v <= em2rs.PRRunPath+em2rs.MaxSlot:
		d.startPath(uint8(v - em2rs.PRRunPath))
	case v == em2rs.PRHoming:
		d.startHoming()
	case v == em2rs.PRManualZero:
		d.pos = 0
		d.target = 0
	}
}

func (d *Drive) controlWord(v uint16) {
	switch v {
	case em2rs.CWResetCurrentAlarm:
		d.mem[em2rs.AddrCurrentAlarm] = 0
		d.setStatus(em2rs.StatusFault, false)
	case em2rs.CWResetAlarmHistory:
	case em2rs.CWSaveParamEEPROM, em2rs.CWSaveMappingEEPROM:
		d.saved = copyMem(d.mem)
		d.mem[em2rs.AddrSaveParameterStatus] = uint16(em2rs.SaveSucceeded)
	case em2rs.CWParamReset:
		d.paramReset()
	case em2rs.CWFactoryReset:
		d.factoryReset()
	case em2rs.CWJogClockwise, em2rs.CWJogCounterClockwise:
		if d.faulted() {
			return
		}
		d.dir = 1
		if v == em2rs.CWJogCounterClockwise {
			d.dir = -1
		}
		d.maxVel = d.rpm(d.mem[em2rs.AddrJogVelocity])
		d.acc = d.accel(d.mem[em2rs.AddrJogAccDecTime])
		d.dec = d.acc
		d.jogLeft = time.Duration(d.mem[em2rs.AddrJogRunningTime]) * time.Millisecond
		d.begin(jog)
	}
}

// rpm converts a velocity in rpm to pulses/s.
func (d *Drive) rpm(v uint16) float64 {
	return float64(v) * float64(d.mem[em2rs.AddrPulsePerRev]) / 60
}

// accel converts ms per 1000 rpm to pulses/s².
func (d *Drive) accel(ms uint16) float64 {
	if ms == 0 {
		return math.Inf(1)
	}
	return d.rpm(1000) / (float64(ms) / 1000)
}

func (d *Drive) signed(r em2rs.Register) float64 {
	v, _ := r.Decode([]uint16{d.mem[r.Addr], d.mem[r.Addr+1]})
	return float64(v)
}

func (d *Drive) begin(m mode) {
	d.mode = m
	d.setStatus(em2rs.StatusRunning, true)
	d.setStatus(em2rs.StatusCommandComplete, false)
}

func (d *Drive) startPath(slot uint8) {
	base, _ := em2rs.PathBase(slot)
	m, err := em2rs.DecodePathMotion(d.mem[base])
	if err != nil {
		return
	}
	pos := d.signed(em2rs.PathPosition.At(base))
	d.maxVel = d.rpm(d.mem[base+em2rs.PathVelocityOffset])
	d.acc = d.accel(d.mem[base+em2rs.PathAccOffset])
	d.dec = d.accel(d.mem[base+em2rs.PathDecOffset])
	d.setStatus(em2rs.StatusPathComplete, false)
	switch m.Type {
	case em2rs.MotionNone:
		d.setStatus(em2rs.StatusPathComplete, true)
		d.setStatus(em2rs.StatusCommandComplete, true)
	case em2rs.MotionPosition:
		d.target = pos
		if !m.Absolute {
			d.target += d.pos
		}
		d.target = d.limit(d.target)
		d.begin(pathMove)
	case em2rs.MotionVelocity:
		d.dir = 1
		if pos < 0 {
			d.dir = -1
		}
		d.begin(velocityMove)
	case em2rs.MotionHoming:
		d.startHoming()
	}
}

// limit clamps a target to the soft limits when they are enabled.
func (d *Drive) limit(target float64) float64 {
	if d.mem[em2rs.AddrPRGlobalControl]&em2rs.GlobalSoftLimit == 0 {
		return target
	}
	hi, lo := d.signed(em2rs.SoftLimitMax), d.signed(em2rs.SoftLimitMin)
	return math.Max(lo, math.Min(hi, target))
}

// The home switch sits at position 0 of the power-up position counter.
func (d *Drive) startHoming() {
	d.target = 0
	d.maxVel = d.rpm(d.mem[em2rs.AddrHomingHighVelocity])
	d.acc = d.accel(d.mem[em2rs.AddrHomingAcceleration])
	d.dec = d.accel(d.mem[em2rs.AddrHomingDeceleration])
	d.setStatus(em2rs.StatusHomingComplete, false)
	d.begin(homingSeek)
}

func (d *Drive) arrive() {
	switch d.mode {
	case pathMove:
		d.setStatus(em2rs.StatusPathComplete, true)
	case homingSeek:
		d.pos = d.signed(em2rs.HomeSwitchPos)
		if d.mem[em2rs.AddrHomeMode]&0x0002 != 0 {
			d.target = d.signed(em2rs.HomingStopPos)
			d.maxVel = d.rpm(d.mem[em2rs.AddrHomingLowVelocity])
			d.mode = homingReturn
			return
		}
		d.setStatus(em2rs.StatusHomingComplete, true)
	case homingReturn:
		d.setStatus(em2rs.StatusHomingComplete, true)
	}
	d.mode = idle
	d.vel = 0
	d.setStatus(em2rs.StatusRunning, false)
	d.setStatus(em2rs.StatusCommandComplete, true)
}

// approach moves v toward t by at most delta.
func approach(v, t, delta float64) float64 {
	if math.Abs(t-v) <= delta {
		return t
	}
	if t > v {
		return v + delta
	}
	return v - delta
}

// Step advances the motion model by dt.
func (d *Drive) Step(dt time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := dt.Seconds()
	switch d.mode {
	case idle:
		d.vel = 0
		return
	case jog, velocityMove:
		d.vel = approach(d.vel, d.dir*d.maxVel, d.acc*s)
		if d.mode == jog && d.jogLeft > 0 {
			d.jogLeft -= dt
			if d.jogLeft <= 0 {
				d.mode = idle
				d.vel = 0
				d.setStatus(em2rs.StatusRunning, false)
				d.setStatus(em2rs.StatusCommandComplete, true)
			}
		}
	default:
		remaining := d.target - d.pos
		if math.Abs(remaining) < 1 {
			d.pos = d.target
			d.arrive()
			return
		}
		cmd := math.Min(d.maxVel, math.Sqrt(2*d.dec*math.Abs(remaining)))
		if remaining < 0 {
			cmd = -cmd
		}
		d.vel = approach(d.vel, cmd, d.acc*s)
		if math.Abs(d.vel*s) >= math.Abs(remaining) {
			d.pos = d.target
			d.arrive()
			return
		}
	}
	d.pos += d.vel * s
}
