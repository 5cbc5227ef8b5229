// Package em2rs drives EM2RS stepper controllers over Modbus RTU.
//
// Client is the context-aware facade and SyncClient the blocking one. Both
// run the same encoders and decoders, so a given call produces the same
// register traffic in either mode.
package em2rs

import (
	"context"
	"log"
)

// Client controls one drive. It issues no requests of its own; any waiting
// for motion to finish is up to the caller.
type Client struct {
	t   Transport
	cfg StepperConfig

	// Logger, when set, receives one line per register operation.
	Logger *log.Logger
}

// NewClient returns a client for the drive reachable through t. The client
// owns t from now on.
func NewClient(t Transport, cfg StepperConfig) *Client {
	return &Client{t: t, cfg: cfg}
}

func (c *Client) Config() StepperConfig { return c.cfg }

// exec runs ops in order and returns the words of every read. The context
// is checked once up front: a sequence that has started is not abandoned
// between operations, and nothing already written is rolled back.
func (c *Client) exec(ctx context.Context, ops []Op) ([][]uint16, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: ops[0], Err: err}
	}
	return c.run(ctx, ops)
}

func (c *Client) run(ctx context.Context, ops []Op) ([][]uint16, error) {
	var reads [][]uint16
	for _, op := range ops {
		var err error
		switch op.Kind {
		case OpRead:
			var words []uint16
			words, err = c.t.ReadRegisters(ctx, op.Addr, op.Count)
			if err == nil {
				reads = append(reads, words)
				c.logf("slave %d: %v -> %04x", c.cfg.slaveID, op, words)
			}
		case OpWrite:
			err = c.t.WriteRegisters(ctx, op.Addr, op.Values)
			if err == nil {
				c.logf("slave %d: %v", c.cfg.slaveID, op)
			}
		}
		if err != nil {
			c.logf("slave %d: %v: %v", c.cfg.slaveID, op, err)
			return nil, &TransportError{Op: op, Err: err}
		}
	}
	return reads, nil
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}

func (c *Client) write(ctx context.Context, ops []Op, err error) error {
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, ops)
	return err
}

func (c *Client) read(ctx context.Context, r Register) ([]uint16, error) {
	reads, err := c.exec(ctx, []Op{readOf(r)})
	if err != nil {
		return nil, err
	}
	return reads[0], nil
}

// Init writes pulses per revolution, direction, peak current and
// inductance from the client's StepperConfig.
func (c *Client) Init(ctx context.Context) error {
	ops, err := InitOps(c.cfg)
	return c.write(ctx, ops, err)
}

// Motion

// StartPath runs the path stored in slot (0-8).
func (c *Client) StartPath(ctx context.Context, slot uint8) error {
	ops, err := StartPathOps(slot)
	return c.write(ctx, ops, err)
}

func (c *Client) StartHoming(ctx context.Context) error {
	return c.write(ctx, StartHomingOps(), nil)
}

// StopMotor quick-stops any motion, including a jog.
func (c *Client) StopMotor(ctx context.Context) error {
	return c.write(ctx, StopOps(), nil)
}

// JogMotor starts jogging in direction d until StopMotor.
func (c *Client) JogMotor(ctx context.Context, d Direction) error {
	ops, err := JogOps(d)
	return c.write(ctx, ops, err)
}

// ManualZero makes the current position the origin.
func (c *Client) ManualZero(ctx context.Context) error {
	return c.write(ctx, ManualZeroOps(), nil)
}

// Configuration

// ApplyPathConfig stores p in its slot. An error part way through leaves
// the slot partially written.
func (c *Client) ApplyPathConfig(ctx context.Context, p PathConfig) error {
	ops, err := PathOps(p)
	return c.write(ctx, ops, err)
}

func (c *Client) ConfigurePathMotion(ctx context.Context, slot uint8, m PathMotion) error {
	ops, err := PathMotionOps(slot, m)
	return c.write(ctx, ops, err)
}

func (c *Client) SetPathPauseTime(ctx context.Context, slot uint8, ms uint16) error {
	ops, err := PathPauseTimeOps(slot, ms)
	return c.write(ctx, ops, err)
}

// ReadPathConfig reads back what the drive holds in slot.
func (c *Client) ReadPathConfig(ctx context.Context, slot uint8) (PathConfig, PathMotion, error) {
	ops, err := ReadPathOps(slot)
	if err != nil {
		return PathConfig{}, PathMotion{}, err
	}
	reads, err := c.exec(ctx, ops)
	if err != nil {
		return PathConfig{}, PathMotion{}, err
	}
	return DecodePath(slot, reads[0])
}

// ApplyHomingConfig configures homing; StartHoming triggers it.
func (c *Client) ApplyHomingConfig(ctx context.Context, h HomingConfig) error {
	ops, err := HomingOps(h)
	return c.write(ctx, ops, err)
}

// SetPeakCurrent sets the peak phase current in amperes.
func (c *Client) SetPeakCurrent(ctx context.Context, amps float64) error {
	ops, err := PeakCurrentOps(amps)
	return c.write(ctx, ops, err)
}

func (c *Client) SetMotorInductance(ctx context.Context, inductance uint16) error {
	ops, err := InductanceOps(inductance)
	return c.write(ctx, ops, err)
}

func (c *Client) SetSoftLimitMax(ctx context.Context, position int32) error {
	ops, err := SoftLimitMaxOps(position)
	return c.write(ctx, ops, err)
}

func (c *Client) SetSoftLimitMin(ctx context.Context, position int32) error {
	ops, err := SoftLimitMinOps(position)
	return c.write(ctx, ops, err)
}

func (c *Client) SoftLimits(ctx context.Context) (SoftLimits, error) {
	reads, err := c.exec(ctx, []Op{ReadOp(AddrSoftLimitPositive, 4)})
	if err != nil {
		return SoftLimits{}, err
	}
	return DecodeSoftLimits(reads[0])
}

func (c *Client) updateGlobalControl(ctx context.Context, mask uint16, on bool) error {
	words, err := c.read(ctx, PRGlobalControl)
	if err != nil {
		return err
	}
	raw, err := decodeU16(PRGlobalControl, words)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, GlobalControlOps(raw, mask, on))
	return err
}

// SoftLimitControl enables or disables the soft limits.
func (c *Client) SoftLimitControl(ctx context.Context, enable bool) error {
	return c.updateGlobalControl(ctx, GlobalSoftLimit, enable)
}

// SetCTRGEffectiveEdge selects double-edge (true) or single-edge CTRG.
func (c *Client) SetCTRGEffectiveEdge(ctx context.Context, doubleEdge bool) error {
	return c.updateGlobalControl(ctx, GlobalCTRGDoubleEdge, doubleEdge)
}

// SetCTRGTriggerType selects level trigger (true) or edge trigger.
func (c *Client) SetCTRGTriggerType(ctx context.Context, level bool) error {
	return c.updateGlobalControl(ctx, GlobalCTRGLevel, level)
}

func (c *Client) HomingPowerUpControl(ctx context.Context, enable bool) error {
	return c.updateGlobalControl(ctx, GlobalHomingOnPowerUp, enable)
}

// ConfigureInput assigns function f to digital input no (1-7).
func (c *Client) ConfigureInput(ctx context.Context, no uint8, f InputFunction, normallyClosed bool) error {
	ops, err := InputOps(no, f, normallyClosed)
	return c.write(ctx, ops, err)
}

// ConfigureOutput assigns function f to digital output no (1-3).
func (c *Client) ConfigureOutput(ctx context.Context, no uint8, f OutputFunction, normallyClosed bool) error {
	ops, err := OutputOps(no, f, normallyClosed)
	return c.write(ctx, ops, err)
}

func (c *Client) ForcedEnable(ctx context.Context, enable bool) error {
	return c.write(ctx, ForcedEnableOps(enable), nil)
}

func (c *Client) SetJogParams(ctx context.Context, p JogParams) error {
	return c.write(ctx, JogParamOps(p), nil)
}

// Status

// MotionStatus polls the motion status register once.
func (c *Client) MotionStatus(ctx context.Context) (MotionStatus, error) {
	words, err := c.read(ctx, MotionStatusReg)
	if err != nil {
		return 0, err
	}
	return DecodeMotionStatus(words)
}

func (c *Client) IsPathCompleted(ctx context.Context) (bool, error) {
	s, err := c.MotionStatus(ctx)
	return s.PathComplete(), err
}

func (c *Client) IsHomingCompleted(ctx context.Context) (bool, error) {
	s, err := c.MotionStatus(ctx)
	return s.HomingComplete(), err
}

func (c *Client) CurrentAlarm(ctx context.Context) (AlarmFlags, error) {
	words, err := c.read(ctx, CurrentAlarmReg)
	if err != nil {
		return 0, err
	}
	return DecodeAlarm(words)
}

func (c *Client) InputStatus(ctx context.Context) (IOStatus, error) {
	words, err := c.read(ctx, InputStatusReg)
	if err != nil {
		return 0, err
	}
	return DecodeIOStatus(InputStatusReg, words)
}

func (c *Client) OutputStatus(ctx context.Context) (IOStatus, error) {
	words, err := c.read(ctx, OutputStatusReg)
	if err != nil {
		return 0, err
	}
	return DecodeIOStatus(OutputStatusReg, words)
}

func (c *Client) Version(ctx context.Context) (uint16, error) {
	words, err := c.read(ctx, VersionInfo)
	if err != nil {
		return 0, err
	}
	return decodeU16(VersionInfo, words)
}

func (c *Client) FirmwareInfo(ctx context.Context) (uint16, error) {
	words, err := c.read(ctx, FirmwareInfo)
	if err != nil {
		return 0, err
	}
	return decodeU16(FirmwareInfo, words)
}

// SaveStatus reads the result word of the last EEPROM save. SaveParamEEPROM
// does not wait for it.
func (c *Client) SaveStatus(ctx context.Context) (SaveStatus, error) {
	words, err := c.read(ctx, SaveStatusReg)
	if err != nil {
		return 0, err
	}
	return DecodeSaveStatus(words)
}

// Persistence. Success means the bus acknowledged the write, not that the
// EEPROM was committed.

func (c *Client) SaveParamEEPROM(ctx context.Context) error {
	return c.write(ctx, ControlWordOps(CWSaveParamEEPROM), nil)
}

func (c *Client) SaveMappingEEPROM(ctx context.Context) error {
	return c.write(ctx, ControlWordOps(CWSaveMappingEEPROM), nil)
}

// ParamReset restores defaults except the motor parameters.
func (c *Client) ParamReset(ctx context.Context) error {
	return c.write(ctx, ControlWordOps(CWParamReset), nil)
}

func (c *Client) FactoryReset(ctx context.Context) error {
	return c.write(ctx, ControlWordOps(CWFactoryReset), nil)
}

func (c *Client) ResetCurrentAlarm(ctx context.Context) error {
	return c.write(ctx, ControlWordOps(CWResetCurrentAlarm), nil)
}

func (c *Client) ResetAlarmHistory(ctx context.Context) error {
	return c.write(ctx, ControlWordOps(CWResetAlarmHistory), nil)
}
