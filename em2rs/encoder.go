package em2rs

import "errors"

// The functions in this file turn one domain action into the ordered
// register operations that carry it out. They never touch a transport.

func writeReg(op string, r Register, v int64) (Op, error) {
	words, err := r.Encode(v)
	if err != nil {
		return Op{}, relabel(op, err)
	}
	return WriteOp(r.Addr, words...), nil
}

func relabel(op string, err error) error {
	var ce *ConfigError
	if errors.As(err, &ce) {
		ce.Op = op
	}
	return err
}

func slotBase(op string, slot uint8) (uint16, error) {
	base, err := PathBase(slot)
	if err != nil {
		return 0, &ConfigError{Op: op, Field: "slot", Value: slot, Err: err}
	}
	return base, nil
}

// InitOps writes the motor parameters of cfg.
func InitOps(cfg StepperConfig) ([]Op, error) {
	const op = "init"
	if cfg.direction != Clockwise && cfg.direction != CounterClockwise {
		return nil, &ConfigError{Op: op, Field: "direction", Value: cfg.direction, Err: ErrInvalidValue}
	}
	ppr, err := writeReg(op, PulsePerRev, int64(cfg.pulsePerRev))
	if err != nil {
		return nil, err
	}
	current, err := PeakCurrentOps(cfg.phaseCurrent)
	if err != nil {
		return nil, relabel(op, err)
	}
	ind, err := writeReg(op, MotorInductance, int64(cfg.inductance))
	if err != nil {
		return nil, err
	}
	return []Op{
		ppr,
		WriteOp(AddrMotorDirection, uint16(cfg.direction)),
		current[0],
		ind,
	}, nil
}

// PeakCurrentOps sets the peak current in amperes.
func PeakCurrentOps(amps float64) ([]Op, error) {
	words, err := PeakCurrent.EncodeScaled(amps)
	if err != nil {
		return nil, relabel("set_peak_current", err)
	}
	return []Op{WriteOp(PeakCurrent.Addr, words...)}, nil
}

func InductanceOps(inductance uint16) ([]Op, error) {
	w, err := writeReg("set_motor_inductance", MotorInductance, int64(inductance))
	if err != nil {
		return nil, err
	}
	return []Op{w}, nil
}

func ForcedEnableOps(enable bool) []Op {
	var v uint16
	if enable {
		v = 1
	}
	return []Op{WriteOp(AddrForcedEnable, v)}
}

// PathOps writes a path into its slot. The control word and position go
// first in one write; velocity follows because the firmware latches the
// path once the velocity is non-zero.
func PathOps(p PathConfig) ([]Op, error) {
	const op = "apply_path_config"
	base, err := slotBase(op, p.slot)
	if err != nil {
		return nil, err
	}
	ctrl, err := PathMotion{Type: MotionPosition, Absolute: p.Absolute}.Encode()
	if err != nil {
		return nil, relabel(op, err)
	}
	pos, err := PathPosition.Encode(int64(p.Position))
	if err != nil {
		return nil, relabel(op, err)
	}
	ops := []Op{
		WriteOp(base+PathCtrlOffset, append([]uint16{ctrl}, pos...)...),
		WriteOp(base+PathVelocityOffset, p.Velocity),
		WriteOp(base+PathAccOffset, p.Acceleration),
		WriteOp(base+PathDecOffset, p.Deceleration),
	}
	if p.PauseTime > 0 {
		ops = append(ops, WriteOp(base+PathPauseTimeOffset, p.PauseTime))
	}
	return ops, nil
}

// PathMotionOps rewrites only the control word of a slot.
func PathMotionOps(slot uint8, m PathMotion) ([]Op, error) {
	const op = "configure_path_motion"
	base, err := slotBase(op, slot)
	if err != nil {
		return nil, err
	}
	ctrl, err := m.Encode()
	if err != nil {
		return nil, relabel(op, err)
	}
	return []Op{WriteOp(base+PathCtrlOffset, ctrl)}, nil
}

func PathPauseTimeOps(slot uint8, ms uint16) ([]Op, error) {
	base, err := slotBase("set_path_pause_time", slot)
	if err != nil {
		return nil, err
	}
	return []Op{WriteOp(base+PathPauseTimeOffset, ms)}, nil
}

// ReadPathOps reads back the whole slot.
func ReadPathOps(slot uint8) ([]Op, error) {
	base, err := slotBase("read_path_config", slot)
	if err != nil {
		return nil, err
	}
	return []Op{ReadOp(base, PathWords)}, nil
}

func StartPathOps(slot uint8) ([]Op, error) {
	if _, err := slotBase("start_path", slot); err != nil {
		return nil, err
	}
	return []Op{WriteOp(AddrPRControl, PRRunPath+uint16(slot))}, nil
}

// HomingOps configures homing. Triggering is StartHomingOps, never part of
// this sequence.
func HomingOps(h HomingConfig) ([]Op, error) {
	const op = "apply_homing_config"
	input, err := InputOps(h.InputNo, h.Function, h.NormallyClosed)
	if err != nil {
		return nil, relabel(op, err)
	}
	mode, err := h.modeWord()
	if err != nil {
		return nil, relabel(op, err)
	}
	pos, err := writeReg(op, HomeSwitchPos, int64(h.Position))
	if err != nil {
		return nil, err
	}
	stop, err := writeReg(op, HomingStopPos, int64(h.StopPosition))
	if err != nil {
		return nil, err
	}
	return append(input,
		WriteOp(AddrHomeMode, mode),
		WriteOp(AddrHomeAux, 0x0002),
		pos,
		stop,
		WriteOp(AddrHomingHighVelocity, h.HighVelocity),
		WriteOp(AddrHomingLowVelocity, h.LowVelocity),
		WriteOp(AddrHomingAcceleration, h.Acceleration),
		WriteOp(AddrHomingDeceleration, h.Deceleration),
	), nil
}

func StartHomingOps() []Op { return []Op{WriteOp(AddrPRControl, PRHoming)} }

func StopOps() []Op { return []Op{WriteOp(AddrPRControl, PRQuickStop)} }

func ManualZeroOps() []Op { return []Op{WriteOp(AddrPRControl, PRManualZero)} }

// JogOps starts a jog. Repeating it with the same direction keeps the
// motor moving; StopOps ends it.
func JogOps(d Direction) ([]Op, error) {
	switch d {
	case Clockwise:
		return []Op{WriteOp(AddrControlWord, CWJogClockwise)}, nil
	case CounterClockwise:
		return []Op{WriteOp(AddrControlWord, CWJogCounterClockwise)}, nil
	}
	return nil, &ConfigError{Op: "jog_motor", Field: "direction", Value: d, Err: ErrInvalidValue}
}

func JogParamOps(p JogParams) []Op {
	return []Op{
		WriteOp(AddrJogVelocity, p.Velocity),
		WriteOp(AddrJogInterval, p.Interval),
		WriteOp(AddrJogRunningTime, p.RunningTime),
		WriteOp(AddrJogAccDecTime, p.AccDecTime),
	}
}

func SoftLimitMaxOps(position int32) ([]Op, error) {
	w, err := writeReg("set_soft_limit_max", SoftLimitMax, int64(position))
	if err != nil {
		return nil, err
	}
	return []Op{w}, nil
}

func SoftLimitMinOps(position int32) ([]Op, error) {
	w, err := writeReg("set_soft_limit_min", SoftLimitMin, int64(position))
	if err != nil {
		return nil, err
	}
	return []Op{w}, nil
}

// InputOps assigns a function to digital input no (1-7).
func InputOps(no uint8, f InputFunction, normallyClosed bool) ([]Op, error) {
	addr, err := InputRegister(no)
	if err != nil {
		return nil, &ConfigError{Op: "configure_input", Field: "input", Value: no, Err: err}
	}
	if _, ok := inputFunctionNames[f]; !ok {
		return nil, &ConfigError{Op: "configure_input", Field: "function", Value: f, Err: ErrInvalidValue}
	}
	return []Op{WriteOp(addr, EncodeInput(f, normallyClosed))}, nil
}

// OutputOps assigns a function to digital output no (1-3).
func OutputOps(no uint8, f OutputFunction, normallyClosed bool) ([]Op, error) {
	addr, err := OutputRegister(no)
	if err != nil {
		return nil, &ConfigError{Op: "configure_output", Field: "output", Value: no, Err: err}
	}
	if _, ok := outputFunctionNames[f]; !ok {
		return nil, &ConfigError{Op: "configure_output", Field: "function", Value: f, Err: ErrInvalidValue}
	}
	return []Op{WriteOp(addr, EncodeOutput(f, normallyClosed))}, nil
}

// ControlWordOps writes a single control word command. The drive does not
// confirm these beyond the bus acknowledgement.
func ControlWordOps(cw uint16) []Op {
	return []Op{WriteOp(AddrControlWord, cw)}
}

// GlobalControlOps returns the write that follows a read of the PR global
// control register.
func GlobalControlOps(current, mask uint16, on bool) []Op {
	return []Op{WriteOp(AddrPRGlobalControl, SetBits(current, mask, on))}
}
