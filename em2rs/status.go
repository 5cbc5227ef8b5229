package em2rs

// MotionStatus is one poll of the motion status register.
type MotionStatus uint16

func (s MotionStatus) Fault() bool           { return uint16(s)&StatusFault != 0 }
func (s MotionStatus) Enabled() bool         { return uint16(s)&StatusEnabled != 0 }
func (s MotionStatus) Running() bool         { return uint16(s)&StatusRunning != 0 }
func (s MotionStatus) CommandComplete() bool { return uint16(s)&StatusCommandComplete != 0 }
func (s MotionStatus) PathComplete() bool    { return uint16(s)&StatusPathComplete != 0 }
func (s MotionStatus) HomingComplete() bool  { return uint16(s)&StatusHomingComplete != 0 }

// Flags lists the names of the set bits.
func (s MotionStatus) Flags() []string { return setBits(MotionStatusReg, uint16(s)) }

// AlarmFlags is one poll of the current alarm register.
type AlarmFlags uint16

func (a AlarmFlags) OverCurrent() bool     { return uint16(a)&AlarmOverCurrent != 0 }
func (a AlarmFlags) OverVoltage() bool     { return uint16(a)&AlarmOverVoltage != 0 }
func (a AlarmFlags) CurrentSampling() bool { return uint16(a)&AlarmCurrentSampling != 0 }
func (a AlarmFlags) LockShaft() bool       { return uint16(a)&AlarmLockShaft != 0 }
func (a AlarmFlags) AutoTuning() bool      { return uint16(a)&AlarmAutoTuning != 0 }
func (a AlarmFlags) EEPROM() bool          { return uint16(a)&AlarmEEPROM != 0 }
func (a AlarmFlags) Any() bool             { return a != 0 }

// Active lists the names of the raised alarms.
func (a AlarmFlags) Active() []string { return setBits(CurrentAlarmReg, uint16(a)) }

func setBits(r Register, raw uint16) []string {
	var out []string
	for _, b := range r.Bits {
		if raw&b.Mask != 0 {
			out = append(out, b.Name)
		}
	}
	return out
}

// IOStatus holds the level of the digital inputs or outputs, bit 0 being
// SI1/SO1.
type IOStatus uint16

// Active reports the level of I/O number no, counted from 1.
func (s IOStatus) Active(no uint8) bool {
	if no < 1 || no > 16 {
		return false
	}
	return uint16(s)>>(no-1)&1 == 1
}

// SaveStatus is the result word of the last EEPROM save.
type SaveStatus uint16

const (
	SaveSucceeded SaveStatus = 0x5555
	SaveFailed    SaveStatus = 0xAAAA
)

func (s SaveStatus) String() string {
	switch s {
	case SaveSucceeded:
		return "saved"
	case SaveFailed:
		return "failed"
	}
	return "unknown"
}

// Each decoder takes the words returned by exactly one read.

func DecodeMotionStatus(words []uint16) (MotionStatus, error) {
	v, err := decodeU16(MotionStatusReg, words)
	return MotionStatus(v), err
}

func DecodeAlarm(words []uint16) (AlarmFlags, error) {
	v, err := decodeU16(CurrentAlarmReg, words)
	return AlarmFlags(v), err
}

func DecodeIOStatus(r Register, words []uint16) (IOStatus, error) {
	v, err := decodeU16(r, words)
	return IOStatus(v), err
}

func DecodeSaveStatus(words []uint16) (SaveStatus, error) {
	v, err := decodeU16(SaveStatusReg, words)
	if err != nil {
		return 0, err
	}
	s := SaveStatus(v)
	if s != SaveSucceeded && s != SaveFailed {
		return 0, &DecodeError{Register: SaveStatusReg.Name, Raw: words, Err: ErrOutOfRange}
	}
	return s, nil
}

// SoftLimits are the positive and negative software position limits.
type SoftLimits struct {
	Max, Min int32
}

// DecodeSoftLimits reads the four words starting at AddrSoftLimitPositive.
func DecodeSoftLimits(words []uint16) (SoftLimits, error) {
	if len(words) != 4 {
		return SoftLimits{}, &DecodeError{Register: "soft_limits", Raw: words, Err: ErrMalformed}
	}
	hi, err := SoftLimitMax.Decode(words[0:2])
	if err != nil {
		return SoftLimits{}, err
	}
	lo, err := SoftLimitMin.Decode(words[2:4])
	if err != nil {
		return SoftLimits{}, err
	}
	return SoftLimits{Max: int32(hi), Min: int32(lo)}, nil
}

// DecodePath rebuilds the path stored in slot from its eight registers.
func DecodePath(slot uint8, words []uint16) (PathConfig, PathMotion, error) {
	p, err := NewPathConfig(slot)
	if err != nil {
		return PathConfig{}, PathMotion{}, err
	}
	if len(words) != PathWords {
		return PathConfig{}, PathMotion{}, &DecodeError{Register: "path", Raw: words, Err: ErrMalformed}
	}
	m, err := DecodePathMotion(words[PathCtrlOffset])
	if err != nil {
		return PathConfig{}, PathMotion{}, err
	}
	pos, err := PathPosition.Decode(words[PathPositionOffset : PathPositionOffset+2])
	if err != nil {
		return PathConfig{}, PathMotion{}, err
	}
	p.Absolute = m.Absolute
	p.Position = int32(pos)
	p.Velocity = words[PathVelocityOffset]
	p.Acceleration = words[PathAccOffset]
	p.Deceleration = words[PathDecOffset]
	p.PauseTime = words[PathPauseTimeOffset]
	return p, m, nil
}
