package em2rs

import (
	"fmt"
	"strings"
)

// Direction is the rotation direction of the motor.
type Direction uint16

const (
	Clockwise        Direction = 0x00
	CounterClockwise Direction = 0x01
)

func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "cw"
	case CounterClockwise:
		return "ccw"
	}
	return fmt.Sprintf("Direction(%d)", uint16(d))
}

// ParseDirection accepts "cw"/"clockwise" and "ccw"/"counterclockwise".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "cw", "clockwise":
		return Clockwise, nil
	case "ccw", "counterclockwise", "counter_clockwise":
		return CounterClockwise, nil
	}
	return 0, &ConfigError{Op: "parse", Field: "direction", Value: s, Err: ErrInvalidValue}
}

// DecodeDirection reads a direction register value.
func DecodeDirection(raw uint16) (Direction, error) {
	d := Direction(raw)
	if d != Clockwise && d != CounterClockwise {
		return 0, &DecodeError{Register: MotorDirection.Name, Raw: []uint16{raw}, Err: ErrOutOfRange}
	}
	return d, nil
}

// InputFunction is the function assigned to a digital input.
type InputFunction uint16

const (
	InputInvalid       InputFunction = 0x00
	InputAlarmClearing InputFunction = 0x07
	InputEnable        InputFunction = 0x08
	InputTriggerCmd    InputFunction = 0x20
	InputTriggerHoming InputFunction = 0x21
	InputEmergency     InputFunction = 0x22
	InputJogPositive   InputFunction = 0x23
	InputJogNegative   InputFunction = 0x24
	InputPOT           InputFunction = 0x25
	InputNOT           InputFunction = 0x26
	InputORG           InputFunction = 0x27
	InputAdd0          InputFunction = 0x28
	InputAdd1          InputFunction = 0x29
	InputAdd2          InputFunction = 0x2A
	InputAdd3          InputFunction = 0x2B
	InputJogVelocity   InputFunction = 0x2C
)

var inputFunctionNames = map[InputFunction]string{
	InputInvalid:       "invalid",
	InputAlarmClearing: "alarm_clearing",
	InputEnable:        "enable",
	InputTriggerCmd:    "trigger_cmd",
	InputTriggerHoming: "trigger_homing",
	InputEmergency:     "emergency",
	InputJogPositive:   "jog_positive",
	InputJogNegative:   "jog_negative",
	InputPOT:           "pot",
	InputNOT:           "not",
	InputORG:           "org",
	InputAdd0:          "add0",
	InputAdd1:          "add1",
	InputAdd2:          "add2",
	InputAdd3:          "add3",
	InputJogVelocity:   "jog_velocity",
}

func (f InputFunction) String() string {
	if name, ok := inputFunctionNames[f]; ok {
		return name
	}
	return fmt.Sprintf("InputFunction(%#x)", uint16(f))
}

func ParseInputFunction(s string) (InputFunction, error) {
	for f, name := range inputFunctionNames {
		if name == strings.ToLower(s) {
			return f, nil
		}
	}
	return 0, &ConfigError{Op: "parse", Field: "input_function", Value: s, Err: ErrInvalidValue}
}

// EncodeInput builds the word written to an SI register.
func EncodeInput(f InputFunction, normallyClosed bool) uint16 {
	v := uint16(f)
	if normallyClosed {
		v += NormallyClosed
	}
	return v
}

// DecodeInput splits an SI register word into function and polarity.
func DecodeInput(raw uint16) (InputFunction, bool, error) {
	nc := raw&NormallyClosed != 0
	f := InputFunction(raw &^ NormallyClosed)
	if _, ok := inputFunctionNames[f]; !ok {
		return 0, false, &DecodeError{Register: "digital_input", Raw: []uint16{raw}, Err: ErrOutOfRange}
	}
	return f, nc, nil
}

// OutputFunction is the function assigned to a digital output.
type OutputFunction uint16

const (
	OutputInvalid         OutputFunction = 0x00
	OutputCmdCompleted    OutputFunction = 0x20
	OutputPathCompleted   OutputFunction = 0x21
	OutputHomingCompleted OutputFunction = 0x22
	OutputInPosCompleted  OutputFunction = 0x23
	OutputBrake           OutputFunction = 0x24
	OutputAlarm           OutputFunction = 0x25
)

var outputFunctionNames = map[OutputFunction]string{
	OutputInvalid:         "invalid",
	OutputCmdCompleted:    "cmd_completed",
	OutputPathCompleted:   "path_completed",
	OutputHomingCompleted: "homing_completed",
	OutputInPosCompleted:  "in_pos_completed",
	OutputBrake:           "brake",
	OutputAlarm:           "alarm",
}

func (f OutputFunction) String() string {
	if name, ok := outputFunctionNames[f]; ok {
		return name
	}
	return fmt.Sprintf("OutputFunction(%#x)", uint16(f))
}

func ParseOutputFunction(s string) (OutputFunction, error) {
	for f, name := range outputFunctionNames {
		if name == strings.ToLower(s) {
			return f, nil
		}
	}
	return 0, &ConfigError{Op: "parse", Field: "output_function", Value: s, Err: ErrInvalidValue}
}

func EncodeOutput(f OutputFunction, normallyClosed bool) uint16 {
	v := uint16(f)
	if normallyClosed {
		v += NormallyClosed
	}
	return v
}

func DecodeOutput(raw uint16) (OutputFunction, bool, error) {
	nc := raw&NormallyClosed != 0
	f := OutputFunction(raw &^ NormallyClosed)
	if _, ok := outputFunctionNames[f]; !ok {
		return 0, false, &DecodeError{Register: "digital_output", Raw: []uint16{raw}, Err: ErrOutOfRange}
	}
	return f, nc, nil
}

// Control word commands, written to AddrControlWord.
const (
	CWResetCurrentAlarm   uint16 = 0x1111
	CWResetAlarmHistory   uint16 = 0x1122
	CWSaveParamEEPROM     uint16 = 0x2211
	CWParamReset          uint16 = 0x2222
	CWFactoryReset        uint16 = 0x2233
	CWSaveMappingEEPROM   uint16 = 0x2244
	CWJogClockwise        uint16 = 0x4001
	CWJogCounterClockwise uint16 = 0x4002
)

// PR control commands, written to AddrPRControl.
const (
	PRRunPath    uint16 = 0x10 // plus the slot number
	PRHoming     uint16 = 0x20
	PRManualZero uint16 = 0x21
	PRQuickStop  uint16 = 0x40
)

// HomingMethod selects the switch used as the homing reference.
type HomingMethod uint16

const (
	HomingLimitSwitch HomingMethod = 0x00
	HomingHomeSwitch  HomingMethod = 0x04
)

// PathMotionType is the low nibble of a path control word.
type PathMotionType uint16

const (
	MotionNone     PathMotionType = 0x00
	MotionPosition PathMotionType = 0x01
	MotionVelocity PathMotionType = 0x02
	MotionHoming   PathMotionType = 0x03
)

// PathMotion is the content of a path control word.
type PathMotion struct {
	Type      PathMotionType
	Interrupt bool
	Overlap   bool
	Absolute  bool
	Jump      bool
	JumpTo    uint8
}

const (
	pathInterrupt = 0x0010
	pathOverlap   = 0x0020
	pathRelative  = 0x0040
	pathJump      = 0x4000
)

// Encode returns the path control word.
func (m PathMotion) Encode() (uint16, error) {
	if m.Type > MotionHoming {
		return 0, &ConfigError{Op: "encode", Field: "motion_type", Value: m.Type, Err: ErrInvalidValue}
	}
	v := uint16(m.Type)
	if m.Interrupt {
		v |= pathInterrupt
	}
	if m.Overlap {
		v |= pathOverlap
	}
	if !m.Absolute {
		v |= pathRelative
	}
	if m.Jump {
		if m.JumpTo > MaxSlot {
			return 0, &ConfigError{Op: "encode", Field: "jump_to", Value: m.JumpTo, Err: ErrInvalidSlot}
		}
		v |= pathJump | uint16(m.JumpTo&0x0F)<<8
	}
	return v, nil
}

// DecodePathMotion parses a path control word.
func DecodePathMotion(raw uint16) (PathMotion, error) {
	m := PathMotion{
		Type:      PathMotionType(raw & 0x0F),
		Interrupt: raw&pathInterrupt != 0,
		Overlap:   raw&pathOverlap != 0,
		Absolute:  raw&pathRelative == 0,
		Jump:      raw&pathJump != 0,
	}
	if m.Type > MotionHoming {
		return PathMotion{}, &DecodeError{Register: PathCtrl.Name, Raw: []uint16{raw}, Err: ErrOutOfRange}
	}
	if m.Jump {
		m.JumpTo = uint8(raw>>8) & 0x0F
	}
	return m, nil
}

// StepperConfig holds the motor parameters written by Init. The value is
// copied into the client, so later changes need a new client.
type StepperConfig struct {
	slaveID      byte
	pulsePerRev  uint16
	direction    Direction
	phaseCurrent float64
	inductance   uint16
}

// NewStepperConfig returns a config with firmware defaults for the
// optional fields.
func NewStepperConfig(slaveID byte, pulsePerRev uint16) StepperConfig {
	return StepperConfig{
		slaveID:      slaveID,
		pulsePerRev:  pulsePerRev,
		direction:    Clockwise,
		phaseCurrent: 1.0,
		inductance:   1000,
	}
}

func (c StepperConfig) WithPhaseCurrent(amps float64) StepperConfig {
	c.phaseCurrent = amps
	return c
}

func (c StepperConfig) WithInductance(inductance uint16) StepperConfig {
	c.inductance = inductance
	return c
}

func (c StepperConfig) WithDirection(d Direction) StepperConfig {
	c.direction = d
	return c
}

func (c StepperConfig) SlaveID() byte         { return c.slaveID }
func (c StepperConfig) PulsePerRev() uint16   { return c.pulsePerRev }
func (c StepperConfig) Direction() Direction  { return c.direction }
func (c StepperConfig) PhaseCurrent() float64 { return c.phaseCurrent }
func (c StepperConfig) Inductance() uint16    { return c.inductance }

// PathConfig is one motion path. Fields may be changed freely until the
// path is applied; the slot is fixed at construction.
type PathConfig struct {
	slot uint8

	Absolute bool
	// Position is the target in pulses.
	Position int32
	// Velocity is in rpm.
	Velocity uint16
	// Acceleration and Deceleration are in ms/1000rpm.
	Acceleration uint16
	Deceleration uint16
	// PauseTime is in ms; it is only written when non-zero.
	PauseTime uint16
}

// NewPathConfig returns a path for slot with default motion parameters.
func NewPathConfig(slot uint8) (PathConfig, error) {
	if slot > MaxSlot {
		return PathConfig{}, &ConfigError{Op: "path", Field: "slot", Value: slot, Err: ErrInvalidSlot}
	}
	return PathConfig{
		slot:         slot,
		Absolute:     true,
		Velocity:     100,
		Acceleration: 100,
		Deceleration: 100,
	}, nil
}

func (p PathConfig) Slot() uint8 { return p.slot }

// HomingConfig describes the homing move and the switch it looks for.
type HomingConfig struct {
	InputNo        uint8
	Function       InputFunction
	NormallyClosed bool
	Direction      Direction
	// MoveToPosition makes the drive go to Position after homing.
	MoveToPosition bool
	Method         HomingMethod
	Position       int32
	StopPosition   int32
	HighVelocity   uint16
	LowVelocity    uint16
	Acceleration   uint16
	Deceleration   uint16
}

func DefaultHomingConfig() HomingConfig {
	return HomingConfig{
		InputNo:        1,
		Function:       InputORG,
		Direction:      Clockwise,
		MoveToPosition: true,
		Method:         HomingHomeSwitch,
		HighVelocity:   100,
		LowVelocity:    50,
		Acceleration:   100,
		Deceleration:   100,
	}
}

func (h HomingConfig) modeWord() (uint16, error) {
	if h.Direction != Clockwise && h.Direction != CounterClockwise {
		return 0, &ConfigError{Op: "homing", Field: "direction", Value: h.Direction, Err: ErrInvalidValue}
	}
	if h.Method != HomingLimitSwitch && h.Method != HomingHomeSwitch {
		return 0, &ConfigError{Op: "homing", Field: "method", Value: h.Method, Err: ErrInvalidValue}
	}
	v := uint16(h.Direction) | uint16(h.Method)
	if h.MoveToPosition {
		v |= 0x0002
	}
	return v, nil
}

// JogParams are the jog settings used by JogMotor.
type JogParams struct {
	// Velocity in rpm.
	Velocity uint16
	// Interval, RunningTime and AccDecTime in ms.
	Interval    uint16
	RunningTime uint16
	AccDecTime  uint16
}
