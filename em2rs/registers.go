package em2rs

// Register addresses of the EM2RS firmware.
const (
	AddrPulsePerRev       uint16 = 0x0001
	AddrControlModeSource uint16 = 0x0005
	AddrMotorDirection    uint16 = 0x0007
	AddrMotorInductance   uint16 = 0x0009
	AddrForcedEnable      uint16 = 0x000F
	AddrCmdFilterTime     uint16 = 0x00A1

	AddrSI1 uint16 = 0x0145 // SI1..SI7 every other register
	AddrSO1 uint16 = 0x0157 // SO1..SO3 every other register

	AddrDelayBrakeReleased uint16 = 0x0167
	AddrDelayBrakeLocked   uint16 = 0x0169
	AddrThresholdBrake     uint16 = 0x016B
	AddrAlarmDetection     uint16 = 0x016D

	AddrBusVoltage          uint16 = 0x0177
	AddrDigitalInputStatus  uint16 = 0x0179
	AddrDigitalOutputStatus uint16 = 0x017B
	AddrDIPSwitchStatus     uint16 = 0x0187

	AddrPeakCurrent           uint16 = 0x0191
	AddrPercentShaftLocked    uint16 = 0x0197
	AddrShaftLockedDuration   uint16 = 0x0199
	AddrShaftLockedRisingTime uint16 = 0x019F
	AddrMaxStopTime           uint16 = 0x01A5
	AddrAutoTuningPowerOn     uint16 = 0x01AB

	AddrRS485Baudrate    uint16 = 0x01BD
	AddrRS485ID          uint16 = 0x01BF
	AddrRS485DataType    uint16 = 0x01C1
	AddrRS485ControlWord uint16 = 0x01C3
	AddrComBitDelay      uint16 = 0x01C4

	AddrStandbySwitchingTime  uint16 = 0x01D1
	AddrStandbyCurrentPercent uint16 = 0x01D3
	AddrJogVelocity           uint16 = 0x01E1
	AddrJogInterval           uint16 = 0x01E3
	AddrJogRunningTime        uint16 = 0x01E5
	AddrJogAccDecTime         uint16 = 0x01E7
	AddrVersionInformation    uint16 = 0x01FF
	AddrFirmwareInformation   uint16 = 0x0201
	AddrMotorModel            uint16 = 0x0231
	AddrBackEMFCoef           uint16 = 0x0235
	AddrCurrentLoopProportion uint16 = 0x0237
	AddrCurrentLoopKi         uint16 = 0x0239
	AddrCurrentLoopKp         uint16 = 0x023B
	AddrCurrentLoopKc         uint16 = 0x023D
	AddrOverVoltageThreshold  uint16 = 0x0243
	AddrMotionStatus          uint16 = 0x1003
	AddrControlWord           uint16 = 0x1801
	AddrSaveParameterStatus   uint16 = 0x1901
	AddrCurrentAlarm          uint16 = 0x2203
	AddrPRGlobalControl       uint16 = 0x6000
	AddrPRControl             uint16 = 0x6002
	AddrSoftLimitPositive     uint16 = 0x6006 // high word, low word at 0x6007
	AddrSoftLimitNegative     uint16 = 0x6008 // high word, low word at 0x6009
	AddrHomeMode              uint16 = 0x600A
	AddrHomeSwitchPosition    uint16 = 0x600B // high word, low word at 0x600C
	AddrHomingStopPosition    uint16 = 0x600D // high word, low word at 0x600E
	AddrHomingHighVelocity    uint16 = 0x600F
	AddrHomingLowVelocity     uint16 = 0x6010
	AddrHomingAcceleration    uint16 = 0x6011
	AddrHomingDeceleration    uint16 = 0x6012
	AddrHomeAux               uint16 = 0x601A
	AddrPath0                 uint16 = 0x6200
)

// Path slots.
const (
	MaxSlot    = 8
	PathStride = 8
	PathWords  = 8
)

// Offsets of the path registers from the slot base.
const (
	PathCtrlOffset         uint16 = 0
	PathPositionOffset     uint16 = 1 // high word, low word at 2
	PathVelocityOffset     uint16 = 3
	PathAccOffset          uint16 = 4
	PathDecOffset          uint16 = 5
	PathPauseTimeOffset    uint16 = 6
	PathSpecialParamOffset uint16 = 7
)

const (
	NumInputs  = 7
	NumOutputs = 3

	// NormallyClosed is added to an SI/SO function code to invert the
	// input or output.
	NormallyClosed uint16 = 0x0080
)

// Motion status bits.
const (
	StatusFault           uint16 = 0x0001
	StatusEnabled         uint16 = 0x0002
	StatusRunning         uint16 = 0x0004
	StatusCommandComplete uint16 = 0x0010
	StatusPathComplete    uint16 = 0x0020
	StatusHomingComplete  uint16 = 0x0040
)

// Current alarm bits.
const (
	AlarmOverCurrent     uint16 = 0x0001
	AlarmOverVoltage     uint16 = 0x0002
	AlarmCurrentSampling uint16 = 0x0040
	AlarmLockShaft       uint16 = 0x0080
	AlarmAutoTuning      uint16 = 0x0100
	AlarmEEPROM          uint16 = 0x0200
)

// PR global control bits.
const (
	GlobalCTRGDoubleEdge  uint16 = 1 << 0
	GlobalSoftLimit       uint16 = 1 << 1
	GlobalHomingOnPowerUp uint16 = 1 << 2
	GlobalCTRGLevel       uint16 = 1 << 4
)

// Bit names one flag inside a register.
type Bit struct {
	Name string
	Mask uint16
}

// Register describes one logical quantity of the firmware: where it lives,
// how many words it spans and how raw words map to values.
type Register struct {
	Name string
	Addr uint16
	// Words is 1 or 2. Two-word quantities are stored high word first.
	Words  int
	Signed bool
	// Scale is the number of raw counts per unit. Zero means unscaled.
	Scale float64
	// Min and Max restrict the domain. Both zero means the full range of
	// the width.
	Min, Max int64
	Bits     []Bit
}

// At returns a copy of a path field relocated to a slot base.
func (r Register) At(base uint16) Register {
	r.Addr += base
	return r
}

var (
	PulsePerRev     = Register{Name: "pulse_per_rev", Addr: AddrPulsePerRev, Words: 1, Min: 200, Max: 51200}
	MotorDirection  = Register{Name: "motor_direction", Addr: AddrMotorDirection, Words: 1, Min: 0, Max: 1}
	MotorInductance = Register{Name: "motor_inductance", Addr: AddrMotorInductance, Words: 1, Min: 0, Max: 10000}
	ForcedEnable    = Register{Name: "forced_enable", Addr: AddrForcedEnable, Words: 1, Min: 0, Max: 1}
	PeakCurrent     = Register{Name: "peak_current", Addr: AddrPeakCurrent, Words: 1, Scale: 100}
	JogVelocity     = Register{Name: "jog_velocity", Addr: AddrJogVelocity, Words: 1}
	JogInterval     = Register{Name: "jog_interval", Addr: AddrJogInterval, Words: 1}
	JogRunningTime  = Register{Name: "jog_running_time", Addr: AddrJogRunningTime, Words: 1}
	JogAccDecTime   = Register{Name: "jog_acc_dec_time", Addr: AddrJogAccDecTime, Words: 1}
	BusVoltage      = Register{Name: "bus_voltage", Addr: AddrBusVoltage, Words: 1}
	InputStatusReg  = Register{Name: "digital_input_status", Addr: AddrDigitalInputStatus, Words: 1}
	OutputStatusReg = Register{Name: "digital_output_status", Addr: AddrDigitalOutputStatus, Words: 1}
	VersionInfo     = Register{Name: "version_information", Addr: AddrVersionInformation, Words: 1}
	FirmwareInfo    = Register{Name: "firmware_information", Addr: AddrFirmwareInformation, Words: 1}
	ControlWordReg  = Register{Name: "control_word", Addr: AddrControlWord, Words: 1}
	SaveStatusReg   = Register{Name: "save_parameter_status", Addr: AddrSaveParameterStatus, Words: 1}
	PRControl       = Register{Name: "pr_control", Addr: AddrPRControl, Words: 1}
	SoftLimitMax    = Register{Name: "soft_limit_positive", Addr: AddrSoftLimitPositive, Words: 2, Signed: true}
	SoftLimitMin    = Register{Name: "soft_limit_negative", Addr: AddrSoftLimitNegative, Words: 2, Signed: true}
	HomeMode        = Register{Name: "home_mode", Addr: AddrHomeMode, Words: 1}
	HomeSwitchPos   = Register{Name: "home_switch_position", Addr: AddrHomeSwitchPosition, Words: 2, Signed: true}
	HomingStopPos   = Register{Name: "homing_stop_position", Addr: AddrHomingStopPosition, Words: 2, Signed: true}
	HomingHighVel   = Register{Name: "homing_high_velocity", Addr: AddrHomingHighVelocity, Words: 1}
	HomingLowVel    = Register{Name: "homing_low_velocity", Addr: AddrHomingLowVelocity, Words: 1}
	HomingAcc       = Register{Name: "homing_acceleration", Addr: AddrHomingAcceleration, Words: 1}
	HomingDec       = Register{Name: "homing_deceleration", Addr: AddrHomingDeceleration, Words: 1}
	HomeAux         = Register{Name: "home_aux", Addr: AddrHomeAux, Words: 1}
	MotionStatusReg = Register{
		Name: "motion_status", Addr: AddrMotionStatus, Words: 1,
		Bits: []Bit{
			{"fault", StatusFault},
			{"enabled", StatusEnabled},
			{"running", StatusRunning},
			{"command_complete", StatusCommandComplete},
			{"path_complete", StatusPathComplete},
			{"homing_complete", StatusHomingComplete},
		},
	}
	CurrentAlarmReg = Register{
		Name: "current_alarm", Addr: AddrCurrentAlarm, Words: 1,
		Bits: []Bit{
			{"over_current", AlarmOverCurrent},
			{"over_voltage", AlarmOverVoltage},
			{"current_sampling", AlarmCurrentSampling},
			{"lock_shaft", AlarmLockShaft},
			{"auto_tuning", AlarmAutoTuning},
			{"eeprom", AlarmEEPROM},
		},
	}
	PRGlobalControl = Register{
		Name: "pr_global_control", Addr: AddrPRGlobalControl, Words: 1,
		Bits: []Bit{
			{"ctrg_double_edge", GlobalCTRGDoubleEdge},
			{"soft_limit", GlobalSoftLimit},
			{"homing_on_power_up", GlobalHomingOnPowerUp},
			{"ctrg_level", GlobalCTRGLevel},
		},
	}
)

// Path fields are addressed relative to the slot base; use At(PathBase(n)).
var (
	PathCtrl      = Register{Name: "path_ctrl", Addr: PathCtrlOffset, Words: 1}
	PathPosition  = Register{Name: "path_position", Addr: PathPositionOffset, Words: 2, Signed: true}
	PathVelocity  = Register{Name: "path_velocity", Addr: PathVelocityOffset, Words: 1}
	PathAcc       = Register{Name: "path_acceleration", Addr: PathAccOffset, Words: 1}
	PathDec       = Register{Name: "path_deceleration", Addr: PathDecOffset, Words: 1}
	PathPauseTime = Register{Name: "path_pause_time", Addr: PathPauseTimeOffset, Words: 1}
	PathSpecial   = Register{Name: "path_special_param", Addr: PathSpecialParamOffset, Words: 1}
)

// RegisterMap lists every absolute register the package touches.
var RegisterMap = []Register{
	PulsePerRev, MotorDirection, MotorInductance, ForcedEnable, PeakCurrent,
	JogVelocity, JogInterval, JogRunningTime, JogAccDecTime,
	BusVoltage, InputStatusReg, OutputStatusReg, VersionInfo, FirmwareInfo,
	ControlWordReg, SaveStatusReg, PRGlobalControl, PRControl,
	SoftLimitMax, SoftLimitMin,
	HomeMode, HomeSwitchPos, HomingStopPos, HomingHighVel, HomingLowVel,
	HomingAcc, HomingDec, HomeAux,
	MotionStatusReg, CurrentAlarmReg,
}

// PathFields lists the registers of one path slot, relative to its base.
var PathFields = []Register{
	PathCtrl, PathPosition, PathVelocity, PathAcc, PathDec, PathPauseTime, PathSpecial,
}

// PathBase returns the first register of a path slot.
func PathBase(slot uint8) (uint16, error) {
	if slot > MaxSlot {
		return 0, ErrInvalidSlot
	}
	return AddrPath0 + uint16(slot)*PathStride, nil
}

// InputRegister returns the function register of digital input no (1-7).
func InputRegister(no uint8) (uint16, error) {
	if no < 1 || no > NumInputs {
		return 0, ErrInvalidInput
	}
	return AddrSI1 + uint16(no-1)*2, nil
}

// OutputRegister returns the function register of digital output no (1-3).
func OutputRegister(no uint8) (uint16, error) {
	if no < 1 || no > NumOutputs {
		return 0, ErrInvalidInput
	}
	return AddrSO1 + uint16(no-1)*2, nil
}
