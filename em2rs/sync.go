package em2rs

import (
	"context"
	"log"
)

// SyncClient is the blocking form of Client. Every method holds the calling
// goroutine until the bus answers.
type SyncClient struct {
	c *Client
}

func NewSyncClient(t BlockingTransport, cfg StepperConfig) *SyncClient {
	return &SyncClient{c: NewClient(Blocking(t), cfg)}
}

func (s *SyncClient) SetLogger(l *log.Logger) { s.c.Logger = l }

func (s *SyncClient) Config() StepperConfig { return s.c.cfg }

func (s *SyncClient) Init() error { return s.c.Init(context.Background()) }

func (s *SyncClient) StartPath(slot uint8) error {
	return s.c.StartPath(context.Background(), slot)
}

func (s *SyncClient) StartHoming() error { return s.c.StartHoming(context.Background()) }
func (s *SyncClient) StopMotor() error   { return s.c.StopMotor(context.Background()) }
func (s *SyncClient) ManualZero() error  { return s.c.ManualZero(context.Background()) }

func (s *SyncClient) JogMotor(d Direction) error {
	return s.c.JogMotor(context.Background(), d)
}

func (s *SyncClient) ApplyPathConfig(p PathConfig) error {
	return s.c.ApplyPathConfig(context.Background(), p)
}

func (s *SyncClient) ConfigurePathMotion(slot uint8, m PathMotion) error {
	return s.c.ConfigurePathMotion(context.Background(), slot, m)
}

func (s *SyncClient) SetPathPauseTime(slot uint8, ms uint16) error {
	return s.c.SetPathPauseTime(context.Background(), slot, ms)
}

func (s *SyncClient) ReadPathConfig(slot uint8) (PathConfig, PathMotion, error) {
	return s.c.ReadPathConfig(context.Background(), slot)
}

func (s *SyncClient) ApplyHomingConfig(h HomingConfig) error {
	return s.c.ApplyHomingConfig(context.Background(), h)
}

func (s *SyncClient) SetPeakCurrent(amps float64) error {
	return s.c.SetPeakCurrent(context.Background(), amps)
}

func (s *SyncClient) SetMotorInductance(inductance uint16) error {
	return s.c.SetMotorInductance(context.Background(), inductance)
}

func (s *SyncClient) SetSoftLimitMax(position int32) error {
	return s.c.SetSoftLimitMax(context.Background(), position)
}

func (s *SyncClient) SetSoftLimitMin(position int32) error {
	return s.c.SetSoftLimitMin(context.Background(), position)
}

func (s *SyncClient) SoftLimits() (SoftLimits, error) {
	return s.c.SoftLimits(context.Background())
}

func (s *SyncClient) SoftLimitControl(enable bool) error {
	return s.c.SoftLimitControl(context.Background(), enable)
}

func (s *SyncClient) SetCTRGEffectiveEdge(doubleEdge bool) error {
	return s.c.SetCTRGEffectiveEdge(context.Background(), doubleEdge)
}

func (s *SyncClient) SetCTRGTriggerType(level bool) error {
	return s.c.SetCTRGTriggerType(context.Background(), level)
}

func (s *SyncClient) HomingPowerUpControl(enable bool) error {
	return s.c.HomingPowerUpControl(context.Background(), enable)
}

func (s *SyncClient) ConfigureInput(no uint8, f InputFunction, normallyClosed bool) error {
	return s.c.ConfigureInput(context.Background(), no, f, normallyClosed)
}

func (s *SyncClient) ConfigureOutput(no uint8, f OutputFunction, normallyClosed bool) error {
	return s.c.ConfigureOutput(context.Background(), no, f, normallyClosed)
}

func (s *SyncClient) ForcedEnable(enable bool) error {
	return s.c.ForcedEnable(context.Background(), enable)
}

func (s *SyncClient) SetJogParams(p JogParams) error {
	return s.c.SetJogParams(context.Background(), p)
}

func (s *SyncClient) MotionStatus() (MotionStatus, error) {
	return s.c.MotionStatus(context.Background())
}

func (s *SyncClient) IsPathCompleted() (bool, error) {
	return s.c.IsPathCompleted(context.Background())
}

func (s *SyncClient) IsHomingCompleted() (bool, error) {
	return s.c.IsHomingCompleted(context.Background())
}

func (s *SyncClient) CurrentAlarm() (AlarmFlags, error) {
	return s.c.CurrentAlarm(context.Background())
}

func (s *SyncClient) InputStatus() (IOStatus, error) {
	return s.c.InputStatus(context.Background())
}

func (s *SyncClient) OutputStatus() (IOStatus, error) {
	return s.c.OutputStatus(context.Background())
}

func (s *SyncClient) Version() (uint16, error) { return s.c.Version(context.Background()) }

func (s *SyncClient) FirmwareInfo() (uint16, error) {
	return s.c.FirmwareInfo(context.Background())
}

func (s *SyncClient) SaveStatus() (SaveStatus, error) {
	return s.c.SaveStatus(context.Background())
}

func (s *SyncClient) SaveParamEEPROM() error   { return s.c.SaveParamEEPROM(context.Background()) }
func (s *SyncClient) SaveMappingEEPROM() error { return s.c.SaveMappingEEPROM(context.Background()) }
func (s *SyncClient) ParamReset() error        { return s.c.ParamReset(context.Background()) }
func (s *SyncClient) FactoryReset() error      { return s.c.FactoryReset(context.Background()) }
func (s *SyncClient) ResetCurrentAlarm() error { return s.c.ResetCurrentAlarm(context.Background()) }
func (s *SyncClient) ResetAlarmHistory() error { return s.c.ResetAlarmHistory(context.Background()) }
