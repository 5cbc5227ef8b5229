// Package config loads the YAML description of a bus and the motors on it.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/w1xm/em2rs/em2rs"
	"github.com/w1xm/em2rs/internal/modbus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Bus Bus `yaml:"bus"`
	// Trace, when set, is a file that receives every register request.
	Trace  string  `yaml:"trace"`
	Motors []Motor `yaml:"motors"`
}

type Bus struct {
	Port     string        `yaml:"port"`
	Baud     int           `yaml:"baud"`
	Parity   string        `yaml:"parity"`
	Timeout  time.Duration `yaml:"timeout"`
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	// Simulate replaces the bus with simulated drives.
	Simulate bool `yaml:"simulate"`
}

func (b Bus) Modbus() modbus.Config {
	return modbus.Config{
		Port:     b.Port,
		BaudRate: b.Baud,
		Parity:   b.Parity,
		Timeout:  b.Timeout,
		URL:      b.URL,
		Password: b.Password,
	}
}

type Motor struct {
	Name         string  `yaml:"name"`
	Slave        byte    `yaml:"slave"`
	PulsePerRev  uint16  `yaml:"pulse_per_rev"`
	PhaseCurrent float64 `yaml:"phase_current"`
	Inductance   uint16  `yaml:"inductance"`
	Direction    string  `yaml:"direction"`

	SoftLimits *SoftLimits `yaml:"soft_limits"`
	Inputs     []IO        `yaml:"inputs"`
	Outputs    []IO        `yaml:"outputs"`
	Jog        *Jog        `yaml:"jog"`
	Homing     *Homing     `yaml:"homing"`
	Paths      []Path      `yaml:"paths"`
}

type SoftLimits struct {
	Min int32 `yaml:"min"`
	Max int32 `yaml:"max"`
}

type IO struct {
	No             uint8  `yaml:"no"`
	Function       string `yaml:"function"`
	NormallyClosed bool   `yaml:"normally_closed"`
}

type Jog struct {
	Velocity    uint16 `yaml:"velocity"`
	Interval    uint16 `yaml:"interval"`
	RunningTime uint16 `yaml:"running_time"`
	AccDecTime  uint16 `yaml:"acc_dec_time"`
}

type Homing struct {
	Input          uint8  `yaml:"input"`
	NormallyClosed bool   `yaml:"normally_closed"`
	Direction      string `yaml:"direction"`
	// Method is "home_switch" (default) or "limit_switch".
	Method         string  `yaml:"method"`
	MoveToPosition *bool   `yaml:"move_to_position"`
	Position       int32   `yaml:"position"`
	StopPosition   int32   `yaml:"stop_position"`
	HighVelocity   *uint16 `yaml:"high_velocity"`
	LowVelocity    *uint16 `yaml:"low_velocity"`
	Acceleration   *uint16 `yaml:"acceleration"`
	Deceleration   *uint16 `yaml:"deceleration"`
}

type Path struct {
	Slot         uint8   `yaml:"slot"`
	Position     int32   `yaml:"position"`
	Relative     bool    `yaml:"relative"`
	Velocity     *uint16 `yaml:"velocity"`
	Acceleration *uint16 `yaml:"acceleration"`
	Deceleration *uint16 `yaml:"deceleration"`
	PauseTime    uint16  `yaml:"pause_time"`
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the bus, the motor list and every motor setting. It
// fills in default motor names.
func (c *Config) Validate() error {
	if !c.Bus.Simulate && c.Bus.Port == "" && c.Bus.URL == "" {
		return errors.New("bus: one of port, url or simulate is required")
	}
	if len(c.Motors) == 0 {
		return errors.New("no motors configured")
	}
	names := map[string]bool{}
	slaves := map[byte]bool{}
	for i := range c.Motors {
		m := &c.Motors[i]
		if m.Name == "" {
			m.Name = fmt.Sprintf("motor%d", m.Slave)
		}
		if names[m.Name] {
			return fmt.Errorf("duplicate motor name %q", m.Name)
		}
		names[m.Name] = true
		if m.Slave < 1 || m.Slave > 247 {
			return fmt.Errorf("motor %q: slave id %d out of range 1-247", m.Name, m.Slave)
		}
		if slaves[m.Slave] {
			return fmt.Errorf("motor %q: slave id %d used twice", m.Name, m.Slave)
		}
		slaves[m.Slave] = true
		if err := m.validate(); err != nil {
			return fmt.Errorf("motor %q: %w", m.Name, err)
		}
	}
	return nil
}

// validate converts every part once so bad values surface at load time.
func (m *Motor) validate() error {
	cfg, err := m.StepperConfig()
	if err != nil {
		return err
	}
	if _, err := em2rs.InitOps(cfg); err != nil {
		return err
	}
	if _, err := m.PathConfigs(); err != nil {
		return err
	}
	if _, err := m.HomingConfig(); err != nil {
		return err
	}
	for _, in := range m.Inputs {
		if _, err := in.input(); err != nil {
			return err
		}
	}
	for _, out := range m.Outputs {
		if _, err := out.output(); err != nil {
			return err
		}
	}
	return nil
}

// Motor returns the motor called name.
func (c *Config) Motor(name string) (*Motor, error) {
	for i := range c.Motors {
		if c.Motors[i].Name == name {
			return &c.Motors[i], nil
		}
	}
	return nil, fmt.Errorf("no motor named %q", name)
}

func (m *Motor) StepperConfig() (em2rs.StepperConfig, error) {
	cfg := em2rs.NewStepperConfig(m.Slave, m.PulsePerRev)
	if m.PhaseCurrent != 0 {
		cfg = cfg.WithPhaseCurrent(m.PhaseCurrent)
	}
	if m.Inductance != 0 {
		cfg = cfg.WithInductance(m.Inductance)
	}
	if m.Direction != "" {
		d, err := em2rs.ParseDirection(m.Direction)
		if err != nil {
			return em2rs.StepperConfig{}, err
		}
		cfg = cfg.WithDirection(d)
	}
	return cfg, nil
}

func (m *Motor) PathConfigs() ([]em2rs.PathConfig, error) {
	var out []em2rs.PathConfig
	seen := map[uint8]bool{}
	for _, p := range m.Paths {
		if seen[p.Slot] {
			return nil, fmt.Errorf("path slot %d configured twice", p.Slot)
		}
		seen[p.Slot] = true
		pc, err := em2rs.NewPathConfig(p.Slot)
		if err != nil {
			return nil, err
		}
		pc.Absolute = !p.Relative
		pc.Position = p.Position
		set(&pc.Velocity, p.Velocity)
		set(&pc.Acceleration, p.Acceleration)
		set(&pc.Deceleration, p.Deceleration)
		pc.PauseTime = p.PauseTime
		out = append(out, pc)
	}
	return out, nil
}

// Path returns the configured path in slot.
func (m *Motor) Path(slot uint8) (em2rs.PathConfig, error) {
	paths, err := m.PathConfigs()
	if err != nil {
		return em2rs.PathConfig{}, err
	}
	for _, p := range paths {
		if p.Slot() == slot {
			return p, nil
		}
	}
	return em2rs.PathConfig{}, fmt.Errorf("motor %q has no path in slot %d", m.Name, slot)
}

func set(dst *uint16, v *uint16) {
	if v != nil {
		*dst = *v
	}
}

// HomingConfig returns nil when homing is not configured.
func (m *Motor) HomingConfig() (*em2rs.HomingConfig, error) {
	if m.Homing == nil {
		return nil, nil
	}
	h := em2rs.DefaultHomingConfig()
	if m.Homing.Input != 0 {
		h.InputNo = m.Homing.Input
	}
	h.NormallyClosed = m.Homing.NormallyClosed
	if m.Homing.Direction != "" {
		d, err := em2rs.ParseDirection(m.Homing.Direction)
		if err != nil {
			return nil, err
		}
		h.Direction = d
	}
	switch m.Homing.Method {
	case "", "home_switch":
		h.Method = em2rs.HomingHomeSwitch
	case "limit_switch":
		h.Method = em2rs.HomingLimitSwitch
	default:
		return nil, &em2rs.ConfigError{Op: "parse", Field: "homing.method", Value: m.Homing.Method, Err: em2rs.ErrInvalidValue}
	}
	if m.Homing.MoveToPosition != nil {
		h.MoveToPosition = *m.Homing.MoveToPosition
	}
	h.Position = m.Homing.Position
	h.StopPosition = m.Homing.StopPosition
	set(&h.HighVelocity, m.Homing.HighVelocity)
	set(&h.LowVelocity, m.Homing.LowVelocity)
	set(&h.Acceleration, m.Homing.Acceleration)
	set(&h.Deceleration, m.Homing.Deceleration)
	if _, err := em2rs.HomingOps(h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (p IO) input() (em2rs.InputFunction, error) {
	f, err := em2rs.ParseInputFunction(p.Function)
	if err != nil {
		return 0, err
	}
	_, err = em2rs.InputOps(p.No, f, p.NormallyClosed)
	return f, err
}

func (p IO) output() (em2rs.OutputFunction, error) {
	f, err := em2rs.ParseOutputFunction(p.Function)
	if err != nil {
		return 0, err
	}
	_, err = em2rs.OutputOps(p.No, f, p.NormallyClosed)
	return f, err
}

// Apply writes the whole motor configuration to the drive: motor
// parameters, I/O functions, jog settings, soft limits, homing and paths.
// Nothing is saved to EEPROM.
func (m *Motor) Apply(ctx context.Context, c *em2rs.Client) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	for _, in := range m.Inputs {
		f, err := in.input()
		if err != nil {
			return err
		}
		if err := c.ConfigureInput(ctx, in.No, f, in.NormallyClosed); err != nil {
			return err
		}
	}
	for _, out := range m.Outputs {
		f, err := out.output()
		if err != nil {
			return err
		}
		if err := c.ConfigureOutput(ctx, out.No, f, out.NormallyClosed); err != nil {
			return err
		}
	}
	if m.Jog != nil {
		if err := c.SetJogParams(ctx, em2rs.JogParams(*m.Jog)); err != nil {
			return err
		}
	}
	if m.SoftLimits != nil {
		if err := c.SetSoftLimitMax(ctx, m.SoftLimits.Max); err != nil {
			return err
		}
		if err := c.SetSoftLimitMin(ctx, m.SoftLimits.Min); err != nil {
			return err
		}
		if err := c.SoftLimitControl(ctx, true); err != nil {
			return err
		}
	}
	h, err := m.HomingConfig()
	if err != nil {
		return err
	}
	if h != nil {
		if err := c.ApplyHomingConfig(ctx, *h); err != nil {
			return err
		}
	}
	paths, err := m.PathConfigs()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := c.ApplyPathConfig(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
