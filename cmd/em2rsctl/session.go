package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/w1xm/em2rs/em2rs"
	"github.com/w1xm/em2rs/internal/config"
	"github.com/w1xm/em2rs/internal/modbus"
	"github.com/w1xm/em2rs/internal/trace"
	"github.com/w1xm/em2rs/simulator"
	"golang.org/x/term"
)

func loadConfig() (*config.Config, error) {
	cfg := &config.Config{
		Motors: []config.Motor{{Name: "motor", Slave: slaveID, PulsePerRev: pulsePerRev}},
	}
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if portName != "" {
		cfg.Bus.Port = portName
	}
	if baudRate != 0 {
		cfg.Bus.Baud = baudRate
	}
	if parity != "" {
		cfg.Bus.Parity = parity
	}
	if timeout != 0 {
		cfg.Bus.Timeout = timeout
	}
	if bridgeURL != "" {
		cfg.Bus.URL = bridgeURL
	}
	if pw := os.Getenv("EM2RS_PASSWORD"); pw != "" {
		cfg.Bus.Password = pw
	} else if askPassword && cfg.Bus.URL != "" {
		pw, err := readPassword()
		if err != nil {
			return nil, err
		}
		cfg.Bus.Password = pw
	}
	if simulate {
		cfg.Bus.Simulate = true
	}
	if tracePath != "" {
		cfg.Trace = tracePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--ask-password needs a terminal; set EM2RS_PASSWORD instead")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// session is an open bus, real or simulated, plus the optional trace file.
type session struct {
	cfg   *config.Config
	bus   *modbus.Bus
	sim   *simulator.Simulator
	trace *trace.Writer
	stop  context.CancelFunc
}

func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg}
	if cfg.Bus.Simulate {
		var ids []byte
		for _, m := range cfg.Motors {
			ids = append(ids, m.Slave)
		}
		s.sim = simulator.New(ids...)
		if verbose {
			s.sim.Logger = log.New(os.Stderr, "sim: ", log.Lmicroseconds)
		}
		ctx, cancel := context.WithCancel(context.Background())
		s.stop = cancel
		go s.sim.Run(ctx)
	} else {
		mc := cfg.Bus.Modbus()
		if verbose {
			mc.Logger = log.New(os.Stderr, "rtu: ", log.Lmicroseconds)
		}
		if s.bus, err = modbus.Open(mc); err != nil {
			return nil, err
		}
	}
	if cfg.Trace != "" {
		if s.trace, err = trace.Create(cfg.Trace); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// shared is the session held open by the shell command.
var shared *session

// acquire returns the shell's session, or opens one that the caller must
// release.
func acquire() (*session, func(), error) {
	if shared != nil {
		return shared, func() {}, nil
	}
	s, err := openSession()
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

func (s *session) Close() {
	if s.stop != nil {
		s.stop()
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			log.Printf("closing bus: %v", err)
		}
	}
	if s.trace != nil {
		if err := s.trace.Close(); err != nil {
			log.Printf("closing trace: %v", err)
		}
	}
}

func (s *session) transport(slave byte) em2rs.Transport {
	var t em2rs.Transport
	if s.sim != nil {
		t = s.sim.ContextSlave(slave)
	} else {
		t = s.bus.ContextSlave(slave)
	}
	if s.trace != nil {
		t = trace.Transport(t, slave, s.trace)
	}
	return t
}

func (s *session) blocking(slave byte) em2rs.BlockingTransport {
	var t em2rs.BlockingTransport
	if s.sim != nil {
		t = s.sim.Slave(slave)
	} else {
		t = s.bus.Slave(slave)
	}
	if s.trace != nil {
		t = trace.BlockingTransport(t, slave, s.trace)
	}
	return t
}

// motor picks the motor addressed by --motor.
func (s *session) motor() (*config.Motor, error) {
	if motorName != "" {
		return s.cfg.Motor(motorName)
	}
	if len(s.cfg.Motors) > 1 {
		return nil, errors.New("several motors configured; pick one with --motor")
	}
	return &s.cfg.Motors[0], nil
}

func logger(m *config.Motor) *log.Logger {
	if !verbose {
		return nil
	}
	return log.New(os.Stderr, m.Name+": ", log.Lmicroseconds)
}

func (s *session) client(m *config.Motor) (*em2rs.Client, error) {
	sc, err := m.StepperConfig()
	if err != nil {
		return nil, err
	}
	c := em2rs.NewClient(s.transport(m.Slave), sc)
	c.Logger = logger(m)
	return c, nil
}

func (s *session) syncClient(m *config.Motor) (*em2rs.SyncClient, error) {
	sc, err := m.StepperConfig()
	if err != nil {
		return nil, err
	}
	c := em2rs.NewSyncClient(s.blocking(m.Slave), sc)
	c.SetLogger(logger(m))
	return c, nil
}
