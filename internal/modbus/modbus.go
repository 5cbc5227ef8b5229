// Package modbus shares one RTU line between the drives on it.
package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/w1xm/em2rs/em2rs"
	"github.com/w1xm/em2rs/internal/modbus/modbushttp"
)

type modbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

type Config struct {
	// Port and BaudRate create a local serial connection
	Port string
	// BaudRate defaults to 19200
	BaudRate int
	// Parity is "N", "E" or "O"; defaults to "N"
	Parity string
	// Timeout defaults to 1s
	Timeout time.Duration
	// URL creates a remote connection through cmd/modbus_server
	URL      string
	Password string

	Logger *log.Logger
}

// Bus owns the connection. Requests from every Slave are serialized so
// only one is in flight at a time.
type Bus struct {
	name string

	mu      sync.Mutex
	rtu     *modbus.RTUClientHandler
	handler modbusHandler
	client  modbus.Client
}

func Open(cfg Config) (*Bus, error) {
	b := &Bus{}
	if cfg.URL != "" {
		h := modbushttp.NewClient(cfg.URL)
		h.Password = cfg.Password
		b.rtu = h.RTUClientHandler
		b.handler = h
		b.name = cfg.URL
	} else {
		if cfg.Port == "" {
			return nil, errors.New("modbus: no serial port or bridge URL")
		}
		handler := modbus.NewRTUClientHandler(cfg.Port)
		handler.BaudRate = cfg.BaudRate
		if handler.BaudRate == 0 {
			handler.BaudRate = 19200
		}
		handler.DataBits = 8
		handler.Parity = cfg.Parity
		if handler.Parity == "" {
			handler.Parity = "N"
		}
		handler.StopBits = 1
		handler.Timeout = cfg.Timeout
		if handler.Timeout == 0 {
			handler.Timeout = 1 * time.Second
		}
		b.rtu = handler
		b.handler = handler
		b.name = cfg.Port
	}
	b.rtu.SlaveId = 1
	b.rtu.Logger = cfg.Logger
	b.client = modbus.NewClient(b.handler)
	return b, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handler.Close()
}

// Watch keeps the connection open and calls poll in a loop while it is,
// reconnecting a second after any failure. It returns when ctx is done.
func (b *Bus) Watch(ctx context.Context, poll func(context.Context) error) error {
	for {
		b.mu.Lock()
		err := b.handler.Connect()
		b.mu.Unlock()
		if err != nil {
			log.Printf("opening %q: %v", b.name, err)
		} else if err := b.watch(ctx, poll); err != nil && ctx.Err() == nil {
			log.Printf("watching %q: %v", b.name, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
}

func (b *Bus) watch(ctx context.Context, poll func(context.Context) error) error {
	defer b.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := poll(ctx); err != nil {
			return err
		}
	}
}

func (b *Bus) read(slave byte, addr, count uint16) ([]uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rtu.SlaveId = slave
	data, err := b.client.ReadHoldingRegisters(addr, count)
	if err != nil {
		return nil, wrap(err)
	}
	return BytesToRegisters(data)
}

func (b *Bus) write(slave byte, addr uint16, values []uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rtu.SlaveId = slave
	var err error
	if len(values) == 1 {
		_, err = b.client.WriteSingleRegister(addr, values[0])
	} else {
		_, err = b.client.WriteMultipleRegisters(addr, uint16(len(values)), RegistersToBytes(values))
	}
	return wrap(err)
}

// Slave returns a blocking transport addressing drive id.
func (b *Bus) Slave(id byte) *Slave {
	return &Slave{bus: b, id: id}
}

// ContextSlave returns a transport addressing drive id that stops waiting
// when the context is done.
func (b *Bus) ContextSlave(id byte) *ContextSlave {
	return &ContextSlave{bus: b, id: id}
}

type Slave struct {
	bus *Bus
	id  byte
}

var _ em2rs.BlockingTransport = (*Slave)(nil)

func (s *Slave) ReadRegisters(addr, count uint16) ([]uint16, error) {
	return s.bus.read(s.id, addr, count)
}

func (s *Slave) WriteRegisters(addr uint16, values []uint16) error {
	return s.bus.write(s.id, addr, values)
}

// ContextSlave runs each request on its own goroutine. A request abandoned
// because ctx ended still completes on the bus before the next one starts.
type ContextSlave struct {
	bus *Bus
	id  byte
}

var _ em2rs.Transport = (*ContextSlave)(nil)

type result struct {
	words []uint16
	err   error
}

func (s *ContextSlave) do(ctx context.Context, f func() ([]uint16, error)) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan result, 1)
	go func() {
		words, err := f()
		ch <- result{words, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.words, r.err
	}
}

func (s *ContextSlave) ReadRegisters(ctx context.Context, addr, count uint16) ([]uint16, error) {
	return s.do(ctx, func() ([]uint16, error) {
		return s.bus.read(s.id, addr, count)
	})
}

func (s *ContextSlave) WriteRegisters(ctx context.Context, addr uint16, values []uint16) error {
	_, err := s.do(ctx, func() ([]uint16, error) {
		return nil, s.bus.write(s.id, addr, values)
	})
	return err
}

// TimeoutError marks a request the drive never answered.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return e.Err.Error() }
func (e *TimeoutError) Unwrap() error { return e.Err }
func (e *TimeoutError) Timeout() bool { return true }

// wrap tags serial read timeouts, which goburrow reports as plain errors.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var t interface{ Timeout() bool }
	if errors.As(err, &t) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return &TimeoutError{err}
	}
	return err
}

// RegistersToBytes lays out registers big-endian, as they go on the wire.
func RegistersToBytes(values []uint16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func BytesToRegisters(bs []byte) ([]uint16, error) {
	if len(bs)%2 != 0 {
		return nil, fmt.Errorf("modbus: odd register payload length %d", len(bs))
	}
	out := make([]uint16, len(bs)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(bs[2*i:])
	}
	return out, nil
}
