package em2rs

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidSlot is returned for a path slot outside 0-8.
	ErrInvalidSlot = errors.New("invalid path slot")
	// ErrInvalidInput is returned for a digital input or output number the
	// drive does not have.
	ErrInvalidInput = errors.New("invalid digital I/O number")
	// ErrInvalidValue is returned when a value does not fit its register.
	ErrInvalidValue = errors.New("value out of range")

	// ErrOutOfRange is returned when a register holds a value with no
	// meaning, such as an undefined direction code.
	ErrOutOfRange = errors.New("register value out of range")
	// ErrMalformed is returned when the number of words read does not
	// match the declared width of the quantity.
	ErrMalformed = errors.New("malformed register value")
)

// ConfigError reports caller input rejected before any bus traffic.
type ConfigError struct {
	Op    string
	Field string
	Value interface{}
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s=%v: %v", e.Op, e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DecodeError reports register contents that were received but cannot be
// interpreted. It usually means the register map does not match the
// firmware.
type DecodeError struct {
	Register string
	Raw      []uint16
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s %04x: %v", e.Register, e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError wraps a failure reported by the bus.
type TransportError struct {
	Op  Op
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the bus gave up waiting for the drive.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

func IsDecodeError(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}

func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}
