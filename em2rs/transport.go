package em2rs

import "context"

// Transport is the bus as seen by a Client. Each call is one request to a
// single drive; the slave id is fixed when the transport is built.
// Implementations must allow only one request in flight per physical bus.
type Transport interface {
	ReadRegisters(ctx context.Context, addr, count uint16) ([]uint16, error)
	WriteRegisters(ctx context.Context, addr uint16, values []uint16) error
}

// BlockingTransport is a Transport whose calls hold the calling goroutine
// until the drive answers or the bus times out.
type BlockingTransport interface {
	ReadRegisters(addr, count uint16) ([]uint16, error)
	WriteRegisters(addr uint16, values []uint16) error
}

// Blocking adapts a BlockingTransport to Transport. The context is not
// consulted; timeouts stay with the bus.
func Blocking(t BlockingTransport) Transport {
	return blocking{t}
}

type blocking struct {
	t BlockingTransport
}

func (b blocking) ReadRegisters(_ context.Context, addr, count uint16) ([]uint16, error) {
	return b.t.ReadRegisters(addr, count)
}

func (b blocking) WriteRegisters(_ context.Context, addr uint16, values []uint16) error {
	return b.t.WriteRegisters(addr, values)
}
