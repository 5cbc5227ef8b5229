package modbus

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w1xm/em2rs/em2rs"
	"github.com/w1xm/em2rs/internal/modbus/modbushttp"
)

func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func frame(pdu ...byte) []byte {
	crc := crc16(pdu)
	return append(pdu, byte(crc), byte(crc>>8))
}

// bridge answers RTU frames the way cmd/modbus_server would with one
// register bank per slave behind it.
type bridge struct {
	mu       sync.Mutex
	mem      map[byte]map[uint16]uint16
	requests [][]byte
	silent   bool
}

func (b *bridge) answer(req []byte) []byte {
	slave, fc := req[0], req[1]
	addr := binary.BigEndian.Uint16(req[2:])
	regs := b.mem[slave]
	if regs == nil {
		regs = map[uint16]uint16{}
		b.mem[slave] = regs
	}
	switch fc {
	case 0x03:
		count := binary.BigEndian.Uint16(req[4:])
		out := []byte{slave, fc, byte(2 * count)}
		for i := uint16(0); i < count; i++ {
			out = binary.BigEndian.AppendUint16(out, regs[addr+i])
		}
		return frame(out...)
	case 0x06:
		regs[addr] = binary.BigEndian.Uint16(req[4:])
		return frame(req[:6]...)
	case 0x10:
		count := binary.BigEndian.Uint16(req[4:])
		for i := uint16(0); i < count; i++ {
			regs[addr+i] = binary.BigEndian.Uint16(req[7+2*i:])
		}
		return frame(req[:6]...)
	}
	return frame(slave, fc|0x80, 0x01)
}

func (b *bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	resp := modbushttp.SendResponse{}
	if b.silent {
		resp.Error = "serial: timeout"
	} else {
		resp.ADUResponse = b.answer(req)
	}
	json.NewEncoder(w).Encode(&resp)
}

func newBus(t *testing.T) (*Bus, *bridge) {
	b := &bridge{mem: map[byte]map[uint16]uint16{}}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	bus, err := Open(Config{URL: srv.URL})
	require.NoError(t, err)
	return bus, b
}

func TestRegisterBytes(t *testing.T) {
	values := []uint16{0x0000, 0x1388, 0xFFFF, 0x0102}
	bs := RegistersToBytes(values)
	assert.Equal(t, []byte{0x00, 0x00, 0x13, 0x88, 0xFF, 0xFF, 0x01, 0x02}, bs)
	got, err := BytesToRegisters(bs)
	require.NoError(t, err)
	assert.Equal(t, values, got)
	_, err = BytesToRegisters([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestSlavesShareBus(t *testing.T) {
	bus, b := newBus(t)
	one, two := bus.Slave(1), bus.Slave(2)

	require.NoError(t, one.WriteRegisters(0x6200, []uint16{0x0001, 0x0000, 0x1388}))
	require.NoError(t, two.WriteRegisters(0x6002, []uint16{0x0040}))

	words, err := one.ReadRegisters(0x6200, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x0001, 0x0000, 0x1388}, words)
	assert.Equal(t, uint16(0x0040), b.mem[2][0x6002])
	assert.Zero(t, b.mem[1][0x6002])

	require.Len(t, b.requests, 3)
	assert.Equal(t, byte(0x10), b.requests[0][1], "multi-word write")
	assert.Equal(t, byte(0x06), b.requests[1][1], "single-word write")
	assert.Equal(t, byte(2), b.requests[1][0])
}

func TestClientOverBus(t *testing.T) {
	bus, b := newBus(t)
	c := em2rs.NewClient(bus.ContextSlave(3), em2rs.NewStepperConfig(3, 10000))
	ctx := context.Background()
	require.NoError(t, c.StopMotor(ctx))
	assert.Equal(t, uint16(0x40), b.mem[3][em2rs.AddrPRControl])

	b.mem[3][em2rs.AddrMotionStatus] = em2rs.StatusPathComplete
	done, err := c.IsPathCompleted(ctx)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestTimeout(t *testing.T) {
	bus, b := newBus(t)
	b.silent = true
	c := em2rs.NewSyncClient(bus.Slave(1), em2rs.NewStepperConfig(1, 10000))
	err := c.StartHoming()
	var te *em2rs.TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Timeout())
}

func TestContextSlaveCanceled(t *testing.T) {
	bus, b := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bus.ContextSlave(1).ReadRegisters(ctx, 0x1003, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, b.requests)
}
