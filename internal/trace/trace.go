// Package trace records register traffic to a CBOR file for later
// inspection with `em2rsctl trace`.
package trace

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/w1xm/em2rs/em2rs"
)

// Record is one request as seen by the client. CBOR encoding uses integer
// keys.
type Record struct {
	Time  time.Time `cbor:"1,keyasint"`
	Slave byte      `cbor:"2,keyasint"`
	Write bool      `cbor:"3,keyasint"`
	Addr  uint16    `cbor:"4,keyasint"`
	Count uint16    `cbor:"5,keyasint"`
	// Values written, or the words read back.
	Values   []uint16      `cbor:"6,keyasint,omitempty"`
	Err      string        `cbor:"7,keyasint,omitempty"`
	Duration time.Duration `cbor:"8,keyasint"`
	// Session is shared by every record from one Writer.
	Session string `cbor:"9,keyasint,omitempty"`
}

// Op returns the request without its outcome.
func (r Record) Op() em2rs.Op {
	if r.Write {
		return em2rs.WriteOp(r.Addr, r.Values...)
	}
	return em2rs.ReadOp(r.Addr, r.Count)
}

func (r Record) String() string {
	s := fmt.Sprintf("%s slave %d: %v", r.Time.Format("15:04:05.000"), r.Slave, r.Op())
	if !r.Write && r.Values != nil {
		s += fmt.Sprintf(" -> %04x", r.Values)
	}
	if r.Err != "" {
		s += ": " + r.Err
	}
	return s
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trace: decoder mode: %v", err))
	}
}

// Writer appends records to a stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer

	// Now defaults to time.Now.
	Now func() time.Time
	// Session tags the records, so runs appended to one file can be told
	// apart. NewWriter picks a random one.
	Session string
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: encMode.NewEncoder(w), Now: time.Now, Session: uuid.New().String()}
}

// Create opens path for appending, creating it if needed.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	w := NewWriter(f)
	w.closer = f
	return w, nil
}

func (w *Writer) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(r)
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}

func (w *Writer) record(slave byte, op em2rs.Op, start time.Time, words []uint16, err error) {
	r := Record{
		Time:     start,
		Slave:    slave,
		Write:    op.Kind == em2rs.OpWrite,
		Addr:     op.Addr,
		Count:    op.Count,
		Values:   op.Values,
		Duration: w.Now().Sub(start),
		Session:  w.Session,
	}
	if !r.Write {
		r.Values = words
	}
	if err != nil {
		r.Err = err.Error()
	}
	// A full disk should not take the bus down with it.
	_ = w.Write(r)
}

type Reader struct {
	dec    *cbor.Decoder
	closer io.Closer
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: decMode.NewDecoder(r)}
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Transport records every request to slave made through t.
func Transport(t em2rs.Transport, slave byte, w *Writer) em2rs.Transport {
	return &transport{t: t, slave: slave, w: w}
}

// BlockingTransport is Transport for a blocking bus.
func BlockingTransport(t em2rs.BlockingTransport, slave byte, w *Writer) em2rs.BlockingTransport {
	return &blockingTransport{t: t, slave: slave, w: w}
}

type transport struct {
	t     em2rs.Transport
	slave byte
	w     *Writer
}

func (t *transport) ReadRegisters(ctx context.Context, addr, count uint16) ([]uint16, error) {
	start := t.w.Now()
	words, err := t.t.ReadRegisters(ctx, addr, count)
	t.w.record(t.slave, em2rs.ReadOp(addr, count), start, words, err)
	return words, err
}

func (t *transport) WriteRegisters(ctx context.Context, addr uint16, values []uint16) error {
	start := t.w.Now()
	err := t.t.WriteRegisters(ctx, addr, values)
	t.w.record(t.slave, em2rs.WriteOp(addr, values...), start, nil, err)
	return err
}

type blockingTransport struct {
	t     em2rs.BlockingTransport
	slave byte
	w     *Writer
}

func (t *blockingTransport) ReadRegisters(addr, count uint16) ([]uint16, error) {
	start := t.w.Now()
	words, err := t.t.ReadRegisters(addr, count)
	t.w.record(t.slave, em2rs.ReadOp(addr, count), start, words, err)
	return words, err
}

func (t *blockingTransport) WriteRegisters(addr uint16, values []uint16) error {
	start := t.w.Now()
	err := t.t.WriteRegisters(addr, values)
	t.w.record(t.slave, em2rs.WriteOp(addr, values...), start, nil, err)
	return err
}
