package em2rs

import "context"

// recorder is an in-memory register bank that logs every request.
type recorder struct {
	mem map[uint16]uint16
	ops []Op
	// failAt makes the n-th request (counted from 1) fail with failErr.
	failAt  int
	failErr error
}

func newRecorder() *recorder {
	return &recorder{mem: map[uint16]uint16{}}
}

func (r *recorder) fail() error {
	if r.failAt != 0 && len(r.ops) == r.failAt {
		return r.failErr
	}
	return nil
}

func (r *recorder) read(addr, count uint16) ([]uint16, error) {
	r.ops = append(r.ops, ReadOp(addr, count))
	if err := r.fail(); err != nil {
		return nil, err
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = r.mem[addr+uint16(i)]
	}
	return out, nil
}

func (r *recorder) write(addr uint16, values []uint16) error {
	r.ops = append(r.ops, WriteOp(addr, append([]uint16(nil), values...)...))
	if err := r.fail(); err != nil {
		return err
	}
	for i, v := range values {
		r.mem[addr+uint16(i)] = v
	}
	return nil
}

type ctxRecorder struct{ *recorder }

func (r ctxRecorder) ReadRegisters(ctx context.Context, addr, count uint16) ([]uint16, error) {
	return r.read(addr, count)
}

func (r ctxRecorder) WriteRegisters(ctx context.Context, addr uint16, values []uint16) error {
	return r.write(addr, values)
}

type blockingRecorder struct{ *recorder }

func (r blockingRecorder) ReadRegisters(addr, count uint16) ([]uint16, error) {
	return r.read(addr, count)
}

func (r blockingRecorder) WriteRegisters(addr uint16, values []uint16) error {
	return r.write(addr, values)
}

type timeoutError struct{}

func (timeoutError) Error() string { return "serial: timeout" }
func (timeoutError) Timeout() bool { return true }

var errTimeout error = timeoutError{}
