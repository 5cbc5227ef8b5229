package em2rs

import "fmt"

type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
)

func (k OpKind) String() string {
	if k == OpWrite {
		return "write"
	}
	return "read"
}

// Op is one register transaction: a read of Count registers or a write of
// Values, starting at Addr.
type Op struct {
	Kind   OpKind
	Addr   uint16
	Count  uint16
	Values []uint16
}

func ReadOp(addr, count uint16) Op {
	return Op{Kind: OpRead, Addr: addr, Count: count}
}

func WriteOp(addr uint16, values ...uint16) Op {
	return Op{Kind: OpWrite, Addr: addr, Count: uint16(len(values)), Values: values}
}

func (o Op) String() string {
	if o.Kind == OpWrite {
		return fmt.Sprintf("write %#04x %04x", o.Addr, o.Values)
	}
	return fmt.Sprintf("read %#04x x%d", o.Addr, o.Count)
}

func readOf(r Register) Op {
	return ReadOp(r.Addr, uint16(r.Words))
}
