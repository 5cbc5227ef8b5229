package em2rs

import (
	"math"
)

func (r Register) limits() (int64, int64) {
	if r.Min != 0 || r.Max != 0 {
		return r.Min, r.Max
	}
	bits := uint(16 * r.Words)
	if r.Signed {
		return -1 << (bits - 1), 1<<(bits-1) - 1
	}
	return 0, 1<<bits - 1
}

// Encode converts v to the raw words of r, high word first.
func (r Register) Encode(v int64) ([]uint16, error) {
	lo, hi := r.limits()
	if v < lo || v > hi {
		return nil, &ConfigError{Op: "encode", Field: r.Name, Value: v, Err: ErrInvalidValue}
	}
	switch r.Words {
	case 1:
		return []uint16{uint16(v)}, nil
	case 2:
		u := uint32(v)
		return []uint16{uint16(u >> 16), uint16(u)}, nil
	}
	return nil, &ConfigError{Op: "encode", Field: r.Name, Value: r.Words, Err: ErrInvalidValue}
}

// Decode converts raw words read from r back to a value.
func (r Register) Decode(words []uint16) (int64, error) {
	if len(words) != r.Words {
		return 0, &DecodeError{Register: r.Name, Raw: words, Err: ErrMalformed}
	}
	var v int64
	switch r.Words {
	case 1:
		if r.Signed {
			v = int64(int16(words[0]))
		} else {
			v = int64(words[0])
		}
	case 2:
		u := uint32(words[0])<<16 | uint32(words[1])
		if r.Signed {
			v = int64(int32(u))
		} else {
			v = int64(u)
		}
	}
	lo, hi := r.limits()
	if v < lo || v > hi {
		return 0, &DecodeError{Register: r.Name, Raw: words, Err: ErrOutOfRange}
	}
	return v, nil
}

// EncodeScaled converts a value in physical units using the register scale.
func (r Register) EncodeScaled(v float64) ([]uint16, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, &ConfigError{Op: "encode", Field: r.Name, Value: v, Err: ErrInvalidValue}
	}
	if r.Scale != 0 {
		v *= r.Scale
	}
	lo, hi := r.limits()
	raw := math.Round(v)
	if raw < float64(lo) || raw > float64(hi) {
		return nil, &ConfigError{Op: "encode", Field: r.Name, Value: v, Err: ErrInvalidValue}
	}
	return r.Encode(int64(raw))
}

// DecodeScaled is the inverse of EncodeScaled.
func (r Register) DecodeScaled(words []uint16) (float64, error) {
	v, err := r.Decode(words)
	if err != nil {
		return 0, err
	}
	if r.Scale == 0 {
		return float64(v), nil
	}
	return float64(v) / r.Scale, nil
}

// SetBits returns raw with mask set or cleared.
func SetBits(raw, mask uint16, on bool) uint16 {
	if on {
		return raw | mask
	}
	return raw &^ mask
}

func encodeU16(r Register, v uint16) ([]uint16, error) {
	return r.Encode(int64(v))
}

func decodeU16(r Register, words []uint16) (uint16, error) {
	v, err := r.Decode(words)
	return uint16(v), err
}
