// Package rawval implements RawVal: the sum type {Null, Int, Float, Str}
// that ingestion events and query results are expressed in before they are
// packed into a typed Column.
package rawval

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tag discriminates which field of Val is meaningful.
type Tag uint8

const (
	TagNull Tag = iota
	TagInt
	TagFloat
	TagStr
)

// Val is a tagged union over {Null, Int(i64), Float(f64), Str(string)}.
// The zero value is Null.
type Val struct {
	tag Tag
	i   int64
	f   float64
	s   string
}

func Null() Val             { return Val{tag: TagNull} }
func Int(v int64) Val       { return Val{tag: TagInt, i: v} }
func Float(v float64) Val   { return Val{tag: TagFloat, f: v} }
func Str(v string) Val      { return Val{tag: TagStr, s: v} }
func (v Val) Tag() Tag      { return v.tag }
func (v Val) IsNull() bool  { return v.tag == TagNull }
func (v Val) Int64() int64  { return v.i }
func (v Val) Float64() float64 { return v.f }
func (v Val) String() string { return v.s }

// totalOrderFloatKey maps a float64 to a uint64 such that the natural
// unsigned ordering of the keys matches IEEE 754 totalOrder: NaN sorts as
// the largest value, -0 sorts before +0, and the rest follows numeric order.
func totalOrderFloatKey(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		// Negative (sign bit set): flip all bits so more-negative sorts lower.
		return ^bits
	}
	// Non-negative: flip only the sign bit so it sorts above negatives.
	return bits | (1 << 63)
}

// Compare implements the total order: tag first (Null < Int < Float < Str),
// then value within a tag. Floats compare via a bit-preserving total order
// where NaN sorts largest. String comparison is byte-wise.
func Compare(a, b Val) int {
	if a.tag != b.tag {
		if a.tag < b.tag {
			return -1
		}
		return 1
	}
	switch a.tag {
	case TagNull:
		return 0
	case TagInt:
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		default:
			return 0
		}
	case TagFloat:
		ka, kb := totalOrderFloatKey(a.f), totalOrderFloatKey(b.f)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		default:
			return 0
		}
	case TagStr:
		switch {
		case a.s < b.s:
			return -1
		case a.s > b.s:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func Less(a, b Val) bool { return Compare(a, b) < 0 }
func Equal(a, b Val) bool { return Compare(a, b) == 0 }

// GobEncode/GobDecode let Val travel opaquely inside gob-encoded WAL
// payloads and metastore summaries without a parallel exported struct,
// the same way time.Time encodes itself.
func (v Val) GobEncode() ([]byte, error) {
	switch v.tag {
	case TagNull:
		return []byte{byte(TagNull)}, nil
	case TagInt:
		buf := make([]byte, 9)
		buf[0] = byte(TagInt)
		binary.BigEndian.PutUint64(buf[1:], uint64(v.i))
		return buf, nil
	case TagFloat:
		buf := make([]byte, 9)
		buf[0] = byte(TagFloat)
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(v.f))
		return buf, nil
	case TagStr:
		buf := make([]byte, 1+len(v.s))
		buf[0] = byte(TagStr)
		copy(buf[1:], v.s)
		return buf, nil
	default:
		return nil, fmt.Errorf("rawval: unknown tag %d", v.tag)
	}
}

func (v *Val) GobDecode(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("rawval: empty encoding")
	}
	tag := Tag(data[0])
	switch tag {
	case TagNull:
		*v = Null()
	case TagInt:
		if len(data) != 9 {
			return fmt.Errorf("rawval: malformed int encoding")
		}
		*v = Int(int64(binary.BigEndian.Uint64(data[1:])))
	case TagFloat:
		if len(data) != 9 {
			return fmt.Errorf("rawval: malformed float encoding")
		}
		*v = Float(math.Float64frombits(binary.BigEndian.Uint64(data[1:])))
	case TagStr:
		*v = Str(string(data[1:]))
	default:
		return fmt.Errorf("rawval: unknown tag %d", tag)
	}
	return nil
}
