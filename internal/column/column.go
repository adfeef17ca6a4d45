// Package column implements the typed, immutable Column that belongs to a
// Partition, and MixedCol, the append-only heterogeneous accumulator that
// Buffer uses before a column's type settles.
package column

import "github.com/malbeclabs/coredb/internal/rawval"

// Encoding identifies which field(s) of a Column are populated.
type Encoding int

const (
	EncNull Encoding = iota
	EncInt
	EncFloat
	EncString
	EncXor
	EncSparseInt
	EncSparseFloat
)

func (e Encoding) String() string {
	switch e {
	case EncNull:
		return "Null"
	case EncInt:
		return "Int"
	case EncFloat:
		return "Float"
	case EncString:
		return "String"
	case EncXor:
		return "Xor"
	case EncSparseInt:
		return "SparseInt"
	case EncSparseFloat:
		return "SparseFloat"
	default:
		return "Unknown"
	}
}

// SparseInt is one (row_index, value) pair in a SparseInt-encoded column;
// rows not present are implicitly null.
type SparseInt struct {
	Index uint64
	Value int64
}

// SparseFloat is the float counterpart of SparseInt.
type SparseFloat struct {
	Index uint64
	Value float64
}

// Summary holds the optional min/max/distinct-count metadata persisted
// alongside a column in the metastore.
type Summary struct {
	Min           rawval.Val
	Max           rawval.Val
	DistinctCount int64
}

// Column is an immutable typed column belonging to a Partition. Exactly one
// of the value fields is populated, per Enc. Nulls is an optional bitmap
// (nil when there are none) overlaid on a dense encoding — used, for
// example, to represent a Dense WAL column shorter than the table's row
// count (a "nullable prefix"), per spec §4.1.
type Column struct {
	Name   string
	Length int
	Enc    Encoding

	Ints         []int64
	Floats       []float64
	Strings      *IndexedPackedStrings
	Xor          []byte
	SparseInts   []SparseInt
	SparseFloats []SparseFloat

	Nulls   []bool // len == Length when non-nil
	Summary *Summary
}

// IsNull reports whether row i is null, accounting for the Null encoding,
// rows absent from a Sparse* encoding, and an overlaid Nulls bitmap.
func (c *Column) IsNull(i int) bool {
	switch c.Enc {
	case EncNull:
		return true
	case EncSparseInt:
		for _, e := range c.SparseInts {
			if int(e.Index) == i {
				return false
			}
		}
		return true
	case EncSparseFloat:
		for _, e := range c.SparseFloats {
			if int(e.Index) == i {
				return false
			}
		}
		return true
	}
	if c.Nulls != nil {
		return c.Nulls[i]
	}
	return false
}

// At returns the row as a RawVal, for code (merge primitives, query
// combining) that needs the uniform sum-type view rather than the typed
// slice.
func (c *Column) At(i int) rawval.Val {
	if c.IsNull(i) {
		return rawval.Null()
	}
	switch c.Enc {
	case EncInt:
		return rawval.Int(c.Ints[i])
	case EncFloat:
		return rawval.Float(c.Floats[i])
	case EncString:
		return rawval.Str(c.Strings.Get(i))
	case EncSparseInt:
		return rawval.Int(sparseIntAt(c.SparseInts, i))
	case EncSparseFloat:
		return rawval.Float(sparseFloatAt(c.SparseFloats, i))
	default:
		return rawval.Null()
	}
}

func sparseIntAt(entries []SparseInt, i int) int64 {
	for _, e := range entries {
		if int(e.Index) == i {
			return e.Value
		}
	}
	return 0
}

func sparseFloatAt(entries []SparseFloat, i int) float64 {
	for _, e := range entries {
		if int(e.Index) == i {
			return e.Value
		}
	}
	return 0
}

// EnsureSummary computes and caches Min/Max/DistinctCount over this
// column's non-null values, if not already computed. Idempotent — safe to
// call on every flush/compaction even though a Column is otherwise
// immutable, since the result is a pure function of the column's contents.
func (c *Column) EnsureSummary() *Summary {
	if c.Summary != nil {
		return c.Summary
	}
	s := &Summary{Min: rawval.Null(), Max: rawval.Null()}
	seen := make(map[rawval.Val]struct{}, c.Length)
	first := true
	for i := 0; i < c.Length; i++ {
		v := c.At(i)
		if v.IsNull() {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
		}
		if first || rawval.Less(v, s.Min) {
			s.Min = v
		}
		if first || rawval.Less(s.Max, v) {
			s.Max = v
		}
		first = false
	}
	s.DistinctCount = int64(len(seen))
	c.Summary = s
	return s
}

// HeapBytes approximates this column's resident memory footprint, used by
// the LRU's memory-limit enforcement.
func (c *Column) HeapBytes() int {
	switch c.Enc {
	case EncInt:
		return len(c.Ints) * 8
	case EncFloat:
		return len(c.Floats) * 8
	case EncString:
		return c.Strings.ArenaBytes() + c.Strings.Len()*8
	case EncXor:
		return len(c.Xor)
	case EncSparseInt:
		return len(c.SparseInts) * 16
	case EncSparseFloat:
		return len(c.SparseFloats) * 16
	default:
		return 0
	}
}
