package column

import "github.com/malbeclabs/coredb/internal/rawval"

// sparseThreshold is the null-density fraction above which Finalize chooses
// a Sparse encoding over a dense one with a Nulls bitmap. Below it, the
// bitmap overhead per row is cheaper than the 16-byte (index, value) pair
// a sparse entry costs.
const sparseThreshold = 0.5

// MixedCol is the append-only, heterogeneous column Buffer accumulates
// into before a column's eventual on-disk encoding is chosen. Every row
// appended — including nulls used to pad a column newly introduced mid-batch
// up to the buffer's row count — is tracked, so Len always equals the number
// of logical values pushed.
type MixedCol struct {
	name      string
	vals      []rawval.Val
	heapBytes int
}

// NewMixedCol starts an empty accumulator for a column named name.
func NewMixedCol(name string) *MixedCol {
	return &MixedCol{name: name}
}

func (m *MixedCol) Name() string { return m.name }
func (m *MixedCol) Len() int     { return len(m.vals) }

// HeapBytes approximates current resident memory. The mem-limit
// enforcement loop counts it toward a table's resident bytes; it never
// evicts or flushes a buffer because of it.
func (m *MixedCol) HeapBytes() int { return m.heapBytes }

func valHeapBytes(v rawval.Val) int {
	switch v.Tag() {
	case rawval.TagInt, rawval.TagFloat:
		return 8
	case rawval.TagStr:
		return len(v.String())
	default:
		return 0
	}
}

// Push appends one value.
func (m *MixedCol) Push(v rawval.Val) {
	m.vals = append(m.vals, v)
	m.heapBytes += valHeapBytes(v)
}

// PushNulls appends n nulls, used to auto-extend a column that is shorter
// than the buffer's row count after a batch that didn't mention it.
func (m *MixedCol) PushNulls(n int) {
	for i := 0; i < n; i++ {
		m.Push(rawval.Null())
	}
}

func (m *MixedCol) PushInts(xs []int64) {
	for _, x := range xs {
		m.Push(rawval.Int(x))
	}
}

func (m *MixedCol) PushFloats(xs []float64) {
	for _, x := range xs {
		m.Push(rawval.Float(x))
	}
}

func (m *MixedCol) PushStrings(xs []string) {
	for _, x := range xs {
		m.Push(rawval.Str(x))
	}
}

// Finalize converts the accumulated values into an immutable Column,
// choosing its encoding from the tags present: Null when the column is
// empty or every value is null; otherwise Float if any value is a float
// (ints are widened), else String if any value is a string, else Int.
// For Float and Int, null density above sparseThreshold picks the matching
// Sparse* encoding; below it, a dense encoding with an overlaid Nulls
// bitmap. String columns are always dense with a Nulls bitmap.
func (m *MixedCol) Finalize(name string) (*Column, error) {
	n := len(m.vals)
	col := &Column{Name: name, Length: n}

	var nullCount, intCount, floatCount, strCount int
	for _, v := range m.vals {
		switch v.Tag() {
		case rawval.TagNull:
			nullCount++
		case rawval.TagInt:
			intCount++
		case rawval.TagFloat:
			floatCount++
		case rawval.TagStr:
			strCount++
		}
	}

	if n == 0 || nullCount == n {
		col.Enc = EncNull
		return col, nil
	}

	sparse := n > 0 && float64(nullCount)/float64(n) > sparseThreshold

	switch {
	case floatCount > 0:
		if sparse {
			col.Enc = EncSparseFloat
			col.SparseFloats = make([]SparseFloat, 0, floatCount+intCount)
			for i, v := range m.vals {
				if v.IsNull() {
					continue
				}
				col.SparseFloats = append(col.SparseFloats, SparseFloat{Index: uint64(i), Value: asFloat(v)})
			}
			return col, nil
		}
		col.Enc = EncFloat
		col.Floats = make([]float64, n)
		col.Nulls = nullBitmap(m.vals, nullCount)
		for i, v := range m.vals {
			if !v.IsNull() {
				col.Floats[i] = asFloat(v)
			}
		}
		return col, nil

	case strCount > 0:
		col.Enc = EncString
		strs := NewIndexedPackedStrings()
		for _, v := range m.vals {
			if v.IsNull() {
				if err := strs.Push(""); err != nil {
					return nil, err
				}
				continue
			}
			if err := strs.Push(v.String()); err != nil {
				return nil, err
			}
		}
		col.Strings = strs
		col.Nulls = nullBitmap(m.vals, nullCount)
		return col, nil

	default: // intCount > 0
		if sparse {
			col.Enc = EncSparseInt
			col.SparseInts = make([]SparseInt, 0, intCount)
			for i, v := range m.vals {
				if v.IsNull() {
					continue
				}
				col.SparseInts = append(col.SparseInts, SparseInt{Index: uint64(i), Value: v.Int64()})
			}
			return col, nil
		}
		col.Enc = EncInt
		col.Ints = make([]int64, n)
		col.Nulls = nullBitmap(m.vals, nullCount)
		for i, v := range m.vals {
			if !v.IsNull() {
				col.Ints[i] = v.Int64()
			}
		}
		return col, nil
	}
}

func asFloat(v rawval.Val) float64 {
	if v.Tag() == rawval.TagInt {
		return float64(v.Int64())
	}
	return v.Float64()
}

// nullBitmap returns nil when there are no nulls, so IsNull's common case
// (no Nulls field at all) avoids allocating and scanning a bitmap.
func nullBitmap(vals []rawval.Val, nullCount int) []bool {
	if nullCount == 0 {
		return nil
	}
	bitmap := make([]bool, len(vals))
	for i, v := range vals {
		bitmap[i] = v.IsNull()
	}
	return bitmap
}
