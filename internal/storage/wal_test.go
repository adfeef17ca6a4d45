package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWalSegment_RoundTrip(t *testing.T) {
	t.Parallel()

	data := EventBuffer{
		"events": TableBuffer{
			Len: 3,
			Columns: map[string]ColumnData{
				"value": {Kind: KindDense, Dense: []float64{1, 2, 3}},
			},
		},
	}

	var buf bytes.Buffer
	n, err := WriteSegment(&buf, 42, data)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)

	id, got, err := ReadSegment(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(42), id)
	require.Equal(t, data, got)
}

func TestWalSegment_CorruptPayloadFailsCRC(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := WriteSegment(&buf, 1, EventBuffer{})
	require.NoError(t, err)

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	_, _, err = ReadSegment(bytes.NewReader(corrupted))
	require.Error(t, err)
}

func TestSegmentFileName_SortsLexicographically(t *testing.T) {
	t.Parallel()

	require.True(t, SegmentFileName(9) < SegmentFileName(10))
	require.True(t, SegmentFileName(999) < SegmentFileName(1000))
}

func TestColumnData_ToRawVals_DensePrefixPromotion(t *testing.T) {
	t.Parallel()

	cd := ColumnData{Kind: KindDense, Dense: []float64{1, 2}}
	vals, err := cd.ToRawVals(4)
	require.NoError(t, err)
	require.Equal(t, 1.0, vals[0].Float64())
	require.Equal(t, 2.0, vals[1].Float64())
	require.True(t, vals[2].IsNull())
	require.True(t, vals[3].IsNull())
}

func TestColumnData_ToRawVals_SparseGapsBecomeNull(t *testing.T) {
	t.Parallel()

	cd := ColumnData{Kind: KindSparseI64, SparseI64: []SparseI64Entry{{Index: 1, Value: 7}}}
	vals, err := cd.ToRawVals(3)
	require.NoError(t, err)
	require.True(t, vals[0].IsNull())
	require.Equal(t, int64(7), vals[1].Int64())
	require.True(t, vals[2].IsNull())
}

func TestColumnData_ToRawVals_Empty(t *testing.T) {
	t.Parallel()

	cd := ColumnData{Kind: KindEmpty}
	vals, err := cd.ToRawVals(2)
	require.NoError(t, err)
	require.True(t, vals[0].IsNull())
	require.True(t, vals[1].IsNull())
}
