package table

import (
	"testing"

	"github.com/malbeclabs/coredb/internal/rawval"
	"github.com/stretchr/testify/require"
)

func TestTable_FreezeBuffer_EmptyBufferYieldsNoPartition(t *testing.T) {
	t.Parallel()

	tbl := New("events", 1000, 0)
	part, err := tbl.FreezeBuffer()
	require.NoError(t, err)
	require.Nil(t, part)
}

func TestTable_FreezeBuffer_BuildsPartitionWithOffset(t *testing.T) {
	t.Parallel()

	tbl := New("events", 1000, 0)
	require.NoError(t, tbl.Buffer().ApplyBatch(2, map[string][]rawval.Val{
		"a": {rawval.Int(1), rawval.Int(2)},
	}))
	p1, err := tbl.FreezeBuffer()
	require.NoError(t, err)
	require.Equal(t, uint64(0), p1.ID)
	require.Equal(t, 0, p1.Offset)
	require.Equal(t, 2, p1.Len)

	require.NoError(t, tbl.Buffer().ApplyBatch(3, map[string][]rawval.Val{
		"a": {rawval.Int(3), rawval.Int(4), rawval.Int(5)},
	}))
	p2, err := tbl.FreezeBuffer()
	require.NoError(t, err)
	require.Equal(t, uint64(1), p2.ID)
	require.Equal(t, 2, p2.Offset)
	require.Equal(t, 3, p2.Len)

	require.Equal(t, 5, tbl.TotalRows())
}

func TestTable_PlanCompaction_FindsRunOfCombineFactor(t *testing.T) {
	t.Parallel()

	tbl := New("events", 1000, 0)
	for i := 0; i < 4; i++ {
		require.NoError(t, tbl.Buffer().ApplyBatch(1, map[string][]rawval.Val{"a": {rawval.Int(int64(i))}}))
		_, err := tbl.FreezeBuffer()
		require.NoError(t, err)
	}

	start, run, ok := tbl.PlanCompaction(4)
	require.True(t, ok)
	require.Equal(t, 0, start)
	require.Len(t, run, 4)

	// combineFactor 8 has no match yet: only 4 generation-0 partitions exist.
	_, _, ok = tbl.PlanCompaction(8)
	require.False(t, ok)
}

func TestTable_ApplyCompaction_ReplacesRunAndAdvancesCounter(t *testing.T) {
	t.Parallel()

	tbl := New("events", 1000, 0)
	for i := 0; i < 2; i++ {
		require.NoError(t, tbl.Buffer().ApplyBatch(1, map[string][]rawval.Val{"a": {rawval.Int(int64(i))}}))
		_, err := tbl.FreezeBuffer()
		require.NoError(t, err)
	}

	start, run, ok := tbl.PlanCompaction(2)
	require.True(t, ok)

	merged := &Partition{ID: 100, Offset: 0, Len: 2, Generation: 1}
	old, err := tbl.ApplyCompaction(start, run, merged)
	require.NoError(t, err)
	require.Len(t, old, 2)

	parts := tbl.Partitions()
	require.Len(t, parts, 1)
	require.Equal(t, uint64(100), parts[0].ID)

	// nextPartitionID must have advanced past the merged partition's id.
	require.NoError(t, tbl.Buffer().ApplyBatch(1, map[string][]rawval.Val{"a": {rawval.Int(9)}}))
	next, err := tbl.FreezeBuffer()
	require.NoError(t, err)
	require.Equal(t, uint64(101), next.ID)
}
