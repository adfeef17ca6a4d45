package querytask

import (
	"testing"

	"github.com/malbeclabs/coredb/internal/column"
	"github.com/malbeclabs/coredb/internal/merge"
	"github.com/malbeclabs/coredb/internal/rawval"
	"github.com/malbeclabs/coredb/internal/table"
	"github.com/stretchr/testify/require"
)

func strCol(name string, vals ...string) *column.Column {
	s := column.NewIndexedPackedStrings()
	for _, v := range vals {
		_ = s.Push(v)
	}
	return &column.Column{Name: name, Length: len(vals), Enc: column.EncString, Strings: s}
}

func intCol(name string, vals ...int64) *column.Column {
	return &column.Column{Name: name, Length: len(vals), Enc: column.EncInt, Ints: vals}
}

func testPartition(cols ...*column.Column) *table.Partition {
	length := 0
	if len(cols) > 0 {
		length = cols[0].Length
	}
	return &table.Partition{
		Len:           length,
		Subpartitions: []*table.Subpartition{{Key: "all", Columns: cols}},
	}
}

func TestPlan_Run_GroupedSumAndCount(t *testing.T) {
	t.Parallel()

	part := testPartition(
		strCol("region", "A", "B", "A"),
		intCol("amount", 10, 5, 7),
	)

	plan := &Plan{
		GroupBy: []string{"region"},
		Aggregations: []AggSpec{
			{Column: "amount", Agg: merge.SumAggregator{}},
			{Column: "amount", Agg: merge.CountAggregator{}},
		},
	}

	out, err := plan.Run(part)
	require.NoError(t, err)
	require.Equal(t, []rawval.Val{rawval.Str("A"), rawval.Str("B")}, out.GroupBy[0])
	require.Equal(t, []int64{17, 5}, out.AggSelect[0])
	require.Equal(t, []int64{2, 1}, out.AggSelect[1])
}

func TestPlan_Run_FlatSortDescending(t *testing.T) {
	t.Parallel()

	part := testPartition(intCol("v", 3, 1, 2))

	plan := &Plan{
		Select:  []string{"v"},
		OrderBy: &OrderBy{ColumnIndex: 0, Desc: true},
	}

	out, err := plan.Run(part)
	require.NoError(t, err)
	require.Equal(t, valCol(3, 2, 1), out.Select[0])
	require.Equal(t, 0, out.SortByIndex)
	require.True(t, out.Desc)
}

func TestPlan_Run_FlatSelectWithLimit(t *testing.T) {
	t.Parallel()

	part := testPartition(intCol("v", 1, 2, 3))
	plan := &Plan{Select: []string{"v"}, Limit: 2}

	out, err := plan.Run(part)
	require.NoError(t, err)
	require.Equal(t, valCol(1, 2), out.Select[0])
	require.Equal(t, -1, out.SortByIndex)
}
