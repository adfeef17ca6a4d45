package table

import (
	"testing"

	"github.com/malbeclabs/coredb/internal/column"
	"github.com/stretchr/testify/require"
)

func intColumn(name string, vals ...int64) *column.Column {
	return &column.Column{Name: name, Length: len(vals), Enc: column.EncInt, Ints: vals}
}

func TestPackSubpartitions_SingleGroupUsesAllKey(t *testing.T) {
	t.Parallel()

	cols := []*column.Column{intColumn("b", 1, 2), intColumn("a", 3, 4)}
	subs := PackSubpartitions(cols, 1<<20)
	require.Len(t, subs, 1)
	require.Equal(t, "all", subs[0].Key)
	require.Equal(t, "a", subs[0].Columns[0].Name)
	require.Equal(t, "b", subs[0].Columns[1].Name)
}

func TestPackSubpartitions_SplitsOnSizeCap(t *testing.T) {
	t.Parallel()

	// Each column is 2*8=16 bytes; cap at 20 forces one column per group.
	cols := []*column.Column{intColumn("a", 1, 2), intColumn("b", 3, 4)}
	subs := PackSubpartitions(cols, 20)
	require.Len(t, subs, 2)
	require.Equal(t, "xa", subs[0].Key)
	require.Equal(t, "xb", subs[1].Key)
}

func TestSubpartitionKey_SimpleNameVsHashed(t *testing.T) {
	t.Parallel()

	require.Equal(t, "xcolumn_1", subpartitionKey([]string{"column_1"}))
	require.Len(t, subpartitionKey([]string{"a", "b"}), 64)
	// A single column whose name doesn't match the simple pattern also
	// falls back to the hash.
	require.Len(t, subpartitionKey([]string{"Invalid-Name"}), 64)
}
