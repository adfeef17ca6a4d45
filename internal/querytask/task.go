package querytask

import (
	"sort"
	"strings"

	"github.com/malbeclabs/coredb/internal/column"
	"github.com/malbeclabs/coredb/internal/merge"
	"github.com/malbeclabs/coredb/internal/query"
	"github.com/malbeclabs/coredb/internal/rawval"
	"github.com/malbeclabs/coredb/internal/table"
	"github.com/malbeclabs/coredb/pkg/coreerr"
)

// AggSpec names one aggregated select column and the aggregator folding it.
type AggSpec struct {
	Column string
	Agg    merge.Aggregator
}

// OrderBy names the select-list column index results are sorted by.
type OrderBy struct {
	ColumnIndex int
	Desc        bool
}

// Plan is a single table's query: optional GroupBy (aggregation case) with
// parallel Aggregations, or a plain Select list with an optional OrderBy
// and/or Limit (sort/select cases), per spec §4.3.
type Plan struct {
	GroupBy      []string
	Aggregations []AggSpec

	Select  []string
	OrderBy *OrderBy
	Limit   int

	// BatchSize chunks the grouped path's execution over query.Scratchpad,
	// per spec §4.3's fixed-size batch execution model. <=0 defaults to the
	// whole partition in a single batch.
	BatchSize int
}

// Run executes the plan against one partition, producing its BatchResult.
// This is the per-partition half of spec §4.3/§4.3.2. The grouped path
// runs the partition's composite group-by key through the real
// query.HashMapGrouping operator over a query.Scratchpad, in BatchSize-sized
// chunks, exactly as spec §4.3.1 describes; aggregator state is folded
// directly against each batch's assigned grouping keys rather than
// re-derived through Combine (Combine is reserved for merging two
// already-produced BatchResults). The flat select/sort path has no
// corresponding operator in internal/query — there is no grouping or
// hashing work to stream — so it materializes and sorts directly.
func (p *Plan) Run(part *table.Partition) (*BatchResult, error) {
	if len(p.GroupBy) > 0 {
		return p.runGrouped(part)
	}
	return p.runFlat(part)
}

type groupState struct {
	values []rawval.Val
	agg    []int64
}

func (p *Plan) runGrouped(part *table.Partition) (*BatchResult, error) {
	groupCols := make([][]rawval.Val, len(p.GroupBy))
	for i, name := range p.GroupBy {
		col := part.Column(name)
		if col == nil {
			return nil, coreerr.NewFatal("query: unknown group-by column " + name)
		}
		groupCols[i] = columnValues(col)
	}

	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = part.Len
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	sp := query.NewScratchpad()
	keyIn := query.NewBufferRef[string](sp, "group_key_in")
	unique := query.NewBufferRef[string](sp, "group_unique")
	groupingKey := query.NewBufferRef[uint32](sp, "group_id")
	cardinality := query.NewBufferRef[int64](sp, "group_cardinality")
	op := query.NewHashMapGrouping(keyIn, unique, groupingKey, cardinality)
	if err := op.Init(part.Len, batchSize, sp); err != nil {
		return nil, err
	}

	// keep holds every output slot the operator itself declares as blocking
	// (can_block_output, per spec §4.3): it survives Scratchpad.Clear
	// between batches, everything else — the streamed grouping_key and the
	// batch's own input keys — does not.
	keep := map[int]bool{}
	for i, slot := range op.Outputs() {
		if !op.CanStreamOutput(i) {
			keep[slot] = true
		}
	}

	var groups []groupState
	var keyBuf strings.Builder

	for start := 0; start < part.Len; start += batchSize {
		end := start + batchSize
		if end > part.Len {
			end = part.Len
		}

		keys := make([]string, end-start)
		for row := start; row < end; row++ {
			keyBuf.Reset()
			for _, col := range groupCols {
				keyBuf.WriteString(col[row].String())
				keyBuf.WriteByte(0)
				keyBuf.WriteByte(byte(col[row].Tag()))
			}
			keys[row-start] = keyBuf.String()
		}
		query.Set(sp, keyIn, keys)

		stream := end < part.Len
		if err := op.Execute(stream, sp); err != nil {
			return nil, err
		}

		ids := query.Get(sp, groupingKey)
		for i, row := 0, start; row < end; i, row = i+1, row+1 {
			gi := int(ids[i])
			if gi == len(groups) {
				vals := make([]rawval.Val, len(groupCols))
				for c := range groupCols {
					vals[c] = groupCols[c][row]
				}
				agg := make([]int64, len(p.Aggregations))
				for ai, spec := range p.Aggregations {
					agg[ai] = aggRowValue(spec, part, row)
				}
				groups = append(groups, groupState{values: vals, agg: agg})
				continue
			}
			for ai, spec := range p.Aggregations {
				v := aggRowValue(spec, part, row)
				groups[gi].agg[ai] = spec.Agg.CombineI64(groups[gi].agg[ai], v)
			}
		}

		sp.Clear(keep)
	}

	sort.Slice(groups, func(a, b int) bool { return lessTuple(groups[a].values, groups[b].values) })

	outGroupBy := make([][]rawval.Val, len(groupCols))
	for c := range groupCols {
		outGroupBy[c] = make([]rawval.Val, len(groups))
	}
	outAgg := make([][]int64, len(p.Aggregations))
	for ai := range p.Aggregations {
		outAgg[ai] = make([]int64, len(groups))
	}
	for gi, g := range groups {
		for c := range groupCols {
			outGroupBy[c][gi] = g.values[c]
		}
		for ai := range p.Aggregations {
			outAgg[ai][gi] = g.agg[ai]
		}
	}

	aggregators := make([]merge.Aggregator, len(p.Aggregations))
	for i, spec := range p.Aggregations {
		aggregators[i] = spec.Agg
	}

	return &BatchResult{
		GroupBy:     outGroupBy,
		AggSelect:   outAgg,
		Aggregators: aggregators,
		SortByIndex: -1,
	}, nil
}

func (p *Plan) runFlat(part *table.Partition) (*BatchResult, error) {
	sel := make([][]rawval.Val, len(p.Select))
	for i, name := range p.Select {
		col := part.Column(name)
		if col == nil {
			return nil, coreerr.NewFatal("query: unknown select column " + name)
		}
		sel[i] = columnValues(col)
	}

	sortIdx := -1
	desc := false
	if p.OrderBy != nil {
		sortIdx = p.OrderBy.ColumnIndex
		desc = p.OrderBy.Desc
		sortRowsBy(sel, sortIdx, desc)
	}
	if p.Limit > 0 {
		for i := range sel {
			if len(sel[i]) > p.Limit {
				sel[i] = sel[i][:p.Limit]
			}
		}
	}

	return &BatchResult{Select: sel, SortByIndex: sortIdx, Desc: desc}, nil
}

func columnValues(col *column.Column) []rawval.Val {
	out := make([]rawval.Val, col.Length)
	for i := range out {
		out[i] = col.At(i)
	}
	return out
}

func aggRowValue(spec AggSpec, part *table.Partition, row int) int64 {
	if _, ok := spec.Agg.(merge.CountAggregator); ok {
		return 1
	}
	col := part.Column(spec.Column)
	if col == nil {
		return 0
	}
	v := col.At(row)
	if v.IsNull() {
		return 0
	}
	if v.Tag() == rawval.TagFloat {
		return int64(v.Float64())
	}
	return v.Int64()
}

// lessTuple compares two group-by value tuples lexicographically using
// RawVal's total order, matching the sorted-groups precondition Combine
// relies on (spec §4.4: "both inputs are sorted by their group-by
// columns").
func lessTuple(a, b []rawval.Val) bool {
	for i := range a {
		c := rawval.Compare(a[i], b[i])
		if c != 0 {
			return c < 0
		}
	}
	return false
}

// sortRowsBy permutes every select column consistently by the sort key
// column at sortIdx.
func sortRowsBy(sel [][]rawval.Val, sortIdx int, desc bool) {
	n := len(sel[sortIdx])
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	key := sel[sortIdx]
	sort.SliceStable(idx, func(i, j int) bool {
		if desc {
			return rawval.Less(key[idx[j]], key[idx[i]])
		}
		return rawval.Less(key[idx[i]], key[idx[j]])
	})
	for c := range sel {
		col := sel[c]
		out := make([]rawval.Val, n)
		for i, srcIdx := range idx {
			out[i] = col[srcIdx]
		}
		sel[c] = out
	}
}
