// Package querytask runs a per-partition query plan into a BatchResult and
// combines per-partition results pairwise into one, per spec §4.3.2/§4.4.
package querytask

import (
	"github.com/malbeclabs/coredb/internal/merge"
	"github.com/malbeclabs/coredb/internal/rawval"
	"github.com/malbeclabs/coredb/pkg/coreerr"
)

// BatchResult is one partition's (or one combine step's) query output, per
// spec §4.3.2: either the aggregation case (GroupBy non-nil, aligned
// AggSelect/Aggregators) or the non-aggregation case (Select list, with an
// optional sort marker).
type BatchResult struct {
	// Aggregation case.
	GroupBy     [][]rawval.Val
	AggSelect   [][]int64
	Aggregators []merge.Aggregator

	// Non-aggregation case (sort or plain select).
	Select      [][]rawval.Val
	SortByIndex int // index into Select the rows are sorted by; -1 if unsorted
	Desc        bool

	// Observability only, per spec §4.4: does not affect correctness.
	Level      int
	BatchCount int
}

func (br *BatchResult) isAggregation() bool { return br.GroupBy != nil }
func (br *BatchResult) isSort() bool        { return br.SortByIndex >= 0 }

// Len validates this result's internal shape invariants (spec §4.3.2) and
// returns its row count.
func (br *BatchResult) Len() (int, error) {
	if br.isAggregation() {
		if len(br.GroupBy) == 0 {
			return 0, coreerr.NewFatal("batchresult: aggregation case with no group-by columns")
		}
		n := len(br.GroupBy[0])
		for _, col := range br.GroupBy {
			if len(col) != n {
				return 0, coreerr.NewFatal("batchresult: group-by columns have unequal length")
			}
		}
		for _, col := range br.AggSelect {
			if len(col) != n {
				return 0, coreerr.NewFatal("batchresult: select columns misaligned with group count")
			}
		}
		if len(br.AggSelect) != len(br.Aggregators) {
			return 0, coreerr.NewFatal("batchresult: select columns and aggregators count mismatch")
		}
		return n, nil
	}
	if len(br.Select) == 0 {
		return 0, nil
	}
	n := len(br.Select[0])
	for _, col := range br.Select {
		if len(col) != n {
			return 0, coreerr.NewFatal("batchresult: select columns have unequal length")
		}
	}
	return n, nil
}

// Combine merges two per-partition (or already-combined) results into one,
// per spec §4.4. limit <= 0 means unbounded.
func Combine(left, right *BatchResult, limit int) (*BatchResult, error) {
	if _, err := left.Len(); err != nil {
		return nil, err
	}
	if _, err := right.Len(); err != nil {
		return nil, err
	}

	if left.isAggregation() != right.isAggregation() {
		return nil, coreerr.NewFatal("combine: mismatched shapes, one side has group_by and the other does not")
	}

	var out *BatchResult
	var err error
	switch {
	case left.isAggregation():
		out, err = combineAggregation(left, right)
	case left.isSort() && right.isSort():
		if left.SortByIndex != right.SortByIndex {
			return nil, coreerr.NewFatal("combine: mismatched shapes, sort index differs")
		}
		out, err = combineSort(left, right, limit)
	case !left.isSort() && !right.isSort():
		out, err = combineSelect(left, right, limit)
	default:
		return nil, coreerr.NewFatal("combine: mismatched shapes, one side is sorted and the other is not")
	}
	if err != nil {
		return nil, err
	}

	out.Level = maxInt(left.Level, right.Level) + 1
	out.BatchCount = left.BatchCount + right.BatchCount
	return out, nil
}

func combineAggregation(left, right *BatchResult) (*BatchResult, error) {
	k := len(left.GroupBy)
	if k != len(right.GroupBy) {
		return nil, coreerr.NewFatal("combine: mismatched group-by column count")
	}
	if len(left.AggSelect) != len(right.AggSelect) {
		return nil, coreerr.NewFatal("combine: mismatched select column count")
	}

	groupBy := make([][]rawval.Val, k)
	var ops []merge.Op

	if k == 1 {
		out, mergeOps := merge.Deduplicate(left.GroupBy[0], right.GroupBy[0])
		groupBy[0] = out
		ops = mergeOps
	} else {
		groups := merge.Partition(left.GroupBy[0], right.GroupBy[0])
		for i := 1; i < k-1; i++ {
			groups = merge.Subpartition(groups, left.GroupBy[i], right.GroupBy[i])
		}
		last := k - 1
		out, mergeOps, _ := merge.DeduplicatePartitioned(groups, left.GroupBy[last], right.GroupBy[last])
		groupBy[last] = out
		ops = mergeOps
		for i := 0; i < last; i++ {
			groupBy[i] = merge.Drop(ops, left.GroupBy[i], right.GroupBy[i])
		}
	}

	aggSelect := make([][]int64, len(left.AggSelect))
	for i := range left.AggSelect {
		aggSelect[i] = merge.Aggregate(ops, left.AggSelect[i], right.AggSelect[i], left.Aggregators[i])
	}

	return &BatchResult{
		GroupBy:     groupBy,
		AggSelect:   aggSelect,
		Aggregators: left.Aggregators,
		SortByIndex: -1,
	}, nil
}

func combineSort(left, right *BatchResult, limit int) (*BatchResult, error) {
	if len(left.Select) != len(right.Select) {
		return nil, coreerr.NewFatal("combine: mismatched select column count")
	}
	lim := limit
	if lim <= 0 {
		lim = len(left.Select[left.SortByIndex]) + len(right.Select[right.SortByIndex])
	}
	ops := merge.Sort(left.Select[left.SortByIndex], right.Select[right.SortByIndex], left.Desc, lim)

	sel := make([][]rawval.Val, len(left.Select))
	for i := range left.Select {
		sel[i] = merge.Apply(ops, left.Select[i], right.Select[i])
	}
	return &BatchResult{Select: sel, SortByIndex: left.SortByIndex, Desc: left.Desc}, nil
}

func combineSelect(left, right *BatchResult, limit int) (*BatchResult, error) {
	if len(left.Select) != len(right.Select) {
		return nil, coreerr.NewFatal("combine: mismatched select column count")
	}
	sel := make([][]rawval.Val, len(left.Select))
	for i := range left.Select {
		col := append(append([]rawval.Val(nil), left.Select[i]...), right.Select[i]...)
		if limit > 0 && len(col) > limit {
			col = col[:limit]
		}
		sel[i] = col
	}
	return &BatchResult{Select: sel, SortByIndex: -1}, nil
}

// CombineAll folds a slice of per-partition results left-to-right. The
// combiner is associative (required by spec §5) so any grouping of the
// fold yields the same result; left-to-right keeps the implementation
// simple and preserves the left-first tiebreak for sort queries.
func CombineAll(results []*BatchResult, limit int) (*BatchResult, error) {
	if len(results) == 0 {
		return nil, coreerr.NewFatal("combine: no results to fold")
	}
	acc := results[0]
	for _, r := range results[1:] {
		var err error
		acc, err = Combine(acc, r, limit)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
