// Package merge implements the sorted-merge primitives batch combining
// builds on: deduplicating two sorted group-by sequences, partitioning by
// leading group-by columns, merge-sorting, and folding aggregator state
// across duplicate keys. Per spec §4.4, equality/ordering uses RawVal's
// total order; string equality is byte-wise (RawVal.Compare already does
// this).
package merge

import "github.com/malbeclabs/coredb/internal/rawval"

// Op is the alphabet merge_deduplicate and merge_sort emit: for each output
// position, whether the value came from the left input, the right input
// (a new key), or the right key equalled the previously emitted key
// (aggregate-merge, output not advanced).
type Op uint8

const (
	TakeLeft Op = iota
	TakeRight
	MergeRight
)

// Deduplicate merges two sorted, already-internally-distinct key sequences
// into their sorted union, emitting one Op per input value consumed: a key
// present on both sides yields TakeLeft followed by MergeRight, so
// len(ops) == len(left)+len(right).
func Deduplicate(left, right []rawval.Val) (out []rawval.Val, ops []Op) {
	i, j := 0, 0
	for i < len(left) || j < len(right) {
		switch {
		case j >= len(right) || (i < len(left) && rawval.Less(left[i], right[j])):
			out = append(out, left[i])
			ops = append(ops, TakeLeft)
			i++
		case i >= len(left) || rawval.Less(right[j], left[i]):
			out = append(out, right[j])
			ops = append(ops, TakeRight)
			j++
		default:
			out = append(out, left[i])
			ops = append(ops, TakeLeft, MergeRight)
			i++
			j++
		}
	}
	return out, ops
}

// Premerge is a consecutive run of equal values in both inputs' leading
// group-by column: Left/Right are the run lengths in each side, not
// indices. partition() produces one Premerge per distinct value across the
// union of both sides.
type Premerge struct {
	Left  uint32
	Right uint32
}

// Partition builds the Premerge run list over a single (sorted) group-by
// column from both sides, per spec §4.4 step 2's "partition".
func Partition(left, right []rawval.Val) []Premerge {
	return partitionRuns(left, right)
}

func partitionRuns(left, right []rawval.Val) []Premerge {
	var groups []Premerge
	i, j := 0, 0
	for i < len(left) || j < len(right) {
		var v rawval.Val
		switch {
		case j >= len(right) || (i < len(left) && rawval.Less(left[i], right[j])):
			v = left[i]
		case i >= len(left) || rawval.Less(right[j], left[i]):
			v = right[j]
		default:
			v = left[i]
		}
		li := i
		for i < len(left) && rawval.Equal(left[i], v) {
			i++
		}
		rj := j
		for j < len(right) && rawval.Equal(right[j], v) {
			j++
		}
		groups = append(groups, Premerge{Left: uint32(i - li), Right: uint32(j - rj)})
	}
	return groups
}

// Subpartition refines an existing Premerge grouping by a further
// (non-last) group-by column, never merging across an existing group's
// boundary — spec §4.4 step 2's "subpartition".
func Subpartition(groups []Premerge, left, right []rawval.Val) []Premerge {
	var out []Premerge
	lOff, rOff := 0, 0
	for _, g := range groups {
		lSlice := left[lOff : lOff+int(g.Left)]
		rSlice := right[rOff : rOff+int(g.Right)]
		out = append(out, partitionRuns(lSlice, rSlice)...)
		lOff += int(g.Left)
		rOff += int(g.Right)
	}
	return out
}

// DeduplicatePartitioned runs Deduplicate on the last group-by column
// within each Premerge group independently, concatenating the outputs and
// op streams and never crossing a group boundary. groupSizes[i] is the
// number of output rows Deduplicate produced for groups[i], which
// Drop's non-last-column replication relies on to stay aligned.
func DeduplicatePartitioned(groups []Premerge, left, right []rawval.Val) (out []rawval.Val, ops []Op, groupSizes []int) {
	lOff, rOff := 0, 0
	for _, g := range groups {
		lSlice := left[lOff : lOff+int(g.Left)]
		rSlice := right[rOff : rOff+int(g.Right)]
		localOut, localOps := Deduplicate(lSlice, rSlice)
		out = append(out, localOut...)
		ops = append(ops, localOps...)
		groupSizes = append(groupSizes, len(localOut))
		lOff += int(g.Left)
		rOff += int(g.Right)
	}
	return out, ops, groupSizes
}

// Drop applies an Op stream to a non-last group-by column: TakeLeft/
// TakeRight append the respective value, MergeRight drops the right value
// without advancing the output, per spec §4.4 step 2's "merge_drop".
func Drop(ops []Op, left, right []rawval.Val) []rawval.Val {
	out := make([]rawval.Val, 0, len(ops))
	li, ri := 0, 0
	for _, op := range ops {
		switch op {
		case TakeLeft:
			out = append(out, left[li])
			li++
		case TakeRight:
			out = append(out, right[ri])
			ri++
		case MergeRight:
			ri++
		}
	}
	return out
}

// Aggregator folds two i64 aggregate states into one, per select column.
// Sum/Count/Min/Max are the only states spec §4.4 requires; all four must
// be commutative and associative so combine order never affects the
// result.
type Aggregator interface {
	CombineI64(last, next int64) int64
}

type SumAggregator struct{}

func (SumAggregator) CombineI64(last, next int64) int64 { return last + next }

type CountAggregator struct{}

func (CountAggregator) CombineI64(last, next int64) int64 { return last + next }

type MinAggregator struct{}

func (MinAggregator) CombineI64(last, next int64) int64 {
	if next < last {
		return next
	}
	return last
}

type MaxAggregator struct{}

func (MaxAggregator) CombineI64(last, next int64) int64 {
	if next > last {
		return next
	}
	return last
}

// Aggregate applies an Op stream to a select column's i64 aggregate state,
// per spec §4.4 step 3: TakeLeft/TakeRight append, MergeRight folds into
// the last emitted value via agg.CombineI64.
func Aggregate(ops []Op, left, right []int64, agg Aggregator) []int64 {
	out := make([]int64, 0, len(ops))
	li, ri := 0, 0
	for _, op := range ops {
		switch op {
		case TakeLeft:
			out = append(out, left[li])
			li++
		case TakeRight:
			out = append(out, right[ri])
			ri++
		case MergeRight:
			out[len(out)-1] = agg.CombineI64(out[len(out)-1], right[ri])
			ri++
		}
	}
	return out
}

// Sort merge-sorts two already-sorted key sequences under a strict
// comparator (ascending: left wins ties; descending: left wins ties),
// truncating to at most limit output rows, per spec §4.4's sort case.
// Returns one bool per output row: true selects from left.
func Sort(left, right []rawval.Val, desc bool, limit int) []bool {
	var ops []bool
	i, j := 0, 0
	for len(ops) < limit && (i < len(left) || j < len(right)) {
		var takeLeft bool
		switch {
		case j >= len(right):
			takeLeft = true
		case i >= len(left):
			takeLeft = false
		case desc:
			takeLeft = !rawval.Less(left[i], right[j]) // left >= right
		default:
			takeLeft = !rawval.Less(right[j], left[i]) // left <= right
		}
		if takeLeft {
			ops = append(ops, true)
			i++
		} else {
			ops = append(ops, false)
			j++
		}
	}
	return ops
}

// Apply replays a Sort op stream over another select column aligned to the
// same two inputs.
func Apply(ops []bool, left, right []rawval.Val) []rawval.Val {
	out := make([]rawval.Val, 0, len(ops))
	li, ri := 0, 0
	for _, takeLeft := range ops {
		if takeLeft {
			out = append(out, left[li])
			li++
		} else {
			out = append(out, right[ri])
			ri++
		}
	}
	return out
}
