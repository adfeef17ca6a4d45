// Package query implements the vector operator runtime: a per-task
// Scratchpad arena of typed buffers, the Operator contract every DAG node
// satisfies, and HashMapGrouping, the representative grouping operator from
// spec §4.3.
package query

// Scratchpad is a per-task arena mapping integer buffer indices to owned,
// typed vectors. Operators exchange data exclusively through it — there is
// no other shared mutable state between DAG nodes, so operators can be
// scheduled in any order consistent with the DAG's edges.
type Scratchpad struct {
	slots []any
}

// NewScratchpad starts an empty arena; buffer indices are handed out by
// NewBufferRef as the plan allocates them.
func NewScratchpad() *Scratchpad {
	return &Scratchpad{}
}

// BufferRef is a typed handle into a Scratchpad slot, produced at plan
// time. A BufferRef<Scalar<T>> per spec §4.3 is represented the same way,
// by convention holding a length-1 []T.
type BufferRef[T any] struct {
	idx  int
	name string
}

// NewBufferRef allocates a fresh slot and returns a handle to it. name is
// carried only for diagnostics (operator error messages, plan dumps).
func NewBufferRef[T any](sp *Scratchpad, name string) BufferRef[T] {
	idx := len(sp.slots)
	sp.slots = append(sp.slots, nil)
	return BufferRef[T]{idx: idx, name: name}
}

func (r BufferRef[T]) Name() string { return r.name }

// Idx exposes the underlying slot index for planner wiring (Operator's
// Inputs()/Outputs()), which must return untyped indices to sit in one
// slice across heterogeneously-typed operators.
func (r BufferRef[T]) Idx() int { return r.idx }

// Get reads the current contents of ref's slot, or nil if nothing has been
// written yet.
func Get[T any](sp *Scratchpad, ref BufferRef[T]) []T {
	v := sp.slots[ref.idx]
	if v == nil {
		return nil
	}
	return v.([]T)
}

// Set overwrites ref's slot.
func Set[T any](sp *Scratchpad, ref BufferRef[T], data []T) {
	sp.slots[ref.idx] = data
}

// Clear empties every slot not in keep, used between streaming batches —
// scratchpad buffers are cleared except those marked can_block_output
// (HashMapGrouping's `unique`, any other accumulating operator output),
// per spec §4.3.
func (sp *Scratchpad) Clear(keep map[int]bool) {
	for i := range sp.slots {
		if !keep[i] {
			sp.slots[i] = nil
		}
	}
}
