package query

// HashMapGrouping is the representative grouping operator from spec
// §4.3.1: it assigns a dense integer id to every distinct value it has
// seen across the whole partition, streaming grouping_key per input row
// while unique and cardinality accumulate across batches.
type HashMapGrouping[T comparable] struct {
	Input       BufferRef[T]
	Unique      BufferRef[T]      // blocking: accumulates across batches
	GroupingKey BufferRef[uint32] // streaming: one per input row
	Cardinality BufferRef[int64]  // blocking: unique.len() after each batch

	index map[T]uint32
}

func NewHashMapGrouping[T comparable](input, unique BufferRef[T], groupingKey BufferRef[uint32], cardinality BufferRef[int64]) *HashMapGrouping[T] {
	return &HashMapGrouping[T]{
		Input:       input,
		Unique:      unique,
		GroupingKey: groupingKey,
		Cardinality: cardinality,
		index:       make(map[T]uint32),
	}
}

func (op *HashMapGrouping[T]) Init(totalRows, batchSize int, sp *Scratchpad) error {
	if Get(sp, op.Unique) == nil {
		Set(sp, op.Unique, []T{})
	}
	if Get(sp, op.Cardinality) == nil {
		Set(sp, op.Cardinality, []int64{0})
	}
	return nil
}

func (op *HashMapGrouping[T]) Execute(stream bool, sp *Scratchpad) error {
	input := Get(sp, op.Input)
	unique := Get(sp, op.Unique)

	keys := make([]uint32, len(input))
	for i, v := range input {
		id, ok := op.index[v]
		if !ok {
			id = uint32(len(unique))
			op.index[v] = id
			unique = append(unique, v)
		}
		keys[i] = id
	}

	Set(sp, op.Unique, unique)
	Set(sp, op.GroupingKey, keys)
	Set(sp, op.Cardinality, []int64{int64(len(unique))})
	return nil
}

func (op *HashMapGrouping[T]) CanStreamInput(i int) bool { return i == 0 }

func (op *HashMapGrouping[T]) CanStreamOutput(i int) bool {
	// unique (0) and cardinality (2) accumulate across the whole
	// partition; grouping_key (1) is emitted one value per input row.
	return i == 1
}

func (op *HashMapGrouping[T]) Allocates() bool { return true }

func (op *HashMapGrouping[T]) Inputs() []int { return []int{op.Input.Idx()} }

func (op *HashMapGrouping[T]) Outputs() []int {
	return []int{op.Unique.Idx(), op.GroupingKey.Idx(), op.Cardinality.Idx()}
}
