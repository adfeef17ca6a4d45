package query

// Operator is the contract every vector operator DAG node satisfies, per
// spec §4.3.
type Operator interface {
	// Execute mutates the scratchpad, reading its declared Inputs and
	// writing its declared Outputs. stream is true when this call
	// processes one fixed-size batch rather than the whole partition.
	Execute(stream bool, sp *Scratchpad) error
	// Init pre-allocates outputs given the total row count and the
	// streaming batch_size, before the first Execute call.
	Init(totalRows, batchSize int, sp *Scratchpad) error
	// CanStreamInput/CanStreamOutput report whether the i-th declared
	// input/output is processed/produced in fixed-size chunks rather than
	// requiring the whole partition at once.
	CanStreamInput(i int) bool
	CanStreamOutput(i int) bool
	// Allocates reports whether this operator produces new storage
	// (true) versus operating in place on an existing buffer.
	Allocates() bool
	// Inputs/Outputs return the scratchpad slot indices this operator
	// reads/writes, for the planner to wire up topological order and
	// decide which slots survive a Scratchpad.Clear between batches.
	Inputs() []int
	Outputs() []int
}
