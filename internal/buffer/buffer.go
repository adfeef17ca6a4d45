// Package buffer implements Buffer, a table's open write set: a mapping of
// column name to MixedCol plus a row count, kept aligned by auto-extending
// short columns with nulls on every mutation.
package buffer

import (
	"sort"
	"sync"

	"github.com/malbeclabs/coredb/internal/column"
	"github.com/malbeclabs/coredb/internal/rawval"
	"github.com/malbeclabs/coredb/pkg/coreerr"
)

// Buffer is the per-table open write set. The zero value is not usable; use
// New. Safe for concurrent use — Table serializes ingest/freeze through it
// via the embedded mutex.
type Buffer struct {
	mu      sync.Mutex
	columns map[string]*column.MixedCol
	order   []string // insertion order, for deterministic iteration before the sorted Freeze
	length  int
}

func New() *Buffer {
	return &Buffer{columns: make(map[string]*column.MixedCol)}
}

// Length reports the buffer's current row count.
func (b *Buffer) Length() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// HeapBytes sums the resident size of every accumulated column, used by the
// scheduler's mem-limit enforcement loop.
func (b *Buffer) HeapBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, c := range b.columns {
		total += c.HeapBytes()
	}
	return total
}

func (b *Buffer) ensureColumnLocked(name string) *column.MixedCol {
	c, ok := b.columns[name]
	if !ok {
		c = column.NewMixedCol(name)
		c.PushNulls(b.length) // align with columns already present
		b.columns[name] = c
		b.order = append(b.order, name)
	}
	return c
}

// ApplyBatch row-wise-applies one TableBuffer's worth of rows: rows is the
// row count of this batch (every column slice in cols must have exactly
// this length, with nulls already in place at the caller's promotion of
// Dense-shorter-than-rows and Sparse gaps per spec §4.1), and cols need not
// mention every column currently open — columns absent from this batch are
// null-padded. After applying, every open column's length equals the
// buffer's new row count, per the Buffer invariant.
func (b *Buffer) ApplyBatch(rows int, cols map[string][]rawval.Val) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, vals := range cols {
		if len(vals) != rows {
			return coreerr.NewFatal("buffer: column " + name + " batch length mismatch")
		}
		c := b.ensureColumnLocked(name)
		for _, v := range vals {
			c.Push(v)
		}
	}
	// Columns open before this batch but not touched by it: pad with nulls
	// so every column stays aligned to the new buffer length.
	for _, name := range b.order {
		if _, touched := cols[name]; !touched {
			b.columns[name].PushNulls(rows)
		}
	}
	b.length += rows
	return nil
}

// Frozen is the immutable result of Freeze: the materialized columns of a
// closed-out Buffer, ready to become a Partition.
type Frozen struct {
	Length  int
	Columns []*column.Column // sorted by name, per the subpartition packing policy
}

// Freeze atomically swaps out the open write set, finalizing every
// accumulated MixedCol into a Column, and resets the Buffer to empty. It is
// the caller's responsibility (Table) to serialize Freeze against
// concurrent ApplyBatch calls at a higher level when more than one flush
// could race; Buffer itself only guards its own fields.
func (b *Buffer) Freeze() (*Frozen, error) {
	b.mu.Lock()
	columns, order, length := b.columns, b.order, b.length
	b.columns = make(map[string]*column.MixedCol)
	b.order = nil
	b.length = 0
	b.mu.Unlock()

	if length == 0 && len(columns) == 0 {
		return &Frozen{Length: 0}, nil
	}

	names := append([]string(nil), order...)
	sort.Strings(names)

	out := make([]*column.Column, 0, len(names))
	for _, name := range names {
		col, err := columns[name].Finalize(name)
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return &Frozen{Length: length, Columns: out}, nil
}
