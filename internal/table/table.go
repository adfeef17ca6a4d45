// Package table implements Table, Partition, and Subpartition: the
// immutable, partitioned columnar snapshots a Buffer freezes into, and the
// bookkeeping (next-partition-id, compaction planning) that owns them.
package table

import (
	"strings"
	"sync"

	"github.com/malbeclabs/coredb/internal/buffer"
	"github.com/malbeclabs/coredb/internal/column"
	"github.com/malbeclabs/coredb/internal/lru"
	"github.com/malbeclabs/coredb/pkg/coreerr"
)

// Table is the named owner of an open Buffer, an ordered list of sealed
// Partitions, an LRU handle for on-demand-loaded columns, and the
// next-partition-id counter. Created on first ingest; never deleted by the
// core (spec §3).
type Table struct {
	Name string

	mu                 sync.RWMutex
	buf                *buffer.Buffer
	partitions         []*Partition
	nextPartitionID    uint64
	maxPartitionBytes  int
	lru                *lru.Cache
	createdUnixSeconds int64
}

// New creates an empty table. createdUnixSeconds is the value staged into
// the _meta_tables bookkeeping row on first ingest (spec §3, §4.1).
func New(name string, createdUnixSeconds int64, maxPartitionBytes int) *Table {
	if maxPartitionBytes <= 0 {
		maxPartitionBytes = defaultMaxPartitionSizeBytes
	}
	return &Table{
		Name:               name,
		buf:                buffer.New(),
		lru:                lru.New(),
		maxPartitionBytes:  maxPartitionBytes,
		createdUnixSeconds: createdUnixSeconds,
	}
}

func (t *Table) Buffer() *buffer.Buffer { return t.buf }
func (t *Table) LRU() *lru.Cache        { return t.lru }
func (t *Table) CreatedUnixSeconds() int64 { return t.createdUnixSeconds }

// Partitions returns a snapshot of the sealed partition list in order.
func (t *Table) Partitions() []*Partition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Partition, len(t.partitions))
	copy(out, t.partitions)
	return out
}

// Restore installs col directly into whichever of this table's partitions
// carries partitionID and already knows col.Name (i.e. a column the disk-read
// scheduler evicted or never loaded), bypassing LoadColumn. Reports whether
// a matching subpartition slot was found. Grounded on the original
// InnerLocustDB::restore/Table::restore, used there to inject a column
// reconstructed out-of-band (e.g. by an external repair tool) without going
// through the normal flush/compaction path.
func (t *Table) Restore(partitionID uint64, col *column.Column) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.partitions {
		if p.ID != partitionID {
			continue
		}
		sp := p.SubpartitionFor(col.Name)
		if sp == nil {
			return false
		}
		for i, c := range sp.Columns {
			if c != nil && c.Name == col.Name {
				sp.Columns[i] = col
				return true
			}
		}
		if !sp.Loaded() {
			sp.Columns = make([]*column.Column, len(sp.Names))
			for i, n := range sp.Names {
				if n == col.Name {
					sp.Columns[i] = col
				}
			}
			return true
		}
		return false
	}
	return false
}

// TotalRows is the sum of every sealed partition's length plus the open
// buffer's current length.
func (t *Table) TotalRows() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := t.buf.Length()
	for _, p := range t.partitions {
		total += p.Len
	}
	return total
}

// FreezeBuffer swaps out the table's open Buffer and, if it held any rows,
// materializes a new sealed Partition at the next partition id, offset by
// the table's current total row count. Returns nil, nil if the buffer was
// empty (nothing to freeze).
func (t *Table) FreezeBuffer() (*Partition, error) {
	frozen, err := t.buf.Freeze()
	if err != nil {
		return nil, err
	}
	if frozen.Length == 0 {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	offset := 0
	for _, p := range t.partitions {
		offset += p.Len
	}

	part := &Partition{
		ID:            t.nextPartitionID,
		Offset:        offset,
		Len:           frozen.Length,
		Generation:    0,
		Subpartitions: PackSubpartitions(frozen.Columns, t.maxPartitionBytes),
	}
	t.nextPartitionID++
	t.partitions = append(t.partitions, part)
	return part, nil
}

// AdoptPartition registers an already-built partition (e.g. loaded from the
// metastore on startup, or produced by ApplyCompaction) without going
// through FreezeBuffer. The caller is responsible for ordering.
func (t *Table) AdoptPartition(p *Partition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partitions = append(t.partitions, p)
	if p.ID >= t.nextPartitionID {
		t.nextPartitionID = p.ID + 1
	}
}

// SearchColumnNames returns every column name (across every sealed
// partition, deduplicated) containing substr, case-sensitive. Grounded on
// the original InnerLocustDB::search_column_names/Table::search_column_names.
func (t *Table) SearchColumnNames(substr string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, p := range t.partitions {
		for _, name := range p.ColumnNames() {
			if seen[name] {
				continue
			}
			if strings.Contains(name, substr) {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// PlanCompaction returns the first contiguous run of combineFactor
// same-generation partitions, per spec §4.2's plan_compaction: repeatedly
// folding combineFactor generation-g partitions into one generation-(g+1)
// partition is what makes a table's partition count settle at powers of
// combineFactor over time. Returns ok=false if no such run exists yet.
func (t *Table) PlanCompaction(combineFactor int) (start int, run []*Partition, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if combineFactor < 2 {
		return 0, nil, false
	}
	for i := 0; i+combineFactor <= len(t.partitions); i++ {
		gen := t.partitions[i].Generation
		match := true
		for j := 1; j < combineFactor; j++ {
			if t.partitions[i+j].Generation != gen {
				match = false
				break
			}
		}
		if match {
			run := make([]*Partition, combineFactor)
			copy(run, t.partitions[i:i+combineFactor])
			return i, run, true
		}
	}
	return 0, nil, false
}

// ApplyCompaction atomically replaces partitions[start:start+len(run)] with
// merged, a single partition produced by re-reading and resubpartitioning
// that run (spec §4.2 step 4). It returns the replaced partitions so the
// caller can delete their on-disk subpartition files after the metastore
// commit. ApplyCompaction fails if the table's partition list has changed
// shape under it (a concurrent compaction already touched this range).
func (t *Table) ApplyCompaction(start int, run []*Partition, merged *Partition) ([]*Partition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if start < 0 || start+len(run) > len(t.partitions) {
		return nil, coreerr.NewFatal("table: compaction range out of bounds")
	}
	for i, p := range run {
		if t.partitions[start+i].ID != p.ID {
			return nil, coreerr.NewFatal("table: compaction range changed concurrently")
		}
	}

	old := make([]*Partition, len(run))
	copy(old, run)

	next := make([]*Partition, 0, len(t.partitions)-len(run)+1)
	next = append(next, t.partitions[:start]...)
	next = append(next, merged)
	next = append(next, t.partitions[start+len(run):]...)
	t.partitions = next

	if merged.ID >= t.nextPartitionID {
		t.nextPartitionID = merged.ID + 1
	}
	return old, nil
}
