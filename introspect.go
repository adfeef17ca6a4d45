package coredb

import (
	"context"
	"sort"

	"github.com/malbeclabs/coredb/internal/column"
	"github.com/malbeclabs/coredb/pkg/coreerr"
)

// DropPendingTasks clears every worker task queued but not yet dispatched,
// without touching work already running. Grounded on the original
// InnerLocustDB::drop_pending_tasks; useful for tests and for an operator
// shedding a backlog ahead of a deadline.
func (db *DB) DropPendingTasks() { db.sched.DropPendingTasks() }

// EvictCache evicts every loaded subpartition across every table,
// regardless of MemSizeLimitTables, and reports the bytes freed. This is
// evict_cache from the original InnerLocustDB, distinct from Evict/
// enforceMemLimit which only evicts down to the configured budget.
func (db *DB) EvictCache() int64 {
	before := int64(0)
	for _, b := range db.residentBytes() {
		before += b
	}
	for db.evictOne() {
	}
	after := int64(0)
	for _, b := range db.residentBytes() {
		after += b
	}
	return before - after
}

// TableStats is one table's row/partition/memory summary, independent of
// the query engine. Grounded on the original InnerLocustDB::stats/
// Table::stats.
type TableStats struct {
	Name           string
	Rows           int
	Partitions     int
	OpenBufferRows int
	HeapBytes      int64
}

// Stats reports TableStats for every known table, sorted by name.
func (db *DB) Stats() []TableStats {
	db.tablesMu.RLock()
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	db.tablesMu.RUnlock()
	sort.Strings(names)

	resident := db.residentBytes()
	out := make([]TableStats, 0, len(names))
	for _, name := range names {
		t, ok := db.getTable(name)
		if !ok {
			continue
		}
		out = append(out, TableStats{
			Name:           name,
			Rows:           t.TotalRows(),
			Partitions:     len(t.Partitions()),
			OpenBufferRows: t.Buffer().Length(),
			HeapBytes:      resident[name],
		})
	}
	return out
}

// MemTreeColumn is one column's residency within a partition, at mem-tree
// depth 2 and beyond.
type MemTreeColumn struct {
	Name   string
	Loaded bool
}

// MemTreePartition is one partition's row count and heap bytes, with its
// per-column detail populated only once depth >= 2.
type MemTreePartition struct {
	ID        uint64
	Rows      int
	HeapBytes int64
	Columns   []MemTreeColumn
}

// MemTreeTable is one table's totals, with per-partition detail populated
// only once depth >= 1.
type MemTreeTable struct {
	Name           string
	Rows           int
	OpenBufferRows int
	Partitions     []MemTreePartition
}

// MemTree reports a depth-limited memory tree for every table, or just
// tableFilter if it's non-empty: depth 0 gives table-level totals only,
// depth 1 adds per-partition totals, depth 2+ adds per-column load state.
// Grounded on the original InnerLocustDB::mem_tree/Table::mem_tree, used
// there to let an operator see where a table's resident bytes are held
// without evicting anything.
func (db *DB) MemTree(depth int, tableFilter string) []MemTreeTable {
	db.tablesMu.RLock()
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		if tableFilter == "" || name == tableFilter {
			names = append(names, name)
		}
	}
	db.tablesMu.RUnlock()
	sort.Strings(names)

	out := make([]MemTreeTable, 0, len(names))
	for _, name := range names {
		t, ok := db.getTable(name)
		if !ok {
			continue
		}
		mt := MemTreeTable{Name: name, Rows: t.TotalRows(), OpenBufferRows: t.Buffer().Length()}
		if depth >= 1 {
			for _, p := range t.Partitions() {
				mp := MemTreePartition{ID: p.ID, Rows: p.Len}
				for _, sp := range p.Subpartitions {
					if sp.Loaded() {
						mp.HeapBytes += int64(sp.HeapBytes())
					}
					if depth >= 2 {
						for _, n := range sp.Names {
							mp.Columns = append(mp.Columns, MemTreeColumn{Name: n, Loaded: sp.Loaded()})
						}
					}
				}
				mt.Partitions = append(mt.Partitions, mp)
			}
		}
		out = append(out, mt)
	}
	return out
}

// SearchColumnNames returns every column name in tableName containing
// substr. Grounded on the original InnerLocustDB::search_column_names.
func (db *DB) SearchColumnNames(tableName, substr string) []string {
	t, ok := db.getTable(tableName)
	if !ok {
		return nil
	}
	return t.SearchColumnNames(substr)
}

// Restore installs col directly into tableName's partitionID subpartition,
// bypassing the normal flush/compaction/disk-read path. Grounded on the
// original InnerLocustDB::restore, which injects a column reconstructed
// out-of-band (e.g. by an external repair tool) back into a live table.
func (db *DB) Restore(_ context.Context, tableName string, partitionID uint64, col *column.Column) error {
	t, ok := db.getTable(tableName)
	if !ok {
		return coreerr.NewFatal("coredb: unknown table " + tableName)
	}
	if !t.Restore(partitionID, col) {
		return coreerr.NewFatal("coredb: restore: no matching subpartition slot")
	}
	return nil
}
