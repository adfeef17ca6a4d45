package coredb

import (
	"context"

	"github.com/malbeclabs/coredb/internal/lru"
	"github.com/malbeclabs/coredb/internal/table"
	"github.com/malbeclabs/coredb/pkg/metrics"
)

// residentBytes sums every table's open-buffer size plus the heap size of
// every currently-loaded subpartition, the quantity enforce_mem_limit
// compares against mem_size_limit_tables, per spec §4.6.
func (db *DB) residentBytes() map[string]int64 {
	db.tablesMu.RLock()
	defer db.tablesMu.RUnlock()

	out := make(map[string]int64, len(db.tables))
	for name, t := range db.tables {
		total := int64(t.Buffer().HeapBytes())
		for _, p := range t.Partitions() {
			for _, sp := range p.Subpartitions {
				if sp.Loaded() {
					total += int64(sp.HeapBytes())
				}
			}
		}
		out[name] = total
		metrics.TableHeapBytes.WithLabelValues(name).Set(float64(total))
	}
	return out
}

// enforceMemLimit is the scheduler's enforce_mem_limit closure: while
// total resident bytes exceed mem_size_limit_tables, evict one loaded
// subpartition via evictOne, per spec §4.6. Buffers
// themselves are never evicted — only disk-backed, already-sealed
// subpartitions are eviction candidates.
func (db *DB) enforceMemLimit(ctx context.Context) error {
	for {
		total := int64(0)
		for _, b := range db.residentBytes() {
			total += b
		}
		if total <= db.cfg.MemSizeLimitTables {
			return nil
		}
		if !db.evictOne() {
			return nil // nothing left to evict; buffers alone exceed the budget
		}
	}
}

// evictOne visits tables in map order and evicts the subpartition holding
// the least-recently-used key of the first table whose LRU yields one that
// still maps to a live subpartition. Each table's LRU is ordered on its
// own; the choice is not the least recently used across all tables.
// Returns false if no table has anything resident to evict.
func (db *DB) evictOne() bool {
	db.tablesMu.RLock()
	tables := make(map[string]*tableEntry, len(db.tables))
	for name, t := range db.tables {
		tables[name] = &tableEntry{lru: t.LRU(), partitions: t.Partitions()}
	}
	db.tablesMu.RUnlock()

	for name, entry := range tables {
		key, ok := entry.lru.Evict()
		if !ok {
			continue
		}
		for _, p := range entry.partitions {
			if p.ID != key.PartitionID {
				continue
			}
			sp := p.SubpartitionFor(key.Column)
			if sp == nil {
				continue
			}
			for _, n := range sp.Names {
				entry.lru.Remove(lru.Key{Table: name, Column: n, PartitionID: p.ID})
			}
			sp.Evict()
			metrics.LRUEvictionsTotal.Inc()
			return true
		}
	}
	return false
}

type tableEntry struct {
	lru        *lru.Cache
	partitions []*table.Partition
}
