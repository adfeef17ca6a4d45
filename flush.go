package coredb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/malbeclabs/coredb/internal/column"
	"github.com/malbeclabs/coredb/internal/lru"
	"github.com/malbeclabs/coredb/internal/storage"
	"github.com/malbeclabs/coredb/internal/table"
	"github.com/malbeclabs/coredb/pkg/metrics"
	"github.com/malbeclabs/coredb/pkg/retry"
)

func (db *DB) metaPath() string {
	return filepath.Join(db.cfg.DBPath, storage.MetaKey())
}

// Flush runs spec §4.2's flush-then-compact protocol over every table:
// freeze each table's open buffer into a sealed partition, persist new
// partition blocks, fold same-generation runs together via the table's
// compaction plan, then commit the whole batch to the metastore in one
// atomic write before deleting the superseded WAL segments and partition
// files — in that order, so a crash anywhere leaves either the old or the
// new generation fully recoverable, never a partial one. Tables are flushed
// one after another on the calling goroutine; the scheduler's flush pool is
// not used.
func (db *DB) Flush(ctx context.Context) (err error) {
	start := db.cfg.Clock.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.FlushTotal.WithLabelValues(status).Inc()
		metrics.FlushDuration.Observe(db.cfg.Clock.Since(start).Seconds())
	}()

	db.metaMu.Lock()
	defer db.metaMu.Unlock()

	db.walMu.Lock()
	committedThrough := db.nextWALID
	db.walMu.Unlock()

	db.tablesMu.RLock()
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	db.tablesMu.RUnlock()

	var oldSegments []uint64
	superseded := make(map[string][]*table.Partition)
	for _, name := range names {
		if err := db.flushTable(ctx, name, superseded); err != nil {
			return fmt.Errorf("coredb: flush table %q: %w", name, err)
		}
	}
	for id := db.walCommittedFrom; id < committedThrough; id++ {
		oldSegments = append(oldSegments, id)
	}

	if db.store != nil {
		db.meta.HighWaterMarkWALID = committedThrough
		metaPath := db.metaPath()
		if err := retry.Do(ctx, retry.FlushConfig(), func() error {
			return db.meta.WriteAtomic(metaPath)
		}); err != nil {
			return err
		}
		for name, old := range superseded {
			db.deleteOldPartitionFiles(ctx, name, old)
		}
		for _, id := range oldSegments {
			if err := db.store.Delete(ctx, storage.WalKey(id)); err != nil {
				db.log.Warn("coredb: delete committed wal segment failed", "segment", id, "error", err)
			}
		}
	}
	db.walCommittedFrom = committedThrough

	db.walMu.Lock()
	db.walSize = 0
	db.walMu.Unlock()
	db.walCond.Broadcast()

	return nil
}

// flushTable freezes t's open buffer (if non-empty), persists the new
// partition's subpartition blocks, runs as many compaction rounds as are
// immediately available, and rewrites the table's metastore record. The
// partitions each compaction replaced are appended to superseded[name] for
// deletion after the metastore commit.
func (db *DB) flushTable(ctx context.Context, name string, superseded map[string][]*table.Partition) error {
	t, ok := db.getTable(name)
	if !ok {
		return nil
	}

	part, err := t.FreezeBuffer()
	if err != nil {
		return err
	}
	if part != nil {
		if err := db.persistPartition(ctx, name, part); err != nil {
			return err
		}
	}

	for {
		start, run, ok := t.PlanCompaction(db.cfg.PartitionCombineFactor)
		if !ok {
			break
		}
		merged, err := db.compactRun(ctx, name, t, run)
		if err != nil {
			return fmt.Errorf("compact: %w", err)
		}
		old, err := t.ApplyCompaction(start, run, merged)
		if err != nil {
			return err
		}
		for _, p := range old {
			for _, n := range p.ColumnNames() {
				t.LRU().Remove(lru.Key{Table: name, Column: n, PartitionID: p.ID})
			}
		}
		if err := db.persistPartition(ctx, name, merged); err != nil {
			return err
		}
		superseded[name] = append(superseded[name], old...)
		metrics.CompactionTotal.WithLabelValues(name, "ok").Inc()
	}

	pms := make([]storage.PartitionMeta, 0)
	for _, p := range t.Partitions() {
		pms = append(pms, storage.BuildPartitionMeta(p))
	}
	db.meta.PutTable(storage.TableMeta{
		Name:               name,
		CreatedUnixSeconds: t.CreatedUnixSeconds(),
		Partitions:         pms,
	})
	return nil
}

func (db *DB) persistPartition(ctx context.Context, tableName string, part *table.Partition) error {
	if db.store == nil {
		return nil
	}
	for _, sp := range part.Subpartitions {
		data, err := storage.EncodeSubpartition(sp)
		if err != nil {
			return err
		}
		key := storage.PartitionKey(tableName, sp.Key, part.ID)
		if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
			return db.store.Put(ctx, key, data)
		}); err != nil {
			return err
		}
	}
	// Persisted columns can be reloaded from the store, so they become
	// eviction candidates.
	if t, ok := db.getTable(tableName); ok {
		for _, n := range part.ColumnNames() {
			t.LRU().Touch(lru.Key{Table: tableName, Column: n, PartitionID: part.ID})
		}
	}
	return nil
}

func (db *DB) deleteOldPartitionFiles(ctx context.Context, tableName string, old []*table.Partition) {
	if db.store == nil {
		return
	}
	// A merged partition reuses run[0]'s id, so its blocks can share a key
	// with a superseded one; keys still used by a live partition are kept.
	live := make(map[string]bool)
	if t, ok := db.getTable(tableName); ok {
		for _, p := range t.Partitions() {
			for _, sp := range p.Subpartitions {
				live[storage.PartitionKey(tableName, sp.Key, p.ID)] = true
			}
		}
	}
	for _, p := range old {
		for _, sp := range p.Subpartitions {
			key := storage.PartitionKey(tableName, sp.Key, p.ID)
			if live[key] {
				continue
			}
			if err := db.store.Delete(ctx, key); err != nil {
				db.log.Warn("coredb: delete superseded partition file failed", "table", tableName, "partition", p.ID, "key", key, "error", err)
			}
		}
	}
}

// compactRun builds the single merged partition that replaces run, per
// spec §4.2 step 4: every column across the run is concatenated in
// partition order, loading any evicted subpartition from disk first. The
// merged partition reuses run[0]'s id, so compaction never needs to mint a
// new partition id or touch Table's id counter.
func (db *DB) compactRun(ctx context.Context, tableName string, t *table.Table, run []*table.Partition) (*table.Partition, error) {
	names := make(map[string]bool)
	var order []string
	for _, p := range run {
		for _, n := range p.ColumnNames() {
			if !names[n] {
				names[n] = true
				order = append(order, n)
			}
		}
	}

	totalLen := 0
	for _, p := range run {
		totalLen += p.Len
	}

	cols := make([]*column.Column, 0, len(order))
	for _, name := range order {
		mc := column.NewMixedCol(name)
		for _, p := range run {
			col := p.Column(name)
			if col == nil {
				loaded, err := db.disk.LoadColumn(ctx, tableName, p, name, t.LRU())
				if err != nil {
					return nil, err
				}
				col = loaded
			}
			if col == nil {
				mc.PushNulls(p.Len)
				continue
			}
			for i := 0; i < col.Length; i++ {
				mc.Push(col.At(i))
			}
		}
		finalized, err := mc.Finalize(name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, finalized)
	}

	return &table.Partition{
		ID:            run[0].ID,
		Offset:        run[0].Offset,
		Len:           totalLen,
		Generation:    run[0].Generation + 1,
		Subpartitions: table.PackSubpartitions(cols, db.cfg.MaxPartitionSizeBytes),
	}, nil
}

// enforceWALLimit is the scheduler's enforce_wal_limit closure, per spec
// §4.2: when the unflushed WAL exceeds the configured threshold, run a
// flush cycle immediately instead of waiting for the next tick.
func (db *DB) enforceWALLimit(ctx context.Context) error {
	db.walMu.Lock()
	over := db.walSize > db.cfg.MaxWALSizeBytes
	db.walMu.Unlock()
	if !over {
		return nil
	}
	return db.Flush(ctx)
}
