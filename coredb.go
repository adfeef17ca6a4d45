package coredb

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/malbeclabs/coredb/internal/diskread"
	"github.com/malbeclabs/coredb/internal/scheduler"
	"github.com/malbeclabs/coredb/internal/storage"
	"github.com/malbeclabs/coredb/internal/table"
	"github.com/malbeclabs/coredb/pkg/coreerr"
	"github.com/malbeclabs/coredb/pkg/logger"
	"github.com/malbeclabs/coredb/pkg/metrics"
)

// metaTablesName is the bookkeeping table every DB maintains, per spec
// §4.1 step 2: one row per user table recording its creation time.
const metaTablesName = "_meta_tables"

// DB is the storage and execution core: the tables map, the WAL/metastore
// persistence layer, the worker/flush scheduler, and the disk-read
// scheduler, wired together behind Ingest/RunQuery/Snapshot/Flush/Evict.
type DB struct {
	cfg Config
	log *slog.Logger

	tablesMu sync.RWMutex
	tables   map[string]*table.Table

	store storage.BlockStore // nil in memory-only mode

	metaMu sync.Mutex
	meta   *storage.Metastore

	walMu     sync.Mutex
	walCond   *sync.Cond
	walSize   int64
	nextWALID uint64
	// walCommittedFrom is the lowest WAL segment id not yet folded into
	// partition files; flushOnce advances it past the ids it commits.
	walCommittedFrom uint64

	sched *scheduler.Scheduler
	disk  *diskread.Scheduler

	cancel context.CancelFunc
}

// Open builds a DB from cfg. If cfg.DBPath is set, it opens (or creates) the
// on-disk layout and replays the metastore's sealed partitions; WAL replay
// above the metastore's high-water mark is intentionally out of scope here
// (see DESIGN.md) — a clean Close always commits a final flush first.
func Open(cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store storage.BlockStore
	if cfg.DBPath != "" {
		store = storage.NewLocalBlockStore(cfg.DBPath)
	}

	meta := storage.NewMetastore()
	if cfg.DBPath != "" {
		loaded, err := storage.LoadMetastore(filepath.Join(cfg.DBPath, storage.MetaKey()))
		if err != nil {
			return nil, fmt.Errorf("coredb: load metastore: %w", err)
		}
		meta = loaded
	}

	db := &DB{
		cfg:              cfg,
		log:              logger.Component(cfg.Logger, "coredb"),
		tables:           make(map[string]*table.Table),
		store:            store,
		meta:             meta,
		nextWALID:        meta.HighWaterMarkWALID,
		walCommittedFrom: meta.HighWaterMarkWALID,
		disk:             diskread.New(store, cfg.ReadThreads, logger.Component(cfg.Logger, "diskread")),
	}
	db.walCond = sync.NewCond(&db.walMu)

	db.getOrCreateTableLocked(metaTablesName)
	for name, tm := range meta.Tables {
		t := db.getOrCreateTableLockedAt(name, tm.CreatedUnixSeconds)
		for _, pm := range tm.Partitions {
			t.AdoptPartition(metaPartitionToTablePartition(pm))
		}
	}

	db.sched = scheduler.New(scheduler.Config{
		Threads:                   cfg.Threads,
		WALFlushCompactionThreads: cfg.WALFlushCompactionThreads,
		WALCheckInterval:          cfg.WALCheckInterval,
		MemCheckInterval:          cfg.MemCheckInterval,
		Clock:                     cfg.Clock,
		Logger:                    logger.Component(cfg.Logger, "scheduler"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	db.cancel = cancel
	db.sched.StartEnforcementLoops(ctx, db.enforceWALLimit, db.enforceMemLimit)

	return db, nil
}

// Close stops the scheduler's background loops and worker pool, flushing
// whatever is still open in every table's buffer first so a clean shutdown
// never loses acknowledged writes.
func (db *DB) Close() error {
	ctx := context.Background()
	if err := db.Flush(ctx); err != nil {
		db.log.Error("coredb: flush on close failed", "error", err)
	}
	db.cancel()
	db.sched.Stop()
	return nil
}

func (db *DB) getOrCreateTableLocked(name string) *table.Table {
	return db.getOrCreateTableLockedAt(name, db.cfg.Clock.Now().Unix())
}

func (db *DB) getOrCreateTableLockedAt(name string, createdUnixSeconds int64) *table.Table {
	db.tablesMu.Lock()
	defer db.tablesMu.Unlock()
	if t, ok := db.tables[name]; ok {
		return t
	}
	t := table.New(name, createdUnixSeconds, db.cfg.MaxPartitionSizeBytes)
	db.tables[name] = t
	return t
}

func (db *DB) getTable(name string) (*table.Table, bool) {
	db.tablesMu.RLock()
	defer db.tablesMu.RUnlock()
	t, ok := db.tables[name]
	return t, ok
}

// Ingest applies one WAL event batch, per spec §4.1's four-step protocol.
func (db *DB) Ingest(ctx context.Context, events storage.EventBuffer) (err error) {
	id := uuid.New().String()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.IngestTotal.WithLabelValues(status).Inc()
	}()

	// Step 1: backpressure.
	db.walMu.Lock()
	for db.walSize > db.cfg.MaxWALSizeBytes {
		db.walCond.Wait()
	}
	segID := db.nextWALID
	db.nextWALID++
	db.walMu.Unlock()

	// Step 2: auto-create tables and stage the _meta_tables bookkeeping row.
	var created []string
	for name := range events {
		if _, ok := db.getTable(name); !ok {
			db.getOrCreateTableLocked(name)
			created = append(created, name)
		}
	}
	if len(created) > 0 {
		events = withMetaTablesRow(events, created, db.cfg.Clock.Now().Unix())
	}

	// Step 3: persist the WAL segment, then apply it to every table's open
	// buffer; both must complete before we acknowledge, and a failed persist
	// leaves the buffers untouched.
	var walBytes int
	if err := db.persistAndApply(ctx, segID, events, &walBytes); err != nil {
		return coreerr.WrapIo("coredb: ingest "+id, err)
	}

	// Step 4: advance wal_size and signal the flush condition variable.
	db.walMu.Lock()
	db.walSize += int64(walBytes)
	over := db.walSize > db.cfg.MaxWALSizeBytes
	db.walMu.Unlock()
	db.walCond.Broadcast()

	if over {
		db.sched.Submit(scheduler.NewFuncTask(func() error { return db.Flush(context.Background()) }))
	}
	return nil
}

func metaPartitionToTablePartition(pm storage.PartitionMeta) *table.Partition {
	subs := make([]*table.Subpartition, len(pm.Subpartitions))
	for i, spm := range pm.Subpartitions {
		var names []string
		for _, c := range pm.Columns {
			if c.SubpartitionIndex == i {
				names = append(names, c.Name)
			}
		}
		subs[i] = &table.Subpartition{Key: spm.Key, Names: names}
	}
	return &table.Partition{
		ID:            pm.ID,
		Offset:        pm.Offset,
		Len:           pm.Len,
		Generation:    pm.Generation,
		Subpartitions: subs,
	}
}

// withMetaTablesRow stages one new _meta_tables row (timestamp, name) per
// newly auto-created table, per spec §4.1 step 2, with nowUnix as the
// timestamp. Any existing _meta_tables batch in this same ingest call is
// merged with, not replaced.
func withMetaTablesRow(events storage.EventBuffer, created []string, nowUnix int64) storage.EventBuffer {
	out := make(storage.EventBuffer, len(events)+1)
	for k, v := range events {
		out[k] = v
	}

	existing := out[metaTablesName]
	names := append(append([]string{}, existing.Columns["name"].Str...), created...)
	stamps := append([]int64{}, existing.Columns["timestamp"].I64...)
	for range created {
		stamps = append(stamps, nowUnix)
	}

	out[metaTablesName] = storage.TableBuffer{
		Len: len(names),
		Columns: map[string]storage.ColumnData{
			"name":      {Kind: storage.KindString, Str: names},
			"timestamp": {Kind: storage.KindI64, I64: stamps},
		},
	}
	return out
}
