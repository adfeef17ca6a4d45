// Package coredb is the top-level facade: an in-memory, column-oriented
// analytical storage and execution core with durable WAL ingestion,
// background flush/compaction, bounded-memory column caching, and
// vectorized aggregate/sort query execution over partitioned columnar
// data, per spec.
package coredb

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/coredb/pkg/logger"
)

// Config bundles every tunable of spec §6's configuration table, following
// the teacher's indexer.Config/server.Config pattern. Validate fills in a
// default for every unset field; no field is required, and it always
// returns nil.
type Config struct {
	// DBPath roots the on-disk WAL/partitions/metastore layout. Empty means
	// memory-only: nothing is persisted, and restart loses all data.
	DBPath string

	// Threads sizes the query/ingest worker pool.
	Threads int
	// ReadThreads bounds the disk-read scheduler's concurrency.
	ReadThreads int
	// WALFlushCompactionThreads sizes the flush/compaction pool.
	WALFlushCompactionThreads int

	// MaxWALSizeBytes is the backpressure and auto-flush threshold.
	MaxWALSizeBytes int64
	// MaxPartitionSizeBytes caps a single subpartition's packed size.
	MaxPartitionSizeBytes int
	// PartitionCombineFactor is the compaction geometric base.
	PartitionCombineFactor int

	// MemSizeLimitTables is the LRU eviction target, summed across every
	// table's resident column bytes.
	MemSizeLimitTables int64

	// BatchSize is the streaming operator chunk size.
	BatchSize int

	// MemLZ4, if true, would keep evicted-and-reloaded columns compressed
	// in memory. Accepted for configuration-surface completeness (spec §6
	// lists it) but not implemented: none of the retrieved example repos
	// depend on an LZ4 library, and fabricating one would violate the
	// no-invented-dependencies rule, so this field is currently inert.
	MemLZ4 bool

	// WALCheckInterval/MemCheckInterval control how often enforce_wal_limit
	// and enforce_mem_limit poll. Defaulted to one second each, per spec
	// §4.2/§4.6.
	WALCheckInterval time.Duration
	MemCheckInterval time.Duration

	Clock  clockwork.Clock
	Logger *slog.Logger
}

func (cfg *Config) Validate() error {
	if cfg.Threads <= 0 {
		cfg.Threads = 4
	}
	if cfg.ReadThreads <= 0 {
		cfg.ReadThreads = 4
	}
	if cfg.WALFlushCompactionThreads <= 0 {
		cfg.WALFlushCompactionThreads = 2
	}
	if cfg.MaxWALSizeBytes <= 0 {
		cfg.MaxWALSizeBytes = 64 << 20
	}
	if cfg.MaxPartitionSizeBytes <= 0 {
		cfg.MaxPartitionSizeBytes = 64 << 20
	}
	if cfg.PartitionCombineFactor <= 1 {
		cfg.PartitionCombineFactor = 4
	}
	if cfg.MemSizeLimitTables <= 0 {
		cfg.MemSizeLimitTables = 1 << 30
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 4096
	}
	if cfg.WALCheckInterval <= 0 {
		cfg.WALCheckInterval = time.Second
	}
	if cfg.MemCheckInterval <= 0 {
		cfg.MemCheckInterval = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return nil
}
