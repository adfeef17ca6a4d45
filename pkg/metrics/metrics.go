// Package metrics holds the process-wide Prometheus collectors for the storage
// core. The core itself only calls these collectors; scraping/exposition is an
// external collaborator's concern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coredb_ingest_total",
			Help: "Total number of ingest calls, by outcome",
		},
		[]string{"status"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coredb_ingest_duration_seconds",
			Help:    "Duration of ingest calls, including WAL persist and buffer apply",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)

	WALBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coredb_wal_bytes",
			Help: "Current size in bytes of the unflushed write-ahead log",
		},
	)

	FlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coredb_flush_total",
			Help: "Total number of flush cycles, by outcome",
		},
		[]string{"status"},
	)

	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coredb_flush_duration_seconds",
			Help:    "Duration of a full flush cycle (freeze, persist, commit)",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
	)

	CompactionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coredb_compaction_total",
			Help: "Total number of compactions, by table and outcome",
		},
		[]string{"table", "status"},
	)

	CompactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coredb_compaction_duration_seconds",
			Help:    "Duration of a single table's compaction",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"table"},
	)

	QueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coredb_query_total",
			Help: "Total number of query executions, by outcome",
		},
		[]string{"status"},
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coredb_query_duration_seconds",
			Help:    "Duration of a full query, from planner handoff to combined result",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)

	DiskReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coredb_disk_reads_total",
			Help: "Total number of column loads served by the disk-read scheduler",
		},
		[]string{"coalesced"},
	)

	LRUEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coredb_lru_evictions_total",
			Help: "Total number of columns evicted from memory by the LRU",
		},
	)

	TableHeapBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coredb_table_heap_bytes",
			Help: "Current resident heap bytes per table, as tracked by the LRU",
		},
		[]string{"table"},
	)
)
