package coredb

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/coredb/internal/querytask"
	"github.com/malbeclabs/coredb/internal/storage"
)

func testConfig(t *testing.T, dbPath string) Config {
	t.Helper()
	return Config{
		DBPath:                 dbPath,
		MaxWALSizeBytes:        1 << 30, // high, so tests control flush timing explicitly
		PartitionCombineFactor: 2,
		MemSizeLimitTables:     1 << 30,
		Clock:                  clockwork.NewFakeClock(),
	}
}

func ingestEvent(name string, rows int, amounts []int64) storage.EventBuffer {
	return storage.EventBuffer{
		name: storage.TableBuffer{
			Len: rows,
			Columns: map[string]storage.ColumnData{
				"amount": {Kind: storage.KindI64, I64: amounts},
			},
		},
	}
}

func TestDB_Ingest_AutoCreatesTableAndMetaTablesRow(t *testing.T) {
	t.Parallel()

	db, err := Open(testConfig(t, t.TempDir()))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ingest(context.Background(), ingestEvent("events", 3, []int64{1, 2, 3})))

	snap, err := db.Snapshot("events")
	require.NoError(t, err)
	require.Equal(t, 3, snap.Rows)

	metaSnap, err := db.Snapshot(metaTablesName)
	require.NoError(t, err)
	require.Equal(t, 1, metaSnap.Rows)
}

func TestDB_Flush_SealsBufferIntoQueryablePartition(t *testing.T) {
	t.Parallel()

	db, err := Open(testConfig(t, t.TempDir()))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ingest(context.Background(), ingestEvent("events", 3, []int64{10, 20, 30})))
	require.NoError(t, db.Flush(context.Background()))

	snap, err := db.Snapshot("events")
	require.NoError(t, err)
	require.Equal(t, 1, snap.Partitions)
	require.Equal(t, 0, snap.OpenBufferRows)

	plan := &querytask.Plan{Select: []string{"amount"}}
	result, err := db.RunQuery(context.Background(), "events", plan)
	require.NoError(t, err)
	n, err := result.Len()
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestDB_Flush_CompactsAcrossMultipleFlushes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	db, err := Open(testConfig(t, dir))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Ingest(ctx, ingestEvent("events", 2, []int64{1, 2})))
	require.NoError(t, db.Flush(ctx))
	require.NoError(t, db.Ingest(ctx, ingestEvent("events", 2, []int64{3, 4})))
	require.NoError(t, db.Flush(ctx))

	snap, err := db.Snapshot("events")
	require.NoError(t, err)
	// PartitionCombineFactor is 2: the two generation-0 partitions fold into
	// one generation-1 partition.
	require.Equal(t, 1, snap.Partitions)
	require.Equal(t, 4, snap.Rows)

	plan := &querytask.Plan{Select: []string{"amount"}}
	result, err := db.RunQuery(ctx, "events", plan)
	require.NoError(t, err)
	n, err := result.Len()
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestDB_RunQuery_UnknownTableFails(t *testing.T) {
	t.Parallel()

	db, err := Open(testConfig(t, t.TempDir()))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.RunQuery(context.Background(), "nonexistent", &querytask.Plan{Select: []string{"amount"}})
	require.Error(t, err)
}

func TestDB_RunQuery_EmptyTableReturnsShapedEmptyResult(t *testing.T) {
	t.Parallel()

	db, err := Open(testConfig(t, t.TempDir()))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ingest(context.Background(), ingestEvent("events", 1, []int64{1})))
	// Not flushed: no sealed partitions yet, but the table exists.
	result, err := db.RunQuery(context.Background(), "events", &querytask.Plan{Select: []string{"amount"}})
	require.NoError(t, err)
	n, err := result.Len()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestDB_PersistsAndReloadsAcrossOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	db1, err := Open(testConfig(t, dir))
	require.NoError(t, err)
	require.NoError(t, db1.Ingest(ctx, ingestEvent("events", 2, []int64{7, 8})))
	require.NoError(t, db1.Flush(ctx))
	require.NoError(t, db1.Close())

	db2, err := Open(testConfig(t, dir))
	require.NoError(t, err)
	defer db2.Close()

	snap, err := db2.Snapshot("events")
	require.NoError(t, err)
	require.Equal(t, 2, snap.Rows)
	require.Equal(t, 1, snap.Partitions)

	plan := &querytask.Plan{Select: []string{"amount"}}
	result, err := db2.RunQuery(ctx, "events", plan)
	require.NoError(t, err)
	n, err := result.Len()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestDB_Evict_ReclaimsLoadedSubpartitionsUnderPressure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()
	cfg := testConfig(t, dir)
	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ingest(ctx, ingestEvent("events", 2, []int64{1, 2})))
	require.NoError(t, db.Flush(ctx))

	// Force-load the column via a query, then squeeze the memory budget to
	// zero and evict.
	_, err = db.RunQuery(ctx, "events", &querytask.Plan{Select: []string{"amount"}})
	require.NoError(t, err)

	t2, ok := db.getTable("events")
	require.True(t, ok)
	part := t2.Partitions()[0]
	require.True(t, part.Subpartitions[0].Loaded())

	db.cfg.MemSizeLimitTables = 0
	require.NoError(t, db.Evict(ctx))
	require.False(t, part.Subpartitions[0].Loaded())
}

func TestDB_Ingest_OverWALBudget_TriggersAsyncFlush(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, t.TempDir())
	cfg.WALCheckInterval = time.Second
	cfg.MemCheckInterval = time.Second
	cfg.MaxWALSizeBytes = 1 // any committed segment trips the over-budget path

	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ingest(context.Background(), ingestEvent("events", 1, []int64{1})))

	require.Eventually(t, func() bool {
		snap, err := db.Snapshot("events")
		return err == nil && snap.Partitions == 1
	}, time.Second, time.Millisecond, "ingest past max_wal_size_bytes should schedule an async flush")
}
