package diskread

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/malbeclabs/coredb/internal/column"
	"github.com/malbeclabs/coredb/internal/lru"
	"github.com/malbeclabs/coredb/internal/storage"
	"github.com/malbeclabs/coredb/internal/table"
	"github.com/malbeclabs/coredb/pkg/logger"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a LocalBlockStore and counts Get calls, to assert
// coalescing actually collapses concurrent loads into one disk read.
type countingStore struct {
	*storage.LocalBlockStore
	gets int32
}

func (c *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt32(&c.gets, 1)
	return c.LocalBlockStore.Get(ctx, key)
}

func buildPartitionOnDisk(t *testing.T, store storage.BlockStore, tableName string, partitionID uint64) *table.Partition {
	t.Helper()

	col := &column.Column{Name: "amount", Length: 3, Enc: column.EncInt, Ints: []int64{1, 2, 3}}
	sp := &table.Subpartition{Key: "all", Names: []string{"amount"}, Columns: []*column.Column{col}}

	data, err := storage.EncodeSubpartition(sp)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), storage.PartitionKey(tableName, sp.Key, partitionID), data))

	// The in-memory partition starts with the subpartition evicted (Columns
	// nil, Names retained), as it would be after the LRU reclaimed it.
	return &table.Partition{
		ID:            partitionID,
		Len:           3,
		Subpartitions: []*table.Subpartition{{Key: "all", Names: []string{"amount"}}},
	}
}

func TestScheduler_LoadColumn_LoadsFromDiskOnMiss(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := storage.NewLocalBlockStore(dir)
	part := buildPartitionOnDisk(t, store, "metrics", 7)

	cache := lru.New()
	sched := New(store, 2, logger.Nop())

	col, err := sched.LoadColumn(context.Background(), "metrics", part, "amount", cache)
	require.NoError(t, err)
	require.NotNil(t, col)
	require.Equal(t, []int64{1, 2, 3}, col.Ints)
	require.True(t, part.Subpartitions[0].Loaded())
}

func TestScheduler_LoadColumn_UnknownColumnReturnsNil(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := storage.NewLocalBlockStore(dir)
	part := buildPartitionOnDisk(t, store, "metrics", 1)

	sched := New(store, 1, logger.Nop())
	col, err := sched.LoadColumn(context.Background(), "metrics", part, "nonexistent", lru.New())
	require.NoError(t, err)
	require.Nil(t, col)
}

func TestScheduler_LoadColumn_CoalescesConcurrentLoads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inner := storage.NewLocalBlockStore(dir)
	store := &countingStore{LocalBlockStore: inner}
	part := buildPartitionOnDisk(t, store, "metrics", 3)

	sched := New(store, 4, logger.Nop())
	cache := lru.New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sched.LoadColumn(context.Background(), "metrics", part, "amount", cache)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&store.gets))
}

func TestScheduler_LoadColumn_ReloadsAfterEviction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := storage.NewLocalBlockStore(dir)
	part := buildPartitionOnDisk(t, store, "metrics", 9)
	sched := New(store, 1, logger.Nop())
	cache := lru.New()

	_, err := sched.LoadColumn(context.Background(), "metrics", part, "amount", cache)
	require.NoError(t, err)

	part.Subpartitions[0].Evict()
	require.False(t, part.Subpartitions[0].Loaded())

	col, err := sched.LoadColumn(context.Background(), "metrics", part, "amount", cache)
	require.NoError(t, err)
	require.NotNil(t, col)
}
