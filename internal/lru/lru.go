// Package lru tracks which on-demand-loaded columns are resident, so the
// scheduler's mem-limit enforcement loop can pick a victim when resident
// memory exceeds budget. It wraps hashicorp/golang-lru's simplelru, using it
// purely as an ordered recency list — eviction is driven externally
// (Evict), not by a fixed capacity.
package lru

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// effectivelyUnbounded sizes the underlying simplelru so it never evicts on
// its own; Cache.Evict is the only eviction path.
const effectivelyUnbounded = 1<<31 - 1

// Key identifies one resident column of one partition of one table.
type Key struct {
	Table       string
	Column      string
	PartitionID uint64
}

// Cache is the LRU set of (table, column, partition) keys with access
// recency. Safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	inner *simplelru.LRU[Key, struct{}]
}

func New() *Cache {
	inner, err := simplelru.NewLRU[Key, struct{}](effectivelyUnbounded, nil)
	if err != nil {
		// Only NewLRU's size<=0 check can fail here, and the constant above
		// is positive, so this is unreachable.
		panic(err)
	}
	return &Cache{inner: inner}
}

// Touch marks key as most-recently-used, inserting it if absent. Called
// whenever a column is loaded from disk into a Partition.
func (c *Cache) Touch(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, struct{}{})
}

// Remove drops key, e.g. when its partition is compacted away.
func (c *Cache) Remove(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Remove(key)
}

// Evict returns and removes the least-recently-used key, or ok=false if the
// cache is empty.
func (c *Cache) Evict() (key Key, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.RemoveOldest()
}

// Len reports the number of resident keys currently tracked.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
