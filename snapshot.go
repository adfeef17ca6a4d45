package coredb

import (
	"context"

	"github.com/malbeclabs/coredb/pkg/coreerr"
)

// Snapshot is a lightweight, read-only summary of one table's state,
// useful for status endpoints and tests without pulling in the query path.
type Snapshot struct {
	Table              string
	Rows               int
	Partitions         int
	OpenBufferRows     int
	CreatedUnixSeconds int64
}

// Snapshot reports tableName's current shape.
func (db *DB) Snapshot(tableName string) (Snapshot, error) {
	t, ok := db.getTable(tableName)
	if !ok {
		return Snapshot{}, coreerr.NewFatal("coredb: unknown table " + tableName)
	}
	return Snapshot{
		Table:              tableName,
		Rows:               t.TotalRows(),
		Partitions:         len(t.Partitions()),
		OpenBufferRows:     t.Buffer().Length(),
		CreatedUnixSeconds: t.CreatedUnixSeconds(),
	}, nil
}

// Tables lists every table name currently known, including _meta_tables.
func (db *DB) Tables() []string {
	db.tablesMu.RLock()
	defer db.tablesMu.RUnlock()
	out := make([]string, 0, len(db.tables))
	for name := range db.tables {
		out = append(out, name)
	}
	return out
}

// Evict runs one manual pass of the memory-limit enforcement that
// otherwise only runs on EnforcementLoop's own schedule — useful for tests
// and for an operator forcing memory down ahead of a known spike.
func (db *DB) Evict(ctx context.Context) error {
	return db.enforceMemLimit(ctx)
}
