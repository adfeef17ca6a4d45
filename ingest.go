package coredb

import (
	"bytes"
	"context"

	"github.com/malbeclabs/coredb/internal/rawval"
	"github.com/malbeclabs/coredb/internal/storage"
	"github.com/malbeclabs/coredb/pkg/retry"
)

// persistAndApply persists the WAL segment and only then applies it to
// every table's open buffer, per spec §4.1 step 3 and §7's Io-error
// invariant: if the WAL write fails, the segment is not acknowledged and
// the in-memory buffers must not reflect the failed batch, so buffer
// application must never run (or survive) ahead of a successful WAL
// persist. walBytes is the size of the framed segment, used by the caller
// to advance wal_size regardless of whether persistence actually happened
// (memory-only mode still backpressures on apparent WAL size, per spec
// §4.8's db_path-less mode).
func (db *DB) persistAndApply(ctx context.Context, segID uint64, events storage.EventBuffer, walBytes *int) error {
	var buf bytes.Buffer
	n, err := storage.WriteSegment(&buf, segID, events)
	if err != nil {
		return err
	}
	*walBytes = n

	if db.store != nil {
		key, data := storage.WalKey(segID), buf.Bytes()
		if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
			return db.store.Put(ctx, key, data)
		}); err != nil {
			return err
		}
	}

	return db.applyToBuffers(events)
}

// applyToBuffers row-applies every table's batch to its open Buffer.
func (db *DB) applyToBuffers(events storage.EventBuffer) error {
	for name, tb := range events {
		t, ok := db.getTable(name)
		if !ok {
			continue // created concurrently and then dropped; shouldn't happen
		}

		cols := make(map[string][]rawval.Val, len(tb.Columns))
		for colName, cd := range tb.Columns {
			vals, err := cd.ToRawVals(tb.Len)
			if err != nil {
				return err
			}
			cols[colName] = vals
		}
		if err := t.Buffer().ApplyBatch(tb.Len, cols); err != nil {
			return err
		}
	}
	return nil
}
