package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/malbeclabs/coredb/internal/rawval"
	"github.com/malbeclabs/coredb/internal/table"
	"github.com/malbeclabs/coredb/pkg/coreerr"
)

// ColumnMeta is the metastore's record for one column, per spec §6.
type ColumnMeta struct {
	Name              string
	SubpartitionIndex int
	Length            int
	MinSummary        rawval.Val
	MaxSummary        rawval.Val
}

// SubpartitionMeta records a subpartition's key and on-disk size.
type SubpartitionMeta struct {
	Key       string
	SizeBytes int
}

// PartitionMeta is the metastore's record for one sealed partition.
type PartitionMeta struct {
	ID            uint64
	Offset        int
	Len           int
	Generation    int
	Subpartitions []SubpartitionMeta
	Columns       []ColumnMeta
}

// TableMeta is the metastore's record for one table.
type TableMeta struct {
	Name               string
	CreatedUnixSeconds int64
	Partitions         []PartitionMeta
}

// Metastore enumerates, per table, the live partitions and their
// subpartitions plus per-column summaries, and the highest WAL segment id
// committed into partition files. A partition is visible to queries iff
// its metadata is present here, per spec §3.
type Metastore struct {
	Tables             map[string]TableMeta
	HighWaterMarkWALID uint64
}

func NewMetastore() *Metastore {
	return &Metastore{Tables: make(map[string]TableMeta)}
}

// BuildPartitionMeta converts a sealed Partition into its metastore record,
// computing (and caching, via EnsureSummary) each column's min/max summary.
func BuildPartitionMeta(p *table.Partition) PartitionMeta {
	pm := PartitionMeta{
		ID:         p.ID,
		Offset:     p.Offset,
		Len:        p.Len,
		Generation: p.Generation,
	}
	for spIdx, sp := range p.Subpartitions {
		pm.Subpartitions = append(pm.Subpartitions, SubpartitionMeta{
			Key:       sp.Key,
			SizeBytes: sp.HeapBytes(),
		})
		for _, c := range sp.Columns {
			summary := c.EnsureSummary()
			pm.Columns = append(pm.Columns, ColumnMeta{
				Name:              c.Name,
				SubpartitionIndex: spIdx,
				Length:            c.Length,
				MinSummary:        summary.Min,
				MaxSummary:        summary.Max,
			})
		}
	}
	return pm
}

// PutTable installs or replaces a table's metadata wholesale. Callers
// (flush/compaction) rebuild the table's partition list under their own
// lock and then call this once per commit.
func (m *Metastore) PutTable(tm TableMeta) {
	if m.Tables == nil {
		m.Tables = make(map[string]TableMeta)
	}
	m.Tables[tm.Name] = tm
}

// WriteAtomic serializes the metastore and installs it at path via
// write-then-rename, so a crash mid-write never leaves a torn file in
// place, per spec §6.
func (m *Metastore) WriteAtomic(path string) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return coreerr.WrapIo("metastore: encode", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".meta-*.tmp")
	if err != nil {
		return coreerr.WrapIo("metastore: create temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return coreerr.WrapIo("metastore: write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return coreerr.WrapIo("metastore: fsync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return coreerr.WrapIo("metastore: close temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return coreerr.WrapIo("metastore: rename into place", err)
	}
	return nil
}

// LoadMetastore reads path, returning a fresh empty Metastore if it doesn't
// exist yet (a brand-new db_path).
func LoadMetastore(path string) (*Metastore, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewMetastore(), nil
	}
	if err != nil {
		return nil, coreerr.WrapIo("metastore: read", err)
	}
	m := NewMetastore()
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(m); err != nil {
		return nil, coreerr.WrapIo("metastore: decode", err)
	}
	return m, nil
}

// PartitionKey returns the BlockStore key for one subpartition block, per
// spec §6's layout: <table>/<partition_id>/<subpartition_key>. Joined with
// "/" rather than filepath.Join since this is a BlockStore key, not a raw
// filesystem path — LocalBlockStore and S3BlockStore both root it themselves.
func PartitionKey(table, subpartitionKey string, partitionID uint64) string {
	return path.Join("partitions", table, fmt.Sprintf("%d", partitionID), subpartitionKey)
}

// WalKey returns the BlockStore key for a WAL segment file.
func WalKey(segmentID uint64) string {
	return path.Join("wal", SegmentFileName(segmentID))
}

// MetaKey returns the BlockStore key for the serialized metastore.
func MetaKey() string {
	return "meta"
}
