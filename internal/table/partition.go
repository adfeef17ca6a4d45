package table

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/malbeclabs/coredb/internal/column"
)

// defaultMaxPartitionSizeBytes is the default subpartition packing cap;
// New accepts an override via its maxPartitionBytes parameter, matching
// max_partition_size_bytes in spec §4.2/4.8.
const defaultMaxPartitionSizeBytes = 64 << 20

var simpleColumnName = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Subpartition is a disk-materialization unit: a set of columns written
// together, keyed for the on-disk layout. Names is populated at
// construction time and survives eviction, so the disk-read scheduler can
// locate which subpartition holds a requested column without decoding it;
// Columns is nil whenever the block has been evicted from memory by the
// LRU and not yet reloaded.
type Subpartition struct {
	Key     string
	Names   []string
	Columns []*column.Column
}

func (s *Subpartition) HeapBytes() int {
	total := 0
	for _, c := range s.Columns {
		total += c.HeapBytes()
	}
	return total
}

// Loaded reports whether this subpartition's columns are resident in
// memory.
func (s *Subpartition) Loaded() bool { return s.Columns != nil }

// Evict drops this subpartition's in-memory column data. Names is
// retained so it can be identified and reloaded later.
func (s *Subpartition) Evict() { s.Columns = nil }

// HasColumn reports whether name belongs to this subpartition, regardless
// of whether it is currently loaded.
func (s *Subpartition) HasColumn(name string) bool {
	for _, n := range s.Names {
		if n == name {
			return true
		}
	}
	return false
}

// subpartitionKey derives the on-disk key for a subpartition's column set,
// per spec §3: "x" + name when there's a single column matching
// ^[a-z0-9_]{1,64}$, else the SHA-256 of the concatenated column names.
func subpartitionKey(names []string) string {
	if len(names) == 1 && simpleColumnName.MatchString(names[0]) {
		return "x" + names[0]
	}
	sum := sha256.Sum256([]byte(strings.Join(names, "")))
	return hex.EncodeToString(sum[:])
}

// PackSubpartitions greedy-packs columns, already sorted by name, into
// subpartitions capped at maxBytes each. A partition with everything in one
// subpartition uses the fixed key "all", per spec §4.2.
func PackSubpartitions(cols []*column.Column, maxBytes int) []*Subpartition {
	if len(cols) == 0 {
		return nil
	}
	sorted := append([]*column.Column(nil), cols...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var groups [][]*column.Column
	var current []*column.Column
	currentBytes := 0
	for _, c := range sorted {
		cb := c.HeapBytes()
		if len(current) > 0 && currentBytes+cb > maxBytes {
			groups = append(groups, current)
			current = nil
			currentBytes = 0
		}
		current = append(current, c)
		currentBytes += cb
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	namesOf := func(g []*column.Column) []string {
		names := make([]string, len(g))
		for i, c := range g {
			names[i] = c.Name
		}
		return names
	}

	if len(groups) == 1 {
		return []*Subpartition{{Key: "all", Names: namesOf(groups[0]), Columns: groups[0]}}
	}

	out := make([]*Subpartition, 0, len(groups))
	for _, g := range groups {
		names := namesOf(g)
		out = append(out, &Subpartition{Key: subpartitionKey(names), Names: names, Columns: g})
	}
	return out
}

// Partition is the immutable result of freezing a Buffer or of compaction.
type Partition struct {
	ID            uint64
	Offset        int
	Len           int
	Generation    int // compaction depth: 0 for a freshly-frozen buffer
	Subpartitions []*Subpartition
}

// ColumnNames returns every column name present across this partition's
// subpartitions, sorted. Unlike Column, this reads Names and so works even
// when a subpartition's columns have been evicted from memory.
func (p *Partition) ColumnNames() []string {
	var names []string
	for _, sp := range p.Subpartitions {
		names = append(names, sp.Names...)
	}
	sort.Strings(names)
	return names
}

// SubpartitionFor returns the subpartition that owns name, or nil.
func (p *Partition) SubpartitionFor(name string) *Subpartition {
	for _, sp := range p.Subpartitions {
		if sp.HasColumn(name) {
			return sp
		}
	}
	return nil
}

// Column returns the named column, or nil if this partition doesn't carry
// it (every column should be present in every partition once a table's
// schema stabilizes, but a column introduced after this partition was
// sealed legitimately won't be).
func (p *Partition) Column(name string) *column.Column {
	for _, sp := range p.Subpartitions {
		for _, c := range sp.Columns {
			if c.Name == name {
				return c
			}
		}
	}
	return nil
}
