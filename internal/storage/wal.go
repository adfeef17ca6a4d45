// Package storage implements the on-disk WAL segment format, the
// metastore, and the BlockStore abstraction partition files are written
// through, per spec §6.
package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"hash/crc32"
	"io"

	"github.com/malbeclabs/coredb/internal/rawval"
	"github.com/malbeclabs/coredb/pkg/coreerr"
)

// ColumnDataKind discriminates the wire shape of one table's column within
// a WAL event, before it is promoted to per-row RawVals.
type ColumnDataKind uint8

const (
	KindEmpty ColumnDataKind = iota
	KindDense
	KindSparse
	KindI64
	KindSparseI64
	KindString
)

type SparseF64Entry struct {
	Index uint64
	Value float64
}

type SparseI64Entry struct {
	Index uint64
	Value int64
}

// ColumnData is the WAL wire representation of one column's values for one
// ingest batch, per spec §3/§4.1.
type ColumnData struct {
	Kind      ColumnDataKind
	Dense     []float64
	Sparse    []SparseF64Entry
	I64       []int64
	SparseI64 []SparseI64Entry
	Str       []string
}

// ToRawVals expands this ColumnData into rows RawVals, applying the
// promotion rules of spec §4.1: a Dense/I64/Str array shorter than rows
// fills the leading rows and the remaining rows become nulls;
// Sparse/SparseI64 gaps become nulls; Empty yields rows nulls.
func (cd ColumnData) ToRawVals(rows int) ([]rawval.Val, error) {
	out := make([]rawval.Val, rows)

	switch cd.Kind {
	case KindEmpty:
		for i := range out {
			out[i] = rawval.Null()
		}

	case KindDense:
		if len(cd.Dense) > rows {
			return nil, coreerr.NewFatal("storage: dense column longer than batch row count")
		}
		for i, v := range cd.Dense {
			out[i] = rawval.Float(v)
		}
		for i := len(cd.Dense); i < rows; i++ {
			out[i] = rawval.Null()
		}

	case KindI64:
		if len(cd.I64) > rows {
			return nil, coreerr.NewFatal("storage: i64 column longer than batch row count")
		}
		for i, v := range cd.I64 {
			out[i] = rawval.Int(v)
		}
		for i := len(cd.I64); i < rows; i++ {
			out[i] = rawval.Null()
		}

	case KindString:
		if len(cd.Str) > rows {
			return nil, coreerr.NewFatal("storage: string column longer than batch row count")
		}
		for i, v := range cd.Str {
			out[i] = rawval.Str(v)
		}
		for i := len(cd.Str); i < rows; i++ {
			out[i] = rawval.Null()
		}

	case KindSparse:
		for i := range out {
			out[i] = rawval.Null()
		}
		for _, e := range cd.Sparse {
			if int(e.Index) >= rows {
				return nil, coreerr.NewFatal("storage: sparse index out of range")
			}
			out[e.Index] = rawval.Float(e.Value)
		}

	case KindSparseI64:
		for i := range out {
			out[i] = rawval.Null()
		}
		for _, e := range cd.SparseI64 {
			if int(e.Index) >= rows {
				return nil, coreerr.NewFatal("storage: sparse index out of range")
			}
			out[e.Index] = rawval.Int(e.Value)
		}

	default:
		return nil, coreerr.NewFatal("storage: unknown column data kind")
	}
	return out, nil
}

// TableBuffer is one table's slice of a WAL event: its row count and the
// columns touched by this batch.
type TableBuffer struct {
	Len     int
	Columns map[string]ColumnData
}

// EventBuffer maps table name to its TableBuffer for one ingest call.
type EventBuffer map[string]TableBuffer

// WalSegment is one append record in the WAL: {id, data}. Segment ids are
// strictly increasing and densely allocated; the metastore persists the
// highest committed id.
type WalSegment struct {
	ID   uint64
	Data EventBuffer
}

// WriteSegment frames id/data as 8-byte big-endian length, gob-encoded
// payload, then a 4-byte CRC32 of the payload, per spec §6. Returns the
// total bytes written (the wal_size counter advances by this amount).
func WriteSegment(w io.Writer, id uint64, data EventBuffer) (int, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(WalSegment{ID: id, Data: data}); err != nil {
		return 0, coreerr.WrapIo("wal: encode segment", err)
	}

	var header [8]byte
	binary.BigEndian.PutUint64(header[:], uint64(payload.Len()))

	sum := crc32.ChecksumIEEE(payload.Bytes())
	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], sum)

	n1, err := w.Write(header[:])
	if err != nil {
		return n1, coreerr.WrapIo("wal: write length header", err)
	}
	n2, err := w.Write(payload.Bytes())
	if err != nil {
		return n1 + n2, coreerr.WrapIo("wal: write payload", err)
	}
	n3, err := w.Write(trailer[:])
	if err != nil {
		return n1 + n2 + n3, coreerr.WrapIo("wal: write crc trailer", err)
	}
	return n1 + n2 + n3, nil
}

// ReadSegment reverses WriteSegment, returning coreerr.Io if the CRC
// doesn't match (a torn or corrupted write, typically the last segment
// after a crash).
func ReadSegment(r io.Reader) (uint64, EventBuffer, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, coreerr.WrapIo("wal: read length header", err)
	}
	length := binary.BigEndian.Uint64(header[:])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, coreerr.WrapIo("wal: read payload", err)
	}

	var trailer [4]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return 0, nil, coreerr.WrapIo("wal: read crc trailer", err)
	}
	want := binary.BigEndian.Uint32(trailer[:])
	got := crc32.ChecksumIEEE(payload)
	if want != got {
		return 0, nil, coreerr.WrapIo("wal: crc mismatch, segment is corrupt", nil)
	}

	var seg WalSegment
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&seg); err != nil {
		return 0, nil, coreerr.WrapIo("wal: decode segment", err)
	}
	return seg.ID, seg.Data, nil
}

// SegmentFileName 0-pads id so segment files sort lexicographically, per
// spec §6.
func SegmentFileName(id uint64) string {
	const width = 20 // enough digits for any uint64
	s := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		s[i] = byte('0' + id%10)
		id /= 10
	}
	return string(s)
}
