package storage

import (
	"bytes"
	"encoding/gob"

	"github.com/malbeclabs/coredb/internal/column"
	"github.com/malbeclabs/coredb/internal/table"
	"github.com/malbeclabs/coredb/pkg/coreerr"
)

// subpartitionBlock is the on-disk payload for one subpartition: the
// columns it carries, gob-encoded for the same reason WAL/metastore
// payloads are (spec §6 leaves the encoding implementation-defined; the
// flatbuffers/protobuf schemas the teacher's pack otherwise reaches for
// both need codegen this environment can't run).
type subpartitionBlock struct {
	Columns []*column.Column
}

// EncodeSubpartition serializes a subpartition's columns for PartitionKey
// storage.
func EncodeSubpartition(sp *table.Subpartition) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(subpartitionBlock{Columns: sp.Columns}); err != nil {
		return nil, coreerr.WrapIo("subpartition: encode", err)
	}
	return buf.Bytes(), nil
}

// DecodeSubpartition reverses EncodeSubpartition.
func DecodeSubpartition(data []byte) ([]*column.Column, error) {
	var block subpartitionBlock
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&block); err != nil {
		return nil, coreerr.WrapIo("subpartition: decode", err)
	}
	return block.Columns, nil
}
