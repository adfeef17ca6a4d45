package column

import (
	"bytes"
	"encoding/gob"

	"github.com/malbeclabs/coredb/pkg/coreerr"
)

const (
	// maxArenaBytes is the overflow boundary for the 40-bit offset field.
	maxArenaBytes = 1 << 40
	// maxStringLen is the overflow boundary for the 24-bit length field.
	maxStringLen = 1 << 24
	lengthBits   = 24
	lengthMask   = uint64(1)<<lengthBits - 1
)

// IndexedPackedStrings is the dense string-column encoding: an append-only
// byte arena plus one uint64 per row packing (offset:40, length:24). Offsets
// are monotonically non-decreasing by insertion order.
type IndexedPackedStrings struct {
	arena []byte
	data  []uint64
}

func NewIndexedPackedStrings() *IndexedPackedStrings {
	return &IndexedPackedStrings{}
}

// Push appends one string, returning a Fatal/Overflow error if the arena or
// the string itself would exceed the 40/24-bit packed budget.
func (p *IndexedPackedStrings) Push(s string) error {
	offset := len(p.arena)
	if offset >= maxArenaBytes {
		return coreerr.NewOverflow("packed string arena exceeds 2^40 bytes")
	}
	if len(s) >= maxStringLen {
		return coreerr.NewOverflow("packed string length exceeds 2^24 bytes")
	}
	p.arena = append(p.arena, s...)
	p.data = append(p.data, uint64(offset)<<lengthBits|uint64(len(s)))
	return nil
}

func (p *IndexedPackedStrings) Len() int { return len(p.data) }

// Get returns the string at row i. It is a read-only view into the arena;
// callers must not mutate the returned string's backing bytes (Go strings
// are already immutable, so this is safe).
func (p *IndexedPackedStrings) Get(i int) string {
	entry := p.data[i]
	length := entry & lengthMask
	offset := entry >> lengthBits
	return string(p.arena[offset : offset+length])
}

// Iter yields every string in insertion order. Provided alongside Get for
// symmetry with the streaming Packed* encodings and for merge/scan code that
// wants to walk the whole column once.
func (p *IndexedPackedStrings) Iter(fn func(i int, s string) bool) {
	for i := range p.data {
		if !fn(i, p.Get(i)) {
			return
		}
	}
}

// ArenaBytes reports the heap footprint of the backing byte arena, used by
// MixedCol/Column heap-byte accounting and by the LRU's memory bookkeeping.
func (p *IndexedPackedStrings) ArenaBytes() int { return len(p.arena) }

// indexedPackedStringsWire is the gob wire form of IndexedPackedStrings;
// arena/data are unexported so gob can't see them directly.
type indexedPackedStringsWire struct {
	Arena []byte
	Data  []uint64
}

func (p *IndexedPackedStrings) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(indexedPackedStringsWire{Arena: p.arena, Data: p.data}); err != nil {
		return nil, coreerr.WrapIo("indexed packed strings: encode", err)
	}
	return buf.Bytes(), nil
}

func (p *IndexedPackedStrings) GobDecode(data []byte) error {
	var wire indexedPackedStringsWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wire); err != nil {
		return coreerr.WrapIo("indexed packed strings: decode", err)
	}
	p.arena = wire.Arena
	p.data = wire.Data
	return nil
}
