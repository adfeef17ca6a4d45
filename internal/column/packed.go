package column

// PackedBytes is a length-prefixed streaming byte-blob encoding. Each value
// is written as a run of 0xFF bytes (each worth 255) followed by a final
// byte strictly less than 255 carrying the remainder, then the raw bytes
// themselves. Iteration is forward-only: there is no random access, which
// keeps the wire format simple for the WAL and the xor/sparse column
// encodings that borrow it.
type PackedBytes struct {
	data []byte
}

// NewPackedBytesWriter starts a fresh, empty encoding.
func NewPackedBytesWriter() *PackedBytes { return &PackedBytes{} }

// WriteBytes appends one value.
func (p *PackedBytes) WriteBytes(v []byte) {
	p.data = appendLength(p.data, len(v))
	p.data = append(p.data, v...)
}

// Bytes returns the encoded stream.
func (p *PackedBytes) Bytes() []byte { return p.data }

// PackedBytesFrom wraps an already-encoded stream (e.g. read off disk) for
// iteration.
func PackedBytesFrom(data []byte) *PackedBytes { return &PackedBytes{data: data} }

// Iter returns a forward-only iterator over the encoded values.
func (p *PackedBytes) Iter() *PackedBytesIter { return &PackedBytesIter{data: p.data} }

type PackedBytesIter struct {
	data []byte
	pos  int
}

// Next returns the next value, or ok=false once the stream is exhausted.
func (it *PackedBytesIter) Next() (v []byte, ok bool) {
	if it.pos >= len(it.data) {
		return nil, false
	}
	n, consumed := readLength(it.data[it.pos:])
	it.pos += consumed
	v = it.data[it.pos : it.pos+n]
	it.pos += n
	return v, true
}

// PackedStrings is PackedBytes specialized to valid UTF-8 strings.
type PackedStrings struct {
	inner *PackedBytes
}

func NewPackedStringsWriter() *PackedStrings { return &PackedStrings{inner: NewPackedBytesWriter()} }

func (p *PackedStrings) WriteString(s string) { p.inner.WriteBytes([]byte(s)) }

func (p *PackedStrings) Bytes() []byte { return p.inner.Bytes() }

func PackedStringsFrom(data []byte) *PackedStrings { return &PackedStrings{inner: PackedBytesFrom(data)} }

func (p *PackedStrings) Iter() *PackedStringsIter { return &PackedStringsIter{inner: p.inner.Iter()} }

type PackedStringsIter struct {
	inner *PackedBytesIter
}

func (it *PackedStringsIter) Next() (string, bool) {
	v, ok := it.inner.Next()
	if !ok {
		return "", false
	}
	return string(v), true
}

// appendLength writes n as a run of 255-valued bytes terminated by a final
// byte strictly less than 255.
func appendLength(buf []byte, n int) []byte {
	for n >= 255 {
		buf = append(buf, 255)
		n -= 255
	}
	return append(buf, byte(n))
}

// readLength reads a length prefix starting at data[0], returning the
// decoded length and the number of bytes consumed.
func readLength(data []byte) (n int, consumed int) {
	for {
		b := data[consumed]
		consumed++
		if b < 255 {
			n += int(b)
			return n, consumed
		}
		n += 255
	}
}
