// Package value is the variable-size value layer addressed by a leaf's
// child pointer: a MetadataPage heads the value, holding its total length
// plus as many bytes as fit inline, and chains to DataPages for the
// remainder, the same chained-page idiom internal/btree uses for key pages.
package value

import (
	"encoding/binary"

	"github.com/nainya/treestore/internal/rt"
	"github.com/nainya/treestore/page"
)

// MetadataPage layout, little-endian: total value length, the pointer to
// the first DataPage (0 = none), then inline value bytes. DataPage layout:
// the next-page pointer, then payload bytes.
const (
	metaLengthOff = 0
	metaNextOff   = 8
	metaDataOff   = 12
	metaInlineCap = page.Size - metaDataOff

	dataNextOff = 0
	dataDataOff = 4
	dataCap     = page.Size - dataDataOff
)

// Write stages a fresh MetadataPage (+ however many DataPages it takes) to
// hold data, and returns the MetadataPage's page number. The caller commits
// it into the tree (as a leaf's child pointer) in the same operation.
func Write(rtx *rt.Rt, data []byte) uint32 {
	ptr, buf := rtx.Create()
	binary.LittleEndian.PutUint64(buf[metaLengthOff:], uint64(len(data)))

	n := copy(buf[metaDataOff:], data)
	rest := data[n:]

	prev, prevNextOff := buf, metaNextOff
	for len(rest) > 0 {
		dptr, dbuf := rtx.Create()
		binary.LittleEndian.PutUint32(prev[prevNextOff:], dptr)
		k := copy(dbuf[dataDataOff:], rest)
		rest = rest[k:]
		prev, prevNextOff = dbuf, dataNextOff
	}
	return ptr
}

// Len returns the total byte length of the value at ptr.
func Len(look func(uint32) []byte, ptr uint32) int {
	return int(binary.LittleEndian.Uint64(look(ptr)[metaLengthOff:]))
}

// Read returns a copy of the full value at ptr.
func Read(look func(uint32) []byte, ptr uint32) []byte {
	meta := look(ptr)
	out := make([]byte, binary.LittleEndian.Uint64(meta[metaLengthOff:]))
	n := copy(out, meta[metaDataOff:])
	next := binary.LittleEndian.Uint32(meta[metaNextOff:])
	for n < len(out) {
		d := look(next)
		n += copy(out[n:], d[dataDataOff:])
		next = binary.LittleEndian.Uint32(d[dataNextOff:])
	}
	return out
}

// ReadAt copies len(buf) bytes of the value at ptr starting at offset into
// buf. The caller must ensure offset+len(buf) <= Len(look, ptr).
func ReadAt(look func(uint32) []byte, ptr uint32, offset int, buf []byte) {
	full := Read(look, ptr)
	copy(buf, full[offset:offset+len(buf)])
}

// Free releases every page in the chain headed by ptr.
func Free(rtx *rt.Rt, ptr uint32) {
	next := binary.LittleEndian.Uint32(rtx.Look(ptr)[metaNextOff:])
	rtx.FreePage(ptr)
	for next != 0 {
		follow := binary.LittleEndian.Uint32(rtx.Look(next)[dataNextOff:])
		rtx.FreePage(next)
		next = follow
	}
}
