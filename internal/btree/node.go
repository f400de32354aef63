package btree

import (
	"encoding/binary"

	"github.com/nainya/treestore/internal/rt"
)

// K is the minimum slot occupancy for a non-root node; a node may donate a
// slot to a sibling only while it has more than K entries.
const K = M / 2

// maxKeyChunks is the number of 16-byte rows chained across key pages, so
// the longest representable key is maxKeyChunks*16 = 1024 bytes.
const maxKeyChunks = 64

// MaxKeyBytes is the longest key representable by a node's chained key
// pages.
const MaxKeyBytes = maxKeyChunks * 16

// Node page layout, little-endian throughout: the per-slot child, key
// length and table id columns, the key-page chain, then the stem flag and
// slot count. A freshly grown, all-zero page reads as an empty leaf, which
// is exactly what the WAL bootstrap root needs to be.
const (
	childOff    = 0
	keyLenOff   = childOff + 4*M
	tableIDOff  = keyLenOff + 2*M
	keyPagesOff = tableIDOff + 4*M
	stemOff     = keyPagesOff + 4*maxKeyChunks
	countOff    = stemOff + 2
)

// node wraps a page's bytes with typed accessors. Stem distinguishes
// branch (!=0) from leaf (==0). For a leaf, child(i) addresses a
// MetadataPage (the value head) and slot i holds a real entry; for a
// branch, child(i) addresses a child node and slot i's key is the lower
// bound at or above which child(i) is reached (slot 0's key is never
// compared against -- it is the implicit "-infinity" sentinel for the
// leftmost child).
type node []byte

func (n node) stem() uint16 { return binary.LittleEndian.Uint16(n[stemOff:]) }
func (n node) setStem(v uint16) { binary.LittleEndian.PutUint16(n[stemOff:], v) }

func (n node) count() int { return int(binary.LittleEndian.Uint16(n[countOff:])) }
func (n node) setCount(v int) { binary.LittleEndian.PutUint16(n[countOff:], uint16(v)) }

func (n node) child(i int) uint32 { return binary.LittleEndian.Uint32(n[childOff+4*i:]) }
func (n node) setChild(i int, v uint32) { binary.LittleEndian.PutUint32(n[childOff+4*i:], v) }

func (n node) keyLen(i int) int { return int(binary.LittleEndian.Uint16(n[keyLenOff+2*i:])) }
func (n node) setKeyLen(i, v int) { binary.LittleEndian.PutUint16(n[keyLenOff+2*i:], uint16(v)) }

func (n node) tableID(i int) uint32 { return binary.LittleEndian.Uint32(n[tableIDOff+4*i:]) }
func (n node) setTableID(i int, v uint32) { binary.LittleEndian.PutUint32(n[tableIDOff+4*i:], v) }

func (n node) keyPage(c int) uint32 { return binary.LittleEndian.Uint32(n[keyPagesOff+4*c:]) }
func (n node) setKeyPage(c int, v uint32) { binary.LittleEndian.PutUint32(n[keyPagesOff+4*c:], v) }

// isLeaf reports whether n is a leaf node.
func (n node) isLeaf() bool { return n.stem() == 0 }

// keypage wraps a key page's bytes: one 16-byte row per node slot. A
// node's full key at slot i is the concatenation of row i across the
// node's key-page chain, truncated to keyLen(i) bytes.
type keypage []byte

func (kp keypage) row(i int) []byte { return kp[16*i : 16*(i+1)] }

// Key is the composite (table_id, key_bytes) ordering key, compared
// lexicographically on (TableID, Bytes) by Compare.
type Key struct {
	TableID uint32
	Bytes   []byte
}

// insertKeyAt returns a copy of keys with k inserted before index idx.
func insertKeyAt(keys []Key, idx int, k Key) []Key {
	out := make([]Key, 0, len(keys)+1)
	out = append(out, keys[:idx]...)
	out = append(out, k)
	out = append(out, keys[idx:]...)
	return out
}

// insertU32At returns a copy of vals with v inserted before index idx.
func insertU32At(vals []uint32, idx int, v uint32) []uint32 {
	out := make([]uint32, 0, len(vals)+1)
	out = append(out, vals[:idx]...)
	out = append(out, v)
	out = append(out, vals[idx:]...)
	return out
}

// removeKeyAt returns a copy of keys with the entry at idx dropped.
func removeKeyAt(keys []Key, idx int) []Key {
	out := make([]Key, 0, len(keys)-1)
	out = append(out, keys[:idx]...)
	out = append(out, keys[idx+1:]...)
	return out
}

// removeU32At returns a copy of vals with the entry at idx dropped.
func removeU32At(vals []uint32, idx int) []uint32 {
	out := make([]uint32, 0, len(vals)-1)
	out = append(out, vals[:idx]...)
	out = append(out, vals[idx+1:]...)
	return out
}

// readKeys materializes every live key in n by reading its key-page chain
// through look (typically rt.Rt.Look, so a staged page is seen if this
// operation already touched it). The returned keys own their bytes; they
// stay valid after the chain is rewritten or freed.
func readKeys(n node, look func(uint32) []byte) []Key {
	keys := make([]Key, n.count())
	for idx := range keys {
		length := n.keyLen(idx)
		buf := make([]byte, length)
		chunks := (length + 15) / 16
		for c := 0; c < chunks; c++ {
			kp := keypage(look(n.keyPage(c)))
			start := c * 16
			end := start + 16
			if end > length {
				end = length
			}
			copy(buf[start:end], kp.row(idx)[:end-start])
		}
		keys[idx] = Key{TableID: n.tableID(idx), Bytes: buf}
	}
	return keys
}

// readChild materializes n's child column for its live slots.
func readChild(n node) []uint32 {
	child := make([]uint32, n.count())
	for i := range child {
		child[i] = n.child(i)
	}
	return child
}

// writeNode lays keys and child back into n, reallocating the key-page
// chain as needed: every structural change to a node (insert, remove,
// split, merge, donate) rewrites the full chain through this function, so
// mutations always land on private copies of the key pages.
func writeNode(rtx *rt.Rt, n node, keys []Key, child []uint32) {
	n.setCount(len(keys))
	for i, c := range child {
		n.setChild(i, c)
	}

	maxChunks := 0
	for idx, k := range keys {
		n.setTableID(idx, k.TableID)
		n.setKeyLen(idx, len(k.Bytes))
		if c := (len(k.Bytes) + 15) / 16; c > maxChunks {
			maxChunks = c
		}
	}

	for c := 0; c < maxChunks; c++ {
		var buf []byte
		if n.keyPage(c) == 0 {
			ptr, b := rtx.Create()
			n.setKeyPage(c, ptr)
			buf = b
		} else {
			ptr, b := rtx.Mutate(n.keyPage(c))
			n.setKeyPage(c, ptr)
			buf = b
		}
		kp := keypage(buf)
		for idx, k := range keys {
			start := c * 16
			if start >= len(k.Bytes) {
				continue
			}
			end := start + 16
			if end > len(k.Bytes) {
				end = len(k.Bytes)
			}
			copy(kp.row(idx), k.Bytes[start:end])
		}
	}
	for c := maxChunks; c < maxKeyChunks; c++ {
		if p := n.keyPage(c); p != 0 {
			rtx.FreePage(p)
			n.setKeyPage(c, 0)
		}
	}
}
