package wal

import (
	"encoding/binary"
	"hash/crc64"

	"github.com/nainya/treestore/internal/freelist"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// RingSize is the number of record pages in the WAL ring; a record with
// sequence number seq lives at slot seq mod RingSize.
const RingSize = 256

// Record page layout, little-endian throughout: the checksum covers every
// byte after itself, so a slot torn anywhere mid-write fails validation
// and is skipped during recovery -- the sole corruption detector for a
// WAL slot.
const (
	recChecksumOff = 0
	recSeqOff      = 8
	recCachePosOff = 16
	recCacheOff    = 20
	recSizeOff     = recCacheOff + 4*freelist.Capacity
	recFreelistOff = recSizeOff + 4
	recHeadOff     = recFreelistOff + 4
	recordSize     = recHeadOff + 4
)

// record is the in-memory form of one WAL record: the sequence number, the
// committed free-list cache, the on-disk free-list head, the file size in
// pages and the B+-tree root.
type record struct {
	Seq        uint64
	CachePos   uint32
	CachePages [freelist.Capacity]uint32
	Size       uint32
	Freelist   uint32
	Head       uint32
}

func (r *record) cache() freelist.Cache {
	return freelist.Cache{Pages: r.CachePages, Pos: r.CachePos}
}

func (r *record) setCache(c freelist.Cache) {
	r.CachePages = c.Pages
	r.CachePos = c.Pos
}

// marshal encodes r and stamps the checksum over everything after it.
func (r *record) marshal() []byte {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint64(buf[recSeqOff:], r.Seq)
	binary.LittleEndian.PutUint32(buf[recCachePosOff:], r.CachePos)
	for i, p := range r.CachePages {
		binary.LittleEndian.PutUint32(buf[recCacheOff+4*i:], p)
	}
	binary.LittleEndian.PutUint32(buf[recSizeOff:], r.Size)
	binary.LittleEndian.PutUint32(buf[recFreelistOff:], r.Freelist)
	binary.LittleEndian.PutUint32(buf[recHeadOff:], r.Head)
	binary.LittleEndian.PutUint64(buf[recChecksumOff:], crc64.Checksum(buf[recSeqOff:], crcTable))
	return buf
}

// decodeRecord parses a record page; ok is false when the stored checksum
// does not match the content.
func decodeRecord(b []byte) (r record, ok bool) {
	r.Seq = binary.LittleEndian.Uint64(b[recSeqOff:])
	r.CachePos = binary.LittleEndian.Uint32(b[recCachePosOff:])
	for i := range r.CachePages {
		r.CachePages[i] = binary.LittleEndian.Uint32(b[recCacheOff+4*i:])
	}
	r.Size = binary.LittleEndian.Uint32(b[recSizeOff:])
	r.Freelist = binary.LittleEndian.Uint32(b[recFreelistOff:])
	r.Head = binary.LittleEndian.Uint32(b[recHeadOff:])

	stored := binary.LittleEndian.Uint64(b[recChecksumOff:])
	return r, stored == crc64.Checksum(b[recSeqOff:recordSize], crcTable)
}
