// Package wal is the cyclic, checksummed write-ahead log: a fixed ring of
// RingSize record pages holding the committed free-list cache, on-disk
// free-list head and B+-tree root. Slots are written round-robin; among
// the slots whose checksum matches, the one with the highest sequence
// number is authoritative, so a torn record write is simply skipped on
// recovery and the previous commit stands.
package wal

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nainya/treestore/errs"
	"github.com/nainya/treestore/internal/freelist"
	"github.com/nainya/treestore/internal/pageio"
	"github.com/nainya/treestore/page"
)

// Wal tracks the currently committed record. Writers serialize through mu;
// readers load the committed B+-tree root through headAtomic without ever
// taking mu, matching the "lock-free reader" concurrency model.
type Wal struct {
	mu  sync.Mutex
	cur record

	headAtomic atomic.Uint32
}

// Open either bootstraps a fresh ring (created == true) or scans the
// existing ring for the highest-seq valid record.
func Open(f *pageio.File, created bool) (*Wal, error) {
	if created {
		return bootstrap(f)
	}
	return recover_(f)
}

func bootstrap(f *pageio.File) (*Wal, error) {
	if _, err := f.Grow(RingSize); err != nil {
		return nil, fmt.Errorf("wal: grow ring: %w", err)
	}
	head, err := f.Grow(1)
	if err != nil {
		return nil, fmt.Errorf("wal: grow root: %w", err)
	}
	// Write the empty root explicitly: under a page cipher a merely grown
	// page decrypts to noise rather than to the all-zero empty leaf.
	if err := f.Write(head, make([]byte, page.Size)); err != nil {
		return nil, fmt.Errorf("wal: write root: %w", err)
	}
	first, err := f.Grow(freelist.Capacity)
	if err != nil {
		return nil, fmt.Errorf("wal: grow freelist cache: %w", err)
	}

	var cache freelist.Cache
	for i := uint32(0); i < freelist.Capacity; i++ {
		cache.Push(first + i)
	}

	rec := record{
		Seq:      RingSize - 1,
		Size:     f.PageCount(),
		Freelist: 0,
		Head:     head,
	}
	rec.setCache(cache)

	w := &Wal{cur: rec}
	for slot := uint32(0); slot < RingSize; slot++ {
		r := record{Seq: uint64(slot)}
		if slot == RingSize-1 {
			r = rec
		}
		if err := writeSlot(f, slot, &r); err != nil {
			return nil, err
		}
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("wal: bootstrap sync: %w", err)
	}
	w.headAtomic.Store(head)
	return w, nil
}

func recover_(f *pageio.File) (*Wal, error) {
	view := f.View()
	found := false
	var best record
	for slot := uint32(0); slot < RingSize; slot++ {
		r, ok := decodeRecord(view.Page(slot + 1))
		if !ok {
			continue
		}
		if !found || r.Seq > best.Seq {
			best = r
			found = true
		}
	}
	view.Release()
	if !found {
		return nil, errs.ErrBadWAL
	}

	// Unroll: any pages past the committed size are half-written
	// allocations from a crashed commit and are discarded.
	if err := f.Truncate(best.Size); err != nil {
		return nil, fmt.Errorf("wal: unroll to %d pages: %w", best.Size, err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("wal: unroll sync: %w", err)
	}

	w := &Wal{cur: best}
	w.headAtomic.Store(best.Head)
	return w, nil
}

// Seq returns the sequence number of the currently committed record.
func (w *Wal) Seq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur.Seq
}

// CurrentHead returns the last committed B+-tree root, safe to call
// without holding any lock: readers race only against a writer's atomic
// store, never against a half-written value.
func (w *Wal) CurrentHead() uint32 { return w.headAtomic.Load() }

func writeSlot(f *pageio.File, slot uint32, r *record) error {
	return f.Write(slot+1, r.marshal())
}

// Op is a single write operation's view of the free-list: Alloc pops from
// the cache committed by the previous operation ("old"), Free pushes into a
// fresh cache started empty for this operation ("new"). Committing rebalances
// the two into the next record's cache, linking any overflow onto the
// on-disk free list and pulling from it (or growing the file) to keep the
// new cache topped up.
type Op struct {
	wal  *Wal
	old  freelist.Cache
	new  freelist.Cache
	head uint32 // working copy of the on-disk free-list head

	committedSeq  uint64 // set by Commit; valid only after Commit returns nil
	linked, pulled int   // free-list rebalance traffic this commit performed
	rotated       bool   // true if this commit wrapped the ring back to slot 0
}

// CommittedSeq returns the WAL sequence number this operation committed,
// valid only after a successful Commit.
func (op *Op) CommittedSeq() uint64 { return op.committedSeq }

// FreelistCacheLen returns how many pages the committed cache held after
// this operation's rebalance, valid only after a successful Commit.
func (op *Op) FreelistCacheLen() int { return int(op.new.Len()) }

// FreelistTraffic returns how many pages this commit linked onto the
// on-disk free list and pulled from it (or grew to obtain), valid only
// after a successful Commit.
func (op *Op) FreelistTraffic() (linked, pulled int) { return op.linked, op.pulled }

// Rotated reports whether this commit wrapped the WAL ring back to slot 0,
// valid only after a successful Commit.
func (op *Op) Rotated() bool { return op.rotated }

// Begin acquires the WAL's write lock, serializing this operation against
// every other writer for the life of the Op.
func (w *Wal) Begin() *Op {
	w.mu.Lock()
	return &Op{
		wal:  w,
		old:  w.cur.cache(),
		head: w.cur.Freelist,
	}
}

// Alloc implements rt.Alloc.
func (op *Op) Alloc() uint32 { return op.old.Alloc() }

// Free implements rt.Free.
func (op *Op) Free(p uint32) { op.new.Free(p) }

// Head returns the B+-tree root this operation should descend from.
func (op *Op) Head() uint32 { return op.wal.cur.Head }

// Abort releases the write lock without committing, e.g. because the
// operation found nothing to change.
func (op *Op) Abort() { op.wal.mu.Unlock() }

// Commit rebalances the free-list cache, writes the next ring slot and
// fsyncs it. Callers must have already flushed every staged page (via
// rt.Rt.Flush) before calling Commit, so the WAL never points at a root
// whose pages are not yet durable.
func (op *Op) Commit(f *pageio.File, newHead uint32) error {
	defer op.wal.mu.Unlock()

	for {
		p, ok := op.old.Pop()
		if !ok {
			break
		}
		if !op.new.Push(p) {
			if err := op.linkFree(f, p); err != nil {
				return err
			}
		}
	}
	for !op.new.Full() {
		p, err := op.allocFromDisk(f)
		if err != nil {
			return err
		}
		op.new.Push(p)
	}

	// Barrier between the operation's data (staged pages flushed by the
	// caller, free-list link writes, file growth) and the record that
	// makes them reachable. Until the record write below lands, the
	// previous slot stays authoritative, so a crash on either side of
	// this sync recovers to a consistent commit.
	if err := f.Sync(); err != nil {
		return fmt.Errorf("wal: rebalance sync: %w", err)
	}

	next := record{
		Seq:      op.wal.cur.Seq + 1,
		Size:     f.PageCount(),
		Freelist: op.head,
		Head:     newHead,
	}
	next.setCache(op.new)

	slot := uint32(next.Seq % RingSize)
	if err := writeSlot(f, slot, &next); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("wal: commit sync: %w", err)
	}

	op.wal.cur = next
	op.wal.headAtomic.Store(newHead)
	op.committedSeq = next.Seq
	op.rotated = slot == 0 && next.Seq >= RingSize
	return nil
}

// linkFree pushes page p onto the on-disk free list, which can hold
// unbounded overflow beyond the cache's fixed capacity.
func (op *Op) linkFree(f *pageio.File, p uint32) error {
	var next [4]byte
	binary.LittleEndian.PutUint32(next[:], op.head)
	if err := f.Write(p, next[:]); err != nil {
		return fmt.Errorf("wal: link free page %d: %w", p, err)
	}
	op.head = p
	op.linked++
	op.checkRebalanceBudget()
	return nil
}

// allocFromDisk pulls a page off the on-disk free list, or grows the file
// by one page if the list is empty.
func (op *Op) allocFromDisk(f *pageio.File) (uint32, error) {
	op.pulled++
	op.checkRebalanceBudget()
	if op.head == 0 {
		return f.Grow(1)
	}
	view := f.View()
	p := op.head
	next := binary.LittleEndian.Uint32(view.Page(p)[:4])
	view.Release()
	op.head = next
	return p, nil
}

// checkRebalanceBudget enforces the one-cycle bound on a commit's
// free-list traffic: moving RingSize-1 or more pages means a single
// operation allocated or freed more than the ring can absorb before its
// own slot comes around again, which is a programmer error, not a state
// the on-disk format can represent.
func (op *Op) checkRebalanceBudget() {
	if op.linked+op.pulled >= RingSize-1 {
		panic("treestore: free-list rebalance exceeded one WAL cycle")
	}
}
