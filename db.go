// Package treestore is the embedded, single-process key/value store
// described by this module: a fixed-size paged file, a cyclic checksummed
// write-ahead log, and a copy-on-write B+-tree keyed by (table_id,
// key_bytes), coordinated so one Insert/Remove is atomic with respect to
// crashes. DB is the facade over internal/pageio, internal/wal,
// internal/rt, internal/btree and internal/value; it binds no semantics of
// its own beyond key validation, value-chain lifecycle and the
// commit-ordering contract (flush staged pages, fsync, then the WAL
// record).
package treestore

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/nainya/treestore/errs"
	"github.com/nainya/treestore/internal/btree"
	"github.com/nainya/treestore/internal/cipher"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/metrics"
	"github.com/nainya/treestore/internal/pageio"
	"github.com/nainya/treestore/internal/rt"
	"github.com/nainya/treestore/internal/value"
	"github.com/nainya/treestore/internal/wal"
)

// DB is an open store. The zero value is not usable; construct one with
// Open. A DB is safe for concurrent use by multiple goroutines: reads
// (Retrieve, Iterator) run lock-free against the current committed root,
// writes (Insert, Remove) serialize through the WAL's internal mutex.
type DB struct {
	path string
	file *pageio.File
	wal  *wal.Wal

	log     zerolog.Logger
	metrics *metrics.Collector

	mu     sync.Mutex
	closed bool
}

// Open opens the database at path, creating it if absent. A freshly
// created file bootstraps a new WAL ring; an existing file is recovered to
// its latest valid WAL record.
func Open(path string, opts Options) (*DB, error) {
	start := time.Now()

	dataOffset := int64(0)
	if opts.Cipher != nil {
		dataOffset = cipher.HeaderSize
	}

	f, created, err := pageio.Open(path, opts.ioOptions(), cipher.Plain{}, dataOffset)
	if err != nil {
		return nil, fmt.Errorf("treestore: open %s: %w", path, err)
	}

	if opts.Cipher != nil {
		if err := installCipher(f, *opts.Cipher, created); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	w, err := wal.Open(f, created)
	if err != nil {
		_ = f.Close()
		logger.LogOpen(opts.Logger, path, created, time.Since(start), err)
		return nil, err
	}

	db := &DB{path: path, file: f, wal: w, log: opts.Logger}
	if !created {
		logger.LogRecover(opts.Logger, w.Seq(), nil)
	}
	logger.LogOpen(opts.Logger, path, created, time.Since(start), nil)
	return db, nil
}

// installCipher writes (created) or unseals (recovered) the sealed-cipher
// header and installs the resulting per-page cipher on f. It runs before
// wal.Open so every subsequent page I/O on f is already decrypted/encrypted
// at the boundary.
func installCipher(f *pageio.File, params CipherParams, created bool) error {
	secret := cipher.Secret{Passphrase: params.Passphrase, Time: params.Time, Memory: params.Memory, Key: params.Key}

	if created {
		ciph, header, err := cipher.Create(secret)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrBadCipher, err)
		}
		if err := f.WriteHeader(header); err != nil {
			return err
		}
		f.SetCipher(ciph)
		return nil
	}

	header, err := f.ReadHeader(cipher.HeaderSize)
	if err != nil {
		return err
	}
	ciph, err := cipher.Open(header, secret)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrBadCipher, err)
	}
	f.SetCipher(ciph)
	return nil
}

// Metrics returns the DB's Prometheus collector, or nil if metrics were
// never enabled. An embedding process registers it against its own
// prometheus.Registerer via EnableMetrics.
func (db *DB) Metrics() *metrics.Collector { return db.metrics }

// EnableMetrics builds and attaches a Collector registered against reg.
// Metrics are opt-in: a DB with no embedding process watching Prometheus
// pays no promauto registration cost.
func (db *DB) EnableMetrics(reg prometheus.Registerer) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.metrics = metrics.NewCollector(reg)
}

// Close unmaps and closes the underlying file; every commit has already
// been fsynced. A second call does nothing and returns errs.ErrClosed.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errs.ErrClosed
	}
	db.closed = true
	return db.file.Close()
}

func (db *DB) checkOpen() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errs.ErrClosed
	}
	return nil
}

func checkKey(key []byte) error {
	if len(key) > btree.MaxKeyBytes {
		return errs.ErrKeyTooLong
	}
	return nil
}

// countingOp wraps a *wal.Op so Insert/Remove can report page-allocation
// traffic to metrics without internal/rt or internal/wal needing to know
// about Prometheus.
type countingOp struct {
	*wal.Op
	allocs, frees int
}

func (c *countingOp) Alloc() uint32 {
	c.allocs++
	return c.Op.Alloc()
}

func (c *countingOp) Free(p uint32) {
	c.frees++
	c.Op.Free(p)
}

// ValuePtr addresses a stored value's chained pages (a MetadataPage plus
// however many DataPages it took). It is valid only while the value remains
// reachable from the tree -- i.e. until a later Insert/Remove on the same
// key supersedes it.
type ValuePtr struct {
	db  *DB
	ptr uint32
}

// Len returns the value's total byte length.
func (v ValuePtr) Len() int {
	view := v.db.file.View()
	defer view.Release()
	return value.Len(view.Page, v.ptr)
}

// Bytes returns a copy of the full value.
func (v ValuePtr) Bytes() []byte {
	view := v.db.file.View()
	defer view.Release()
	return value.Read(view.Page, v.ptr)
}

// ReadAt copies len(buf) bytes starting at offset into buf. It panics if
// offset+len(buf) exceeds Len().
func (v ValuePtr) ReadAt(offset int, buf []byte) {
	view := v.db.file.View()
	defer view.Release()
	value.ReadAt(view.Page, v.ptr, offset, buf)
}

// Insert stores val under (tableID, key), creating the entry if absent or
// replacing the value of an existing one (an Insert of a key already
// present is an update, never a duplicate-key error -- see DESIGN.md). It
// returns a ValuePtr addressing the newly committed value.
func (db *DB) Insert(tableID uint32, key, val []byte) (ValuePtr, error) {
	if err := db.checkOpen(); err != nil {
		return ValuePtr{}, err
	}
	if err := checkKey(key); err != nil {
		return ValuePtr{}, err
	}

	start := time.Now()
	walOp := db.wal.Begin()
	op := &countingOp{Op: walOp}

	view := db.file.View()
	rtx := rt.New(view, op, op)

	k := btree.Key{TableID: tableID, Bytes: key}
	oldPtr, existed := btree.Get(rtx.Look, op.Head(), k)

	newValPtr := value.Write(rtx, val)
	newRoot := btree.Insert(rtx, op.Head(), k, newValPtr)
	if existed {
		value.Free(rtx, oldPtr)
	}
	view.Release()

	if err := rtx.Flush(db.file); err != nil {
		op.Abort()
		return ValuePtr{}, fmt.Errorf("treestore: insert: %w", err)
	}
	if err := op.Commit(db.file, newRoot); err != nil {
		return ValuePtr{}, fmt.Errorf("treestore: insert: %w", err)
	}

	db.observeCommit("insert", op, time.Since(start), nil)
	return ValuePtr{db: db, ptr: newValPtr}, nil
}

// Retrieve looks up (tableID, key) and reports whether it is present.
// Retrieve reads through the current committed root without taking the
// WAL's write mutex, so it never blocks on or is blocked by a concurrent
// Insert/Remove.
func (db *DB) Retrieve(tableID uint32, key []byte) (ValuePtr, bool, error) {
	if err := db.checkOpen(); err != nil {
		return ValuePtr{}, false, err
	}
	if err := checkKey(key); err != nil {
		return ValuePtr{}, false, err
	}

	head := db.wal.CurrentHead()
	view := db.file.View()
	defer view.Release()

	k := btree.Key{TableID: tableID, Bytes: key}
	ptr, ok := btree.Get(view.Page, head, k)
	if !ok {
		return ValuePtr{}, false, nil
	}
	return ValuePtr{db: db, ptr: ptr}, true, nil
}

// Remove deletes (tableID, key) if present, freeing its value chain in the
// same commit that drops it from the tree, and returns a copy of the bytes
// it held. The bytes are copied out before the chain is freed: handing
// back a ValuePtr whose pages this same commit frees would let a later
// Insert silently reuse and overwrite them underneath the caller -- see
// DESIGN.md.
func (db *DB) Remove(tableID uint32, key []byte) ([]byte, bool, error) {
	if err := db.checkOpen(); err != nil {
		return nil, false, err
	}
	if err := checkKey(key); err != nil {
		return nil, false, err
	}

	start := time.Now()
	walOp := db.wal.Begin()
	op := &countingOp{Op: walOp}

	view := db.file.View()
	rtx := rt.New(view, op, op)

	k := btree.Key{TableID: tableID, Bytes: key}
	newRoot, valPtr, ok := btree.Remove(rtx, op.Head(), k)
	if !ok {
		view.Release()
		op.Abort()
		return nil, false, nil
	}

	removed := value.Read(rtx.Look, valPtr)
	value.Free(rtx, valPtr)
	view.Release()

	if err := rtx.Flush(db.file); err != nil {
		op.Abort()
		return nil, false, fmt.Errorf("treestore: remove: %w", err)
	}
	if err := op.Commit(db.file, newRoot); err != nil {
		return nil, false, fmt.Errorf("treestore: remove: %w", err)
	}

	db.observeCommit("remove", op, time.Since(start), nil)
	return removed, true, nil
}

func (db *DB) observeCommit(operation string, op *countingOp, dur time.Duration, err error) {
	logger.LogCommit(db.log, operation, op.CommittedSeq(), dur, err)
	if op.Rotated() {
		if db.metrics != nil {
			db.metrics.WalRotationsTotal.Inc()
		}
	}
	linked, pulled := op.FreelistTraffic()
	logger.LogFreelistRebalance(db.log, linked, pulled)
	if db.metrics != nil {
		db.metrics.ObserveCommit(operation, dur)
		db.metrics.ObservePages(op.allocs, op.frees)
		db.metrics.ObserveFreelistRebalance(linked, pulled, op.FreelistCacheLen())
		db.metrics.SetSizePages(db.file.PageCount())
	}
}
