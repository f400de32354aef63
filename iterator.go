package treestore

import (
	"math"

	"github.com/nainya/treestore/internal/btree"
)

// Iterator walks one table's keys in key-bytes order from the root
// committed when it was opened. It holds a pageio.View (a read lock on the
// file's mappings) for its entire lifetime and must be released with Close
// once the caller is done; until then the file cannot grow.
type Iterator struct {
	db      *DB
	view    interface{ Release() }
	tableID uint32
	it      *btree.Iterator
}

// NewIterator opens an iterator over tableID's keys, starting at start (or
// the table's first/last entry if start is nil) and walking forward or in
// reverse. The iterator reads the root committed at the moment it was
// opened. An Insert or Remove made while it is open may reuse pages of that
// root, so the iterator is valid only until the next mutation.
func (db *DB) NewIterator(tableID uint32, start []byte, forward bool) (*Iterator, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}

	head := db.wal.CurrentHead()
	view := db.file.View()

	// The tree holds every table's keys interleaved in (table_id, bytes)
	// order, so a nil start still seeds at a table boundary: the empty
	// key of tableID going forward, or the key just below tableID+1's
	// empty key going backward (for the last table, the global rightmost
	// entry already is the boundary).
	var startKey *btree.Key
	switch {
	case start != nil:
		startKey = &btree.Key{TableID: tableID, Bytes: start}
	case forward:
		startKey = &btree.Key{TableID: tableID}
	case tableID != math.MaxUint32:
		startKey = &btree.Key{TableID: tableID + 1}
	}

	inner := btree.NewIterator(view.Page, head, startKey, forward)
	if !forward && inner.Valid() {
		// Seeding on the next table's sentinel lands exactly on it when
		// a (tableID+1, "") key really exists; step back into our table.
		if k, _ := inner.Entry(); k.TableID > tableID {
			inner.Next()
		}
	}

	return &Iterator{
		db:      db,
		view:    view,
		tableID: tableID,
		it:      inner,
	}, nil
}

// Valid reports whether the iterator is positioned at an entry of its
// table. Walking past the table's first or last key ends the iteration even
// when other tables hold further entries.
func (it *Iterator) Valid() bool {
	if !it.it.Valid() {
		return false
	}
	k, _ := it.it.Entry()
	return k.TableID == it.tableID
}

// Next advances to the next entry in the iterator's direction and reports
// whether that position is still inside the table.
func (it *Iterator) Next() bool {
	it.it.Next()
	return it.Valid()
}

// Key returns the current entry's key bytes. The caller must check Valid
// first. TableID is omitted since an Iterator is always scoped to the
// table_id it was opened with.
func (it *Iterator) Key() []byte {
	k, _ := it.it.Entry()
	return k.Bytes
}

// Value returns a ValuePtr addressing the current entry's value.
func (it *Iterator) Value() ValuePtr {
	_, ptr := it.it.Entry()
	return ValuePtr{db: it.db, ptr: ptr}
}

// Close releases the page view this iterator pinned. It is safe to call
// Close more than once.
func (it *Iterator) Close() {
	if it.view != nil {
		it.view.Release()
		it.view = nil
	}
}
