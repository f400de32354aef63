// Package errs holds the sentinel errors returned across the treestore
// package boundary. The DB facade and internal/wal return these either
// directly or wrapped with fmt.Errorf("...: %w", err), so callers can
// still errors.Is against them.
package errs

import "errors"

var (
	// ErrBadWAL is returned when no WAL slot in the ring holds a valid,
	// checksummed record on open.
	ErrBadWAL = errors.New("treestore: no valid WAL record")

	// ErrBadCipher is returned when the page cipher header cannot be
	// opened: wrong passphrase/key, or a corrupted header.
	ErrBadCipher = errors.New("treestore: cipher open failed")

	// ErrKeyTooLong is returned when a key exceeds the 1024-byte limit
	// representable across the chained key pages of a node.
	ErrKeyTooLong = errors.New("treestore: key exceeds 1024 bytes")

	// ErrDuplicateKey is not returned by any current operation: Insert of a
	// key that already exists updates its value.
	ErrDuplicateKey = errors.New("treestore: duplicate key during comparison")

	// ErrNotFound is not returned by Retrieve or Remove; they report an
	// absent key with ok == false and a nil error.
	ErrNotFound = errors.New("treestore: key not found")

	// ErrClosed is returned by any operation on a DB after Close.
	ErrClosed = errors.New("treestore: db is closed")
)
