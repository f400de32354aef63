// Package rt is the per-operation runtime coordinating copy-on-write page
// staging. It is a standalone type rather than part of the WAL or the tree
// so that the tree and the value layer share one staging discipline per
// mutation.
package rt

import (
	"fmt"

	"github.com/nainya/treestore/internal/pageio"
	"github.com/nainya/treestore/page"
)

// Alloc supplies fresh page numbers during an operation.
type Alloc interface {
	Alloc() uint32
}

// Free accepts page numbers no longer reachable after an operation.
type Free interface {
	Free(uint32)
}

// Rt stages every page a single Insert/Remove/value-write touches. No page
// is ever mutated in place: Create and Mutate both hand back a buffer that
// lives only in Staging until Flush, so a reader holding an older View
// never observes a half-finished mutation.
type Rt struct {
	View  *pageio.View
	Alloc Alloc
	Free  Free

	Staging map[uint32][]byte
}

// New builds a runtime over view, sourcing new pages from alloc and
// recycling freed ones into free.
func New(view *pageio.View, alloc Alloc, free Free) *Rt {
	return &Rt{
		View:    view,
		Alloc:   alloc,
		Free:    free,
		Staging: make(map[uint32][]byte),
	}
}

// Create allocates a new page and stages it as a zeroed buffer. A freshly
// grown page is already all-zero on disk (pageio.File.Grow zero-extends),
// and a recycled page may hold stale content from its previous life, so
// Create never copies from the view -- only Mutate does, for pages that
// are already reachable and need their prior content.
func (rt *Rt) Create() (uint32, []byte) {
	n := rt.Alloc.Alloc()
	buf := make([]byte, page.Size)
	rt.Staging[n] = buf
	return n, buf
}

// Mutate copy-on-writes an existing page: it allocates a fresh page number,
// copies old's current content into a staged buffer under the new number,
// and frees old. The caller must propagate the returned page number to
// whatever referenced old (a parent node's child slot, the tree root), since
// old's number is never reused for the same logical node again -- this is
// what makes the tree copy-on-write: a reader holding an older root never
// sees old's slot change underneath it, because old is only physically
// overwritten once some later operation reallocates its number for an
// unrelated page.
func (rt *Rt) Mutate(old uint32) (uint32, []byte) {
	buf := make([]byte, page.Size)
	copy(buf, rt.Look(old))
	n := rt.Alloc.Alloc()
	rt.Staging[n] = buf
	rt.FreePage(old)
	return n, buf
}

// Look returns a read-only view of page n: the staged buffer if this
// operation already touched it, otherwise the page straight from the view.
func (rt *Rt) Look(n uint32) []byte {
	if buf, ok := rt.Staging[n]; ok {
		return buf
	}
	return rt.View.Page(n)
}

// FreePage marks page n as no longer reachable and returns its number to
// the free cache. A page staged only within this operation (created and
// then discarded, e.g. a node copy superseded by a second mutation of the
// same logical node) additionally drops its staging buffer so Flush never
// writes it; the number itself still goes back to the cache, since it was
// allocated from there and the next operation may reuse it.
func (rt *Rt) FreePage(n uint32) {
	delete(rt.Staging, n)
	rt.Free.Free(n)
}

// Flush writes every staged page to f. Callers commit the WAL record only
// after Flush succeeds, so a crash between Flush and the WAL write leaves
// the prior commit's head still valid.
func (rt *Rt) Flush(f *pageio.File) error {
	for n, buf := range rt.Staging {
		if err := f.Write(n, buf); err != nil {
			return fmt.Errorf("rt: flush page %d: %w", n, err)
		}
	}
	return nil
}
