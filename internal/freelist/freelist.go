// Package freelist is the per-commit free-page cache embedded in each WAL
// record; its on-disk counterpart (a singly linked chain of free pages,
// for overflow beyond the cache) lives in internal/wal.
package freelist

// Capacity is sized so a single mutation's peak allocation (a leaf split,
// a full height of branch splits, a new root, and the key pages any of
// those need) is always satisfiable from the cache without touching the
// on-disk free list. The separate bound on how many pages one commit's
// rebalance may move (fewer than wal.RingSize-1) is enforced in
// internal/wal.
const Capacity = 688

// Cache is a fixed-capacity LIFO stack of free page numbers. Pop is used by
// an allocator, Push by a page-free; both are O(1) and never allocate.
type Cache struct {
	Pages [Capacity]uint32
	Pos   uint32 // number of valid entries, also the next free slot index
}

// Len reports how many pages are currently cached.
func (c *Cache) Len() uint32 { return c.Pos }

// Full reports whether the cache has no room for another Push.
func (c *Cache) Full() bool { return c.Pos == Capacity }

// Empty reports whether the cache has nothing left to Pop.
func (c *Cache) Empty() bool { return c.Pos == 0 }

// Pop removes and returns the most recently pushed page. ok is false if the
// cache is empty.
func (c *Cache) Pop() (p uint32, ok bool) {
	if c.Pos == 0 {
		return 0, false
	}
	c.Pos--
	return c.Pages[c.Pos], true
}

// Push adds a page to the cache. ok is false if the cache is already full;
// the caller (the commit-time rebalance in internal/wal) must then link the
// page onto the on-disk free list instead.
func (c *Cache) Push(p uint32) (ok bool) {
	if c.Pos == Capacity {
		return false
	}
	c.Pages[c.Pos] = p
	c.Pos++
	return true
}

// Alloc implements the rt.Alloc contract: popping an empty cache is a bug,
// since the caller (internal/wal's per-operation "old" cache) is sized to
// satisfy every allocation a single mutation can make.
func (c *Cache) Alloc() uint32 {
	p, ok := c.Pop()
	if !ok {
		panic("treestore: free-list cache underflow")
	}
	return p
}

// Free implements the rt.Free contract for the per-operation "new" cache.
// The "new" cache starts empty for each operation, so pushing past
// Capacity means a single mutation freed more than Capacity pages, which
// is a bug.
func (c *Cache) Free(p uint32) {
	if !c.Push(p) {
		panic("treestore: free-list cache overflow")
	}
}
