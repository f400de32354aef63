package btree

// frame is one level of an iterator's descend stack: the same shape insert
// and remove use (ptr/keys/child), plus the slot currently being visited.
type frame struct {
	ptr   uint32
	keys  []Key
	child []uint32
	leaf  bool
	idx   int
}

// Iterator walks a tree snapshot in (table_id, bytes) order without
// mutating it: it holds the same descend-stack shape as Insert/Remove,
// and Next pops frames until one has a successor sibling then descends
// leftmost (forward) or rightmost (reverse) to a leaf.
// Forward and reverse share this type, distinguished only by the
// direction idx is stepped and which end of each node seeding starts from.
// An Iterator reads a single, fixed root snapshot: it is valid only until
// the next mutation. The DB facade seeds a fresh Iterator for every
// NewIterator call and never re-seeds an open one.
type Iterator struct {
	look    func(uint32) []byte
	forward bool
	stack   []frame
}

// NewIterator seeds an iterator over rootPtr. If start is nil, iteration
// begins at the leftmost (forward) or rightmost (reverse) entry. Otherwise
// it begins at start if present, or the nearest entry in the iteration
// direction otherwise.
func NewIterator(look func(uint32) []byte, rootPtr uint32, start *Key, forward bool) *Iterator {
	it := &Iterator{look: look, forward: forward}
	if rootPtr == 0 {
		return it
	}
	it.seed(rootPtr, start)
	return it
}

func (it *Iterator) seed(ptr uint32, start *Key) {
	for {
		n := node(it.look(ptr))
		keys := readKeys(n, it.look)
		child := readChild(n)
		leaf := n.isLeaf()

		if leaf {
			idx := 0
			if start == nil {
				if !it.forward {
					idx = len(keys) - 1
				}
			} else {
				i, found := leafSearch(keys, *start)
				switch {
				case it.forward:
					idx = i
				case found:
					idx = i
				default:
					idx = i - 1
				}
			}
			it.stack = append(it.stack, frame{ptr: ptr, keys: keys, child: child, leaf: true, idx: idx})
			it.normalize()
			return
		}

		idx := 0
		switch {
		case start == nil:
			if !it.forward {
				idx = len(child) - 1
			}
		default:
			idx = branchChildIndex(keys, *start)
		}
		it.stack = append(it.stack, frame{ptr: ptr, keys: keys, child: child, leaf: false, idx: idx})
		ptr = child[idx]
	}
}

// descend pushes frames from ptr down to a leaf, entering each node at its
// leftmost (forward) or rightmost (reverse) slot.
func (it *Iterator) descend(ptr uint32) {
	for {
		n := node(it.look(ptr))
		keys := readKeys(n, it.look)
		child := readChild(n)
		leaf := n.isLeaf()

		count := len(child)
		if leaf {
			count = len(keys)
		}
		idx := 0
		if !it.forward {
			idx = count - 1
		}
		it.stack = append(it.stack, frame{ptr: ptr, keys: keys, child: child, leaf: leaf, idx: idx})
		if leaf {
			return
		}
		ptr = child[idx]
	}
}

// normalize pops any stack frames whose idx has run off the end of their
// slot range, climbing until a frame has a successor sibling to descend
// into, or the stack empties (iteration exhausted).
func (it *Iterator) normalize() {
	for len(it.stack) > 0 {
		top := it.stack[len(it.stack)-1]
		if top.idx >= 0 && top.idx < len(top.keys) {
			return
		}
		it.stack = it.stack[:len(it.stack)-1]
		if len(it.stack) == 0 {
			return
		}
		pi := len(it.stack) - 1
		if it.forward {
			it.stack[pi].idx++
		} else {
			it.stack[pi].idx--
		}
		if it.stack[pi].idx >= 0 && it.stack[pi].idx < len(it.stack[pi].child) {
			child := it.stack[pi].child[it.stack[pi].idx]
			it.descend(child)
			return
		}
	}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return len(it.stack) > 0 }

// Entry returns the key and value pointer at the iterator's current
// position. The caller must check Valid first.
func (it *Iterator) Entry() (Key, uint32) {
	top := it.stack[len(it.stack)-1]
	return top.keys[top.idx], top.child[top.idx]
}

// Next advances to the next entry in the iterator's direction and reports
// whether that position is valid.
func (it *Iterator) Next() bool {
	if !it.Valid() {
		return false
	}
	top := len(it.stack) - 1
	if it.forward {
		it.stack[top].idx++
	} else {
		it.stack[top].idx--
	}
	it.normalize()
	return it.Valid()
}
