// Package btree is the fixed-slot, copy-on-write B+-tree: every node
// mutated by an operation is staged under a freshly allocated page number
// (see internal/rt.Rt.Mutate) and the old number is freed, so a reader
// holding an older root never observes a node's slot change underneath it.
//
// Every node carries one key per child, for branches as well as leaves: a
// branch's keys[i] is a lower bound for everything reachable through
// child[i] (exact everywhere donate and merge need it), so rebalancing
// only ever moves (key, child) pairs verbatim and never needs to re-derive
// a subtree's minimum key by descending into it. A branch's keys[0] is
// never compared during descent; it stands in for negative infinity. See
// DESIGN.md.
//
// The tree has no parent pointers: every top-down operation keeps a stack
// of the nodes it descended through.
package btree

import "github.com/nainya/treestore/internal/rt"

// level is one stack frame built while descending to a leaf: the node's
// page number as found on the way down, plus its materialized keys/child
// columns and leaf flag.
type level struct {
	ptr   uint32
	keys  []Key
	child []uint32
	leaf  bool
}

func loadNode(rtx *rt.Rt, ptr uint32) (keys []Key, child []uint32, leaf bool) {
	n := node(rtx.Look(ptr))
	return readKeys(n, rtx.Look), readChild(n), n.isLeaf()
}

func descend(rtx *rt.Rt, rootPtr uint32, target Key) []level {
	var stack []level
	ptr := rootPtr
	for {
		keys, child, leaf := loadNode(rtx, ptr)
		stack = append(stack, level{ptr: ptr, keys: keys, child: child, leaf: leaf})
		if leaf {
			return stack
		}
		ptr = child[branchChildIndex(keys, target)]
	}
}

// Get looks up target starting from rootPtr, reading only through look
// (typically a pageio.View.Page or an in-flight rt.Rt.Look).
func Get(look func(uint32) []byte, rootPtr uint32, target Key) (uint32, bool) {
	ptr := rootPtr
	for {
		n := node(look(ptr))
		keys := readKeys(n, look)
		if n.isLeaf() {
			idx, found := leafSearch(keys, target)
			if !found {
				return 0, false
			}
			return n.child(idx), true
		}
		ptr = n.child(branchChildIndex(keys, target))
	}
}

func writeLevel(rtx *rt.Rt, oldPtr uint32, keys []Key, child []uint32, leaf bool) uint32 {
	newPtr, buf := rtx.Mutate(oldPtr)
	n := node(buf)
	if leaf {
		n.setStem(0)
	} else {
		n.setStem(1)
	}
	writeNode(rtx, n, keys, child)
	return newPtr
}

// splitIfNeeded writes keys/child back to oldPtr's slot, splitting into two
// nodes if the slot count exceeds M. A single insert only ever overflows a
// node by exactly one slot.
func splitIfNeeded(rtx *rt.Rt, oldPtr uint32, keys []Key, child []uint32, leaf bool) (newPtr uint32, promoted *Key, rightPtr uint32) {
	if len(keys) <= M {
		return writeLevel(rtx, oldPtr, keys, child, leaf), nil, 0
	}

	leftKeys, rightKeys := keys[:K], keys[K:]
	leftChild, rightChild := child[:K], child[K:]
	moved := rightKeys[0]

	newPtr = writeLevel(rtx, oldPtr, leftKeys, leftChild, leaf)
	rightPtr, rightBuf := rtx.Create()
	rn := node(rightBuf)
	if !leaf {
		rn.setStem(1)
	}
	writeNode(rtx, rn, rightKeys, rightChild)
	return newPtr, &moved, rightPtr
}

// Insert adds or updates key's value pointer and returns the new root.
func Insert(rtx *rt.Rt, rootPtr uint32, key Key, value uint32) uint32 {
	stack := descend(rtx, rootPtr, key)
	bottom := stack[len(stack)-1]
	idx, found := leafSearch(bottom.keys, key)

	var newPtr uint32
	var promoted *Key
	var rightPtr uint32
	var splitKeys []Key // the pre-split column, kept to seed a new root

	if found {
		child := append([]uint32(nil), bottom.child...)
		child[idx] = value
		newPtr = writeLevel(rtx, bottom.ptr, bottom.keys, child, true)
		splitKeys = bottom.keys
	} else {
		keys := insertKeyAt(bottom.keys, idx, key)
		child := insertU32At(bottom.child, idx, value)
		newPtr, promoted, rightPtr = splitIfNeeded(rtx, bottom.ptr, keys, child, true)
		splitKeys = keys
	}

	for i := len(stack) - 2; i >= 0; i-- {
		lvl := stack[i]
		idx := branchChildIndex(lvl.keys, key)
		keys := append([]Key(nil), lvl.keys...)
		child := append([]uint32(nil), lvl.child...)
		child[idx] = newPtr
		if promoted != nil {
			keys = insertKeyAt(keys, idx+1, *promoted)
			child = insertU32At(child, idx+1, rightPtr)
		}
		newPtr, promoted, rightPtr = splitIfNeeded(rtx, lvl.ptr, keys, child, false)
		splitKeys = keys
	}

	if promoted == nil {
		return newPtr
	}

	rootPtrNew, rootBuf := rtx.Create()
	root := node(rootBuf)
	root.setStem(1)
	writeNode(rtx, root, []Key{splitKeys[0], *promoted}, []uint32{newPtr, rightPtr})
	return rootPtrNew
}

// Remove deletes key and returns the new root, the removed value pointer,
// and whether key was present.
func Remove(rtx *rt.Rt, rootPtr uint32, key Key) (newRoot uint32, value uint32, ok bool) {
	stack := descend(rtx, rootPtr, key)
	bottom := stack[len(stack)-1]
	idx, found := leafSearch(bottom.keys, key)
	if !found {
		return rootPtr, 0, false
	}
	value = bottom.child[idx]

	keys := removeKeyAt(bottom.keys, idx)
	child := removeU32At(bottom.child, idx)
	newPtr := writeLevel(rtx, bottom.ptr, keys, child, true)
	underflow := len(keys) < K

	for i := len(stack) - 2; i >= 0; i-- {
		lvl := stack[i]
		childIdx := branchChildIndex(lvl.keys, key)
		parentKeys := append([]Key(nil), lvl.keys...)
		parentChild := append([]uint32(nil), lvl.child...)
		parentChild[childIdx] = newPtr

		if !underflow {
			newPtr = writeLevel(rtx, lvl.ptr, parentKeys, parentChild, false)
			continue
		}
		newPtr, underflow = resolveUnderflow(rtx, lvl.ptr, parentKeys, parentChild, childIdx)
	}

	root := node(rtx.Look(newPtr))
	if !root.isLeaf() && root.count() == 1 {
		child0 := root.child(0)
		freeNode(rtx, newPtr)
		newPtr = child0
	}
	return newPtr, value, true
}

// freeNode releases a node page together with its chained key pages. Key
// pages are owned by exactly one node, so dropping the node orphans the
// whole chain.
func freeNode(rtx *rt.Rt, ptr uint32) {
	n := node(rtx.Look(ptr))
	var chain [maxKeyChunks]uint32
	for c := range chain {
		chain[c] = n.keyPage(c)
	}
	rtx.FreePage(ptr)
	for _, kp := range chain {
		if kp != 0 {
			rtx.FreePage(kp)
		}
	}
}

// resolveUnderflow rebalances the child at parentChild[idx] -- already
// written back by the caller and possibly below K entries -- against its
// siblings, preferring donate-left, then donate-right, then merge-left,
// then merge-right. When
// both siblings could donate, the one with fewer entries gives up a slot
// (left on ties); merges always fold into the left sibling when one
// exists, keeping page layout stable.
// parentPtr is the page number the parent itself currently occupies (the
// not-yet-rewritten generation the caller descended through); resolveUnderflow
// always performs exactly one fresh write of the parent under this number.
func resolveUnderflow(rtx *rt.Rt, parentPtr uint32, parentKeys []Key, parentChild []uint32, idx int) (uint32, bool) {
	keys, child, leaf := loadNode(rtx, parentChild[idx])

	hasLeft := idx > 0
	hasRight := idx+1 < len(parentChild)

	var leftKeys, rightKeys []Key
	var leftChild, rightChild []uint32
	if hasLeft {
		leftKeys, leftChild, _ = loadNode(rtx, parentChild[idx-1])
	}
	if hasRight {
		rightKeys, rightChild, _ = loadNode(rtx, parentChild[idx+1])
	}

	switch {
	case !hasLeft && !hasRight:
		// Only child in the tree at this level; nothing to rebalance
		// against. The caller collapses the root if it ends up a
		// branch with a single child.
		parentChild[idx] = writeLevel(rtx, parentChild[idx], keys, child, leaf)
		return writeLevel(rtx, parentPtr, parentKeys, parentChild, false), len(parentKeys) < K

	case hasLeft && len(leftKeys) > K && !(hasRight && len(rightKeys) > K && len(rightKeys) < len(leftKeys)):
		n := len(leftKeys)
		moved, movedChild := leftKeys[n-1], leftChild[n-1]
		leftKeys, leftChild = leftKeys[:n-1], leftChild[:n-1]
		keys = append([]Key{moved}, keys...)
		child = append([]uint32{movedChild}, child...)

		parentChild[idx-1] = writeLevel(rtx, parentChild[idx-1], leftKeys, leftChild, leaf)
		parentChild[idx] = writeLevel(rtx, parentChild[idx], keys, child, leaf)
		parentKeys[idx] = moved

	case hasRight && len(rightKeys) > K:
		moved, movedChild := rightKeys[0], rightChild[0]
		rightKeys, rightChild = rightKeys[1:], rightChild[1:]
		keys = append(keys, moved)
		child = append(child, movedChild)

		parentChild[idx] = writeLevel(rtx, parentChild[idx], keys, child, leaf)
		parentChild[idx+1] = writeLevel(rtx, parentChild[idx+1], rightKeys, rightChild, leaf)
		parentKeys[idx+1] = rightKeys[0]

	case hasLeft && (!hasRight || len(leftKeys) <= len(rightKeys)):
		mergedKeys := append(append([]Key(nil), leftKeys...), keys...)
		mergedChild := append(append([]uint32(nil), leftChild...), child...)
		merged := writeLevel(rtx, parentChild[idx-1], mergedKeys, mergedChild, leaf)
		freeNode(rtx, parentChild[idx])
		parentKeys = removeKeyAt(parentKeys, idx)
		parentChild = removeU32At(parentChild, idx)
		parentChild[idx-1] = merged

	default:
		mergedKeys := append(append([]Key(nil), keys...), rightKeys...)
		mergedChild := append(append([]uint32(nil), child...), rightChild...)
		merged := writeLevel(rtx, parentChild[idx], mergedKeys, mergedChild, leaf)
		freeNode(rtx, parentChild[idx+1])
		parentKeys = removeKeyAt(parentKeys, idx+1)
		parentChild = removeU32At(parentChild, idx+1)
		parentChild[idx] = merged
	}

	newPtr := writeLevel(rtx, parentPtr, parentKeys, parentChild, false)
	return newPtr, len(parentKeys) < K
}
