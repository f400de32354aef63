package btree

import "testing"

// assertTreeInvariants walks the tree at root through look and fails the
// test on any structural violation: every non-root node holds between K and
// M entries, branches carry exactly one child per key slot (this package's
// literal-key layout), all leaves sit at the same depth, and an in-order
// walk yields strictly increasing keys.
func assertTreeInvariants(t *testing.T, look func(uint32) []byte, root uint32) {
	t.Helper()

	leafDepth := -1
	var prev *Key

	var walk func(ptr uint32, depth int, isRoot bool)
	walk = func(ptr uint32, depth int, isRoot bool) {
		n := node(look(ptr))
		keys := readKeys(n, look)
		child := readChild(n)

		if !isRoot && (len(keys) < K || len(keys) > M) {
			t.Fatalf("node %d holds %d entries, want %d..%d", ptr, len(keys), K, M)
		}

		if n.isLeaf() {
			if leafDepth == -1 {
				leafDepth = depth
			}
			if depth != leafDepth {
				t.Fatalf("leaf %d at depth %d, want uniform depth %d", ptr, depth, leafDepth)
			}
			for _, k := range keys {
				if prev != nil && Compare(*prev, k) >= 0 {
					t.Fatalf("in-order walk not strictly increasing at node %d key %q", ptr, k.Bytes)
				}
				kk := k
				prev = &kk
			}
			return
		}

		if len(child) != len(keys) {
			t.Fatalf("branch %d has %d children for %d keys", ptr, len(child), len(keys))
		}
		if len(child) == 0 {
			t.Fatalf("branch %d is empty", ptr)
		}
		for _, c := range child {
			walk(c, depth+1, false)
		}
	}
	walk(root, 0, true)
}

// check runs assertTreeInvariants against the harness's committed head.
func (h *harness) check() {
	h.t.Helper()
	view := h.f.View()
	defer view.Release()
	assertTreeInvariants(h.t, view.Page, h.head)
}
