package btree

import (
	"bytes"
	"sort"
)

// Compare orders keys lexicographically on (TableID, Bytes), the ordering
// every node's key column relies on.
func Compare(a, b Key) int {
	if a.TableID != b.TableID {
		if a.TableID < b.TableID {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.Bytes, b.Bytes)
}

// leafSearch finds target's position among keys: idx is where target
// belongs (to preserve order on insert); found reports whether keys[idx]
// already equals target.
func leafSearch(keys []Key, target Key) (idx int, found bool) {
	i := sort.Search(len(keys), func(i int) bool { return Compare(keys[i], target) >= 0 })
	if i < len(keys) && Compare(keys[i], target) == 0 {
		if i+1 < len(keys) && Compare(keys[i+1], target) == 0 {
			panic("treestore: two identical keys detected")
		}
		return i, true
	}
	return i, false
}

// branchChildIndex returns the index of the child to descend into for
// target. keys[0] is the leftmost child's sentinel and is never compared.
func branchChildIndex(keys []Key, target Key) int {
	i := sort.Search(len(keys), func(i int) bool {
		if i == 0 {
			return false
		}
		return Compare(keys[i], target) > 0
	})
	return i - 1
}
