package btree

import (
	"fmt"
	"testing"

	"github.com/nainya/treestore/internal/rt"
)

func insertAll(t *testing.T, h *harness, keys []string) {
	t.Helper()
	h.mutate(func(rtx *rt.Rt) uint32 {
		root := h.head
		for i, k := range keys {
			root = Insert(rtx, root, Key{TableID: 1, Bytes: []byte(k)}, uint32(i+1))
		}
		return root
	})
}

func TestIteratorForwardFromStart(t *testing.T) {
	h := newHarness(t)
	insertAll(t, h, []string{"c", "a", "e", "b", "d"})

	view := h.f.View()
	defer view.Release()

	it := NewIterator(view.Page, h.head, nil, true)
	var got []string
	for it.Valid() {
		k, _ := it.Entry()
		got = append(got, string(k.Bytes))
		it.Next()
	}
	want := []string{"a", "b", "c", "d", "e"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestIteratorReverse(t *testing.T) {
	h := newHarness(t)
	insertAll(t, h, []string{"c", "a", "e", "b", "d"})

	view := h.f.View()
	defer view.Release()

	it := NewIterator(view.Page, h.head, nil, false)
	var got []string
	for it.Valid() {
		k, _ := it.Entry()
		got = append(got, string(k.Bytes))
		it.Next()
	}
	want := []string{"e", "d", "c", "b", "a"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestIteratorSeekFromMiddle(t *testing.T) {
	h := newHarness(t)
	insertAll(t, h, []string{"a", "b", "c", "d", "e"})

	view := h.f.View()
	defer view.Release()

	start := Key{TableID: 1, Bytes: []byte("c")}
	it := NewIterator(view.Page, h.head, &start, true)
	var got []string
	for it.Valid() {
		k, _ := it.Entry()
		got = append(got, string(k.Bytes))
		it.Next()
	}
	want := []string{"c", "d", "e"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestIteratorOnEmptyTree(t *testing.T) {
	h := newHarness(t)

	view := h.f.View()
	defer view.Release()

	it := NewIterator(view.Page, h.head, nil, true)
	if it.Valid() {
		t.Fatalf("expected empty tree to yield no entries")
	}
}
