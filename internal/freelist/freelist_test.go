package freelist

import "testing"

func TestCachePushPopOrder(t *testing.T) {
	var c Cache
	for i := uint32(1); i <= 5; i++ {
		if !c.Push(i) {
			t.Fatalf("push %d failed", i)
		}
	}
	for i := uint32(5); i >= 1; i-- {
		p, ok := c.Pop()
		if !ok || p != i {
			t.Fatalf("expected %d, got %d (ok=%v)", i, p, ok)
		}
	}
	if !c.Empty() {
		t.Fatalf("expected cache to be empty")
	}
}

func TestCacheFullCapacity(t *testing.T) {
	var c Cache
	for i := uint32(0); i < Capacity; i++ {
		if !c.Push(i) {
			t.Fatalf("push %d should have succeeded", i)
		}
	}
	if !c.Full() {
		t.Fatalf("expected cache to report full at capacity")
	}
	if c.Push(999) {
		t.Fatalf("push past capacity should fail")
	}
}

func TestAllocPanicsOnUnderflow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on empty-cache alloc")
		}
	}()
	var c Cache
	c.Alloc()
}

func TestFreePanicsOnOverflow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on full-cache free")
		}
	}()
	var c Cache
	for i := uint32(0); i < Capacity; i++ {
		c.Free(i)
	}
	c.Free(999)
}
