package pageio

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/nainya/treestore/internal/cipher"
)

func TestGrowReadsBackZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grow.db")

	f, created, err := Open(path, Options{}, cipher.Plain{}, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if !created {
		t.Fatalf("expected a freshly created file")
	}

	first, err := f.Grow(3)
	if err != nil {
		t.Fatalf("grow: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected first grown page to be 1, got %d", first)
	}

	v := f.View()
	defer v.Release()
	for n := first; n < first+3; n++ {
		want := make([]byte, 4096)
		if got := v.Page(n); !bytes.Equal(got, want) {
			t.Fatalf("page %d not zero-initialized", n)
		}
	}
}

func TestWriteThenReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rw.db")

	f, _, err := Open(path, Options{}, cipher.Plain{}, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if _, err := f.Grow(1); err != nil {
		t.Fatalf("grow: %v", err)
	}

	data := bytes.Repeat([]byte{0xAB}, 4096)
	if err := f.Write(1, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	v := f.View()
	defer v.Release()
	if got := v.Page(1); !bytes.Equal(got, data) {
		t.Fatalf("page 1 mismatch after write")
	}
}

func TestReopenSeesPriorData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	f, _, err := Open(path, Options{}, cipher.Plain{}, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Grow(1); err != nil {
		t.Fatalf("grow: %v", err)
	}
	data := bytes.Repeat([]byte{0x42}, 4096)
	if err := f.Write(1, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f2, created, err := Open(path, Options{}, cipher.Plain{}, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()
	if created {
		t.Fatalf("expected reopen of existing file")
	}
	if got := f2.PageCount(); got != 2 {
		t.Fatalf("expected 2 pages (reserved page 0 plus one grown), got %d", got)
	}

	v := f2.View()
	defer v.Release()
	if got := v.Page(1); !bytes.Equal(got, data) {
		t.Fatalf("page 1 mismatch after reopen")
	}
}

func TestTruncateDropsTailPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trunc.db")

	f, _, err := Open(path, Options{}, cipher.Plain{}, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if _, err := f.Grow(4); err != nil {
		t.Fatalf("grow: %v", err)
	}
	data := bytes.Repeat([]byte{0x7F}, 4096)
	if err := f.Write(3, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := f.Truncate(3); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if got := f.PageCount(); got != 3 {
		t.Fatalf("expected 3 pages after truncate, got %d", got)
	}

	first, err := f.Grow(1)
	if err != nil {
		t.Fatalf("regrow: %v", err)
	}
	if first != 3 {
		t.Fatalf("expected regrown page 3, got %d", first)
	}

	v := f.View()
	defer v.Release()
	if !bytes.Equal(v.Page(3), make([]byte, 4096)) {
		t.Fatalf("expected page 3 zeroed after truncate and regrow")
	}
}
