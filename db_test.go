package treestore

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nainya/treestore/errs"
)

func TestOpenCloseReopenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.ts")

	db, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Insert(1, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	val, ok, err := db2.Retrieve(1, []byte("k"))
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !ok {
		t.Fatalf("expected key present after reopen")
	}
	if got := val.Bytes(); string(got) != "v" {
		t.Fatalf("got %q, want %q", got, "v")
	}
}

func TestInsertUpdateRetrieveRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.ts")
	db, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Insert(1, []byte("x"), []byte("first")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.Insert(1, []byte("x"), []byte("second")); err != nil {
		t.Fatalf("update: %v", err)
	}

	val, ok, err := db.Retrieve(1, []byte("x"))
	if err != nil || !ok {
		t.Fatalf("retrieve: ok=%v err=%v", ok, err)
	}
	if got := string(val.Bytes()); got != "second" {
		t.Fatalf("got %q, want second", got)
	}

	removed, ok, err := db.Remove(1, []byte("x"))
	if err != nil || !ok {
		t.Fatalf("remove: ok=%v err=%v", ok, err)
	}
	if string(removed) != "second" {
		t.Fatalf("removed bytes = %q, want second", removed)
	}

	if _, ok, err := db.Retrieve(1, []byte("x")); err != nil || ok {
		t.Fatalf("expected key gone after remove, ok=%v err=%v", ok, err)
	}

	if _, ok, err := db.Remove(1, []byte("x")); err != nil || ok {
		t.Fatalf("expected second remove to report absent")
	}
}

func TestManyKeysShuffledWithIteration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.ts")
	db, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	const n = 1000
	order := shuffledPerm(n, 42)
	for _, i := range order {
		if _, err := db.Insert(3, []byte(fmt.Sprintf("key-%05d", i)), []byte(fmt.Sprintf("val-%05d", i))); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	it, err := db.NewIterator(3, nil, true)
	if err != nil {
		t.Fatalf("iterator: %v", err)
	}
	defer it.Close()

	count := 0
	for it.Valid() {
		want := fmt.Sprintf("val-%05d", count)
		if got := string(it.Value().Bytes()); got != want {
			t.Fatalf("entry %d: got %q, want %q", count, got, want)
		}
		count++
		it.Next()
	}
	if count != n {
		t.Fatalf("iterated %d entries, want %d", count, n)
	}

	removeOrder := shuffledPerm(n, 7)
	for _, i := range removeOrder {
		if _, ok, err := db.Remove(3, []byte(fmt.Sprintf("key-%05d", i))); err != nil || !ok {
			t.Fatalf("remove %d: ok=%v err=%v", i, ok, err)
		}
	}
	for i := 0; i < n; i++ {
		if _, ok, err := db.Retrieve(3, []byte(fmt.Sprintf("key-%05d", i))); err != nil || ok {
			t.Fatalf("key %d still present after full removal", i)
		}
	}
}

func TestKeyTooLongRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.ts")
	db, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	huge := bytes.Repeat([]byte("k"), 1025)
	if _, err := db.Insert(1, huge, []byte("v")); !errors.Is(err, errs.ErrKeyTooLong) {
		t.Fatalf("expected ErrKeyTooLong, got %v", err)
	}
}

func TestClosedDBRejectsOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.ts")
	db, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := db.Close(); !errors.Is(err, errs.ErrClosed) {
		t.Fatalf("expected ErrClosed on double close, got %v", err)
	}
	if _, err := db.Insert(1, []byte("a"), []byte("b")); !errors.Is(err, errs.ErrClosed) {
		t.Fatalf("expected ErrClosed on insert after close, got %v", err)
	}
}

func TestSealedCipherRoundTripAndWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.ts")

	db, err := Open(path, Options{Cipher: &CipherParams{Passphrase: "correct horse battery staple", Time: 1, Memory: 8 * 1024}})
	if err != nil {
		t.Fatalf("open sealed: %v", err)
	}
	if _, err := db.Insert(1, []byte("secret-key"), []byte("secret-value")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err = Open(path, Options{Cipher: &CipherParams{Passphrase: "wrong passphrase", Time: 1, Memory: 8 * 1024}})
	if !errors.Is(err, errs.ErrBadCipher) {
		t.Fatalf("expected ErrBadCipher for wrong passphrase, got %v", err)
	}

	db2, err := Open(path, Options{Cipher: &CipherParams{Passphrase: "correct horse battery staple", Time: 1, Memory: 8 * 1024}})
	if err != nil {
		t.Fatalf("reopen sealed: %v", err)
	}
	defer db2.Close()

	val, ok, err := db2.Retrieve(1, []byte("secret-key"))
	if err != nil || !ok {
		t.Fatalf("retrieve: ok=%v err=%v", ok, err)
	}
	if got := string(val.Bytes()); got != "secret-value" {
		t.Fatalf("got %q, want secret-value", got)
	}
}

// shuffledPerm returns a deterministic pseudo-random permutation of
// [0, n) without depending on math/rand's global state across test runs.
func shuffledPerm(n int, seed uint32) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	state := seed | 1
	for i := n - 1; i > 0; i-- {
		state = state*1664525 + 1013904223
		j := int(state) % (i + 1)
		if j < 0 {
			j += i + 1
		}
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

func TestSingleByteKeyRemovalPatterns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.ts")
	db, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for i := byte(0); i < 9; i++ {
		if _, err := db.Insert(5, []byte{i}, []byte{i, i}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	if _, ok, err := db.Remove(5, []byte{3}); err != nil || !ok {
		t.Fatalf("remove 3: ok=%v err=%v", ok, err)
	}
	if _, ok, err := db.Remove(5, []byte{4}); err != nil || !ok {
		t.Fatalf("remove 4: ok=%v err=%v", ok, err)
	}
	for i := byte(0); i < 9; i++ {
		_, ok, err := db.Retrieve(5, []byte{i})
		if err != nil {
			t.Fatalf("retrieve %d: %v", i, err)
		}
		want := i != 3 && i != 4
		if ok != want {
			t.Fatalf("key %d present=%v, want %v", i, ok, want)
		}
	}

	if _, err := db.Insert(5, []byte{3}, []byte{3, 3}); err != nil {
		t.Fatalf("reinsert 3: %v", err)
	}
	if _, ok, err := db.Remove(5, []byte{5}); err != nil || !ok {
		t.Fatalf("remove 5: ok=%v err=%v", ok, err)
	}
	for i := byte(0); i < 9; i++ {
		_, ok, err := db.Retrieve(5, []byte{i})
		if err != nil {
			t.Fatalf("retrieve %d: %v", i, err)
		}
		want := i != 4 && i != 5
		if ok != want {
			t.Fatalf("after reinsert: key %d present=%v, want %v", i, ok, want)
		}
	}
}

func TestKeyLengthAndTableBoundaries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.ts")
	db, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	lengths := []int{0, 1, 16, 17, 1024}
	tables := []uint32{0, 1<<32 - 1}
	for _, table := range tables {
		for _, n := range lengths {
			key := bytes.Repeat([]byte{0x5A}, n)
			val := []byte(fmt.Sprintf("t%d-l%d", table, n))
			if _, err := db.Insert(table, key, val); err != nil {
				t.Fatalf("insert table %d len %d: %v", table, n, err)
			}
			got, ok, err := db.Retrieve(table, key)
			if err != nil || !ok {
				t.Fatalf("retrieve table %d len %d: ok=%v err=%v", table, n, ok, err)
			}
			if !bytes.Equal(got.Bytes(), val) {
				t.Fatalf("table %d len %d: value mismatch", table, n)
			}
		}
	}
}

func TestIteratorScopedToTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.ts")
	db, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, table := range []uint32{1, 2, 3} {
		for _, k := range []string{"a", "b", "c"} {
			if _, err := db.Insert(table, []byte(k), []byte(fmt.Sprintf("%d-%s", table, k))); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
	}

	it, err := db.NewIterator(2, nil, true)
	if err != nil {
		t.Fatalf("iterator: %v", err)
	}
	var fwd []string
	for it.Valid() {
		fwd = append(fwd, string(it.Key()))
		it.Next()
	}
	it.Close()
	if fmt.Sprint(fwd) != fmt.Sprint([]string{"a", "b", "c"}) {
		t.Fatalf("forward scan of table 2: got %v", fwd)
	}

	rit, err := db.NewIterator(2, nil, false)
	if err != nil {
		t.Fatalf("reverse iterator: %v", err)
	}
	var rev []string
	for rit.Valid() {
		rev = append(rev, string(rit.Key()))
		rit.Next()
	}
	rit.Close()
	if fmt.Sprint(rev) != fmt.Sprint([]string{"c", "b", "a"}) {
		t.Fatalf("reverse scan of table 2: got %v", rev)
	}

	empty, err := db.NewIterator(7, nil, true)
	if err != nil {
		t.Fatalf("empty-table iterator: %v", err)
	}
	if empty.Valid() {
		t.Fatalf("expected no entries for an unused table")
	}
	empty.Close()
}

func TestIteratorReverseAtMaxTableID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.ts")
	db, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	const maxTable = uint32(1<<32 - 1)
	for _, k := range []string{"a", "b", "c"} {
		if _, err := db.Insert(maxTable, []byte(k), []byte(k)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := db.Insert(1, []byte("other"), []byte("x")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	it, err := db.NewIterator(maxTable, nil, false)
	if err != nil {
		t.Fatalf("iterator: %v", err)
	}
	defer it.Close()
	var rev []string
	for it.Valid() {
		rev = append(rev, string(it.Key()))
		it.Next()
	}
	if fmt.Sprint(rev) != fmt.Sprint([]string{"c", "b", "a"}) {
		t.Fatalf("reverse scan of the last table: got %v", rev)
	}
}
