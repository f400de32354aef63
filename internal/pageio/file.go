// Package pageio is the paged file: a growable file addressed in fixed
// page.Size units, exposed to readers as a set of append-only mmap chunks
// and to the writer as positional pwrite. Growth always zero-extends the
// file first, so with the Plain cipher a freshly grown page reads back as
// all-zero bytes before anything writes to it; under a page cipher View
// decrypts those zeros into noise, so a page is written before it is read.
package pageio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/nainya/treestore/internal/cipher"
	"github.com/nainya/treestore/page"
)

// Options configures direct I/O and mmap population hints.
type Options struct {
	DirectWrite  bool
	MmapPopulate bool
}

// initialChunk is the size of the first mmap chunk and the minimum growth
// increment.
const initialChunk = 64 << 20

// File is the paged file. All reads go through View (a consistent snapshot
// of the current mmap chunks); all writes go through Write/WriteRange,
// which pwrite directly and never touch the mmap.
type File struct {
	fd int

	mu         sync.RWMutex // guards chunks/mmapTotal/fileSize during growth
	chunks     [][]byte
	mmapTotal  int64
	fileSize   int64 // authoritative size in bytes, multiple of page.Size above dataOffset
	dataOffset int64 // bytes reserved for the cipher header, 0 for Plain

	cipher   cipher.Cipher
	populate bool
}

// Open opens or creates the file at path. created reports whether the file
// was newly created (size 0 before this call), so callers can decide
// whether to bootstrap a fresh WAL ring or recover an existing one.
func Open(path string, opts Options, ciph cipher.Cipher, dataOffset int64) (f *File, created bool, err error) {
	fd, err := createFileSync(path, opts.DirectWrite)
	if err != nil {
		return nil, false, err
	}

	var stat syscall.Stat_t
	if err := syscall.Fstat(fd, &stat); err != nil {
		_ = syscall.Close(fd)
		return nil, false, fmt.Errorf("pageio: fstat: %w", err)
	}

	f = &File{
		fd:         fd,
		cipher:     ciph,
		populate:   opts.MmapPopulate,
		dataOffset: dataOffset,
	}
	created = stat.Size == 0

	if stat.Size > 0 {
		f.fileSize = stat.Size
		if err := f.ensureMapped(stat.Size); err != nil {
			_ = syscall.Close(fd)
			return nil, false, err
		}
	} else {
		f.fileSize = dataOffset
	}

	return f, created, nil
}

// SetCipher installs ciph as the page-level cipher used by View/Write from
// this point on. Called once, after the header region (if any) has been
// read or written directly through WriteHeader/ReadHeader, since those
// bypass the cipher entirely -- a sealed deployment does not know its real
// cipher until the header has been created or unsealed.
func (f *File) SetCipher(ciph cipher.Cipher) { f.cipher = ciph }

// Close unmaps every chunk and closes the underlying descriptor.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, chunk := range f.chunks {
		if len(chunk) == 0 {
			continue
		}
		if err := syscall.Munmap(chunk); err != nil {
			return fmt.Errorf("pageio: munmap: %w", err)
		}
	}
	f.chunks = nil
	return syscall.Close(f.fd)
}

// View is a read snapshot of the current set of mmap chunks, held under a
// shared lock. Growth (which replaces/extends the chunk list) blocks until
// every outstanding View is released.
type View struct {
	f      *File
	chunks [][]byte
}

// View acquires a read snapshot. Release must be called when done.
func (f *File) View() *View {
	f.mu.RLock()
	return &View{f: f, chunks: f.chunks}
}

// Release drops the read lock backing v.
func (v *View) Release() { v.f.mu.RUnlock() }

// Page returns the decrypted bytes of page n. When no cipher is in use this
// is a direct slice into the mmap (zero-copy); a sealed cipher forces a
// copy since decryption cannot happen in place on a read-only mapping.
func (v *View) Page(n uint32) []byte {
	off := v.f.dataOffset + int64(n)*page.Size
	raw := v.sliceAt(off, page.Size)
	if _, ok := v.f.cipher.(cipher.Plain); ok {
		return raw
	}
	buf := make([]byte, page.Size)
	copy(buf, raw)
	v.f.cipher.Decrypt(buf, n)
	return buf
}

func (v *View) sliceAt(off int64, n int) []byte {
	pos := off
	for _, chunk := range v.chunks {
		if pos < int64(len(chunk)) {
			return chunk[pos : pos+int64(n)]
		}
		pos -= int64(len(chunk))
	}
	panic(fmt.Sprintf("pageio: offset %d out of mapped range", off))
}

// Write encrypts (if configured) and pwrites the full page at n.
func (f *File) Write(n uint32, data []byte) error {
	return f.WriteRange(n, data, 0)
}

// WriteRange pwrites data starting start bytes into page n, encrypting a
// copy first so the caller's buffer is left untouched.
func (f *File) WriteRange(n uint32, data []byte, start int) error {
	buf := data
	if _, ok := f.cipher.(cipher.Plain); !ok {
		buf = make([]byte, len(data))
		copy(buf, data)
		f.cipher.Encrypt(buf, n)
	}
	off := f.dataOffset + int64(n)*page.Size + int64(start)
	if _, err := syscall.Pwrite(f.fd, buf, off); err != nil {
		return fmt.Errorf("pageio: pwrite page %d: %w", n, err)
	}
	return nil
}

// WriteHeader writes raw bytes at absolute file offset 0, used once by the
// cipher layer to persist the sealed header before any page is addressed.
func (f *File) WriteHeader(data []byte) error {
	if _, err := syscall.Pwrite(f.fd, data, 0); err != nil {
		return fmt.Errorf("pageio: pwrite header: %w", err)
	}
	return nil
}

// ReadHeader reads HeaderSize-equivalent bytes at absolute file offset 0.
func (f *File) ReadHeader(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := syscall.Pread(f.fd, buf, 0); err != nil {
		return nil, fmt.Errorf("pageio: pread header: %w", err)
	}
	return buf, nil
}

// Grow extends the file by count pages, zero-filling them, and returns the
// raw number of the first new page. Callers allocate sequential runs (the
// WAL bootstrap grows the ring, the root and freelist.Capacity cache pages
// up front). Page n
// occupies file bytes [dataOffset + n*page.Size, dataOffset +
// (n+1)*page.Size); the first growth of an empty file also materializes
// page 0, which is reserved and never handed out, so the zero page number
// stays free to mean "absent" everywhere above this layer.
func (f *File) Grow(count uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := (f.fileSize - f.dataOffset) / page.Size
	if cur == 0 {
		cur = 1
	}
	first := uint32(cur)
	newSize := f.dataOffset + (cur+int64(count))*page.Size
	if err := syscall.Ftruncate(f.fd, newSize); err != nil {
		return 0, fmt.Errorf("pageio: ftruncate: %w", err)
	}
	f.fileSize = newSize

	if err := f.ensureMappedLocked(newSize); err != nil {
		return 0, err
	}
	return first, nil
}

// Truncate sets the file length to exactly pages addressable pages
// (including the reserved page 0), discarding any bytes past them. WAL
// recovery uses this to unroll half-written allocations from a crashed
// commit back to the committed size; if a crash instead left the file
// shorter than the committed size, the ftruncate zero-extends it back.
func (f *File) Truncate(pages uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	newSize := f.dataOffset + int64(pages)*page.Size
	if err := syscall.Ftruncate(f.fd, newSize); err != nil {
		return fmt.Errorf("pageio: ftruncate to %d pages: %w", pages, err)
	}
	f.fileSize = newSize
	return f.ensureMappedLocked(newSize)
}

// ensureMapped is the public-path helper used during Open (lock not yet
// held by the caller).
func (f *File) ensureMapped(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ensureMappedLocked(size)
}

// ensureMappedLocked maps additional chunks so the mapped region always
// covers at least size bytes. Existing chunks are left in place: readers
// holding a View keep seeing valid memory after a growth.
func (f *File) ensureMappedLocked(size int64) error {
	if size <= f.mmapTotal {
		return nil
	}
	alloc := f.mmapTotal
	if alloc < initialChunk {
		alloc = initialChunk
	}
	for f.mmapTotal+alloc < size {
		alloc *= 2
	}

	prot := syscall.PROT_READ
	flags := syscall.MAP_SHARED
	if f.populate {
		flags |= syscall.MAP_POPULATE
	}
	chunk, err := syscall.Mmap(f.fd, f.mmapTotal, int(alloc), prot, flags)
	if err != nil {
		return fmt.Errorf("pageio: mmap: %w", err)
	}
	f.mmapTotal += alloc
	f.chunks = append(f.chunks, chunk)
	return nil
}

// PageCount returns the number of addressable pages above the cipher
// header, counting the reserved page 0; the highest valid raw page number
// is PageCount()-1.
func (f *File) PageCount() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return uint32((f.fileSize - f.dataOffset) / page.Size)
}

// Sync flushes pending writes to stable storage.
func (f *File) Sync() error {
	if err := syscall.Fsync(f.fd); err != nil {
		return fmt.Errorf("pageio: fsync: %w", err)
	}
	return nil
}

// createFileSync opens path for read/write, creating it if absent, and
// fsyncs the parent directory so the create is itself durable.
func createFileSync(file string, directWrite bool) (int, error) {
	flags := os.O_RDWR | os.O_CREATE
	if directWrite {
		flags |= syscall.O_DIRECT
	}
	fd, err := syscall.Open(file, flags, 0o644)
	if err != nil {
		return -1, fmt.Errorf("pageio: open %s: %w", file, err)
	}

	if err := syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = syscall.Close(fd)
		return -1, fmt.Errorf("pageio: exclusive lock %s: %w", file, err)
	}

	dirfd, err := syscall.Open(filepath.Dir(file), os.O_RDONLY, 0)
	if err != nil {
		_ = syscall.Close(fd)
		return -1, fmt.Errorf("pageio: open dir: %w", err)
	}
	defer syscall.Close(dirfd)

	if err := syscall.Fsync(dirfd); err != nil {
		_ = syscall.Close(fd)
		return -1, fmt.Errorf("pageio: fsync dir: %w", err)
	}

	return fd, nil
}
