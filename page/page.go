// Package page defines the fixed on-disk page size shared by every layer
// of the store: pageio, freelist, wal and btree all address pages as plain
// uint32 indices in units of Size bytes. A phantom-typed pointer wrapper
// was considered, but Go generics erase the type parameter at the ABI
// level with nothing left to check at compile time beyond what a bare
// uint32 already gives every call site in this package set, so it is not
// carried here; see DESIGN.md.
package page

// Size is the fixed on-disk page size. Every allocation unit, mmap view and
// WAL record is exactly Size bytes.
const Size = 4096

// None is the zero page number: no valid page is ever addressed by it, so
// a zeroed struct field naturally reads as "absent" throughout the store.
const None = uint32(0)
