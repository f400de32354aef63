//go:build smallpage

package btree

// M is kept tiny under the smallpage build tag so tests exercise node
// splits and merges after only a handful of inserts.
const M = 8
