//go:build !smallpage

package btree

// M is the number of (child, key) slots per node. 256 in production builds;
// the smallpage build tag drops this to 8 so stress tests can force splits
// and merges without inserting thousands of keys.
const M = 256
