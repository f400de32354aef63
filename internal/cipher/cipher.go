// Package cipher is the opaque page-cipher boundary applied at the file I/O
// edge. pageio calls Decrypt after reading a page off disk and Encrypt
// before writing one; everything above pageio only ever sees plaintext.
//
// Two implementations are provided: Plain (no-op, the default) and Sealed,
// which derives a master key from a passphrase or raw key (Argon2id over a
// random salt, sealed with an AEAD, unsealed again on open) and then keys
// a per-page stream cipher off that master key and the page number.
package cipher

// Cipher transforms a single page's bytes in place, tweaked by its page
// number n so that two pages with identical plaintext never produce
// identical ciphertext.
type Cipher interface {
	Encrypt(page []byte, n uint32)
	Decrypt(page []byte, n uint32)
}

// HeaderSize is the fixed size of the cipher header written at the start of
// a sealed file. pageio treats this region as opaque and never maps page
// numbers into it.
const HeaderSize = 1 << 20
