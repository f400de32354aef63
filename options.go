package treestore

import (
	"github.com/rs/zerolog"

	"github.com/nainya/treestore/internal/pageio"
)

// CipherParams selects page-level encryption for a deployment. A nil
// *CipherParams (the Options zero value) means plaintext. Exactly one of
// Passphrase or Key should be set; Key takes precedence when both are
// present.
type CipherParams struct {
	Passphrase string
	Key        *[32]byte

	// Time and Memory are Argon2id cost parameters used when deriving the
	// header-wrapping key from Passphrase. Zero picks the same defaults as
	// internal/cipher.Secret.
	Time, Memory uint32
}

// Options configures a DB's I/O and encryption behavior. The zero value is
// a plaintext store with default I/O hints.
type Options struct {
	// DirectWrite requests O_DIRECT on platforms that support it.
	DirectWrite bool
	// MmapPopulate requests MAP_POPULATE on platforms that support it.
	MmapPopulate bool
	// Cipher enables page-level encryption when non-nil.
	Cipher *CipherParams
	// Logger receives structured open/recover/commit events. The zero
	// value (zerolog.Logger{}) discards everything.
	Logger zerolog.Logger
}

func (o Options) ioOptions() pageio.Options {
	return pageio.Options{DirectWrite: o.DirectWrite, MmapPopulate: o.MmapPopulate}
}
