package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	saltSize = 16
	tagSize  = 16
	keySize  = 32
)

// ErrWrongSecret is returned by Open when the passphrase or key does not
// match the sealed header.
var ErrWrongSecret = errors.New("cipher: wrong passphrase or key")

// ErrBadHeader is returned when the header region is shorter than
// HeaderSize or otherwise malformed.
var ErrBadHeader = errors.New("cipher: bad header")

// Secret selects how the header's wrapping key is derived: either an
// Argon2id-stretched passphrase or a raw 32-byte key supplied directly by
// the caller.
type Secret struct {
	Passphrase   string
	Time, Memory uint32 // argon2id cost parameters; zero picks defaults
	Key          *[32]byte
}

func (s Secret) aeadKey(salt []byte) []byte {
	if s.Key != nil {
		return s.Key[:]
	}
	time := s.Time
	if time == 0 {
		time = 1
	}
	memory := s.Memory
	if memory == 0 {
		memory = 64 * 1024
	}
	return argon2.IDKey([]byte(s.Passphrase), salt, time, memory, 4, keySize)
}

// Sealed is a per-page stream cipher keyed off a master key unsealed from
// the file header. It derives a fresh XChaCha20 subkey per page number via
// HKDF and uses it as an ordinary stream cipher, which gives
// confidentiality tweaked by page number but not the wide-block diffusion
// a tweakable block cipher such as Adiantum would provide. See DESIGN.md.
type Sealed struct {
	masterKey [32]byte
}

// Create derives a fresh master key, seals it under secret and returns the
// cipher plus the HeaderSize header to be written at file offset 0.
func Create(secret Secret) (*Sealed, []byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := rand.Read(header); err != nil {
		return nil, nil, err
	}
	salt := header[:saltSize]
	tag := header[saltSize : saltSize+tagSize]
	buf := header[saltSize+tagSize:]

	var c Sealed
	if err := deriveMainKey(&c.masterKey, salt, buf); err != nil {
		return nil, nil, err
	}

	aead, err := chacha20poly1305.New(secret.aeadKey(salt))
	if err != nil {
		return nil, nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	sealed := aead.Seal(nil, nonce, buf, []byte("main_blob"))
	copy(buf, sealed[:len(sealed)-tagSize])
	copy(tag, sealed[len(sealed)-tagSize:])

	return &c, header, nil
}

// Open unseals the header written by Create using secret.
func Open(header []byte, secret Secret) (*Sealed, error) {
	if len(header) < HeaderSize {
		return nil, ErrBadHeader
	}
	salt := header[:saltSize]
	tag := header[saltSize : saltSize+tagSize]
	buf := append([]byte(nil), header[saltSize+tagSize:HeaderSize]...)

	aead, err := chacha20poly1305.New(secret.aeadKey(salt))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	sealedBlob := append(append([]byte(nil), buf...), tag...)
	plain, err := aead.Open(nil, nonce, sealedBlob, []byte("main_blob"))
	if err != nil {
		return nil, ErrWrongSecret
	}

	var c Sealed
	if err := deriveMainKey(&c.masterKey, salt, plain); err != nil {
		return nil, err
	}
	return &c, nil
}

func deriveMainKey(out *[32]byte, salt, buf []byte) error {
	kdf := hkdf.New(sha256.New, buf, salt, []byte("main_key"))
	_, err := io.ReadFull(kdf, out[:])
	return err
}

func (c *Sealed) Encrypt(page []byte, n uint32) { c.xor(page, n) }
func (c *Sealed) Decrypt(page []byte, n uint32) { c.xor(page, n) }

// xor derives a per-page XChaCha20 subkey from the master key and page
// number and XORs it over page. A stream cipher is its own inverse, so
// Encrypt and Decrypt share this implementation.
func (c *Sealed) xor(page []byte, n uint32) {
	var info [4]byte
	binary.LittleEndian.PutUint32(info[:], n)

	kdf := hkdf.New(sha256.New, c.masterKey[:], nil, info[:])
	subKey := make([]byte, chacha20.KeySize)
	if _, err := io.ReadFull(kdf, subKey); err != nil {
		panic("cipher: subkey derivation failed: " + err.Error())
	}

	nonce := make([]byte, chacha20.NonceSizeX) // zero nonce: subKey is unique per page already
	stream, err := chacha20.NewUnauthenticatedCipher(subKey, nonce)
	if err != nil {
		panic("cipher: stream init failed: " + err.Error())
	}
	stream.XORKeyStream(page, page)
}
