package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher selects the AEAD algorithm a Channel uses once keyed.
// Every supported algorithm takes a 256-bit key and a 96-bit nonce.
type Cipher int

const (
	// AES256GCM is AES-256 in Galois/Counter mode.
	AES256GCM Cipher = iota
	// ChaCha20Poly1305 is the RFC 8439 construction.
	ChaCha20Poly1305
)

const (
	// KeySize is the key length every supported cipher requires.
	KeySize = 32
	// NonceSize is the nonce length every supported cipher requires.
	NonceSize = 12
	// TagSize is the authentication tag appended to every ciphertext.
	TagSize = 16
)

func (c Cipher) String() string {
	switch c {
	case AES256GCM:
		return "aes-256-gcm"
	case ChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return fmt.Sprintf("cipher(%d)", int(c))
	}
}

// ParseCipher maps a cipher name, as printed by String, to a Cipher.
func ParseCipher(name string) (Cipher, error) {
	switch name {
	case "aes-256-gcm", "aes256gcm":
		return AES256GCM, nil
	case "chacha20-poly1305", "chacha20poly1305":
		return ChaCha20Poly1305, nil
	default:
		return 0, errors.Errorf("unknown cipher %q", name)
	}
}

// Valid reports whether c names a supported algorithm.
func (c Cipher) Valid() bool {
	return c == AES256GCM || c == ChaCha20Poly1305
}

// KeySize returns the key length in bytes.
func (c Cipher) KeySize() int { return KeySize }

// Overhead returns how many bytes sealing adds to a plaintext.
func (c Cipher) Overhead() int { return TagSize }

func (c Cipher) newAEAD(key []byte) (cipher.AEAD, error) {
	switch c {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, errors.Errorf("unsupported cipher %s", c)
	}
}

// nonceFor builds the nonce for a frame counter: the counter big-endian in
// the first eight bytes, zero padding after.
func nonceFor(counter uint64) [NonceSize]byte {
	var nonce [NonceSize]byte
	binary.BigEndian.PutUint64(nonce[:8], counter)
	return nonce
}
