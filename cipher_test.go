package seal

import (
	"bytes"
	"testing"
)

func TestCipher_String(t *testing.T) {
	tests := []struct {
		cipher Cipher
		want   string
	}{
		{AES256GCM, "aes-256-gcm"},
		{ChaCha20Poly1305, "chacha20-poly1305"},
		{Cipher(9), "cipher(9)"},
	}

	for _, tt := range tests {
		if got := tt.cipher.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseCipher(t *testing.T) {
	for _, c := range []Cipher{AES256GCM, ChaCha20Poly1305} {
		got, err := ParseCipher(c.String())
		if err != nil {
			t.Fatalf("ParseCipher(%q): %v", c, err)
		}
		if got != c {
			t.Errorf("ParseCipher(%q) = %v", c, got)
		}
	}

	if _, err := ParseCipher("rot13"); err == nil {
		t.Error("expected error for unknown cipher")
	}
}

func TestCipher_AEADParameters(t *testing.T) {
	key := make([]byte, KeySize)
	for _, c := range []Cipher{AES256GCM, ChaCha20Poly1305} {
		aead, err := c.newAEAD(key)
		if err != nil {
			t.Fatalf("%s: newAEAD: %v", c, err)
		}
		if aead.NonceSize() != NonceSize {
			t.Errorf("%s: NonceSize = %d, want %d", c, aead.NonceSize(), NonceSize)
		}
		if aead.Overhead() != c.Overhead() {
			t.Errorf("%s: Overhead = %d, want %d", c, aead.Overhead(), c.Overhead())
		}
	}

	if _, err := Cipher(9).newAEAD(key); err == nil {
		t.Error("expected error for unsupported cipher")
	}
}

func TestNonceFor(t *testing.T) {
	got := nonceFor(0x0102030405060708)
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0}
	if !bytes.Equal(got[:], want) {
		t.Errorf("nonceFor = %x, want %x", got, want)
	}

	zero := nonceFor(0)
	if !bytes.Equal(zero[:], make([]byte, NonceSize)) {
		t.Errorf("nonceFor(0) = %x", zero)
	}
}
