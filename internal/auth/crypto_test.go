package auth

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestTokenCipherRoundTrip(t *testing.T) {
	c, err := NewTokenCipher(testKey())
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}
	plaintext := []byte("super-secret-lms-token")
	sealed, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("ciphertext must not contain the plaintext")
	}
	opened, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("got %q, want %q", opened, plaintext)
	}
}

func TestTokenCipherRejectsWrongKeyLength(t *testing.T) {
	_, err := NewTokenCipher([]byte("too-short"))
	if err == nil {
		t.Fatal("expected error for non-32-byte key")
	}
}

func TestTokenCipherRejectsTamperedCiphertext(t *testing.T) {
	c, err := NewTokenCipher(testKey())
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}
	sealed, err := c.Encrypt([]byte("token"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF
	if _, err := c.Decrypt(sealed); err == nil {
		t.Fatal("expected authentication failure on tampered ciphertext")
	}
}

func TestNewSessionIDIsUnique(t *testing.T) {
	a, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	b, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	if a == b {
		t.Fatal("expected unique session ids")
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars (128 bits), got %d", len(a))
	}
}
