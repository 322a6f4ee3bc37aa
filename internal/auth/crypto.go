package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/examsync/core/internal/apperr"
)

// TokenCipher encrypts/decrypts student LMS tokens at rest using AES-256
// in GCM, an authenticated mode. No dependency pulled in elsewhere in
// this tree offers an AEAD primitive, so stdlib crypto/aes and
// crypto/cipher are used directly rather than reaching for an
// unrelated ecosystem package.
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher builds a TokenCipher from a 32-byte AES-256 key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init GCM mode: %w", err)
	}
	return &TokenCipher{gcm: gcm}, nil
}

// Encrypt seals plaintext behind a random nonce, returning nonce||ciphertext.
func (c *TokenCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a value produced by Encrypt. Decryption occurs only
// within the request scope that needs the plaintext LMS token (C7); the
// plaintext is never persisted.
func (c *TokenCipher) Decrypt(sealed []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, apperr.New(apperr.Internal, "encrypted token is truncated")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "decrypt token failed", err)
	}
	return plaintext, nil
}

// NewSessionID generates a 128-bit random session identifier,
// hex-encoded for storage as a primary key alongside uuid-keyed tables.
func NewSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
