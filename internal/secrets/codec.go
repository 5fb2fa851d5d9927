// Package secrets provides symmetric sealing of store API credentials at rest.
//
// Credentials are sealed with AES-256-GCM before they are persisted and
// opened only at the point of use (the store API client). Callers hold an
// explicit *Codec; nothing in the persistence layer decrypts implicitly.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// Errors
var (
	ErrBadKey        = errors.New("secrets: key must be 32 bytes")
	ErrBadCiphertext = errors.New("secrets: malformed or tampered ciphertext")
)

// Codec seals and opens short secrets with a single symmetric key.
type Codec struct {
	aead cipher.AEAD
}

// New creates a Codec from a hex-encoded 32-byte key.
func New(hexKey string) (*Codec, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return nil, ErrBadKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Seal encrypts plaintext and returns a base64 token (nonce || ciphertext).
func (c *Codec) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token produced by Seal. It fails closed: any malformed,
// truncated, or tampered token returns ErrBadCiphertext.
func (c *Codec) Open(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrBadCiphertext
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrBadCiphertext
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrBadCiphertext
	}

	return string(plaintext), nil
}
