// Package secret encrypts small secrets (TOTP seeds) under a process-wide
// AES-256 key before they are persisted.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	keySize   = 32
	separator = ":"
)

var (
	// ErrInvalidKey is returned at startup when the key is not 32 hex-encoded bytes.
	ErrInvalidKey = errors.New("secret: encryption key must be 64 hex characters")
	// ErrInvalidInput is returned when asked to encrypt an empty value.
	ErrInvalidInput = errors.New("secret: plaintext is empty")
	// ErrTamperedOrWrongKey covers every decrypt failure, including malformed input.
	ErrTamperedOrWrongKey = errors.New("secret: data tampered with or key is incorrect")
)

// Cipher performs authenticated encryption with AES-256-GCM.
// Ciphertexts are encoded as base64(nonce):base64(ciphertext||tag).
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewCipher builds a Cipher from a 64 character hex key.
func NewCipher(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) != keySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Cipher{aead: aead, rand: rand.Reader}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrInvalidInput
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce) + separator + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	parts := strings.Split(ciphertext, separator)
	if len(parts) != 2 {
		return "", ErrTamperedOrWrongKey
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrTamperedOrWrongKey
	}
	sealed, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrTamperedOrWrongKey
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrTamperedOrWrongKey
	}
	return string(plaintext), nil
}
