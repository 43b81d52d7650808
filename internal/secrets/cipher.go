// Package secrets provides authenticated encryption for broker credentials
// stored at rest. Envelopes are self-describing text so they survive any
// storage layer that round-trips strings.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const keySize = 32 // AES-256

var (
	// ErrEmptyPlaintext is returned when there is nothing to encrypt.
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")

	// ErrMalformedEnvelope is returned when an envelope does not parse
	// into the expected nonce:tag:ciphertext form.
	ErrMalformedEnvelope = errors.New("malformed ciphertext envelope")

	// ErrAuthenticationFailed is returned when the authentication tag does
	// not verify: the ciphertext was tampered with or encrypted under a
	// different key. The record is unrecoverable either way.
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
)

// Cipher encrypts and decrypts opaque secret strings with AES-256-GCM
// under a single process-wide key. It is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New creates a Cipher from a raw 256-bit key.
func New(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt encrypts plaintext and returns an envelope of the form
// <nonce:hex>:<authTag:hex>:<ciphertext:hex>. A fresh random nonce is
// generated on every call, so encrypting the same plaintext twice never
// yields the same envelope.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext||tag; split them so the envelope carries the
	// tag as its own field.
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - c.aead.Overhead()
	ciphertext := sealed[:tagStart]
	tag := sealed[tagStart:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt parses an envelope produced by Encrypt and returns the original
// plaintext. It returns ErrMalformedEnvelope if the envelope does not
// parse and ErrAuthenticationFailed if the tag does not verify.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", ErrMalformedEnvelope
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", ErrMalformedEnvelope
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: invalid nonce encoding", ErrMalformedEnvelope)
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("%w: unexpected nonce length %d", ErrMalformedEnvelope, len(nonce))
	}

	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: invalid tag encoding", ErrMalformedEnvelope)
	}
	if len(tag) != c.aead.Overhead() {
		return "", fmt.Errorf("%w: unexpected tag length %d", ErrMalformedEnvelope, len(tag))
	}

	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext encoding", ErrMalformedEnvelope)
	}

	sealed := append(ciphertext, tag...)
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}

	return string(plaintext), nil
}

// GenerateKey returns a new random 256-bit key. Intended for one-time
// setup; the result should be hex-encoded into the environment.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}
