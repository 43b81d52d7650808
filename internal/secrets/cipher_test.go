package secrets

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	c, err := New(key)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := testCipher(t)

	plaintexts := []string{
		"a",
		"super-secret-api-secret",
		"token with spaces and symbols !@#$%^&*()",
		strings.Repeat("x", 4096),
		"unicode: 日本語 and émojis 🔐",
	}

	for _, plaintext := range plaintexts {
		envelope, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", plaintext, err)
		}

		decrypted, err := c.Decrypt(envelope)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}

		if decrypted != plaintext {
			t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
		}
	}
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	c := testCipher(t)

	if _, err := c.Encrypt(""); !errors.Is(err, ErrEmptyPlaintext) {
		t.Errorf("Encrypt(\"\") error = %v, want ErrEmptyPlaintext", err)
	}
}

func TestEncryptNonceUniqueness(t *testing.T) {
	c := testCipher(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		envelope, err := c.Encrypt("same plaintext every time")
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if seen[envelope] {
			t.Fatal("Encrypt() produced a duplicate envelope for the same plaintext")
		}
		seen[envelope] = true
	}
}

func TestEnvelopeFormat(t *testing.T) {
	c := testCipher(t)

	envelope, err := c.Encrypt("format check")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		t.Fatalf("envelope has %d fields, want 3", len(parts))
	}

	for i, part := range parts {
		if _, err := hex.DecodeString(part); err != nil {
			t.Errorf("envelope field %d is not valid hex: %v", i, err)
		}
	}
}

func TestDecryptMalformedEnvelope(t *testing.T) {
	c := testCipher(t)

	cases := []struct {
		name     string
		envelope string
	}{
		{"empty", ""},
		{"no separators", "deadbeef"},
		{"two fields", "deadbeef:deadbeef"},
		{"four fields", "de:ad:be:ef"},
		{"non-hex nonce", "zzzz:deadbeef:deadbeef"},
		{"wrong nonce length", "dead:deadbeef:deadbeef"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.Decrypt(tc.envelope); !errors.Is(err, ErrMalformedEnvelope) {
				t.Errorf("Decrypt(%q) error = %v, want ErrMalformedEnvelope", tc.envelope, err)
			}
		})
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	c := testCipher(t)

	envelope, err := c.Encrypt("do not tamper with me")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	parts := strings.Split(envelope, ":")

	// Flip one bit in each field that is covered by authentication.
	for _, field := range []int{1, 2} {
		raw, _ := hex.DecodeString(parts[field])
		raw[0] ^= 0x01

		tampered := make([]string, 3)
		copy(tampered, parts)
		tampered[field] = hex.EncodeToString(raw)

		_, err := c.Decrypt(strings.Join(tampered, ":"))
		if !errors.Is(err, ErrAuthenticationFailed) {
			t.Errorf("Decrypt() of tampered field %d error = %v, want ErrAuthenticationFailed", field, err)
		}
	}
}

func TestDecryptWrongKey(t *testing.T) {
	c1 := testCipher(t)
	c2 := testCipher(t)

	envelope, err := c1.Encrypt("secret under key one")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := c2.Decrypt(envelope); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Decrypt() with wrong key error = %v, want ErrAuthenticationFailed", err)
	}
}

func TestNewRejectsBadKey(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33, 64} {
		if _, err := New(make([]byte, size)); err == nil {
			t.Errorf("New() with %d-byte key succeeded, want error", size)
		}
	}
}
