package tenant

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// DescriptorCipher encrypts and decrypts tenant connection descriptors.
// Descriptors are stored AES-GCM sealed, base64 encoded, nonce prefixed.
type DescriptorCipher struct {
	aead cipher.AEAD
}

// NewDescriptorCipher builds a cipher from a base64-encoded 32-byte key.
func NewDescriptorCipher(encodedKey string) (*DescriptorCipher, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode descriptor key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to build descriptor cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &DescriptorCipher{aead: aead}, nil
}

// Encrypt seals a plaintext DSN. Used by onboarding tooling and tests.
func (c *DescriptorCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed descriptor loaded from the registry.
func (c *DescriptorCipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode descriptor: %w", err)
	}

	if len(sealed) < c.aead.NonceSize() {
		return "", fmt.Errorf("descriptor too short")
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt descriptor: %w", err)
	}

	return string(plaintext), nil
}
