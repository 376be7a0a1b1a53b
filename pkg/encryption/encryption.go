// Package encryption provides the vault boundary for OAuth tokens at rest.
// Tokens are sealed with AES-GCM under a single process-wide key and stored
// as base64(nonce || ciphertext).
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

const KeySize = 32

var (
	ErrNoKey         = errors.New("encryption key not configured")
	ErrInvalidKeyLen = errors.New("encryption key must be exactly 32 bytes")
)

// Vault encrypts and decrypts token blobs. The zero value has no key:
// Encrypt fails closed and Decrypt returns the empty string, so a
// misconfigured process can never store plaintext tokens.
type Vault struct {
	key []byte
}

// NewVault creates a vault from a raw 32-byte key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}

	if len(key) != KeySize {
		return nil, ErrInvalidKeyLen
	}

	v := Vault{key: append([]byte(nil), key...)}

	return &v, nil
}

// Encrypt seals plaintext and returns a base64 blob. It fails when no key
// is configured rather than falling back to storing plaintext.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if len(v.key) == 0 {
		return "", ErrNoKey
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens a blob produced by Encrypt. Empty, corrupt or foreign-key
// ciphertext yields the empty string: callers treat a missing token as
// "no token available" and trigger refresh or re-authorization.
func (v *Vault) Decrypt(blob string) string {
	if blob == "" || len(v.key) == 0 {
		return ""
	}

	ciphertext, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return ""
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return ""
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return ""
	}

	if len(ciphertext) < gcm.NonceSize() {
		return ""
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ""
	}

	return string(plaintext)
}
