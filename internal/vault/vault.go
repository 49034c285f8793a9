// Package vault encrypts CRM passwords at rest. Passwords must be
// recoverable (the bot re-authenticates with them), so this is a symmetric
// AEAD, not a hash: XChaCha20-Poly1305 under a single process-wide key, with
// the random nonce prefixed to the ciphertext and the whole blob
// base64-encoded for text storage.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Vault encrypts and decrypts credential strings. It holds no state beyond
// the key.
type Vault struct {
	key []byte
}

// New creates a vault from a raw 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Vault{key: append([]byte(nil), key...)}, nil
}

// Encrypt seals plaintext and returns a base64 blob (nonce || ciphertext).
func (v *Vault) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	blob := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt. A malformed blob or one sealed
// under a different key yields a *domain.CryptoError.
func (v *Vault) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", &domain.CryptoError{Err: fmt.Errorf("decode blob: %w", err)}
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", &domain.CryptoError{Err: fmt.Errorf("init cipher: %w", err)}
	}

	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", &domain.CryptoError{Err: errors.New("blob too short")}
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &domain.CryptoError{Err: errors.New("authentication failed")}
	}
	return string(plaintext), nil
}
