// Package gcm registers the "gcm" AES-GCM encryption provider using
// pre-shared keys. The wire layout is nonce(12) || ciphertext || tag(16),
// which is what the chat connectors write.
package gcm

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/registry/encrypt"
)

const (
	NonceSize = 12
	TagSize   = 16
)

// ErrShortCiphertext is returned for buffers that cannot hold a nonce and a tag.
var ErrShortCiphertext = errors.New("gcm: ciphertext shorter than nonce and tag")

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "gcm",
		Loader: func(_ context.Context, cfg *config.Config) (encrypt.Provider, error) {
			// EncryptionKey is CSV: first entry is primary (for encryption),
			// subsequent entries are legacy (decryption-only key rotation).
			keys, err := config.DecodeEncryptionKeysCSV(cfg.EncryptionKey, cfg.EncryptionKeyEncoding)
			if err != nil {
				return nil, fmt.Errorf("gcm provider: %w", err)
			}
			if len(keys) == 0 {
				return nil, fmt.Errorf("gcm provider: CHATMAP_ENC_KEY is required")
			}
			ring, err := NewKeyRing("gcm", keys)
			if err != nil {
				return nil, fmt.Errorf("gcm provider: %w", err)
			}
			return ring, nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// KeyRing seals with its primary key and opens with any of its keys.
// It is the Provider behind "gcm" and the key-unwrapping providers.
type KeyRing struct {
	id    string
	aeads []cipher.AEAD
}

// NewKeyRing builds a ring from plaintext AES keys; keys[0] is primary.
func NewKeyRing(id string, keys [][]byte) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no keys configured")
	}
	ring := &KeyRing{id: id, aeads: make([]cipher.AEAD, 0, len(keys))}
	for i, key := range keys {
		aead, err := newGCM(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		ring.aeads = append(ring.aeads, aead)
	}
	return ring, nil
}

func (r *KeyRing) ID() string { return r.id }

// Encrypt seals plaintext under a fresh random nonce with the primary key.
func (r *KeyRing) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("gcm: generating nonce: %w", err)
	}
	return r.aeads[0].Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt tries the primary key and then every legacy key.
func (r *KeyRing) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+TagSize {
		return nil, ErrShortCiphertext
	}
	nonce, payload := ciphertext[:NonceSize], ciphertext[NonceSize:]
	var lastErr error
	for _, aead := range r.aeads {
		plain, err := aead.Open(nil, nonce, payload, nil)
		if err == nil {
			return plain, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("gcm: decryption failed with all keys: %w", lastErr)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("gcm: AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: GCM: %w", err)
	}
	return aead, nil
}

var _ encrypt.Provider = (*KeyRing)(nil)
