// Package decrypt opens the base64 message bodies written by the chat
// connectors.
package decrypt

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/registry/encrypt"
)

// DecryptionError is returned when a message body cannot be decoded or opened.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decrypt: %s: %v", e.Reason, e.Err)
	}
	return "decrypt: " + e.Reason
}

func (e *DecryptionError) Unwrap() error { return e.Err }

type contextKey struct{}

// WithContext returns a new context carrying the given Decryptor.
func WithContext(ctx context.Context, d *Decryptor) context.Context {
	return context.WithValue(ctx, contextKey{}, d)
}

// FromContext retrieves the Decryptor from the context. Returns nil if none was set.
func FromContext(ctx context.Context) *Decryptor {
	d, _ := ctx.Value(contextKey{}).(*Decryptor)
	return d
}

// Decryptor converts between plaintext and the base64 wire text using one
// encryption provider.
type Decryptor struct {
	provider encrypt.Provider
}

// New loads the provider named by cfg.EncryptionProvider.
func New(ctx context.Context, cfg *config.Config) (*Decryptor, error) {
	plugin, err := encrypt.Select(cfg.EncryptionProvider)
	if err != nil {
		return nil, err
	}
	provider, err := plugin.Loader(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("encryption provider %q: %w", cfg.EncryptionProvider, err)
	}
	return NewWithProvider(provider), nil
}

// NewWithProvider wraps an already loaded provider.
func NewWithProvider(p encrypt.Provider) *Decryptor {
	return &Decryptor{provider: p}
}

// ProviderID returns the underlying provider id.
func (d *Decryptor) ProviderID() string {
	return d.provider.ID()
}

// DecryptText decodes base64 text and opens it. With the "plain" provider the
// text is returned unchanged.
func (d *Decryptor) DecryptText(encoded string) (string, error) {
	if d.provider.ID() == "plain" {
		return encoded, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", &DecryptionError{Reason: "invalid base64", Err: err}
	}
	plain, err := d.provider.Decrypt(raw)
	if err != nil {
		return "", &DecryptionError{Reason: "open failed", Err: err}
	}
	return string(plain), nil
}

// EncryptText seals text and returns it base64 encoded.
func (d *Decryptor) EncryptText(text string) (string, error) {
	if d.provider.ID() == "plain" {
		return text, nil
	}
	sealed, err := d.provider.Encrypt([]byte(text))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}
