// Package plain registers the "plain" no-op encryption provider for
// deployments whose connectors store message text unencrypted.
package plain

import (
	"context"

	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "plain",
		Loader: func(_ context.Context, _ *config.Config) (encrypt.Provider, error) {
			return Provider{}, nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Provider passes data through unchanged.
type Provider struct{}

func (Provider) ID() string { return "plain" }

func (Provider) Encrypt(plaintext []byte) ([]byte, error) { return plaintext, nil }

func (Provider) Decrypt(ciphertext []byte) ([]byte, error) { return ciphertext, nil }

var _ encrypt.Provider = Provider{}
