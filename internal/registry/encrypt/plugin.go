package encrypt

import (
	"context"
	"fmt"

	"github.com/chirino/chatmap-ingest/internal/config"
)

// Provider is the SPI for pluggable encryption providers.
// Ciphertext is the connector wire layout: nonce(12) || ciphertext || tag(16).
type Provider interface {
	// ID returns the provider identifier (e.g. "plain", "gcm", "vault").
	ID() string

	// Encrypt seals plaintext with the primary key.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt opens ciphertext, trying the primary key first and then any
	// legacy rotation keys.
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Plugin bundles a provider name with its loader function.
type Plugin struct {
	Name   string
	Loader func(ctx context.Context, cfg *config.Config) (Provider, error)
}

var plugins []Plugin

// Register adds an encryption provider plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered provider names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the Plugin for the given name.
func Select(name string) (Plugin, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p, nil
		}
	}
	return Plugin{}, fmt.Errorf("unknown encryption provider %q; registered: %v", name, Names())
}
