// Package vault registers the "vault" encryption provider backed by HashiCorp
// Vault Transit. The configured keys are Transit ciphertexts (vault:v1:...);
// Vault is used only to unwrap them at load time.
package vault

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/charmbracelet/log"
	vaultapi "github.com/hashicorp/vault/api"

	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/plugin/encrypt/gcm"
	"github.com/chirino/chatmap-ingest/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "vault",
		Loader: func(ctx context.Context, cfg *config.Config) (encrypt.Provider, error) {
			if cfg.EncryptionVaultKey == "" {
				return nil, fmt.Errorf("vault provider: CHATMAP_ENCRYPTION_VAULT_TRANSIT_KEY is required")
			}
			client, err := vaultapi.NewClient(vaultapi.DefaultConfig())
			if err != nil {
				return nil, fmt.Errorf("vault provider: creating client: %w", err)
			}
			return New(ctx, client.Logical(), cfg.EncryptionVaultKey, cfg.EncryptionKey)
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Writer is the subset of the Vault logical API used for transit calls.
type Writer interface {
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*vaultapi.Secret, error)
}

// New unwraps every Transit ciphertext in keysCSV (first is primary) and
// returns a key ring over the plaintext keys.
func New(ctx context.Context, logical Writer, transitKey, keysCSV string) (*gcm.KeyRing, error) {
	wrapped := config.SplitKeysCSV(keysCSV)
	if len(wrapped) == 0 {
		return nil, fmt.Errorf("vault provider: CHATMAP_ENC_KEY must hold at least one wrapped key")
	}
	keys := make([][]byte, 0, len(wrapped))
	for i, w := range wrapped {
		plain, err := transitDecrypt(ctx, logical, transitKey, w)
		if err != nil {
			return nil, fmt.Errorf("vault provider: unwrap key %d: %w", i, err)
		}
		keys = append(keys, plain)
	}
	log.Info("Unwrapped encryption keys", "provider", "vault", "keys", len(keys))
	return gcm.NewKeyRing("vault", keys)
}

// transitDecrypt unwraps a Vault Transit ciphertext back to plaintext.
func transitDecrypt(ctx context.Context, logical Writer, transitKey, wrapped string) ([]byte, error) {
	path := fmt.Sprintf("transit/decrypt/%s", transitKey)
	secret, err := logical.WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": wrapped,
	})
	if err != nil {
		return nil, fmt.Errorf("transit/decrypt: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("transit/decrypt: empty response")
	}
	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("transit/decrypt: missing plaintext in response")
	}
	plain, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("transit/decrypt: decoding plaintext: %w", err)
	}
	return plain, nil
}
