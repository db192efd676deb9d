package vault_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/chirino/chatmap-ingest/internal/plugin/encrypt/vault"
	vaultapi "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/require"
)

type fakeTransit struct {
	paths []string
}

func (f *fakeTransit) WriteWithContext(_ context.Context, path string, data map[string]interface{}) (*vaultapi.Secret, error) {
	f.paths = append(f.paths, path)
	ct, _ := data["ciphertext"].(string)
	plain, ok := strings.CutPrefix(ct, "vault:v1:")
	if !ok {
		return nil, errors.New("invalid ciphertext")
	}
	return &vaultapi.Secret{Data: map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString([]byte(plain)),
	}}, nil
}

func TestNewUnwrapsTransitKeys(t *testing.T) {
	transit := &fakeTransit{}
	ring, err := vault.New(context.Background(), transit, "chatmap",
		"vault:v1:0123456789ABCDEF0123456789ABCDEF")
	require.NoError(t, err)
	require.Equal(t, []string{"transit/decrypt/chatmap"}, transit.paths)

	ct, err := ring.Encrypt([]byte("hola"))
	require.NoError(t, err)
	got, err := ring.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "hola", string(got))
}

func TestNewFailsOnUnwrapError(t *testing.T) {
	_, err := vault.New(context.Background(), &fakeTransit{}, "chatmap", "garbage")
	require.Error(t, err)
}
