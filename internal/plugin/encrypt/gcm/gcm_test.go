package gcm_test

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/plugin/encrypt/gcm"
	"github.com/chirino/chatmap-ingest/internal/registry/encrypt"
	"github.com/stretchr/testify/require"
)

// 32-character keys used as raw bytes, the way the connectors use CHATMAP_ENC_KEY.
const testKey = "0123456789ABCDEF0123456789ABCDEF"
const legacyKey = "fedcba9876543210fedcba9876543210"

func newProvider(t *testing.T, keys ...string) encrypt.Provider {
	t.Helper()
	plugin, err := encrypt.Select("gcm")
	require.NoError(t, err)
	p, err := plugin.Loader(context.Background(), &config.Config{
		EncryptionKey:         strings.Join(keys, ","),
		EncryptionKeyEncoding: config.KeyEncodingRaw,
	})
	require.NoError(t, err)
	return p
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	p := newProvider(t, testKey)
	plaintext := []byte("hola desde el mapa")

	ct, err := p.Encrypt(plaintext)
	require.NoError(t, err)
	require.Len(t, ct, gcm.NonceSize+len(plaintext)+gcm.TagSize)

	got, err := p.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

// TestDecryptConnectorLayout seals with the standard library directly to pin
// the nonce || ciphertext || tag layout.
func TestDecryptConnectorLayout(t *testing.T) {
	block, err := aes.NewCipher([]byte(testKey))
	require.NoError(t, err)
	aead, err := cipher.NewGCM(block)
	require.NoError(t, err)
	nonce := []byte("123456789012")
	wire := aead.Seal(append([]byte{}, nonce...), nonce, []byte("hi"), nil)

	// Round trip through base64 as stored in the stream.
	decoded, err := base64.StdEncoding.DecodeString(base64.StdEncoding.EncodeToString(wire))
	require.NoError(t, err)

	got, err := newProvider(t, testKey).Decrypt(decoded)
	require.NoError(t, err)
	require.Equal(t, "hi", string(got))
}

func TestDecryptWithLegacyKey(t *testing.T) {
	old := newProvider(t, legacyKey)
	ct, err := old.Encrypt([]byte("rotated"))
	require.NoError(t, err)

	rotated := newProvider(t, testKey, legacyKey)
	got, err := rotated.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "rotated", string(got))

	_, err = newProvider(t, testKey).Decrypt(ct)
	require.Error(t, err)
}

func TestDecryptCorruptedTag(t *testing.T) {
	p := newProvider(t, testKey)
	ct, err := p.Encrypt([]byte("secret"))
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0xff

	_, err = p.Decrypt(ct)
	require.Error(t, err)
}

func TestDecryptShortBuffer(t *testing.T) {
	_, err := newProvider(t, testKey).Decrypt(make([]byte, gcm.NonceSize+gcm.TagSize-1))
	require.ErrorIs(t, err, gcm.ErrShortCiphertext)
}

func TestLoaderRejectsBadKey(t *testing.T) {
	plugin, err := encrypt.Select("gcm")
	require.NoError(t, err)
	_, err = plugin.Loader(context.Background(), &config.Config{EncryptionKey: "short"})
	require.Error(t, err)
	_, err = plugin.Loader(context.Background(), &config.Config{})
	require.Error(t, err)
}
