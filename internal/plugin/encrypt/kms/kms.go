// Package kms registers the "kms" encryption provider. The configured keys are
// AWS KMS ciphertext blobs; KMS is used only to unwrap them at load time,
// never per message.
package kms

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/charmbracelet/log"

	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/plugin/encrypt/gcm"
	"github.com/chirino/chatmap-ingest/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "kms",
		Loader: func(ctx context.Context, cfg *config.Config) (encrypt.Provider, error) {
			if cfg.EncryptionKMSKeyID == "" {
				return nil, fmt.Errorf("kms provider: CHATMAP_ENCRYPTION_KMS_KEY_ID is required")
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("kms provider: loading AWS config: %w", err)
			}
			return New(ctx, awskms.NewFromConfig(awsCfg), cfg.EncryptionKMSKeyID, cfg.EncryptionKey)
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Client is the subset of the KMS API used to unwrap keys.
type Client interface {
	Decrypt(ctx context.Context, in *awskms.DecryptInput, optFns ...func(*awskms.Options)) (*awskms.DecryptOutput, error)
}

// New unwraps every base64 blob in keysCSV (first is primary) and returns a
// key ring over the plaintext keys.
func New(ctx context.Context, client Client, keyID, keysCSV string) (*gcm.KeyRing, error) {
	blobs := config.SplitKeysCSV(keysCSV)
	if len(blobs) == 0 {
		return nil, fmt.Errorf("kms provider: CHATMAP_ENC_KEY must hold at least one wrapped key")
	}
	keys := make([][]byte, 0, len(blobs))
	for i, blob := range blobs {
		wrapped, err := base64.StdEncoding.DecodeString(blob)
		if err != nil {
			return nil, fmt.Errorf("kms provider: key %d is not base64: %w", i, err)
		}
		out, err := client.Decrypt(ctx, &awskms.DecryptInput{
			CiphertextBlob: wrapped,
			KeyId:          aws.String(keyID),
		})
		if err != nil {
			return nil, fmt.Errorf("kms provider: unwrap key %d: %w", i, err)
		}
		keys = append(keys, out.Plaintext)
	}
	log.Info("Unwrapped encryption keys", "provider", "kms", "keys", len(keys))
	return gcm.NewKeyRing("kms", keys)
}
