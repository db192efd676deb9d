package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	KeyEncodingRaw    = "raw"
	KeyEncodingHex    = "hex"
	KeyEncodingBase64 = "base64"
	KeyEncodingAuto   = "auto"
)

// DecodeEncryptionKey decodes an AES key using the given encoding.
// "raw" uses the UTF-8 bytes of the value as-is, which is what the chat connectors do
// with CHATMAP_ENC_KEY. "auto" tries hex, then base64, then raw.
func DecodeEncryptionKey(raw string, encoding string) ([]byte, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", KeyEncodingRaw:
		if validAESKeyLen(len(value)) {
			return []byte(value), nil
		}
		return nil, fmt.Errorf("raw key must be 16, 24 or 32 bytes, got %d", len(value))
	case KeyEncodingHex:
		if b, err := hex.DecodeString(value); err == nil && validAESKeyLen(len(b)) {
			return b, nil
		}
		return nil, fmt.Errorf("key must be a hex encoded 16/24/32-byte value")
	case KeyEncodingBase64:
		if b, ok := decodeBase64Key(value); ok {
			return b, nil
		}
		return nil, fmt.Errorf("key must be a base64 encoded 16/24/32-byte value")
	case KeyEncodingAuto:
		if b, err := hex.DecodeString(value); err == nil && validAESKeyLen(len(b)) {
			return b, nil
		}
		if b, ok := decodeBase64Key(value); ok {
			return b, nil
		}
		if validAESKeyLen(len(value)) {
			return []byte(value), nil
		}
		return nil, fmt.Errorf("key must be hex, base64 or raw 16/24/32-byte value")
	default:
		return nil, fmt.Errorf("unknown key encoding %q", encoding)
	}
}

// DecodeEncryptionKeysCSV parses comma-separated encryption keys.
func DecodeEncryptionKeysCSV(raw string, encoding string) ([][]byte, error) {
	parts := SplitKeysCSV(raw)
	result := make([][]byte, 0, len(parts))
	for _, part := range parts {
		key, err := DecodeEncryptionKey(part, encoding)
		if err != nil {
			return nil, err
		}
		result = append(result, key)
	}
	return result, nil
}

// SplitKeysCSV splits a comma-separated key list, dropping blank entries.
func SplitKeysCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		result = append(result, part)
	}
	return result
}

func decodeBase64Key(value string) ([]byte, bool) {
	if b, err := base64.StdEncoding.DecodeString(value); err == nil && validAESKeyLen(len(b)) {
		return b, true
	}
	if b, err := base64.RawStdEncoding.DecodeString(value); err == nil && validAESKeyLen(len(b)) {
		return b, true
	}
	return nil, false
}

func validAESKeyLen(n int) bool {
	return n == 16 || n == 24 || n == 32
}
