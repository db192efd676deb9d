package config

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvedTempDir_DefaultsToOSTempDir(t *testing.T) {
	var cfg Config
	require.Equal(t, os.TempDir(), cfg.ResolvedTempDir())
}

func TestResolvedTempDir_UsesConfiguredValue(t *testing.T) {
	cfg := Config{TempDir: " /tmp/custom-dir "}
	require.Equal(t, "/tmp/custom-dir", cfg.ResolvedTempDir())
}

func TestMediaURL_NormalizesVersionAndBase(t *testing.T) {
	cfg := Config{MediaPublicURL: "http://localhost:8000/", APIVersion: "v1"}
	require.Equal(t, "http://localhost:8000/v1/media?filename=k.png", cfg.MediaURL("k.png"))
}

func TestContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
	require.Nil(t, FromContext(context.Background()))
}
