package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyLegacyEnv(t *testing.T) {
	t.Setenv("CHATMAP_ENC_KEY", "fedcba9876543210fedcba9876543210")
	t.Setenv("SERVER_URL", "http://connector:8001")
	t.Setenv("CHATMAP_API_URL", "https://api.example")
	t.Setenv("CHATMAP_API_VERSION", "2")
	t.Setenv("CHATMAP_STREAM_LISTENER_TIME", "15")
	t.Setenv("CHATMAP_EXPIRING_MIN", "45")
	t.Setenv("CHATMAP_DISABLE_STREAM_CLEANUP", "true")
	t.Setenv("CHATMAP_MEDIA_MAX_SIZE", "12M")
	t.Setenv("CHATMAP_CACHE_TTL", "PT2H")
	t.Setenv("CHATMAP_MEDIA_FETCH_RATE", "2.5")

	cfg := DefaultConfig()
	err := cfg.ApplyLegacyEnv()
	require.NoError(t, err)

	require.Equal(t, "fedcba9876543210fedcba9876543210", cfg.EncryptionKey)
	require.Equal(t, "http://connector:8001", cfg.MediaUpstreamURL)
	require.Equal(t, "https://api.example", cfg.MediaPublicURL)
	require.Equal(t, 15*time.Second, cfg.PollInterval)
	require.Equal(t, 45*time.Minute, cfg.StreamRetention)
	require.False(t, cfg.StreamCleanup)
	require.Equal(t, int64(12*1024*1024), cfg.MediaMaxSize)
	require.Equal(t, 2*time.Hour, cfg.CacheTTL)
	require.Equal(t, 2.5, cfg.MediaFetchRate)
	require.Equal(t, "https://api.example/v2/media?filename=abc.jpg", cfg.MediaURL("abc.jpg"))
}

func TestApplyLegacyEnv_ScaledAcceptsGoDurations(t *testing.T) {
	t.Setenv("CHATMAP_STREAM_LISTENER_TIME", "500ms")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyLegacyEnv())
	require.Equal(t, 500*time.Millisecond, cfg.PollInterval)
}

func TestApplyLegacyEnv_RejectsInvalid(t *testing.T) {
	t.Setenv("CHATMAP_EXPIRING_MIN", "soon")

	cfg := DefaultConfig()
	require.Error(t, cfg.ApplyLegacyEnv())
}

func TestParseDuration_ISO(t *testing.T) {
	d, err := parseDuration("PT1H30M")
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, d)

	_, err = parseDuration("P1D")
	require.Error(t, err)
}

func TestApplyLegacyEnv_BuildsConnectionURLs(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("CHATMAP_DB_HOST", "db")
	t.Setenv("CHATMAP_DB_USER", "chat")
	t.Setenv("CHATMAP_DB_PASSWORD", "s3cret")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyLegacyEnv())
	require.Equal(t, "redis://redis:6379/0", cfg.RedisURL)
	require.Equal(t, "postgres://chat:s3cret@db:5432/chatmap?sslmode=disable", cfg.DBURL)
}

func TestApplyLegacyEnv_KeepsExplicitURLs(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("CHATMAP_DB_HOST", "db")

	cfg := DefaultConfig()
	cfg.RedisURL = "redis://other:6380"
	cfg.DBURL = "postgres://x@y/z"
	require.NoError(t, cfg.ApplyLegacyEnv())
	require.Equal(t, "redis://other:6380", cfg.RedisURL)
	require.Equal(t, "postgres://x@y/z", cfg.DBURL)
}
