package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyLegacyEnv reads the environment variables of the chatmap API deployment
// (CHATMAP_ENC_KEY, CHATMAP_STREAM_LISTENER_TIME, REDIS_HOST, CHATMAP_DB_*, ...)
// and a few settings that are not represented by dedicated CLI flags.
func (c *Config) ApplyLegacyEnv() error {
	if c == nil {
		return nil
	}

	var err error
	applyStringEnv("CHATMAP_ENC_KEY", &c.EncryptionKey)
	applyStringEnv("SERVER_URL", &c.MediaUpstreamURL)
	applyStringEnv("CHATMAP_API_URL", &c.MediaPublicURL)
	applyStringEnv("CHATMAP_API_VERSION", &c.APIVersion)
	// Media keys keep the reference's extension only when it is alphanumeric,
	// so files an older deployment stored in this folder under another
	// suffix, or none, are fetched again under their new key.
	applyStringEnv("CHATMAP_MEDIA_FOLDER", &c.MediaDir)

	// The stream listener settings are bare numbers of seconds/minutes.
	if err = applyScaledEnv("CHATMAP_STREAM_LISTENER_TIME", time.Second, &c.PollInterval); err != nil {
		return err
	}
	if err = applyScaledEnv("CHATMAP_EXPIRING_MIN", time.Minute, &c.StreamRetention); err != nil {
		return err
	}
	var disableCleanup bool
	if err = applyBoolEnv("CHATMAP_DISABLE_STREAM_CLEANUP", &disableCleanup); err != nil {
		return err
	}
	if disableCleanup {
		c.StreamCleanup = false
	}

	if c.RedisURL == "" {
		if host := strings.TrimSpace(os.Getenv("REDIS_HOST")); host != "" {
			port := strings.TrimSpace(os.Getenv("REDIS_PORT"))
			if port == "" {
				port = "6379"
			}
			c.RedisURL = "redis://" + net.JoinHostPort(host, port) + "/0"
		}
	}
	if c.DBURL == "" {
		c.DBURL = dbURLFromEnv()
	}

	if err = applyBoolEnv("CHATMAP_DB_MIGRATE_AT_START", &c.DatastoreMigrateAtStart); err != nil {
		return err
	}
	if err = applyDurationEnv("CHATMAP_CACHE_TTL", &c.CacheTTL); err != nil {
		return err
	}
	if err = applyDurationEnv("CHATMAP_MEDIA_FETCH_TIMEOUT", &c.MediaFetchTimeout); err != nil {
		return err
	}
	if err = applyDurationEnv("CHATMAP_MEDIA_BREAKER_PERIOD", &c.MediaBreakerPeriod); err != nil {
		return err
	}
	if err = applyIntEnv("CHATMAP_MEDIA_FETCH_BURST", &c.MediaFetchBurst); err != nil {
		return err
	}
	if raw := strings.TrimSpace(os.Getenv("CHATMAP_MEDIA_FETCH_RATE")); raw != "" {
		v, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil || v < 0 {
			return fmt.Errorf("invalid CHATMAP_MEDIA_FETCH_RATE: %q", raw)
		}
		c.MediaFetchRate = v
	}
	if raw := strings.TrimSpace(os.Getenv("CHATMAP_MEDIA_MAX_SIZE")); raw != "" {
		size, parseErr := parseMemorySize(raw)
		if parseErr != nil {
			return fmt.Errorf("invalid CHATMAP_MEDIA_MAX_SIZE: %w", parseErr)
		}
		c.MediaMaxSize = size
	}
	applyStringEnv("CHATMAP_S3_PREFIX", &c.S3Prefix)
	applyStringEnv("CHATMAP_MONGO_DATABASE", &c.MongoDatabase)
	applyStringEnv("CHATMAP_ENCRYPTION_KMS_KEY_ID", &c.EncryptionKMSKeyID)
	applyStringEnv("CHATMAP_ENCRYPTION_VAULT_TRANSIT_KEY", &c.EncryptionVaultKey)

	return nil
}

// dbURLFromEnv builds a postgres URL from the CHATMAP_DB_* variables, or returns
// "" when CHATMAP_DB_HOST is not set.
func dbURLFromEnv() string {
	host := strings.TrimSpace(os.Getenv("CHATMAP_DB_HOST"))
	if host == "" {
		return ""
	}
	port := envOr("CHATMAP_DB_PORT", "5432")
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(envOr("CHATMAP_DB_USER", "admin"), os.Getenv("CHATMAP_DB_PASSWORD")),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + envOr("CHATMAP_DB", "chatmap"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func applyStringEnv(key string, dest *string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	*dest = raw
}

func applyIntEnv(key string, dest *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyBoolEnv(key string, dest *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyDurationEnv(key string, dest *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := parseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

// applyScaledEnv accepts either a bare integer (multiplied by unit) or any
// duration understood by parseDuration.
func applyScaledEnv(key string, unit time.Duration, dest *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n <= 0 {
			return fmt.Errorf("invalid %s: must be positive", key)
		}
		*dest = time.Duration(n) * unit
		return nil
	}
	return applyDurationEnv(key, dest)
}

func parseDuration(raw string) (time.Duration, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty duration")
	}

	// Go duration first (e.g. 30s, 5m).
	if d, err := time.ParseDuration(strings.ToLower(v)); err == nil {
		return d, nil
	}

	// Minimal ISO-8601 support: PT#H#M#S
	if !strings.HasPrefix(v, "PT") {
		return 0, fmt.Errorf("unsupported format %q", raw)
	}
	rest := strings.TrimPrefix(v, "PT")
	if rest == "" {
		return 0, fmt.Errorf("invalid format %q", raw)
	}
	total := time.Duration(0)
	for len(rest) > 0 {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i >= len(rest) {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		switch rest[i] {
		case 'H':
			total += time.Duration(n) * time.Hour
		case 'M':
			total += time.Duration(n) * time.Minute
		case 'S':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		rest = rest[i+1:]
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return total, nil
}

func parseMemorySize(raw string) (int64, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(v, "KB"), strings.HasSuffix(v, "K"):
		multiplier = 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "KB"), "K")
	case strings.HasSuffix(v, "MB"), strings.HasSuffix(v, "M"):
		multiplier = 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "MB"), "M")
	case strings.HasSuffix(v, "GB"), strings.HasSuffix(v, "G"):
		multiplier = 1024 * 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "GB"), "G")
	case strings.HasSuffix(v, "B"):
		v = strings.TrimSuffix(v, "B")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return n * multiplier, nil
}
