package config

import (
	"context"
	"os"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for the management listener.
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	IngestModeUpsert   = "upsert"
	IngestModeSnapshot = "snapshot"
)

// Config holds all configuration for the ingestion service.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Database
	DBURL string `validate:"required_unless=DatastoreType sqlite"`

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Datastore backend type
	DatastoreType string `validate:"oneof=postgres sqlite"` // "postgres" or "sqlite"

	// DB pool
	DBMaxOpenConns int `validate:"gte=0"`
	DBMaxIdleConns int `validate:"gte=0"`

	// IngestMode selects how correlated features are persisted: "upsert" writes
	// points into the datastore, "snapshot" merges whole FeatureCollections.
	IngestMode string `validate:"oneof=upsert snapshot"`

	// Snapshot backend type, used when IngestMode is "snapshot".
	SnapshotType string `validate:"oneof=redis mongo"` // "redis" or "mongo"

	// Redis
	RedisURL string

	// MongoURL is used by the mongo media and snapshot plugins.
	MongoURL      string
	MongoDatabase string

	// Log source type
	SourceType string `validate:"oneof=redis"` // "redis"

	// SourceKeyPattern is the SCAN pattern used to discover per-owner streams.
	SourceKeyPattern string

	// PollInterval is the delay between two polling cycles.
	PollInterval time.Duration `validate:"gt=0"`

	// StreamCleanup trims log entries older than StreamRetention after each read.
	StreamCleanup   bool
	StreamRetention time.Duration

	// Cache backend type for resolved media URLs.
	CacheType string `validate:"oneof=memory redis none"` // "memory", "redis", or "none"
	CacheTTL  time.Duration

	// Media store type
	MediaType string `validate:"oneof=fs s3 postgres mongo"` // "fs", "s3", "postgres", or "mongo"

	// MediaDir is the local directory used by the "fs" media store.
	MediaDir string

	// MediaUpstreamURL is the connector base URL media bytes are fetched from.
	MediaUpstreamURL string

	// MediaPublicURL and APIVersion build the returned media access URL.
	MediaPublicURL string
	APIVersion     string

	MediaMaxSize       int64         `validate:"gte=0"`
	MediaFetchTimeout  time.Duration `validate:"gte=0"`
	MediaFetchRate     float64       `validate:"gte=0"` // requests per second, 0 disables limiting
	MediaFetchBurst    int           `validate:"gte=0"`
	MediaBreakerTrips  uint32
	MediaBreakerPeriod time.Duration

	// S3
	S3Bucket       string
	S3Prefix       string
	S3UsePathStyle bool

	// Encryption
	EncryptionProvider string `validate:"oneof=gcm kms vault plain"` // "gcm", "kms", "vault", or "plain"
	// EncryptionKey is a comma-separated list of keys. The first key is primary
	// (used by Encrypt); subsequent keys are legacy (decryption-only, for key rotation).
	// For the kms and vault providers each entry is a wrapped key.
	EncryptionKey         string
	EncryptionKeyEncoding string `validate:"oneof=raw hex base64 auto"` // "raw", "hex", "base64", or "auto"
	EncryptionKMSKeyID    string
	EncryptionVaultKey    string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Management server
	ManagementListener  ListenerConfig
	ManagementEnabled   bool
	ManagementAccessLog bool

	// Temporary file directory. Empty uses platform default temp directory.
	TempDir string

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:                "info",
		DatastoreType:           "postgres",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          10,
		DBMaxIdleConns:          2,
		IngestMode:              IngestModeUpsert,
		SnapshotType:            "redis",
		MongoDatabase:           "chatmap",
		SourceType:              "redis",
		SourceKeyPattern:        "messages:*",
		PollInterval:            10 * time.Second,
		StreamCleanup:           true,
		StreamRetention:         30 * time.Minute,
		CacheType:               "memory",
		CacheTTL:                time.Hour,
		MediaType:               "fs",
		MediaDir:                "media",
		MediaUpstreamURL:        "http://localhost:8001",
		MediaPublicURL:          "http://localhost:8000",
		APIVersion:              "1",
		MediaMaxSize:            50 * 1024 * 1024, // 50 MB
		MediaFetchTimeout:       30 * time.Second,
		MediaFetchRate:          20,
		MediaFetchBurst:         5,
		MediaBreakerTrips:       5,
		MediaBreakerPeriod:      30 * time.Second,
		EncryptionProvider:      "gcm",
		EncryptionKey:           "0123456789ABCDEF0123456789ABCDEF",
		EncryptionKeyEncoding:   KeyEncodingRaw,
		MetricsLabels:           "service=chatmap-ingest",
		ManagementListener: ListenerConfig{
			Port:              9090,
			EnablePlainText:   true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementEnabled: true,
		DrainTimeout:      30,
	}
}

// ResolvedTempDir returns the configured temp directory or the platform default.
func (c *Config) ResolvedTempDir() string {
	if c == nil {
		return os.TempDir()
	}
	if dir := strings.TrimSpace(c.TempDir); dir != "" {
		return dir
	}
	return os.TempDir()
}

// MediaURL returns the public access URL for a stored media key.
func (c *Config) MediaURL(key string) string {
	base := strings.TrimRight(strings.TrimSpace(c.MediaPublicURL), "/")
	version := strings.TrimPrefix(strings.TrimSpace(c.APIVersion), "v")
	if version == "" {
		version = "1"
	}
	return base + "/v" + version + "/media?filename=" + key
}
