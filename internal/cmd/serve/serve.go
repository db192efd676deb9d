package serve

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/cmd/cliflags"
	"github.com/chirino/chatmap-ingest/internal/config"
	registrycache "github.com/chirino/chatmap-ingest/internal/registry/cache"
	registryencrypt "github.com/chirino/chatmap-ingest/internal/registry/encrypt"
	registrymedia "github.com/chirino/chatmap-ingest/internal/registry/media"
	registrysnapshot "github.com/chirino/chatmap-ingest/internal/registry/snapshot"
	registrysource "github.com/chirino/chatmap-ingest/internal/registry/source"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/chatmap-ingest/internal/plugin/cache/memory"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/cache/noop"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/cache/redis"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/encrypt/gcm"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/encrypt/kms"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/encrypt/plain"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/encrypt/vault"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/media/fs"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/media/mongostore"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/media/pgstore"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/media/s3store"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/route/system"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/snapshot/mongo"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/snapshot/redis"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/source/redis"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	readHeaderTimeoutSecs := 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Poll chat logs and persist geolocated points",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cliflags.Prepare(&cfg); err != nil {
				return err
			}
			cfg.ManagementListener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			return run(ctx, cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	fs := cliflags.Logging(cfg)
	fs = append(fs,
		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHATMAP_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.StringFlag{
			Name:        "temp-dir",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHATMAP_TEMP_DIR"),
			Destination: &cfg.TempDir,
			Usage:       "Directory for spooled media downloads; defaults to OS temp directory",
		},
		&cli.IntFlag{
			Name:        "drain-timeout",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHATMAP_DRAIN_TIMEOUT"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Seconds to wait for the running cycle on shutdown",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.BoolFlag{
			Name:        "management-enabled",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHATMAP_MANAGEMENT_ENABLED"),
			Destination: &cfg.ManagementEnabled,
			Value:       cfg.ManagementEnabled,
			Usage:       "Serve /health, /ready and /metrics",
		},
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHATMAP_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Port for health and metrics (0 = OS-assigned random port)",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHATMAP_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c for the management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHATMAP_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for the management server",
		},
		&cli.StringFlag{
			Name:        "management-tls-cert-file",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHATMAP_MANAGEMENT_TLS_CERT_FILE"),
			Destination: &cfg.ManagementListener.TLSCertFile,
			Usage:       "TLS certificate file; a self-signed certificate is generated when unset",
		},
		&cli.StringFlag{
			Name:        "management-tls-key-file",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHATMAP_MANAGEMENT_TLS_KEY_FILE"),
			Destination: &cfg.ManagementListener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CHATMAP_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
	)
	fs = append(fs, cliflags.Database(cfg)...)
	fs = append(fs,
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHATMAP_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Run schema migrations before polling starts",
		},

		// ── Ingest ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "ingest-mode",
			Category:    "Ingest:",
			Sources:     cli.EnvVars("CHATMAP_INGEST_MODE"),
			Destination: &cfg.IngestMode,
			Value:       cfg.IngestMode,
			Usage:       "How features are persisted (" + config.IngestModeUpsert + "|" + config.IngestModeSnapshot + ")",
		},
		&cli.StringFlag{
			Name:        "source-kind",
			Category:    "Ingest:",
			Sources:     cli.EnvVars("CHATMAP_SOURCE_KIND"),
			Destination: &cfg.SourceType,
			Value:       cfg.SourceType,
			Usage:       "Chat log source (" + strings.Join(registrysource.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "source-key-pattern",
			Category:    "Ingest:",
			Sources:     cli.EnvVars("CHATMAP_SOURCE_KEY_PATTERN"),
			Destination: &cfg.SourceKeyPattern,
			Value:       cfg.SourceKeyPattern,
			Usage:       "Pattern matching per-owner log keys",
		},
		&cli.DurationFlag{
			Name:        "poll-interval",
			Category:    "Ingest:",
			Sources:     cli.EnvVars("CHATMAP_POLL_INTERVAL"),
			Destination: &cfg.PollInterval,
			Value:       cfg.PollInterval,
			Usage:       "Delay between polling cycles",
		},
		&cli.BoolFlag{
			Name:        "stream-cleanup",
			Category:    "Ingest:",
			Sources:     cli.EnvVars("CHATMAP_STREAM_CLEANUP"),
			Destination: &cfg.StreamCleanup,
			Value:       cfg.StreamCleanup,
			Usage:       "Trim log entries older than --stream-retention after each cycle",
		},
		&cli.DurationFlag{
			Name:        "stream-retention",
			Category:    "Ingest:",
			Sources:     cli.EnvVars("CHATMAP_STREAM_RETENTION"),
			Destination: &cfg.StreamRetention,
			Value:       cfg.StreamRetention,
			Usage:       "Age after which log entries are trimmed",
		},
		&cli.StringFlag{
			Name:        "snapshot-kind",
			Category:    "Ingest:",
			Sources:     cli.EnvVars("CHATMAP_SNAPSHOT_KIND"),
			Destination: &cfg.SnapshotType,
			Value:       cfg.SnapshotType,
			Usage:       "Snapshot store used in snapshot mode (" + strings.Join(registrysnapshot.Names(), "|") + ")",
		},

		// ── Redis / Mongo ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Redis:",
			Sources:     cli.EnvVars("CHATMAP_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis URL for the log source, cache and snapshots; defaults to one built from REDIS_HOST",
		},
		&cli.StringFlag{
			Name:        "mongo-url",
			Category:    "Mongo:",
			Sources:     cli.EnvVars("CHATMAP_MONGO_URL"),
			Destination: &cfg.MongoURL,
			Usage:       "MongoDB URL for the mongo media and snapshot stores",
		},
		&cli.StringFlag{
			Name:        "mongo-database",
			Category:    "Mongo:",
			Sources:     cli.EnvVars("CHATMAP_MONGO_DATABASE"),
			Destination: &cfg.MongoDatabase,
			Value:       cfg.MongoDatabase,
			Usage:       "MongoDB database name",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHATMAP_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Resolved media URL cache (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHATMAP_CACHE_TTL"),
			Destination: &cfg.CacheTTL,
			Value:       cfg.CacheTTL,
			Usage:       "How long resolved media URLs are cached",
		},

		// ── Media ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "media-kind",
			Category:    "Media:",
			Sources:     cli.EnvVars("CHATMAP_MEDIA_KIND"),
			Destination: &cfg.MediaType,
			Value:       cfg.MediaType,
			Usage:       "Media store (" + strings.Join(registrymedia.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "media-dir",
			Category:    "Media:",
			Sources:     cli.EnvVars("CHATMAP_MEDIA_DIR"),
			Destination: &cfg.MediaDir,
			Value:       cfg.MediaDir,
			Usage:       "Directory used by the fs media store (also CHATMAP_MEDIA_FOLDER; files named with a non-alphanumeric or missing extension are re-fetched)",
		},
		&cli.StringFlag{
			Name:        "media-upstream-url",
			Category:    "Media:",
			Sources:     cli.EnvVars("CHATMAP_MEDIA_UPSTREAM_URL"),
			Destination: &cfg.MediaUpstreamURL,
			Value:       cfg.MediaUpstreamURL,
			Usage:       "Connector base URL media bytes are fetched from",
		},
		&cli.StringFlag{
			Name:        "media-public-url",
			Category:    "Media:",
			Sources:     cli.EnvVars("CHATMAP_MEDIA_PUBLIC_URL"),
			Destination: &cfg.MediaPublicURL,
			Value:       cfg.MediaPublicURL,
			Usage:       "Public API base URL used in returned media links",
		},
		&cli.StringFlag{
			Name:        "api-version",
			Category:    "Media:",
			Sources:     cli.EnvVars("CHATMAP_API_VERSION"),
			Destination: &cfg.APIVersion,
			Value:       cfg.APIVersion,
			Usage:       "API version used in returned media links",
		},
		&cli.FloatFlag{
			Name:        "media-fetch-rate",
			Category:    "Media:",
			Sources:     cli.EnvVars("CHATMAP_MEDIA_FETCH_RATE"),
			Destination: &cfg.MediaFetchRate,
			Value:       cfg.MediaFetchRate,
			Usage:       "Maximum media fetches per second (0 = unlimited)",
		},
		&cli.Uint32Flag{
			Name:        "media-breaker-trips",
			Category:    "Media:",
			Sources:     cli.EnvVars("CHATMAP_MEDIA_BREAKER_TRIPS"),
			Destination: &cfg.MediaBreakerTrips,
			Value:       cfg.MediaBreakerTrips,
			Usage:       "Consecutive fetch failures that open the circuit breaker",
		},
		&cli.StringFlag{
			Name:        "s3-bucket",
			Category:    "Media:",
			Sources:     cli.EnvVars("CHATMAP_S3_BUCKET"),
			Destination: &cfg.S3Bucket,
			Usage:       "S3 bucket for the s3 media store",
		},
		&cli.BoolFlag{
			Name:        "s3-use-path-style",
			Category:    "Media:",
			Sources:     cli.EnvVars("CHATMAP_S3_USE_PATH_STYLE"),
			Destination: &cfg.S3UsePathStyle,
			Usage:       "Use path-style S3 addressing (MinIO, LocalStack)",
		},

		// ── Encryption ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "encryption-kind",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("CHATMAP_ENCRYPTION_KIND"),
			Destination: &cfg.EncryptionProvider,
			Value:       cfg.EncryptionProvider,
			Usage:       "Message encryption provider (" + strings.Join(registryencrypt.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "encryption-key",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("CHATMAP_ENCRYPTION_KEY"),
			Destination: &cfg.EncryptionKey,
			Value:       cfg.EncryptionKey,
			Usage:       "Comma-separated keys; the first is primary, the rest are tried on decrypt",
		},
		&cli.StringFlag{
			Name:        "encryption-key-encoding",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("CHATMAP_ENCRYPTION_KEY_ENCODING"),
			Destination: &cfg.EncryptionKeyEncoding,
			Value:       cfg.EncryptionKeyEncoding,
			Usage:       "Key encoding (raw|hex|base64|auto)",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("CHATMAP_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	)
	return fs
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}
