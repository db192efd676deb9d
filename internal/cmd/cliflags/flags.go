// Package cliflags holds the flag groups and startup helpers shared by the
// chatmap-ingest sub-commands.
package cliflags

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/config"
	storemetrics "github.com/chirino/chatmap-ingest/internal/plugin/store/metrics"
	registrystore "github.com/chirino/chatmap-ingest/internal/registry/store"
	"github.com/urfave/cli/v3"

	_ "github.com/chirino/chatmap-ingest/internal/plugin/store/postgres"
	_ "github.com/chirino/chatmap-ingest/internal/plugin/store/sqlite"
)

// Logging returns the log level flag.
func Logging(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHATMAP_LOG_LEVEL"),
			Destination: &cfg.LogLevel,
			Value:       cfg.LogLevel,
			Usage:       "Log level (debug|info|warn|error)",
		},
	}
}

// Database returns the datastore flags.
func Database(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHATMAP_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Point store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHATMAP_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL (postgres DSN or sqlite file path); defaults to one built from CHATMAP_DB_HOST",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHATMAP_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHATMAP_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},
	}
}

// Prepare applies the legacy environment, sets the log level and validates
// the datastore settings.
func Prepare(cfg *config.Config) error {
	if err := cfg.ApplyLegacyEnv(); err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	log.SetLevel(level)
	if cfg.DBURL == "" && cfg.DatastoreType != "sqlite" {
		return fmt.Errorf("--db-url (or CHATMAP_DB_HOST) is required for the %s store", cfg.DatastoreType)
	}
	return cfg.Validate()
}

// OpenStore loads the configured point store, wrapped with latency metrics.
func OpenStore(ctx context.Context, cfg *config.Config) (registrystore.PointStore, error) {
	loader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := loader(config.WithContext(ctx, cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return storemetrics.Wrap(store), nil
}
