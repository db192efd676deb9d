package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/cmd/cliflags"
	"github.com/chirino/chatmap-ingest/internal/config"
	registrymigrate "github.com/chirino/chatmap-ingest/internal/registry/migrate"
	"github.com/urfave/cli/v3"
)

// Command returns the migrate sub-command. Store plugins register their
// migrators alongside their primary interface; cliflags imports them.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the point store schema",
		Flags: append(cliflags.Logging(&cfg), cliflags.Database(&cfg)...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cliflags.Prepare(&cfg); err != nil {
				return err
			}
			cfg.DatastoreMigrateAtStart = true
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...", "db", cfg.DatastoreType)
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
