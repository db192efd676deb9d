package share

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/cmd/cliflags"
	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/model"
	registrystore "github.com/chirino/chatmap-ingest/internal/registry/store"
	"github.com/urfave/cli/v3"
)

// Command returns the share sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var owner, mode string
	return &cli.Command{
		Name:  "share",
		Usage: "Toggle or set who can read an owner's map",
		Flags: append(append(cliflags.Logging(&cfg), cliflags.Database(&cfg)...),
			&cli.StringFlag{
				Name:        "owner",
				Usage:       "Owner of the map",
				Destination: &owner,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "sharing",
				Usage:       "Set sharing to private or public; toggles when empty",
				Destination: &mode,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cliflags.Prepare(&cfg); err != nil {
				return err
			}
			store, err := cliflags.OpenStore(ctx, &cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			return Run(ctx, store, os.Stdout, owner, model.Sharing(mode))
		},
	}
}

// Run sets owner's map sharing, toggling the current mode when sharing is
// empty, and prints the resulting mode and map id.
func Run(ctx context.Context, store registrystore.PointStore, w io.Writer, owner string, sharing model.Sharing) error {
	m, err := store.GetOrCreateMap(ctx, owner)
	if err != nil {
		return err
	}
	if sharing == "" {
		sharing = m.Sharing.Toggle()
	}
	if !sharing.Valid() {
		return &registrystore.ValidationError{Field: "sharing", Message: fmt.Sprintf("unknown sharing mode %q", sharing)}
	}
	m, err = store.SetSharing(ctx, owner, sharing)
	if err != nil {
		return err
	}
	log.Info("Map sharing updated", "owner", owner, "map", m.ID, "sharing", m.Sharing)
	_, err = fmt.Fprintf(w, "%s %s\n", m.ID, m.Sharing)
	return err
}
