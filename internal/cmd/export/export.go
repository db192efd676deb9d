package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/chirino/chatmap-ingest/internal/cmd/cliflags"
	"github.com/chirino/chatmap-ingest/internal/config"
	"github.com/chirino/chatmap-ingest/internal/model"
	registrystore "github.com/chirino/chatmap-ingest/internal/registry/store"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

// Command returns the export sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var owner, mapID string
	var public, pretty bool
	return &cli.Command{
		Name:  "export",
		Usage: "Print a map as a GeoJSON FeatureCollection",
		Flags: append(append(cliflags.Logging(&cfg), cliflags.Database(&cfg)...),
			&cli.StringFlag{
				Name:        "owner",
				Usage:       "Export the map owned by this user",
				Destination: &owner,
			},
			&cli.StringFlag{
				Name:        "map-id",
				Usage:       "Export the map with this id",
				Destination: &mapID,
			},
			&cli.BoolFlag{
				Name:        "public",
				Usage:       "Only export the map when it is shared publicly",
				Destination: &public,
			},
			&cli.BoolFlag{
				Name:        "pretty",
				Usage:       "Indent the output",
				Destination: &pretty,
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
			return Run(ctx, store, os.Stdout, Options{Owner: owner, MapID: mapID, Public: public, Pretty: pretty})
		},
	}
}

// Options selects the map to export.
type Options struct {
	Owner  string
	MapID  string
	Public bool
	Pretty bool
}

// Run writes the selected map to w.
func Run(ctx context.Context, store registrystore.PointStore, w io.Writer, opts Options) error {
	id, err := resolveMapID(ctx, store, opts)
	if err != nil {
		return err
	}
	var (
		m      *model.Map
		points []model.Point
	)
	if opts.Public {
		m, points, err = store.PublicMap(ctx, id)
	} else {
		m, points, err = store.ExportMap(ctx, id)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	if opts.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(model.MapCollection(m, points))
}

func resolveMapID(ctx context.Context, store registrystore.PointStore, opts Options) (uuid.UUID, error) {
	switch {
	case opts.MapID != "" && opts.Owner != "":
		return uuid.Nil, &registrystore.ValidationError{Field: "map-id", Message: "use either --owner or --map-id"}
	case opts.MapID != "":
		id, err := uuid.Parse(opts.MapID)
		if err != nil {
			return uuid.Nil, &registrystore.ValidationError{Field: "map-id", Message: err.Error()}
		}
		return id, nil
	case opts.Owner != "":
		m, err := store.GetMapByOwner(ctx, opts.Owner)
		if err != nil {
			return uuid.Nil, err
		}
		return m.ID, nil
	default:
		return uuid.Nil, fmt.Errorf("one of --owner or --map-id is required")
	}
}
