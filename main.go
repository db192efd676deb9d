package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmap-ingest/internal/cmd/export"
	"github.com/chirino/chatmap-ingest/internal/cmd/migrate"
	"github.com/chirino/chatmap-ingest/internal/cmd/serve"
	"github.com/chirino/chatmap-ingest/internal/cmd/share"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "chatmap-ingest",
		Usage: "Turns chat connector streams into shareable maps",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			export.Command(),
			share.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
