package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/billingsync/cmd/app/commands"
	"github.com/allisson/billingsync/internal/app"
	"github.com/allisson/billingsync/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the HTTP server",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "with-workers",
					Value: true,
					Usage: "Run the repair and reconciliation workers in the server process",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version, cmd.Bool("with-workers"))
			},
		},
		{
			Name:  "worker",
			Usage: "Run the repair and reconciliation workers without the HTTP API",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunWorkers(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
			},
		},
	}
}
