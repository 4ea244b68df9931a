package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/billingsync/cmd/app/commands"
	"github.com/allisson/billingsync/internal/app"
	"github.com/allisson/billingsync/internal/config"
)

func getAuthCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-admin-token",
			Usage: "Generate an operator API token and its ADMIN_TOKEN_HASH value",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunCreateAdminToken(
					container.AdminTokenService(),
					container.Logger(),
					cmd.String("format"),
					commands.DefaultIO(),
				)
			},
		},
	}
}
