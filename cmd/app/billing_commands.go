package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/billingsync/cmd/app/commands"
	"github.com/allisson/billingsync/internal/app"
	"github.com/allisson/billingsync/internal/config"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func getBillingCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "reconcile-webhooks",
			Usage: "Replay recent Stripe events that never reached processed (one pass)",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				reconciler, err := container.ReconciliationWorker()
				if err != nil {
					return err
				}

				return commands.RunReconcileWebhooks(
					ctx,
					reconciler,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "repair-billing-profiles",
			Usage: "Drain the billing profile repair queue (one pass)",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				repairWorker, err := container.RepairWorker()
				if err != nil {
					return err
				}

				return commands.RunRepairBillingProfiles(
					ctx,
					repairWorker,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
	}
}
