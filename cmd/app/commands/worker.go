package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/allisson/billingsync/internal/app"
	"github.com/allisson/billingsync/internal/config"
)

// Poller is a background worker with an explicit lifecycle.
type Poller interface {
	Name() string
	Start(ctx context.Context)
	Stop()
}

// containerPollers returns the repair and reconciliation workers from the container.
func containerPollers(container *app.Container) ([]Poller, error) {
	repairWorker, err := container.RepairWorker()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repair worker: %w", err)
	}
	reconciliationWorker, err := container.ReconciliationWorker()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reconciliation worker: %w", err)
	}
	return []Poller{repairWorker, reconciliationWorker}, nil
}

// RunWorkers starts the background workers and the metrics server without the API.
// Blocks until receiving SIGINT/SIGTERM.
func RunWorkers(ctx context.Context, version string) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting workers", slog.String("version", version))

	defer closeContainer(container, logger)

	pollers, err := containerPollers(container)
	if err != nil {
		return err
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pollers {
		g.Go(func() error {
			return runPoller(gctx, p, logger)
		})
	}

	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Start(gctx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DBConnMaxLifetime)
			defer shutdownCancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// runPoller starts p and stops it once ctx is done, waiting for the in-flight tick.
func runPoller(ctx context.Context, p Poller, logger *slog.Logger) error {
	p.Start(ctx)
	<-ctx.Done()
	logger.Info("stopping worker", slog.String("worker", p.Name()))
	p.Stop()
	return nil
}
