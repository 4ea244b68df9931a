package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// migrationDirs maps each supported driver to its migrations directory, relative to the
// working directory.
var migrationDirs = map[string]string{
	"postgres": "migrations/postgresql",
	"mysql":    "migrations/mysql",
}

// migrationsSource returns the file source URL for the driver's migrations.
func migrationsSource(dbDriver string) (string, error) {
	dir, ok := migrationDirs[dbDriver]
	if !ok {
		return "", fmt.Errorf("unsupported database driver for migrations: %q", dbDriver)
	}
	return "file://" + dir, nil
}

// RunMigrations applies the pending webhook ledger, consistency store and billing profile
// migrations for the driver. Returns nil when there is nothing to apply.
func RunMigrations(logger *slog.Logger, dbDriver, dbConnectionString string) error {
	source, err := migrationsSource(dbDriver)
	if err != nil {
		return err
	}
	logger.Info("running database migrations",
		slog.String("driver", dbDriver),
		slog.String("source", source),
	)

	m, err := migrate.New(source, dbConnectionString)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer closeMigrate(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	logger.Info("migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}
