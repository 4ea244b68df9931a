package commands

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsSource(t *testing.T) {
	source, err := migrationsSource("postgres")
	require.NoError(t, err)
	assert.Equal(t, "file://migrations/postgresql", source)

	source, err = migrationsSource("mysql")
	require.NoError(t, err)
	assert.Equal(t, "file://migrations/mysql", source)

	_, err = migrationsSource("sqlite")
	assert.ErrorContains(t, err, `unsupported database driver for migrations: "sqlite"`)
}

// TestMigrationDirs checks both drivers ship the same ordered set of up and down files.
func TestMigrationDirs(t *testing.T) {
	root := filepath.Join("..", "..", "..")

	list := func(driver string) []string {
		entries, err := os.ReadDir(filepath.Join(root, migrationDirs[driver]))
		require.NoError(t, err)
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return names
	}

	postgres := list("postgres")
	require.NotEmpty(t, postgres)
	assert.Equal(t, postgres, list("mysql"))

	for _, name := range postgres {
		assert.True(t, strings.HasSuffix(name, ".up.sql") || strings.HasSuffix(name, ".down.sql"), name)
	}
	assert.Len(t, postgres, 8)
}

func TestRunMigrations(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("unsupported-driver", func(t *testing.T) {
		err := RunMigrations(logger, "invalid", "postgres://localhost")
		assert.ErrorContains(t, err, "unsupported database driver")
	})

	t.Run("invalid-connection-string", func(t *testing.T) {
		err := RunMigrations(logger, "postgres", "invalid-connection-string")
		assert.ErrorContains(t, err, "failed to create migrate instance")
	})

	t.Run("invalid-mysql-connection-string", func(t *testing.T) {
		err := RunMigrations(logger, "mysql", "invalid-connection-string")
		assert.ErrorContains(t, err, "failed to create migrate instance")
	})
}
