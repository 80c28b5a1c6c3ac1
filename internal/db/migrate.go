package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/intakedesk/apiserver/config"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// withMigrator runs fn against the embedded migrations and the database
// in cfg. ErrNoChange from fn is not an error.
func withMigrator(cfg config.Config, fn func(*migrate.Migrate) error) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, DSN(cfg))
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer m.Close()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// MigrateUp applies every pending migration.
func MigrateUp(cfg config.Config) error {
	return withMigrator(cfg, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back steps migrations, or all of them when steps is 0.
func MigrateDown(cfg config.Config, steps int) error {
	return withMigrator(cfg, func(m *migrate.Migrate) error {
		var err error
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
		if err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		return nil
	})
}

// Force records version as applied and clears the dirty flag left by a
// failed migration. Nothing is executed.
func Force(cfg config.Config, version int) error {
	return withMigrator(cfg, func(m *migrate.Migrate) error {
		return m.Force(version)
	})
}

// Version reports the applied schema version and whether it is dirty. An
// empty database is version 0.
func Version(cfg config.Config) (version uint, dirty bool, err error) {
	err = withMigrator(cfg, func(m *migrate.Migrate) error {
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}
