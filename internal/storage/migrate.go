package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations brings the kv schema at dbPath up to date.
func RunMigrations(dbPath string) error {
	_, err := migrateUp(dbPath)
	return err
}

// SchemaVersion reports the applied migration version of dbPath.
func SchemaVersion(dbPath string) (uint, error) {
	m, closeFn, err := newMigrator(dbPath)
	if err != nil {
		return 0, err
	}
	defer closeFn()

	v, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func migrateUp(dbPath string) (uint, error) {
	m, closeFn, err := newMigrator(dbPath)
	if err != nil {
		return 0, err
	}
	defer closeFn()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}
	v, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// newMigrator opens its own connection; the migrate driver closes it with the
// migrator.
func newMigrator(dbPath string) (*migrate.Migrate, func(), error) {
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open migration database: %w", err)
	}

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		migrateDB.Close()
		return nil, nil, fmt.Errorf("create sqlite driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		migrateDB.Close()
		return nil, nil, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		migrateDB.Close()
		return nil, nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, func() { m.Close() }, nil
}
