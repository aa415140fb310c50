package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/stallsensor/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateUp brings the schema to the newest embedded version.
func (db *DB) MigrateUp() error {
	return db.migrate("up", func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown undoes the newest applied migration.
func (db *DB) MigrateDown() error {
	return db.migrate("down", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// MigrateVersion reports the applied schema version, 0 for an empty database.
func (db *DB) MigrateVersion() (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := db.migrate("version", func(m *migrate.Migrate) error {
		var err error
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

// migrate runs fn against the embedded migrations. The migrate instance is
// never closed because that would close the shared connection pool.
func (db *DB) migrate(op string, fn func(*migrate.Migrate) error) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate %s: embedded source: %w", op, err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("migrate %s: sqlite driver: %w", op, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	m.Log = migrateLog{}
	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	return nil
}

type migrateLog struct{}

func (migrateLog) Printf(format string, v ...interface{}) {
	monitoring.Debugf("db migrate: "+format, v...)
}

func (migrateLog) Verbose() bool { return false }
