// Package db is the sensor's sqlite store: persisted settings and the
// occupancy event log.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/stallsensor/internal/timeutil"
)

type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// NewDB opens the database at path and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	return newDB(path, timeutil.RealClock{})
}

func newDB(path string, clock timeutil.Clock) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := sqlDB.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
	`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("configure %s: %w", path, err)
	}

	db := &DB{DB: sqlDB, clock: clock}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) nowMillis() int64 {
	return db.clock.Now().UnixMilli()
}
