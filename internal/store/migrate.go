package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/msgsync/internal/store/migrations"
)

// ErrDirty means an earlier migration stopped half way. The queue may hold
// unsent messages, so the schema is left for someone to repair by hand.
var ErrDirty = errors.New("queue database schema is dirty")

// MigrateResult reports the schema version before and after Migrate.
// From is zero for a fresh database.
type MigrateResult struct {
	From    uint
	Version uint
	Changed bool
}

// Migrate brings the queue schema up to the latest version.
func (db *DB) Migrate() (*MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	// The driver is not closed here: closing it would close db too.
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	from, err := schemaVersion(m)
	if err != nil {
		return nil, err
	}
	res := &MigrateResult{From: from, Version: from}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		return res, nil
	case err != nil:
		return nil, fmt.Errorf("migrate from version %d: %w", from, err)
	}
	if res.Version, err = schemaVersion(m); err != nil {
		return nil, err
	}
	res.Changed = res.Version != from
	return res, nil
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("schema version: %w", err)
	case dirty:
		return 0, fmt.Errorf("%w at version %d", ErrDirty, v)
	}
	return v, nil
}
