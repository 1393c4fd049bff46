package datastore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// migrateUp applies all pending migrations for the dialect. It uses its own
// connection because closing the migrator closes the database handle.
func migrateUp(dialect Dialect, dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+dialect.String())
	if err != nil {
		return fmt.Errorf("datastore: migration source: %w", err)
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("datastore: open migration DB: %w", err)
	}

	var drv database.Driver
	switch dialect {
	case Postgres:
		drv, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		drv, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	}
	if err != nil {
		_ = src.Close()
		_ = db.Close()
		return fmt.Errorf("datastore: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect.String(), drv)
	if err != nil {
		_ = src.Close()
		_ = drv.Close()
		return fmt.Errorf("datastore: create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("datastore: migrate up: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Debug("migrations applied", "dialect", dialect.String(), "version", version, "dirty", dirty)
	return nil
}
