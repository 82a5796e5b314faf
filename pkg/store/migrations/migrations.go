// Package migrations owns the relational tables the knowledge graph keeps
// next to the source data: the extraction cache, model call logs and job
// leases.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/OFFIS-RIT/macrokg/pkg/logger"
)

// MigrationsTable keeps the schema version apart from other tools sharing
// the database.
const MigrationsTable = "macrokg_schema_migrations"

//go:embed sql/*.sql
var files embed.FS

// Source returns the embedded migration files.
func Source() (source.Driver, error) {
	return iofs.New(files, "sql")
}

// Up applies every pending migration to the database at databaseURL.
func Up(databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		db.Close()
		return fmt.Errorf("migration driver: %w", err)
	}
	src, err := Source()
	if err != nil {
		db.Close()
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration version: %w", err)
	}
	logger.Info("[Migrate] Schema up to date", "version", version, "dirty", dirty)
	return nil
}
