package store

import (
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFiles embed.FS

// Migrate applies the schema migrations for the store's dialect.
//
// The migrate instance is not closed: closing it would close s.db as well.
func (s *SQLStore) Migrate() error {
	src, err := iofs.New(migrationFiles, "migrations/"+s.dialect.Name)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	var driver database.Driver
	switch s.dialect.Name {
	case Postgres.Name:
		driver, err = postgres.WithInstance(s.db, &postgres.Config{})
	case SQLite.Name:
		driver, err = sqlite.WithInstance(s.db, &sqlite.Config{})
	default:
		return fmt.Errorf("no migrations for dialect %q", s.dialect.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.dialect.Name, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Printf("INFO: schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Printf("INFO: migrations applied (%s)", s.dialect.Name)
	return nil
}
