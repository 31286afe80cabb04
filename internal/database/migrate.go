package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// MigrationResult reports the schema version after Migrate.
type MigrationResult struct {
	Version uint
	Applied bool
	Empty   bool
}

// Migrate applies every pending up migration from sourceURL, for example
// file://migrations. A dirty schema is an error.
func Migrate(databaseURL, sourceURL string) (MigrationResult, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return MigrationResult{}, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("migration source %s: %w", sourceURL, err)
	}

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return MigrationResult{}, fmt.Errorf("apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return MigrationResult{Empty: true}, nil
	case err != nil:
		return MigrationResult{}, fmt.Errorf("read migration version: %w", err)
	case dirty:
		return MigrationResult{Version: version}, fmt.Errorf("migration version %d is dirty, manual intervention required", version)
	}
	return MigrationResult{Version: version, Applied: upErr == nil}, nil
}
