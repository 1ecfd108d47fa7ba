// Package postgres opens the shared database handle and applies schema
// migrations at startup.
package postgres

import (
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Connect opens a pooled connection, verifies it, and brings the schema up
// to date. Returns nil if dsn is empty (Postgres not configured); callers
// fall back to the in-memory stores.
func Connect(dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, nil
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFS,
		Root:       "migrations",
	}
	if _, err := migrate.Exec(db.DB, "postgres", source, migrate.Up); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return db, nil
}
