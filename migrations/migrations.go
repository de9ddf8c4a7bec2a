package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

//go:embed sql/*.sql
var files embed.FS

// Source is the embedded migration set.
func Source() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: files,
		Root:       "sql",
	}
}

// Up applies every pending migration and returns how many ran.
func Up(db *sql.DB) (int, error) {
	n, err := migrate.Exec(db, "postgres", Source(), migrate.Up)
	if err != nil {
		return n, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return n, nil
}

// Down rolls back the given number of migrations.
func Down(db *sql.DB, steps int) (int, error) {
	n, err := migrate.ExecMax(db, "postgres", Source(), migrate.Down, steps)
	if err != nil {
		return n, fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return n, nil
}
