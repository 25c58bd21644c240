package storage

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the single-writer metadata store. It wraps an
// embedded, pure-Go SQLite database via modernc.org/sqlite: a better fit
// for the single-writer invariant and single-home deployment scale than
// a client/server database.
type Store struct {
	DB *sqlx.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies any pending goose migrations.
func Open(path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows only one writer at a time; the store wants the same
	// property, so pin the pool to a single connection rather than fight it.
	sqlDB.SetMaxOpenConns(1)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{DB: sqlx.NewDb(sqlDB, "sqlite")}, nil
}

// OpenInMemory is a convenience constructor for tests.
func OpenInMemory() (*Store, error) {
	return Open(":memory:")
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.DB.Close()
}
