// Package sqlite provides the default RecordStore: an embedded SQLite file
// holding the cached mutation register and roster.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"crosswalk/internal/infra/persistence/sqlstore"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "crosswalk.db"

// Store is a SQLite-backed RecordStore.
type Store struct {
	*sqlstore.Store
	path string
}

var dialect = sqlstore.Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	Clear:       func(table string) string { return "DELETE FROM " + table },
	Schema:      sqlstore.SchemaStatements("INTEGER", "TEXT"),
}

// NewStore opens (or creates) the database at path and applies the schema.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	inner, err := sqlstore.New(context.Background(), db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner, path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
