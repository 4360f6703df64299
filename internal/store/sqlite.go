package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLite opens (creating if necessary) an embedded SQLite-backed
// store at path, suitable for a single local client.
func NewSQLite(path string) (Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // go-sqlite3 serializes writers; avoid SQLITE_BUSY under concurrent callers.

	s, err := newSQLStore(db, func(n int) string { return "?" })
	if err != nil {
		return nil, err
	}
	return s, nil
}
