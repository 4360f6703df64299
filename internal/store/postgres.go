package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// NewPostgres opens a Postgres-backed store for shared/production
// deployments, following the connection-pool tuning of a conventional
// multi-client backend.
func NewPostgres(connStr string) (Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	s, err := newSQLStore(db, func(n int) string { return fmt.Sprintf("$%d", n) })
	if err != nil {
		return nil, err
	}
	return s, nil
}
