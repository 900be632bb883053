// Package database provides the PostgreSQL connection pool and migration
// runner backing the durable store.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open opens a PostgreSQL connection pool sized per the spec's recommended
// bound: warmConns kept alive, up to warmConns+overflowConns open at once.
// sql.Open never dials; callers must Ping to confirm connectivity.
func Open(databaseURL string, warmConns, overflowConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(warmConns + overflowConns)
	db.SetMaxIdleConns(warmConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
