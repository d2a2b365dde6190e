// Package db provides database connection handling for CoursePulse.
package db

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// Pool sizing for the API server. The event repository issues short
// read-heavy queries, so a modest pool is enough.
const (
	MaxOpenConns    = 25
	MaxIdleConns    = 5
	ConnMaxLifetime = 5 * time.Minute
)

// Open opens a PostgreSQL connection pool for the given URL.
// The connection is established lazily; callers should ping with a
// timeout before serving traffic.
func Open(databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(MaxOpenConns)
	conn.SetMaxIdleConns(MaxIdleConns)
	conn.SetConnMaxLifetime(ConnMaxLifetime)
	return conn, nil
}
