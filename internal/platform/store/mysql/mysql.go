// Package mysql provides the audit-ledger client over database/sql with the
// go-sql-driver, pooled and context-aware
package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" driver
)

// Config configures the sql.DB pool
type Config struct {
	DSN      string
	MaxConns int
	MaxIdle  int
}

// DB is a MySQL client wrapping a database/sql pool
type DB struct {
	Pool *sql.DB
}

var sqlOpen = sql.Open // seam for tests

// Open creates a new DB with the given config. The pool is lazy; callers
// should Ping before first use.
func Open(_ context.Context, cfg Config) (*DB, error) {
	pool, err := sqlOpen("mysql", cfg.DSN)
	if err != nil {
		return nil, err
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 5
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 || maxIdle > maxConns {
		maxIdle = maxConns
	}
	pool.SetMaxOpenConns(maxConns)
	pool.SetMaxIdleConns(maxIdle)
	pool.SetConnMaxLifetime(30 * time.Minute)
	return &DB{Pool: pool}, nil
}

// Ping verifies connectivity
func (d *DB) Ping(ctx context.Context) error {
	if d == nil || d.Pool == nil {
		return sql.ErrConnDone
	}
	return d.Pool.PingContext(ctx)
}

// Close closes the pool
func (d *DB) Close() error {
	if d != nil && d.Pool != nil {
		return d.Pool.Close()
	}
	return nil
}
