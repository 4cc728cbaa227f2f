// Package ch provides the ClickHouse completion-log client over the native
// protocol. Hosts are attempted in order; the driver falls back to the next
// host on connection-level errors.
package ch

import (
	"context"
	"errors"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Config configures the clickhouse client
type Config struct {
	Addrs    []string
	Database string
	Username string
	Password string

	DialTimeout time.Duration
	ClientName  string
	ClientTag   string
}

// Rows is the minimal result set iteration for ch
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// CH is a clickhouse client over the native protocol
type CH struct {
	conn driver.Conn
}

var chOpen = clickhouse.Open // seam for tests

// Open dials clickhouse. Addrs are attempted in declaration order so the
// first host acts as primary and the rest as fallbacks.
func Open(_ context.Context, cfg Config) (*CH, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("ch: no addresses configured")
	}
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 10 * time.Second
	}
	conn, err := chOpen(&clickhouse.Options{
		Addr: cfg.Addrs,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:      dial,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		ClientInfo:       BuildClientInfo(cfg.ClientName, cfg.ClientTag),
	})
	if err != nil {
		return nil, err
	}
	return &CH{conn: conn}, nil
}

// Query runs a query and returns ch.Rows
func (c *CH) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &chRows{rows: rows}, nil
}

// Ping verifies connectivity
func (c *CH) Ping(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return errors.New("ch: nil connection")
	}
	return c.conn.Ping(ctx)
}

// Close closes the connection
func (c *CH) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// chRows adapts driver.Rows to the Rows seam
type chRows struct {
	rows driver.Rows
}

func (r *chRows) Next() bool             { return r.rows.Next() }
func (r *chRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *chRows) Err() error             { return r.rows.Err() }
func (r *chRows) Close() error           { return r.rows.Close() }
