package store

import (
	"context"
	"fmt"
	"time"

	chx "hdfsaudit/internal/platform/store/ch"
	"hdfsaudit/internal/platform/store/mysql"
)

// openMySQL opens the ledger pool and wraps it with the sql adapter.
// The pool is published only after a successful ping.
func openMySQL(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	db, err := mysql.Open(ctx, mysql.Config{
		DSN:      cfg.MySQL.DSN,
		MaxConns: cfg.MySQL.MaxConns,
		MaxIdle:  cfg.MySQL.MaxIdle,
	})
	if err != nil {
		return nil, err
	}

	attempts := cfg.MySQL.ConnectRetries
	if attempts <= 0 {
		attempts = 5
	}
	pingTimeout := cfg.MySQL.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}

	const (
		backoffStart   = 150 * time.Millisecond
		backoffCeiling = 2 * time.Second
	)

	var lastErr error
	backoff := backoffStart
	for i := 0; i < attempts; i++ {
		toCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = db.Ping(toCtx)
		cancel()

		if lastErr == nil {
			a := newSQLAdapter(db)
			s.DB = a
			return a, nil
		}
		if ctx.Err() != nil {
			_ = db.Close()
			return nil, ctx.Err()
		}
		time.Sleep(backoff)
		if backoff < backoffCeiling {
			backoff *= 2
			if backoff > backoffCeiling {
				backoff = backoffCeiling
			}
		}
	}

	_ = db.Close()
	return nil, fmt.Errorf("mysql ping failed after %d attempts: %w", attempts, lastErr)
}

func openCH(ctx context.Context, cfg Config, _ *Store) (Clickhouse, error) {
	c, err := chx.Open(ctx, chx.Config{
		Addrs:       cfg.CH.Addrs,
		Database:    cfg.CH.Database,
		Username:    cfg.CH.Username,
		Password:    cfg.CH.Password,
		DialTimeout: cfg.CH.DialTimeout,
		ClientName:  cfg.CH.ClientName,
		ClientTag:   cfg.CH.ClientTag,
	})
	if err != nil {
		return nil, err
	}
	return newCHAdapter(c), nil
}
