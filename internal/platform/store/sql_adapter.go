package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hdfsaudit/internal/platform/store/mysql"
)

// newSQLAdapter wraps an existing *mysql.DB and returns the store.TxRunner seam
func newSQLAdapter(db *mysql.DB) TxRunner {
	return &sqlAdapter{db: db}
}

// sqlAdapter adapts *mysql.DB to the store.TxRunner interface
type sqlAdapter struct {
	db *mysql.DB
}

var _ TxRunner = (*sqlAdapter)(nil)

// execer is the shared surface of *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (a *sqlAdapter) Exec(ctx context.Context, q string, args ...any) (CommandTag, error) {
	return execOn(ctx, a.db.Pool, q, args...)
}

func (a *sqlAdapter) Query(ctx context.Context, q string, args ...any) (Rows, error) {
	return queryOn(ctx, a.db.Pool, q, args...)
}

func (a *sqlAdapter) QueryRow(ctx context.Context, q string, args ...any) Row {
	return a.db.Pool.QueryRowContext(ctx, q, args...)
}

// Tx runs fn inside a transaction; rollback on error, commit otherwise
func (a *sqlAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.db.Pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&txQuerier{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Ping verifies connectivity with the ledger
func (a *sqlAdapter) Ping(ctx context.Context) error {
	if a == nil || a.db == nil {
		return errors.New("store: nil mysql adapter")
	}
	return a.db.Ping(ctx)
}

// Close closes the underlying pool
func (a *sqlAdapter) Close() error { return a.db.Close() }

// txQuerier exposes the RowQuerier surface over an open transaction
type txQuerier struct {
	tx *sql.Tx
}

func (t *txQuerier) Exec(ctx context.Context, q string, args ...any) (CommandTag, error) {
	return execOn(ctx, t.tx, q, args...)
}

func (t *txQuerier) Query(ctx context.Context, q string, args ...any) (Rows, error) {
	return queryOn(ctx, t.tx, q, args...)
}

func (t *txQuerier) QueryRow(ctx context.Context, q string, args ...any) Row {
	return t.tx.QueryRowContext(ctx, q, args...)
}

func execOn(ctx context.Context, e execer, q string, args ...any) (CommandTag, error) {
	res, err := e.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return commandTag{affected: affected}, nil
}

func queryOn(ctx context.Context, e execer, q string, args ...any) (Rows, error) {
	rows, err := e.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

// commandTag reports affected rows for a statement
type commandTag struct {
	affected int64
}

func (c commandTag) String() string      { return fmt.Sprintf("rows_affected=%d", c.affected) }
func (c commandTag) RowsAffected() int64 { return c.affected }

// sqlRows wraps *sql.Rows as store.Rows
type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool             { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *sqlRows) Err() error             { return r.rows.Err() }
func (r *sqlRows) Close()                 { _ = r.rows.Close() }
