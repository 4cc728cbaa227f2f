package errors

import (
	"database/sql/driver"
	stderrs "errors"
	"io"
	"net"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers we care about. Numbers are stable across
// releases; see the server errmsg reference.
const (
	mysqlErrTooManyConnections = 1040
	mysqlErrDuplicateEntry     = 1062
	mysqlErrLockWaitTimeout    = 1205
	mysqlErrDeadlock           = 1213
)

// IsRetryable reports whether a database error is transient enough that a
// retry may succeed (deadlocks, lock timeouts, dropped connections).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, driver.ErrBadConn) {
		return true
	}
	if stderrs.Is(err, io.EOF) || stderrs.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var nerr net.Error
	if stderrs.As(err, &nerr) {
		return true
	}
	var merr *mysql.MySQLError
	if stderrs.As(err, &merr) {
		switch merr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock, mysqlErrTooManyConnections:
			return true
		}
	}
	return false
}

// IsDuplicateKey reports whether err is a unique constraint violation.
// The audit ledger has no unique key, so seeing this indicates schema drift.
func IsDuplicateKey(err error) bool {
	var merr *mysql.MySQLError
	if stderrs.As(err, &merr) {
		return merr.Number == mysqlErrDuplicateEntry
	}
	return false
}
