package store

import "time"

// Config aggregates per backend configuration
type Config struct {
	AppName string

	MySQL MySQLConfig
	CH    CHConfig
}

// MySQLConfig configures the audit-ledger connection pool
type MySQLConfig struct {
	Enabled  bool
	DSN      string
	MaxConns int
	MaxIdle  int

	// Guard/boot knobs:
	ConnectRetries int           // default 5
	PingTimeout    time.Duration // default 3s
}

// CHConfig configures completion-log connectivity.
// Addrs are tried in order; the driver falls back on connection errors.
type CHConfig struct {
	Enabled  bool
	Addrs    []string
	Database string
	Username string
	Password string

	DialTimeout time.Duration
	ClientName  string
	ClientTag   string
}
