package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"hdfsaudit/internal/platform/config/raw"
	perr "hdfsaudit/internal/platform/errors"

	"gopkg.in/yaml.v3"
)

// Default native ports for the backing stores
const (
	defaultMySQLPort      = 3306
	defaultClickHousePort = 9000
)

// MySQLConfig is the audit ledger connection block
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Charset  string `yaml:"charset"`
}

// DSN renders the go-sql-driver connection string
func (m MySQLConfig) DSN() string {
	charset := m.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true",
		m.User, m.Password, m.Host, m.Port, m.Database, charset)
}

// ClickHouseConfig is the upstream completion-log block. Optional; when
// absent, upstream mode is unavailable
type ClickHouseConfig struct {
	Hosts    []string `yaml:"hosts"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Database string   `yaml:"database"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	Timezone string   `yaml:"timezone"`

	// QueryTemplate parameterizes the completion query with {start_time},
	// {end_time} and {data_date}
	QueryTemplate string `yaml:"query_template"`

	WatermarkEnabled        *bool    `yaml:"watermark_enabled"`
	WatermarkPath           string   `yaml:"watermark_path"`
	WatermarkOverlapSeconds *int     `yaml:"watermark_overlap_seconds"`
	WatermarkMaxWindowHours *float64 `yaml:"watermark_max_window_hours"`
	AdvanceOnFailure        bool     `yaml:"advance_on_failure"`
}

// Addrs returns the host list in failover order, each as host:port
func (c *ClickHouseConfig) Addrs() []string {
	port := c.Port
	if port <= 0 {
		port = defaultClickHousePort
	}
	hosts := c.Hosts
	if len(hosts) == 0 && c.Host != "" {
		hosts = []string{c.Host}
	}
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, fmt.Sprintf("%s:%d", h, port))
	}
	return out
}

// Location resolves the upstream timezone, defaulting to the process zone
func (c *ClickHouseConfig) Location() (*time.Location, error) {
	if c == nil || c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, perr.Configf("invalid clickhouse timezone %q: %v", c.Timezone, err)
	}
	return loc, nil
}

// DBConfig is the parsed db-config document
type DBConfig struct {
	MySQL      MySQLConfig       `yaml:"mysql"`
	ClickHouse *ClickHouseConfig `yaml:"clickhouse"`

	dir string
}

// Dir returns the directory the config was loaded from; relative watermark
// paths resolve against it
func (d *DBConfig) Dir() string { return d.dir }

// HasClickHouse reports whether an upstream completion log is configured
func (d *DBConfig) HasClickHouse() bool {
	return d.ClickHouse != nil && len(d.ClickHouse.Addrs()) > 0
}

// LoadDB reads the db-config document and applies environment overrides.
// Environment wins over the file for connection coordinates
func LoadDB(path string) (*DBConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "read db config %s", path)
	}

	var d DBConfig
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "parse db config %s", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	d.dir = filepath.Dir(abs)

	d.applyEnv(raw.New())
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *DBConfig) applyEnv(env raw.Conf) {
	if v := env.Get("MYSQL_HOST", ""); v != "" {
		d.MySQL.Host = v
	}
	if v := env.Get("MYSQL_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			d.MySQL.Port = p
		}
	}
	if v := env.Get("MYSQL_DATABASE", ""); v != "" {
		d.MySQL.Database = v
	}
	if v := env.Get("MYSQL_USER", ""); v != "" {
		d.MySQL.User = v
	}
	if v := env.Get("MYSQL_PASSWORD", ""); v != "" {
		d.MySQL.Password = v
	}

	chHost := env.Get("CLICKHOUSE_HOST", "")
	if chHost != "" && d.ClickHouse == nil {
		d.ClickHouse = &ClickHouseConfig{}
	}
	if d.ClickHouse == nil {
		return
	}
	if chHost != "" {
		var hosts []string
		for _, h := range strings.Split(chHost, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
		if len(hosts) > 1 {
			d.ClickHouse.Hosts = hosts
			d.ClickHouse.Host = ""
		} else if len(hosts) == 1 {
			d.ClickHouse.Hosts = nil
			d.ClickHouse.Host = hosts[0]
		}
	}
	if v := env.Get("CLICKHOUSE_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			d.ClickHouse.Port = p
		}
	}
	if v := env.Get("CLICKHOUSE_DATABASE", ""); v != "" {
		d.ClickHouse.Database = v
	}
	if v := env.Get("CLICKHOUSE_USER", ""); v != "" {
		d.ClickHouse.User = v
	}
	if v := env.Get("CLICKHOUSE_PASSWORD", ""); v != "" {
		d.ClickHouse.Password = v
	}
}

func (d *DBConfig) validate() error {
	if d.MySQL.Host == "" {
		return perr.Configf("mysql config missing required field: host (or MYSQL_HOST)")
	}
	if d.MySQL.Port <= 0 {
		d.MySQL.Port = defaultMySQLPort
	}
	if d.MySQL.Database == "" {
		return perr.Configf("mysql config missing required field: database (or MYSQL_DATABASE)")
	}
	if d.MySQL.User == "" {
		return perr.Configf("mysql config missing required field: user (or MYSQL_USER)")
	}
	if d.MySQL.Password == "" {
		return perr.Configf("mysql config missing required field: password (or MYSQL_PASSWORD)")
	}
	return nil
}
