package db

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Dialect identifies the SQL backend.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "pgx"
)

func init() {
	// sqlx only knows the cgo driver name "sqlite3".
	sqlx.BindDriver(string(SQLite), sqlx.QUESTION)
}

// Config selects and tunes the relational store. Path is used unless URL
// holds a Postgres connection string.
type Config struct {
	Path            string        `yaml:"path"`
	URL             string        `yaml:"url"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// DefaultConfig opens a single connection to the SQLite file at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxConns:        1,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
}

// ApplyEnv overrides pool settings from DB_* variables. Unparseable values
// are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("DB_MAX_CONNS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConns = n
		}
	}
	if v := strings.TrimSpace(getenv("DB_MIN_CONNS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MinConns = n
		}
	}
	if v := strings.TrimSpace(getenv("DB_MAX_CONN_LIFETIME")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MaxConnLifetime = d
		}
	}
	if v := strings.TrimSpace(getenv("DB_MAX_CONN_IDLE_TIME")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MaxConnIdleTime = d
		}
	}

	if c.MaxConns < 1 {
		c.MaxConns = 1
	}
	if c.MinConns < 0 {
		c.MinConns = 0
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
}

// Dialect reports which backend the config selects.
func (c Config) Dialect() Dialect {
	if strings.HasPrefix(c.URL, "postgres://") || strings.HasPrefix(c.URL, "postgresql://") {
		return Postgres
	}
	return SQLite
}

func ensureSSLMode(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		// pgx will surface the parse error on connect.
		return dbURL
	}

	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "require")
		u.RawQuery = q.Encode()
	}
	return strings.TrimSpace(u.String())
}

func (c Config) dataSource() string {
	if c.Dialect() == Postgres {
		return ensureSSLMode(c.URL)
	}
	return c.Path + "?_pragma=busy_timeout(5000)"
}

// Open connects to the configured store, verifies the connection and
// creates the snapshot tables.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	dialect := cfg.Dialect()
	if dialect == SQLite && cfg.Path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	conn, err := sqlx.Open(string(dialect), cfg.dataSource())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	maxConns := cfg.MaxConns
	if dialect == SQLite {
		// One writer; avoids SQLITE_BUSY between a transaction and a stray reader.
		maxConns = 1
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(min(cfg.MinConns, maxConns))
	conn.SetConnMaxLifetime(cfg.MaxConnLifetime)
	conn.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	if err := Migrate(ctx, conn, dialect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}
