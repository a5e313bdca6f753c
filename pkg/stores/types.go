package stores

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run or outcome does not exist.
var ErrNotFound = errors.New("not found")

// Config holds SQLite store configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns caps the connection pool (default 25).
	MaxOpenConns int

	// MaxIdleConns caps idle connections (default 5).
	MaxIdleConns int

	// ConnMaxLifetime bounds connection reuse (default 5m).
	ConnMaxLifetime time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}
