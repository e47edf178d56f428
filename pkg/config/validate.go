package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendSurrealDB = "surrealdb"
)

// Backends lists the accepted store.backend values.
var Backends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendSurrealDB}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	return errors.Join(
		c.validateServer(),
		c.validateStore(),
		c.validateTimecode(),
		c.validateAuth(),
		c.validateLogging(),
	)
}

func (c *Config) validateServer() error {
	if c.Server.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must not be negative")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendMemory:
		return nil
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path must be set for the sqlite backend")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn must be set for the postgres backend (or POSTGRES_DSN)")
		}
	case BackendSurrealDB:
		if c.Store.SurrealURL == "" || c.Store.SurrealNS == "" || c.Store.SurrealDB == "" {
			return errors.New("store.surrealdb_url, surrealdb_ns and surrealdb_db must be set for the surrealdb backend")
		}
	default:
		return fmt.Errorf("store.backend %q must be one of %s", c.Store.Backend, strings.Join(Backends, ", "))
	}
	if c.Store.MaxOpenConn < 0 {
		return errors.New("store.max_open_conns must not be negative")
	}
	return nil
}

func (c *Config) validateTimecode() error {
	if c.Timecode.FrameRate < 1 || c.Timecode.FrameRate > 100 {
		return fmt.Errorf("timecode.frame_rate %d must be between 1 and 100", c.Timecode.FrameRate)
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.SessionTTL < 1 {
		return errors.New("auth.session_ttl must be at least one minute")
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost) {
		return fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
		return nil
	}
	return fmt.Errorf("logging.format %q must be auto, console or json", c.Logging.Format)
}
