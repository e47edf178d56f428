// Package config loads realitylog settings from a TOML file and the environment.
//
// Precedence, lowest first: built-in defaults, the config file, environment
// variables, then command-line flags (applied by the caller). The connection
// variables POSTGRES_DSN and SURREALDB_* keep their conventional names; every
// other override is REALITYLOG_<SECTION>_<KEY>.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains HTTP listener settings.
type Server struct {
	Addr            string `toml:"addr"`
	ReadOnly        bool   `toml:"read_only"`
	ShutdownTimeout int    `toml:"shutdown_timeout"` // seconds
}

// Store selects and configures the persistence backend.
type Store struct {
	Backend     string `toml:"backend"` // memory, sqlite, postgres or surrealdb
	PostgresDSN string `toml:"postgres_dsn"`
	SQLitePath  string `toml:"sqlite_path"`
	SurrealURL  string `toml:"surrealdb_url"`
	SurrealNS   string `toml:"surrealdb_ns"`
	SurrealDB   string `toml:"surrealdb_db"`
	SurrealUser string `toml:"surrealdb_user"`
	SurrealPass string `toml:"surrealdb_pass"`
	MaxOpenConn int    `toml:"max_open_conns"`
	Debug       bool   `toml:"debug"`
}

// Timecode contains generator settings.
type Timecode struct {
	FrameRate int `toml:"frame_rate"`
}

// Auth contains session settings.
type Auth struct {
	SessionTTL int `toml:"session_ttl"` // minutes
	BcryptCost int `toml:"bcrypt_cost"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // auto, console or json
}

// Config is the complete application configuration.
type Config struct {
	Server   Server   `toml:"server"`
	Store    Store    `toml:"store"`
	Timecode Timecode `toml:"timecode"`
	Auth     Auth     `toml:"auth"`
	Logging  Logging  `toml:"logging"`
}

// Load reads path (if it exists), applies environment overrides, normalizes and
// validates. An empty path looks for realitylog.toml in the working directory.
// The second result reports whether a file was read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	if path == "" {
		path = "realitylog.toml"
	}
	exists := true
	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		exists = false
	case err != nil:
		return nil, false, fmt.Errorf("open config: %w", err)
	default:
		defer f.Close()
		dec := toml.NewDecoder(f)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, false, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, false, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, exists, nil
}

// Parse decodes TOML data on top of the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("REALITYLOG_SERVER_ADDR", &c.Server.Addr)
	flag("REALITYLOG_SERVER_READ_ONLY", &c.Server.ReadOnly)
	num("REALITYLOG_SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	str("REALITYLOG_STORE_BACKEND", &c.Store.Backend)
	str("POSTGRES_DSN", &c.Store.PostgresDSN)
	str("REALITYLOG_STORE_SQLITE_PATH", &c.Store.SQLitePath)
	str("SURREALDB_URL", &c.Store.SurrealURL)
	str("SURREALDB_NS", &c.Store.SurrealNS)
	str("SURREALDB_DB", &c.Store.SurrealDB)
	str("SURREALDB_USER", &c.Store.SurrealUser)
	str("SURREALDB_PASS", &c.Store.SurrealPass)
	flag("REALITYLOG_STORE_DEBUG", &c.Store.Debug)

	num("REALITYLOG_TIMECODE_FRAME_RATE", &c.Timecode.FrameRate)
	num("REALITYLOG_AUTH_SESSION_TTL", &c.Auth.SessionTTL)
	str("REALITYLOG_LOG_LEVEL", &c.Logging.Level)
	str("REALITYLOG_LOG_FORMAT", &c.Logging.Format)

	return errors.Join(errs...)
}

func (c *Config) normalize() {
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultBackend
	}
	if c.Timecode.FrameRate == 0 {
		c.Timecode.FrameRate = defaultFrameRate
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = defaultSessionTTL
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

// Finish normalizes and validates c again after fields were changed in code,
// for example from command-line flags.
func (c *Config) Finish() error {
	c.normalize()
	return c.Validate()
}

// SessionTTL returns the session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Auth.SessionTTL) * time.Minute
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the annotated sample configuration.
func Sample() string { return sampleConfig }
