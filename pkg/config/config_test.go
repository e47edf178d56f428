package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 30, cfg.Timecode.FrameRate)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL())
}

func TestSampleParses(t *testing.T) {
	cfg, err := Parse([]byte(Sample()))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "realitylog.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9000"

[store]
backend = "SQLite"
sqlite_path = "/tmp/log.db"

[timecode]
frame_rate = 25
`), 0o644))

	t.Setenv("REALITYLOG_LOG_LEVEL", "debug")
	t.Setenv("REALITYLOG_SERVER_READ_ONLY", "true")
	t.Setenv("POSTGRES_DSN", "postgres://env")

	cfg, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.True(t, cfg.Server.ReadOnly)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/log.db", cfg.Store.SQLitePath)
	assert.Equal(t, "postgres://env", cfg.Store.PostgresDSN)
	assert.Equal(t, 25, cfg.Timecode.FrameRate)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, exists, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 8080\n"), 0o644))
	_, _, err := Load(path)
	assert.Error(t, err)
}

func TestBadEnvValue(t *testing.T) {
	t.Setenv("REALITYLOG_TIMECODE_FRAME_RATE", "fast")
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorContains(t, err, "REALITYLOG_TIMECODE_FRAME_RATE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, "store.backend"},
		{"frame rate", func(c *Config) { c.Timecode.FrameRate = 0 }, "frame_rate"},
		{"frame rate too high", func(c *Config) { c.Timecode.FrameRate = 101 }, "frame_rate"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = "postgres"; c.Store.PostgresDSN = "" }, "postgres_dsn"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bcrypt cost", func(c *Config) { c.Auth.BcryptCost = 99 }, "bcrypt_cost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "realitylog.toml")
	require.NoError(t, CreateSample(path))
	cfg, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "memory", cfg.Store.Backend)
}
