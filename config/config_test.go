package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvOnly(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DATABASE_DSN", "postgres://app:pw@localhost:5432/app")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres://app:pw@localhost:5432/app", cfg.Database.DSN)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.Equal(t, "/graphql", cfg.GraphQL.Path)
	assert.True(t, cfg.GraphQL.PlaygroundEnabled)
	assert.Equal(t, 0, cfg.GraphQL.ComplexityLimit)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "./models.yaml", cfg.Models)
}

func TestLoadFromYAMLFile(t *testing.T) {
	content := `
server:
  port: 9090
database:
  dsn: postgres://app:pw@db:5432/app
  max_conns: 10
  min_conns: 2
graphql:
  complexity_limit: 200
  playground_enabled: false
log:
  level: debug
  format: text
models: ./custom-models.yaml
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, 200, cfg.GraphQL.ComplexityLimit)
	assert.False(t, cfg.GraphQL.PlaygroundEnabled)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "./custom-models.yaml", cfg.Models)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	content := `
server:
  port: 9090
database:
  dsn: postgres://app:pw@db:5432/app
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DATABASE_DSN", "postgres://app:pw@localhost:5432/app")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{MaxConns: 25, MinConns: 5},
			Log:      LogConfig{Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "zero port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "max conns below min conns",
			mutate:  func(c *Config) { c.Database.MaxConns = 2 },
			wantErr: "max_conns",
		},
		{
			name:    "negative complexity limit",
			mutate:  func(c *Config) { c.GraphQL.ComplexityLimit = -1 },
			wantErr: "complexity_limit",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warn"}.SlogLevel())
	assert.Equal(t, slog.LevelError, LogConfig{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "info"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: ""}.SlogLevel())
}
