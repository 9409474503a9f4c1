package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skua/adapter/sqlite"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, SQLite, cfg.Backend)
	assert.Equal(t, sqlite.Memory, cfg.SQLite.Path)
	assert.Equal(t, ":8081", cfg.Server.ListenAddr)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
Backend: pebble
Pebble:
  Path: /var/lib/skua
  Sync: true
Server:
  ListenAddr: 127.0.0.1:9000
  Tables: [jobs, skua_queue]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Pebble, cfg.Backend)
	assert.Equal(t, "/var/lib/skua", cfg.Pebble.Path)
	assert.True(t, cfg.Pebble.Sync)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddr)
	assert.Equal(t, []string{"jobs", "skua_queue"}, cfg.Server.Tables)
	// untouched sections keep their defaults
	assert.Equal(t, 5*time.Second, cfg.SQLite.BusyTimeout)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
Backend: sqlite
SQLite:
  Path: a.db
`)
	t.Setenv("SKUA_SQLITE_PATH", "b.db")
	t.Setenv("SKUA_SQLITE_BUSY_TIMEOUT", "250ms")
	t.Setenv("SKUA_SERVER_TABLES", "x,y")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "b.db", cfg.SQLite.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.SQLite.BusyTimeout)
	assert.Equal(t, []string{"x", "y"}, cfg.Server.Tables)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "Bogus: 1\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "Backend: redis\n"))
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Backend = Postgres
	assert.Error(t, cfg.Validate())
	cfg.Postgres.DSN = "postgres://localhost/skua"
	assert.NoError(t, cfg.Validate())

	cfg.Backend = Mongo
	assert.Error(t, cfg.Validate())
	cfg.Mongo.URI = "mongodb://localhost:27017"
	assert.NoError(t, cfg.Validate())

	cfg.Server.Tables = []string{`bad"name`}
	assert.Error(t, cfg.Validate())
}
