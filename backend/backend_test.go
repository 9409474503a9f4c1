package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skua/adapter"
	"skua/config"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, name := range []string{config.SQLite, config.Pebble} {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Backend = name
			cfg.SQLite.Path = filepath.Join(dir, "skua.db")
			cfg.Pebble.Path = filepath.Join(dir, "pebble")

			a, err := Open(ctx, cfg, nil)
			require.NoError(t, err)
			defer a.Close()
			assert.True(t, a.IsOpen())

			cols := []adapter.Column{{Name: "_key", Type: adapter.TypeText, Size: 32}}
			require.NoError(t, a.CreateTable(ctx, "scratch", cols))
			ok, err := a.TableExists(ctx, "scratch")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "redis"
	_, err := Open(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrUnknownBackend)

	cfg.Backend = config.Postgres
	_, err = Open(context.Background(), cfg, nil)
	assert.Error(t, err)
}
