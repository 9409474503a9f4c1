// Package backend connects the adapter named by a config.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"skua/adapter"
	"skua/adapter/mongo"
	"skua/adapter/pebble"
	"skua/adapter/postgres"
	"skua/adapter/sqlite"
	"skua/config"
)

// Open returns a connected adapter for cfg.Backend.
func Open(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (adapter.Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.With("backend", cfg.Backend)

	var (
		a   adapter.Adapter
		err error
	)
	switch cfg.Backend {
	case config.SQLite:
		var db adapter.Adapter = sqlite.New(cfg.SQLite, log)
		a, err = db, db.Connect(ctx)
	case config.Postgres:
		var db adapter.Adapter = postgres.New(cfg.Postgres, log)
		a, err = db, db.Connect(ctx)
	case config.Mongo:
		var db adapter.Adapter = mongo.New(cfg.Mongo, log)
		a, err = db, db.Connect(ctx)
	case config.Pebble:
		var db adapter.Adapter = pebble.New(cfg.Pebble, log)
		a, err = db, db.Connect(ctx)
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Backend, err)
	}
	log.Debug("backend connected")
	return a, nil
}
