// Package config loads the skuad configuration: a YAML file first, then
// SKUA_* environment variables on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"skua/adapter"
	"skua/adapter/mongo"
	"skua/adapter/pebble"
	"skua/adapter/postgres"
	"skua/adapter/sqlite"
)

const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	Mongo    = "mongo"
	Pebble   = "pebble"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SKUA_"

var ErrUnknownBackend = errors.New("unknown backend")

type Config struct {
	Backend  string          `yaml:"Backend" env:"BACKEND"`
	SQLite   sqlite.Config   `yaml:"SQLite" envPrefix:"SQLITE_"`
	Postgres postgres.Config `yaml:"Postgres" envPrefix:"POSTGRES_"`
	Mongo    mongo.Config    `yaml:"Mongo" envPrefix:"MONGO_"`
	Pebble   pebble.Config   `yaml:"Pebble" envPrefix:"PEBBLE_"`
	Server   Server          `yaml:"Server" envPrefix:"SERVER_"`
}

type Server struct {
	ListenAddr string `yaml:"ListenAddr" env:"LISTEN_ADDR"`
	// Tables are reported by /metrics.
	Tables []string `yaml:"Tables" env:"TABLES" envSeparator:","`
}

// Default is a private in-memory SQLite database served on :8081.
func Default() Config {
	return Config{
		Backend: SQLite,
		SQLite:  sqlite.Config{Path: sqlite.Memory, BusyTimeout: 5 * time.Second},
		Server:  Server{ListenAddr: ":8081"},
	}
}

// Load reads path over Default, applies the environment and validates the
// result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		yd, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.UnmarshalStrict(yd, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Backend {
	case SQLite, Pebble:
	case Postgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres: DSN is required")
		}
	case Mongo:
		if c.Mongo.URI == "" {
			return errors.New("mongo: URI is required")
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownBackend, c.Backend)
	}
	if c.SQLite.BusyTimeout < 0 {
		return errors.New("sqlite: negative BusyTimeout")
	}
	for _, t := range c.Server.Tables {
		if err := adapter.ValidName(t); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	return nil
}
