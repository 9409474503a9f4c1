// Package postgres adapts a PostgreSQL server through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"skua/adapter"
	"skua/adapter/sqladapter"
)

type Config struct {
	DSN          string `yaml:"DSN" env:"DSN"`
	MaxOpenConns int    `yaml:"MaxOpenConns" env:"MAX_OPEN_CONNS"`
}

var Dialect = sqladapter.Dialect{
	Name:        "postgres",
	Placeholder: sqladapter.Dollar,
	ColumnType: func(c adapter.Column) string {
		switch c.Type {
		case adapter.TypeBlob:
			return "BYTEA"
		case adapter.TypeBigInt:
			return "BIGINT"
		}
		return fmt.Sprintf("VARCHAR(%d)", sqladapter.VarCharSize(c))
	},
	TableExistsQuery: "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1",
	Paging: func(limit, offset int) string {
		var s string
		if limit > 0 {
			s = fmt.Sprintf(" LIMIT %d", limit)
		}
		if offset > 0 {
			s += fmt.Sprintf(" OFFSET %d", offset)
		}
		return s
	},
}

func New(cfg Config, log *zap.SugaredLogger) *sqladapter.DB {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return sqladapter.New("postgres", cfg.DSN, Dialect,
		sqladapter.WithStatementCache(64),
		sqladapter.WithRetry(IsRetryable),
		sqladapter.WithLogger(log),
		sqladapter.WithSetup(setup(cfg)),
	)
}

// Wrap adapts an already opened handle, for example one from sqlmock.
func Wrap(db *sql.DB, cfg Config, log *zap.SugaredLogger) (*sqladapter.DB, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return sqladapter.FromDB(db, Dialect,
		sqladapter.WithRetry(IsRetryable),
		sqladapter.WithLogger(log),
		sqladapter.WithSetup(setup(cfg)),
	)
}

func Open(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*sqladapter.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres: empty DSN")
	}
	db := New(cfg, log)
	if err := db.Connect(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func setup(cfg Config) func(context.Context, *sql.DB) error {
	return func(_ context.Context, db *sql.DB) error {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetMaxIdleConns(cfg.MaxOpenConns)
		}
		return nil
	}
}

// IsRetryable reports serialization failures and deadlocks.
func IsRetryable(err error) bool {
	var pe *pq.Error
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case "40001", "40P01":
		return true
	}
	return false
}
