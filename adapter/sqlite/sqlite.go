// Package sqlite is the embedded, file-backed adapter and the default
// storage of every skua collection.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"skua/adapter"
	"skua/adapter/sqladapter"
)

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

type Config struct {
	Path        string        `yaml:"Path" env:"PATH"`
	BusyTimeout time.Duration `yaml:"BusyTimeout" env:"BUSY_TIMEOUT"`
}

var Dialect = sqladapter.Dialect{
	Name:        "sqlite",
	Placeholder: sqladapter.QuestionMark,
	ColumnType: func(c adapter.Column) string {
		switch c.Type {
		case adapter.TypeBlob:
			return "BLOB"
		case adapter.TypeBigInt:
			return "INTEGER"
		}
		return fmt.Sprintf("VARCHAR(%d)", sqladapter.VarCharSize(c))
	},
	TableExistsQuery: "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
	Paging: func(limit, offset int) string {
		switch {
		case limit > 0 && offset > 0:
			return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
		case limit > 0:
			return fmt.Sprintf(" LIMIT %d", limit)
		case offset > 0:
			return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
		}
		return ""
	},
}

// New returns an unconnected adapter. An empty path means Memory.
func New(cfg Config, log *zap.SugaredLogger) *sqladapter.DB {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	path := cfg.Path
	if path == "" {
		path = Memory
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	memory := path == Memory || strings.Contains(path, "mode=memory")
	return sqladapter.New("sqlite3", dsn(path, busy, memory), Dialect,
		sqladapter.WithStatementCache(64),
		sqladapter.WithRetry(IsBusy),
		sqladapter.WithLogger(log),
		sqladapter.WithSetup(func(ctx context.Context, db *sql.DB) error {
			if memory {
				// every connection to :memory: is a separate database
				db.SetMaxOpenConns(1)
				db.SetMaxIdleConns(1)
				db.SetConnMaxLifetime(0)
				db.SetConnMaxIdleTime(0)
			}
			return nil
		}),
	)
}

// Open creates and connects an adapter.
func Open(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*sqladapter.DB, error) {
	db := New(cfg, log)
	if err := db.Connect(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func dsn(path string, busy time.Duration, memory bool) string {
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprint(busy.Milliseconds()))
	if !memory {
		q.Set("_journal_mode", "WAL")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if path == Memory {
		return "file::memory:" + sep + q.Encode()
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + sep + q.Encode()
}

// IsBusy reports SQLITE_BUSY and SQLITE_LOCKED.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
