// Package sqladapter implements adapter.Adapter on top of database/sql.
// Backends plug in a Dialect; every call runs and commits on its own.
package sqladapter

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"skua/adapter"
)

const (
	retryAttempts       = 5
	retryInitialBackoff = 10 * time.Millisecond
	retryMaxBackoff     = 200 * time.Millisecond
)

type Option func(*DB)

// WithStatementCache keeps up to size prepared statements keyed by their
// SQL text. Zero disables the cache.
func WithStatementCache(size int) Option {
	return func(d *DB) { d.cacheSize = size }
}

// WithRetry retries an operation whose error satisfies retryable (for
// example SQLITE_BUSY) with exponential backoff.
func WithRetry(retryable func(error) bool) Option {
	return func(d *DB) { d.retryable = retryable }
}

// WithSetup runs after the connection opens (pragmas, pool sizing).
func WithSetup(setup func(ctx context.Context, db *sql.DB) error) Option {
	return func(d *DB) { d.setup = setup }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(d *DB) { d.log = l }
}

// DB is a SQL-backed adapter.
type DB struct {
	dialect   Dialect
	driver    string
	dsn       string
	cacheSize int
	retryable func(error) bool
	setup     func(ctx context.Context, db *sql.DB) error
	log       *zap.SugaredLogger

	mu    sync.RWMutex
	db    *sql.DB
	stmts *lru.Cache[string, *sql.Stmt]
}

var _ adapter.Adapter = (*DB)(nil)

func New(driver, dsn string, d Dialect, opts ...Option) *DB {
	s := &DB{dialect: d, driver: driver, dsn: dsn, log: zap.NewNop().Sugar()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FromDB wraps an already opened handle. The adapter is connected on return.
func FromDB(db *sql.DB, d Dialect, opts ...Option) (*DB, error) {
	s := New("", "", d, opts...)
	if err := s.attach(context.Background(), db); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DB) Dialect() Dialect { return s.dialect }

func (s *DB) Connect(ctx context.Context) error {
	s.mu.RLock()
	connected := s.db != nil
	s.mu.RUnlock()
	if connected {
		return adapter.ErrAlreadyConnected
	}
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.dialect.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping %s: %w", s.dialect.Name, err)
	}
	if err := s.attach(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	s.log.Debugw("connected", "backend", s.dialect.Name)
	return nil
}

func (s *DB) attach(ctx context.Context, db *sql.DB) error {
	if s.setup != nil {
		if err := s.setup(ctx, db); err != nil {
			return fmt.Errorf("setup %s: %w", s.dialect.Name, err)
		}
	}
	var stmts *lru.Cache[string, *sql.Stmt]
	if s.cacheSize > 0 {
		c, err := lru.NewWithEvict(s.cacheSize, func(_ string, st *sql.Stmt) { _ = st.Close() })
		if err != nil {
			return fmt.Errorf("statement cache: %w", err)
		}
		stmts = c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return adapter.ErrAlreadyConnected
	}
	s.db = db
	s.stmts = stmts
	return nil
}

func (s *DB) IsOpen() bool {
	db, err := s.handle()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return db.PingContext(ctx) == nil
}

func (s *DB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if s.stmts != nil {
		s.stmts.Purge()
	}
	err := s.db.Close()
	s.db = nil
	s.log.Debugw("closed", "backend", s.dialect.Name)
	return err
}

func (s *DB) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, adapter.ErrNotConnected
	}
	return s.db, nil
}

func (s *DB) retry(ctx context.Context, op func() error) error {
	delay := retryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if s.retryable == nil || !s.retryable(lastErr) || attempt == retryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= retryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// stmt returns a cached prepared statement for query, or nil when caching
// is off.
func (s *DB) stmt(ctx context.Context, db *sql.DB, query string) (*sql.Stmt, error) {
	s.mu.RLock()
	stmts := s.stmts
	s.mu.RUnlock()
	if stmts == nil {
		return nil, nil
	}
	if st, ok := stmts.Get(query); ok {
		return st, nil
	}
	st, err := db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	if prev, ok, _ := stmts.PeekOrAdd(query, st); ok {
		_ = st.Close()
		return prev, nil
	}
	return st, nil
}

func (s *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var res sql.Result
	err = s.retry(ctx, func() error {
		st, err := s.stmt(ctx, db, query)
		if err != nil {
			return err
		}
		if st != nil {
			res, err = st.ExecContext(ctx, args...)
		} else {
			res, err = db.ExecContext(ctx, query, args...)
		}
		return err
	})
	return res, err
}

func (s *DB) query(ctx context.Context, query string, args ...any) ([]adapter.Fields, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var out []adapter.Fields
	err = s.retry(ctx, func() error {
		st, err := s.stmt(ctx, db, query)
		if err != nil {
			return err
		}
		var rows *sql.Rows
		if st != nil {
			rows, err = st.QueryContext(ctx, args...)
		} else {
			rows, err = db.QueryContext(ctx, query, args...)
		}
		if err != nil {
			return err
		}
		out, err = scanRows(rows)
		return err
	})
	return out, err
}

func (s *DB) scalar(ctx context.Context, query string, args ...any) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.retry(ctx, func() error {
		return db.QueryRowContext(ctx, query, args...).Scan(&n)
	})
	return n, err
}

func scanRows(rows *sql.Rows) ([]adapter.Fields, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []adapter.Fields
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(adapter.Fields, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				// drivers may reuse the buffer after Next
				vals[i] = append([]byte(nil), b...)
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *DB) TableExists(ctx context.Context, table string) (bool, error) {
	n, err := s.scalar(ctx, s.dialect.TableExistsQuery, table)
	if err != nil {
		return false, fmt.Errorf("table exists %s: %w", table, err)
	}
	return n > 0, nil
}

func (s *DB) CreateTable(ctx context.Context, table string, columns []adapter.Column) error {
	if err := adapter.ValidName(table); err != nil {
		return err
	}
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", adapter.ErrTableExists, table)
	}
	q, err := s.dialect.createSQL(table, columns)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, q); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func (s *DB) DeleteTable(ctx context.Context, table string) error {
	if err := adapter.ValidName(table); err != nil {
		return err
	}
	if _, err := s.exec(ctx, s.dialect.dropSQL(table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

func (s *DB) AddOne(ctx context.Context, table string, fields adapter.Fields) error {
	if err := adapter.ValidName(table); err != nil {
		return err
	}
	q, names, err := s.dialect.insertSQL(table, fields)
	if err != nil {
		return err
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = fields[n]
	}
	if _, err := s.exec(ctx, q, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// AddMany inserts the batch inside one transaction.
func (s *DB) AddMany(ctx context.Context, table string, rows []adapter.Fields) error {
	if err := adapter.ValidName(table); err != nil {
		return err
	}
	if err := adapter.SameColumns(rows); err != nil {
		return err
	}
	q, names, err := s.dialect.insertSQL(table, rows[0])
	if err != nil {
		return err
	}
	db, err := s.handle()
	if err != nil {
		return err
	}
	err = s.retry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		st, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer st.Close()
		args := make([]any, len(names))
		for _, row := range rows {
			for i, n := range names {
				args[i] = row[n]
			}
			if _, err := st.ExecContext(ctx, args...); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("insert batch into %s: %w", table, err)
	}
	return nil
}

// AddOneBinary is AddOne: database/sql binds []byte as a binary parameter.
func (s *DB) AddOneBinary(ctx context.Context, table string, fields adapter.Fields) error {
	return s.AddOne(ctx, table, fields)
}

func (s *DB) AddManyBinary(ctx context.Context, table string, rows []adapter.Fields) error {
	return s.AddMany(ctx, table, rows)
}

func (s *DB) FindOne(ctx context.Context, table string, filter adapter.Filter, opts adapter.FindOptions) (adapter.Fields, error) {
	opts.Limit = 1
	rows, err := s.FindMany(ctx, table, filter, opts)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (s *DB) FindMany(ctx context.Context, table string, filter adapter.Filter, opts adapter.FindOptions) ([]adapter.Fields, error) {
	if err := adapter.ValidName(table); err != nil {
		return nil, err
	}
	q, args, err := s.dialect.selectSQL(table, filter, opts)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	return rows, nil
}

func (s *DB) Update(ctx context.Context, table string, update adapter.Fields, where adapter.Filter) (int64, error) {
	if err := adapter.ValidName(table); err != nil {
		return 0, err
	}
	q, args, err := s.dialect.updateSQL(table, update, where)
	if err != nil {
		return 0, err
	}
	res, err := s.exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return affected(res)
}

func (s *DB) Remove(ctx context.Context, table string, filter adapter.Filter) (int64, error) {
	if err := adapter.ValidName(table); err != nil {
		return 0, err
	}
	q, args, err := s.dialect.deleteSQL(table, filter)
	if err != nil {
		return 0, err
	}
	res, err := s.exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return affected(res)
}

func (s *DB) Count(ctx context.Context, table string, filter adapter.Filter) (int64, error) {
	if err := adapter.ValidName(table); err != nil {
		return 0, err
	}
	q, args, err := s.dialect.countSQL(table, filter)
	if err != nil {
		return 0, err
	}
	n, err := s.scalar(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
