// Package pebble stores adapter tables in an embedded pebble LSM.
//
// Every table is a meta record plus one record per row:
//
//	1|table          -> TableMeta (next sequence, declared columns)
//	2|table|0|seq    -> row, msgpack map
//
// Writes to a table run one after another under a per-table lock and are
// committed as one batch, so a reader never sees a half written AddMany.
// Filtering and ordering happen in memory after a prefix scan.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"

	"skua/adapter"
)

type Config struct {
	// Path of the data directory. Empty keeps everything in memory.
	Path string `yaml:"Path" env:"PATH"`
	// Sync makes every commit wait for the WAL to reach disk.
	Sync         bool  `yaml:"Sync" env:"SYNC"`
	MemTableSize int64 `yaml:"MemTableSize" env:"MEMTABLE_SIZE"`
	MaxOpenFiles int   `yaml:"MaxOpenFiles" env:"MAX_OPEN_FILES"`
	BytesPerSync int   `yaml:"BytesPerSync" env:"BYTES_PER_SYNC"`
}

type DB struct {
	cfg   Config
	log   *zap.SugaredLogger
	locks *tableLocks

	mu sync.RWMutex
	db *pebble.DB
}

var _ adapter.Adapter = (*DB)(nil)

func New(cfg Config, log *zap.SugaredLogger) *DB {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &DB{cfg: cfg, log: log, locks: newTableLocks()}
}

func Open(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*DB, error) {
	db := New(cfg, log)
	if err := db.Connect(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func (p *DB) options() *pebble.Options {
	opts := &pebble.Options{}
	if p.cfg.Path == "" {
		opts.FS = vfs.NewMem()
	}
	if p.cfg.MemTableSize > 0 {
		opts.MemTableSize = uint64(p.cfg.MemTableSize)
	}
	if p.cfg.MaxOpenFiles > 0 {
		opts.MaxOpenFiles = p.cfg.MaxOpenFiles
	}
	if p.cfg.BytesPerSync > 0 {
		opts.BytesPerSync = p.cfg.BytesPerSync
	}
	return opts
}

func (p *DB) Connect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return adapter.ErrAlreadyConnected
	}
	db, err := pebble.Open(p.cfg.Path, p.options())
	if err != nil {
		return fmt.Errorf("open pebble %q: %w", p.cfg.Path, err)
	}
	p.db = db
	p.log.Debugw("connected", "backend", "pebble", "path", p.cfg.Path)
	return nil
}

func (p *DB) IsOpen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db != nil
}

func (p *DB) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	p.log.Debugw("closed", "backend", "pebble")
	return err
}

func (p *DB) handle() (*pebble.DB, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, adapter.ErrNotConnected
	}
	return p.db, nil
}

func (p *DB) writeOpts() *pebble.WriteOptions {
	if p.cfg.Sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func readMeta(db *pebble.DB, table string) (*TableMeta, error) {
	d, closer, err := db.Get(metaKey(table))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", adapter.ErrTableNotFound, table)
	}
	if err != nil {
		return nil, fmt.Errorf("read meta %s: %w", table, err)
	}
	defer closer.Close()
	var m TableMeta
	if _, err := m.UnmarshalMsg(d); err != nil {
		return nil, fmt.Errorf("decode meta %s: %w", table, err)
	}
	return &m, nil
}

type record struct {
	key []byte
	row adapter.Fields
}

// scan returns the rows of table matching filter, in insert order.
func scan(db *pebble.DB, table string, filter adapter.Filter) ([]record, error) {
	lower, upper := rowBounds(table)
	it, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	defer it.Close()
	var out []record
	for it.First(); it.Valid(); it.Next() {
		row, err := decodeRow(it.Value())
		if err != nil {
			return nil, fmt.Errorf("decode row of %s: %w", table, err)
		}
		ok, err := adapter.Match(row, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, record{key: append([]byte(nil), it.Key()...), row: row})
		}
	}
	return out, it.Error()
}

func (p *DB) TableExists(_ context.Context, table string) (bool, error) {
	db, err := p.handle()
	if err != nil {
		return false, err
	}
	_, err = readMeta(db, table)
	if errors.Is(err, adapter.ErrTableNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (p *DB) CreateTable(_ context.Context, table string, columns []adapter.Column) error {
	if err := adapter.ValidName(table); err != nil {
		return err
	}
	db, err := p.handle()
	if err != nil {
		return err
	}
	return p.locks.do(table, func() error {
		_, err := readMeta(db, table)
		if err == nil {
			return fmt.Errorf("%w: %s", adapter.ErrTableExists, table)
		}
		if !errors.Is(err, adapter.ErrTableNotFound) {
			return err
		}
		m := TableMeta{}
		for _, c := range columns {
			if err := adapter.ValidName(c.Name); err != nil {
				return err
			}
			m.Columns = append(m.Columns, c.Name)
		}
		nd, err := m.MarshalMsg(nil)
		if err != nil {
			return err
		}
		return db.Set(metaKey(table), nd, p.writeOpts())
	})
}

func (p *DB) DeleteTable(_ context.Context, table string) error {
	if err := adapter.ValidName(table); err != nil {
		return err
	}
	db, err := p.handle()
	if err != nil {
		return err
	}
	return p.locks.do(table, func() error {
		b := db.NewBatch()
		defer b.Close()
		lower, upper := rowBounds(table)
		if err := b.DeleteRange(lower, upper, nil); err != nil {
			return err
		}
		if err := b.Delete(metaKey(table), nil); err != nil {
			return err
		}
		return b.Commit(p.writeOpts())
	})
}

func (p *DB) AddOne(ctx context.Context, table string, fields adapter.Fields) error {
	return p.AddMany(ctx, table, []adapter.Fields{fields})
}

func (p *DB) AddMany(_ context.Context, table string, rows []adapter.Fields) error {
	if err := adapter.ValidName(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return adapter.ErrEmptyBatch
	}
	db, err := p.handle()
	if err != nil {
		return err
	}
	return p.locks.do(table, func() error {
		m, err := readMeta(db, table)
		if err != nil {
			return err
		}
		b := db.NewBatch()
		defer b.Close()
		for _, row := range rows {
			if len(row) == 0 {
				return adapter.ErrEmptyBatch
			}
			for name := range row {
				if err := adapter.ValidName(name); err != nil {
					return err
				}
			}
			nd, err := encodeRow(row)
			if err != nil {
				return fmt.Errorf("encode row for %s: %w", table, err)
			}
			m.Seq++
			if err := b.Set(rowKey(table, m.Seq), nd, nil); err != nil {
				return err
			}
		}
		md, err := m.MarshalMsg(nil)
		if err != nil {
			return err
		}
		if err := b.Set(metaKey(table), md, nil); err != nil {
			return err
		}
		return b.Commit(p.writeOpts())
	})
}

// AddOneBinary is AddOne: msgpack keeps []byte as bin already.
func (p *DB) AddOneBinary(ctx context.Context, table string, fields adapter.Fields) error {
	return p.AddOne(ctx, table, fields)
}

func (p *DB) AddManyBinary(ctx context.Context, table string, rows []adapter.Fields) error {
	return p.AddMany(ctx, table, rows)
}

func (p *DB) FindOne(ctx context.Context, table string, filter adapter.Filter, opts adapter.FindOptions) (adapter.Fields, error) {
	opts.Limit = 1
	rows, err := p.FindMany(ctx, table, filter, opts)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (p *DB) FindMany(_ context.Context, table string, filter adapter.Filter, opts adapter.FindOptions) ([]adapter.Fields, error) {
	if err := adapter.ValidName(table); err != nil {
		return nil, err
	}
	db, err := p.handle()
	if err != nil {
		return nil, err
	}
	if _, err := readMeta(db, table); err != nil {
		return nil, err
	}
	recs, err := scan(db, table, filter)
	if err != nil {
		return nil, err
	}
	rows := make([]adapter.Fields, len(recs))
	for i, r := range recs {
		rows[i] = r.row
	}
	return adapter.Arrange(rows, opts)
}

func (p *DB) Update(_ context.Context, table string, update adapter.Fields, where adapter.Filter) (int64, error) {
	if err := adapter.ValidName(table); err != nil {
		return 0, err
	}
	if len(update) == 0 {
		return 0, adapter.ErrEmptyBatch
	}
	db, err := p.handle()
	if err != nil {
		return 0, err
	}
	var n int64
	err = p.locks.do(table, func() error {
		if _, err := readMeta(db, table); err != nil {
			return err
		}
		recs, err := scan(db, table, where)
		if err != nil {
			return err
		}
		b := db.NewBatch()
		defer b.Close()
		for _, r := range recs {
			for k, v := range update {
				r.row[k] = v
			}
			nd, err := encodeRow(r.row)
			if err != nil {
				return err
			}
			if err := b.Set(r.key, nd, nil); err != nil {
				return err
			}
		}
		n = int64(len(recs))
		return b.Commit(p.writeOpts())
	})
	return n, err
}

func (p *DB) Remove(_ context.Context, table string, filter adapter.Filter) (int64, error) {
	if err := adapter.ValidName(table); err != nil {
		return 0, err
	}
	db, err := p.handle()
	if err != nil {
		return 0, err
	}
	var n int64
	err = p.locks.do(table, func() error {
		if _, err := readMeta(db, table); err != nil {
			return err
		}
		recs, err := scan(db, table, filter)
		if err != nil {
			return err
		}
		b := db.NewBatch()
		defer b.Close()
		for _, r := range recs {
			if err := b.Delete(r.key, nil); err != nil {
				return err
			}
		}
		n = int64(len(recs))
		return b.Commit(p.writeOpts())
	})
	return n, err
}

func (p *DB) Count(_ context.Context, table string, filter adapter.Filter) (int64, error) {
	if err := adapter.ValidName(table); err != nil {
		return 0, err
	}
	db, err := p.handle()
	if err != nil {
		return 0, err
	}
	if _, err := readMeta(db, table); err != nil {
		return 0, err
	}
	recs, err := scan(db, table, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}
