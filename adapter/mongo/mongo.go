// Package mongo maps adapter tables onto MongoDB collections. Rows are
// documents, filters become query documents and []byte columns written
// through the binary methods are stored as BSON binary.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"skua/adapter"
)

// namespaceExists is the server code for creating a collection twice.
const namespaceExists = 48

type Config struct {
	URI            string        `yaml:"URI" env:"URI"`
	Database       string        `yaml:"Database" env:"DATABASE"`
	ConnectTimeout time.Duration `yaml:"ConnectTimeout" env:"CONNECT_TIMEOUT"`
}

type DB struct {
	cfg Config
	log *zap.SugaredLogger

	mu     sync.RWMutex
	client *mongo.Client
	db     *mongo.Database
}

var _ adapter.Adapter = (*DB)(nil)

func New(cfg Config, log *zap.SugaredLogger) *DB {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.Database == "" {
		cfg.Database = "skua"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &DB{cfg: cfg, log: log}
}

func Open(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*DB, error) {
	db := New(cfg, log)
	if err := db.Connect(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func (m *DB) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return adapter.ErrAlreadyConnected
	}
	if m.cfg.URI == "" {
		return errors.New("mongo: empty URI")
	}
	opts := options.Client().ApplyURI(m.cfg.URI).SetConnectTimeout(m.cfg.ConnectTimeout)
	client, err := mongo.Connect(opts)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("ping mongo: %w", err)
	}
	m.client = client
	m.db = client.Database(m.cfg.Database)
	m.log.Debugw("connected", "backend", "mongo", "database", m.cfg.Database)
	return nil
}

func (m *DB) IsOpen() bool {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx, readpref.Primary()) == nil
}

func (m *DB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()
	err := m.client.Disconnect(ctx)
	m.client, m.db = nil, nil
	m.log.Debugw("closed", "backend", "mongo")
	return err
}

func (m *DB) database() (*mongo.Database, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.db == nil {
		return nil, adapter.ErrNotConnected
	}
	return m.db, nil
}

func (m *DB) collection(table string) (*mongo.Collection, error) {
	if err := adapter.ValidName(table); err != nil {
		return nil, err
	}
	db, err := m.database()
	if err != nil {
		return nil, err
	}
	return db.Collection(table), nil
}

func (m *DB) TableExists(ctx context.Context, table string) (bool, error) {
	db, err := m.database()
	if err != nil {
		return false, err
	}
	names, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: table}})
	if err != nil {
		return false, fmt.Errorf("list collections: %w", err)
	}
	return len(names) > 0, nil
}

// CreateTable creates the collection; columns are not enforced.
func (m *DB) CreateTable(ctx context.Context, table string, _ []adapter.Column) error {
	if err := adapter.ValidName(table); err != nil {
		return err
	}
	db, err := m.database()
	if err != nil {
		return err
	}
	err = db.CreateCollection(ctx, table)
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == namespaceExists {
		return fmt.Errorf("%w: %s", adapter.ErrTableExists, table)
	}
	if err != nil {
		return fmt.Errorf("create collection %s: %w", table, err)
	}
	return nil
}

func (m *DB) DeleteTable(ctx context.Context, table string) error {
	coll, err := m.collection(table)
	if err != nil {
		return err
	}
	if err := coll.Drop(ctx); err != nil {
		return fmt.Errorf("drop collection %s: %w", table, err)
	}
	return nil
}

func (m *DB) AddOne(ctx context.Context, table string, fields adapter.Fields) error {
	return m.insert(ctx, table, []adapter.Fields{fields}, false)
}

func (m *DB) AddMany(ctx context.Context, table string, rows []adapter.Fields) error {
	return m.insert(ctx, table, rows, false)
}

func (m *DB) AddOneBinary(ctx context.Context, table string, fields adapter.Fields) error {
	return m.insert(ctx, table, []adapter.Fields{fields}, true)
}

func (m *DB) AddManyBinary(ctx context.Context, table string, rows []adapter.Fields) error {
	return m.insert(ctx, table, rows, true)
}

func (m *DB) insert(ctx context.Context, table string, rows []adapter.Fields, binary bool) error {
	if len(rows) == 0 {
		return adapter.ErrEmptyBatch
	}
	coll, err := m.collection(table)
	if err != nil {
		return err
	}
	docs := make([]any, len(rows))
	for i, row := range rows {
		docs[i] = document(row, binary)
	}
	if len(docs) == 1 {
		_, err = coll.InsertOne(ctx, docs[0])
	} else {
		_, err = coll.InsertMany(ctx, docs)
	}
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func document(row adapter.Fields, binary bool) bson.D {
	doc := make(bson.D, 0, len(row))
	for _, name := range adapter.SortedKeys(row) {
		v := row[name]
		if b, ok := v.([]byte); ok && binary {
			v = bson.Binary{Subtype: 0x00, Data: b}
		}
		doc = append(doc, bson.E{Key: name, Value: v})
	}
	return doc
}

func query(filter adapter.Filter) (bson.D, error) {
	q := bson.D{}
	for _, name := range adapter.SortedKeys(filter) {
		c, err := adapter.CondOf(filter[name])
		if err != nil {
			return nil, err
		}
		var v any
		switch c.Op {
		case adapter.OpEq:
			v = c.Value
		case adapter.OpGt:
			v = bson.D{{Key: "$gt", Value: c.Value}}
		case adapter.OpGe:
			v = bson.D{{Key: "$gte", Value: c.Value}}
		case adapter.OpLt:
			v = bson.D{{Key: "$lt", Value: c.Value}}
		case adapter.OpLe:
			v = bson.D{{Key: "$lte", Value: c.Value}}
		}
		q = append(q, bson.E{Key: name, Value: v})
	}
	return q, nil
}

func sort(opts adapter.FindOptions) bson.D {
	dir := 1
	if opts.Descending {
		dir = -1
	}
	s := bson.D{}
	for _, name := range opts.OrderBy {
		s = append(s, bson.E{Key: name, Value: dir})
	}
	return s
}

// fields turns a decoded document back into a row.
func fields(doc bson.M) adapter.Fields {
	row := make(adapter.Fields, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		switch x := v.(type) {
		case bson.Binary:
			v = x.Data
		case int32:
			v = int64(x)
		}
		row[k] = v
	}
	return row
}

func (m *DB) FindOne(ctx context.Context, table string, filter adapter.Filter, opts adapter.FindOptions) (adapter.Fields, error) {
	coll, err := m.collection(table)
	if err != nil {
		return nil, err
	}
	q, err := query(filter)
	if err != nil {
		return nil, err
	}
	fo := options.FindOne().SetSort(sort(opts))
	if opts.Offset > 0 {
		fo.SetSkip(int64(opts.Offset))
	}
	var doc bson.M
	err = coll.FindOne(ctx, q, fo).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", table, err)
	}
	return fields(doc), nil
}

func (m *DB) FindMany(ctx context.Context, table string, filter adapter.Filter, opts adapter.FindOptions) ([]adapter.Fields, error) {
	coll, err := m.collection(table)
	if err != nil {
		return nil, err
	}
	q, err := query(filter)
	if err != nil {
		return nil, err
	}
	fo := options.Find().SetSort(sort(opts))
	if opts.Offset > 0 {
		fo.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		fo.SetLimit(int64(opts.Limit))
	}
	cur, err := coll.Find(ctx, q, fo)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", table, err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read cursor of %s: %w", table, err)
	}
	out := make([]adapter.Fields, len(docs))
	for i, d := range docs {
		out[i] = fields(d)
	}
	return out, nil
}

func (m *DB) Update(ctx context.Context, table string, update adapter.Fields, where adapter.Filter) (int64, error) {
	if len(update) == 0 {
		return 0, adapter.ErrEmptyBatch
	}
	coll, err := m.collection(table)
	if err != nil {
		return 0, err
	}
	q, err := query(where)
	if err != nil {
		return 0, err
	}
	res, err := coll.UpdateMany(ctx, q, bson.D{{Key: "$set", Value: document(update, true)}})
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return res.MatchedCount, nil
}

func (m *DB) Remove(ctx context.Context, table string, filter adapter.Filter) (int64, error) {
	coll, err := m.collection(table)
	if err != nil {
		return 0, err
	}
	q, err := query(filter)
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteMany(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return res.DeletedCount, nil
}

func (m *DB) Count(ctx context.Context, table string, filter adapter.Filter) (int64, error) {
	coll, err := m.collection(table)
	if err != nil {
		return 0, err
	}
	q, err := query(filter)
	if err != nil {
		return 0, err
	}
	n, err := coll.CountDocuments(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
