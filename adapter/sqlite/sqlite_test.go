package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skua/adapter"
)

var columns = []adapter.Column{
	adapter.BigInt("_index"),
	adapter.VarChar("_hash", 64),
	adapter.Blob("_object"),
}

func openMemory(t *testing.T) adapter.Adapter {
	t.Helper()
	db, err := Open(context.Background(), Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestTableLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	ok, err := db.TableExists(ctx, "q")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.CreateTable(ctx, "q", columns))
	ok, err = db.TableExists(ctx, "q")
	require.NoError(t, err)
	assert.True(t, ok)

	err = db.CreateTable(ctx, "q", columns)
	assert.True(t, errors.Is(err, adapter.ErrTableExists))

	require.NoError(t, db.DeleteTable(ctx, "q"))
	ok, err = db.TableExists(ctx, "q")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRows(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	require.NoError(t, db.CreateTable(ctx, "q", columns))

	require.NoError(t, db.AddOneBinary(ctx, "q", adapter.Fields{"_index": int64(3), "_hash": "c", "_object": []byte("three")}))
	require.NoError(t, db.AddManyBinary(ctx, "q", []adapter.Fields{
		{"_index": int64(1), "_hash": "a", "_object": []byte("one")},
		{"_index": int64(2), "_hash": "b", "_object": []byte("two")},
	}))

	n, err := db.Count(ctx, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	row, err := db.FindOne(ctx, "q", nil, adapter.FindOptions{OrderBy: []string{"_index"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["_index"])
	assert.Equal(t, []byte("one"), row["_object"])
	h, ok := adapter.String(row["_hash"])
	require.True(t, ok)
	assert.Equal(t, "a", h)

	row, err = db.FindOne(ctx, "q", nil, adapter.FindOptions{OrderBy: []string{"_index"}, Descending: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), row["_index"])

	rows, err := db.FindMany(ctx, "q", adapter.Filter{"_index": adapter.Gt(1)}, adapter.FindOptions{OrderBy: []string{"_index"}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0]["_index"])

	rows, err = db.FindMany(ctx, "q", nil, adapter.FindOptions{OrderBy: []string{"_index"}, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0]["_index"])

	n, err = db.Update(ctx, "q", adapter.Fields{"_object": []byte("TWO")}, adapter.Filter{"_hash": "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	row, err = db.FindOne(ctx, "q", adapter.Filter{"_hash": "b"}, adapter.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("TWO"), row["_object"])

	n, err = db.Remove(ctx, "q", adapter.Filter{"_hash": "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = db.Remove(ctx, "q", adapter.Filter{"_hash": "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	row, err = db.FindOne(ctx, "q", adapter.Filter{"_hash": "missing"}, adapter.FindOptions{})
	require.NoError(t, err)
	assert.Nil(t, row)

	n, err = db.Remove(ctx, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestConnectState(t *testing.T) {
	ctx := context.Background()
	db := New(Config{}, nil)
	assert.False(t, db.IsOpen())

	_, err := db.Count(ctx, "q", nil)
	assert.True(t, errors.Is(err, adapter.ErrNotConnected))

	require.NoError(t, db.Connect(ctx))
	assert.True(t, db.IsOpen())
	assert.True(t, errors.Is(db.Connect(ctx), adapter.ErrAlreadyConnected))

	require.NoError(t, db.Close())
	assert.False(t, db.IsOpen())
	require.NoError(t, db.Close())
}

func TestFileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Path: filepath.Join(t.TempDir(), "skua.db")}

	db, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.CreateTable(ctx, "q", columns))
	require.NoError(t, db.AddOne(ctx, "q", adapter.Fields{"_index": int64(1), "_hash": "a", "_object": []byte("x")}))
	require.NoError(t, db.Close())

	db, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer db.Close()
	n, err := db.Count(ctx, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBadNames(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	assert.Error(t, db.CreateTable(ctx, `bad"name`, columns))
	assert.Error(t, db.CreateTable(ctx, "", columns))
	assert.True(t, errors.Is(db.AddMany(ctx, "q", nil), adapter.ErrEmptyBatch))
}

func TestIsBusy(t *testing.T) {
	assert.True(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, IsBusy(errors.New("database is locked")))
	assert.False(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, IsBusy(nil))
}

func TestPaging(t *testing.T) {
	assert.Equal(t, "", Dialect.Paging(0, 0))
	assert.Equal(t, " LIMIT 1", Dialect.Paging(1, 0))
	assert.Equal(t, " LIMIT -1 OFFSET 4", Dialect.Paging(0, 4))
	assert.Equal(t, " LIMIT 2 OFFSET 4", Dialect.Paging(2, 4))
}
