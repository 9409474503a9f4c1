package pebble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skua/adapter"
)

var columns = []adapter.Column{
	adapter.BigInt("_index"),
	adapter.VarChar("_hash", 64),
	adapter.Blob("_object"),
	adapter.BigInt("_priority"),
}

func openMemory(t *testing.T) *DB {
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
	_, err = db.Count(ctx, "q", nil)
	assert.True(t, errors.Is(err, adapter.ErrTableNotFound))

	require.NoError(t, db.CreateTable(ctx, "q", columns))
	assert.True(t, errors.Is(db.CreateTable(ctx, "q", columns), adapter.ErrTableExists))
	ok, err = db.TableExists(ctx, "q")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, db.AddOne(ctx, "q", adapter.Fields{"_index": int64(1)}))
	require.NoError(t, db.DeleteTable(ctx, "q"))
	ok, err = db.TableExists(ctx, "q")
	require.NoError(t, err)
	assert.False(t, ok)

	// a recreated table starts empty
	require.NoError(t, db.CreateTable(ctx, "q", columns))
	n, err := db.Count(ctx, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestTablesDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	require.NoError(t, db.CreateTable(ctx, "a", columns))
	require.NoError(t, db.CreateTable(ctx, "ab", columns))
	require.NoError(t, db.AddOne(ctx, "a", adapter.Fields{"_index": int64(1)}))
	require.NoError(t, db.AddMany(ctx, "ab", []adapter.Fields{{"_index": int64(1)}, {"_index": int64(2)}}))

	n, err := db.Count(ctx, "a", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = db.Count(ctx, "ab", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRows(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	require.NoError(t, db.CreateTable(ctx, "q", columns))

	require.NoError(t, db.AddManyBinary(ctx, "q", []adapter.Fields{
		{"_index": int64(10), "_hash": "a", "_object": []byte("a"), "_priority": int64(3)},
		{"_index": int64(11), "_hash": "b", "_object": []byte("b"), "_priority": int64(1)},
		{"_index": int64(12), "_hash": "c", "_object": []byte("c"), "_priority": int64(1)},
	}))

	row, err := db.FindOne(ctx, "q", nil, adapter.FindOptions{OrderBy: []string{"_priority", "_index"}})
	require.NoError(t, err)
	assert.Equal(t, "b", row["_hash"])
	assert.Equal(t, []byte("b"), row["_object"])
	assert.Equal(t, int64(11), row["_index"])

	row, err = db.FindOne(ctx, "q", nil, adapter.FindOptions{OrderBy: []string{"_index"}, Descending: true})
	require.NoError(t, err)
	assert.Equal(t, "c", row["_hash"])

	rows, err := db.FindMany(ctx, "q", adapter.Filter{"_priority": adapter.Le(1)}, adapter.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = db.FindMany(ctx, "q", nil, adapter.FindOptions{OrderBy: []string{"_index"}, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0]["_hash"])

	n, err := db.Update(ctx, "q", adapter.Fields{"_priority": int64(0)}, adapter.Filter{"_hash": "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	row, err = db.FindOne(ctx, "q", nil, adapter.FindOptions{OrderBy: []string{"_priority", "_index"}})
	require.NoError(t, err)
	assert.Equal(t, "a", row["_hash"])

	n, err = db.Remove(ctx, "q", adapter.Filter{"_hash": "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = db.Remove(ctx, "q", adapter.Filter{"_hash": "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	row, err = db.FindOne(ctx, "q", adapter.Filter{"_hash": "zzz"}, adapter.FindOptions{})
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	require.NoError(t, db.CreateTable(ctx, "q", columns))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				err := db.AddOne(ctx, "q", adapter.Fields{"_hash": fmt.Sprintf("%d-%d", i, j)})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()
	n, err := db.Count(ctx, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(200), n)
}

func TestReopenFromDisk(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Path: t.TempDir(), Sync: true}
	db, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.CreateTable(ctx, "q", columns))
	require.NoError(t, db.AddOne(ctx, "q", adapter.Fields{"_index": int64(1), "_object": []byte("x")}))
	require.NoError(t, db.Close())

	db, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer db.Close()
	row, err := db.FindOne(ctx, "q", nil, adapter.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), row["_object"])
}

func TestConnectState(t *testing.T) {
	ctx := context.Background()
	db := New(Config{}, nil)
	assert.False(t, db.IsOpen())
	_, err := db.TableExists(ctx, "q")
	assert.True(t, errors.Is(err, adapter.ErrNotConnected))
	require.NoError(t, db.Connect(ctx))
	assert.True(t, errors.Is(db.Connect(ctx), adapter.ErrAlreadyConnected))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
}

func TestRowEncoding(t *testing.T) {
	in := adapter.Fields{"i": int64(-4), "s": "str", "b": []byte{0, 1}, "n": nil, "u": uint64(7)}
	bts, err := encodeRow(in)
	require.NoError(t, err)
	out, err := decodeRow(bts)
	require.NoError(t, err)
	assert.Equal(t, adapter.Fields{"i": int64(-4), "s": "str", "b": []byte{0, 1}, "n": nil, "u": int64(7)}, out)

	m := TableMeta{Seq: 42, Columns: []string{"_index", "_hash"}}
	bts, err = m.MarshalMsg(nil)
	require.NoError(t, err)
	var got TableMeta
	_, err = got.UnmarshalMsg(bts)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestRowKeysSortBySeq(t *testing.T) {
	lower, upper := rowBounds("t")
	k1, k2 := rowKey("t", 1), rowKey("t", 256)
	assert.Less(t, string(lower), string(k1))
	assert.Less(t, string(k1), string(k2))
	assert.Less(t, string(k2), string(upper))
}
