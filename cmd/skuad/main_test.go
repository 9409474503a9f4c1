package main

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"

	"skua"
	"skua/adapter/sqladapter"
	"skua/adapter/sqlite"
)

var nop = zap.NewNop().Sugar()

// startServer serves an in-memory sqlite adapter holding a "jobs" queue
// with three items.
func startServer(t *testing.T) (*fasthttp.Client, *skua.Queue[string]) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	a, err := sqlite.Open(ctx, sqlite.Config{}, nop)
	require.NoError(t, err)
	q, err := skua.NewQueue[string](ctx, skua.WithAdapter(a), skua.WithTable("jobs"), skua.WithLogger(nop))
	require.NoError(t, err)
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, q.Put(ctx, s))
	}

	ln := fasthttputil.NewInmemoryListener()
	done := make(chan error, 1)
	go func() { done <- NewServer(a, []string{"jobs", "ghost"}, nop).Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		_ = a.Close()
	})

	c := &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
	return c, q
}

func do(t *testing.T, c *fasthttp.Client, method, uri string) (int, []byte) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.Header.SetMethod(method)
	req.SetRequestURI("http://skuad" + uri)
	require.NoError(t, c.DoTimeout(req, resp, 5*time.Second))
	return resp.StatusCode(), append([]byte(nil), resp.Body()...)
}

func TestHealth(t *testing.T) {
	c, _ := startServer(t)
	code, _ := do(t, c, "GET", "/healthz")
	assert.Equal(t, 200, code)

	code, _ = do(t, c, "GET", "/nothing/here")
	assert.Equal(t, 404, code)
}

func TestTableInfo(t *testing.T) {
	c, _ := startServer(t)

	code, body := do(t, c, "GET", "/tables/jobs")
	require.Equal(t, 200, code, string(body))
	var info TableInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, TableInfo{Table: "jobs", Exists: true, Rows: 3}, info)

	code, body = do(t, c, "GET", "/tables/ghost")
	require.Equal(t, 200, code)
	require.NoError(t, json.Unmarshal(body, &info))
	assert.False(t, info.Exists)
	assert.Zero(t, info.Rows)
}

func TestClearTable(t *testing.T) {
	c, q := startServer(t)

	code, body := do(t, c, "DELETE", "/tables/jobs/rows")
	require.Equal(t, 200, code, string(body))
	var res ClearResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, int64(3), res.Removed)

	ok, err := q.Empty(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	code, _ = do(t, c, "DELETE", "/tables/ghost/rows")
	assert.Equal(t, 404, code)
}

func TestMetrics(t *testing.T) {
	c, _ := startServer(t)
	code, body := do(t, c, "GET", "/metrics")
	require.Equal(t, 200, code)
	assert.Contains(t, string(body), `skua_table_rows{table="jobs"} 3`)
	assert.Contains(t, string(body), `skua_table_rows{table="ghost"} 0`)
}

func TestStatsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skua.db")
	ctx := context.Background()
	d, err := skua.NewDict[int](ctx, skua.WithAdapter(mustOpen(t, path)), skua.WithTable("counts"), skua.WithLogger(nop))
	require.NoError(t, err)
	require.NoError(t, d.Update(ctx, map[string]int{"a": 1, "b": 2}))
	require.NoError(t, d.Adapter().Close())

	t.Setenv("SKUA_SQLITE_PATH", path)
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"stats", "counts", "absent"})
	require.NoError(t, root.ExecuteContext(ctx))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{"counts\t2", "absent\tmissing"}, lines)
}

func TestBench(t *testing.T) {
	ctx := context.Background()
	a, err := sqlite.Open(ctx, sqlite.Config{}, nop)
	require.NoError(t, err)
	defer a.Close()

	res, err := runBench(ctx, BenchOptions{
		Producers: 3,
		Consumers: 2,
		Items:     20,
		MaxSize:   5,
		Size:      8,
		Table:     "bench",
	}, nop, skua.WithAdapter(a))
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.Put)
	assert.Equal(t, int64(60), res.Got)
	assert.Zero(t, res.Leftover)

	ok, err := a.TableExists(ctx, "bench")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = runBench(ctx, BenchOptions{}, nop)
	assert.Error(t, err)
}

func mustOpen(t *testing.T, path string) *sqladapter.DB {
	t.Helper()
	a, err := sqlite.Open(context.Background(), sqlite.Config{Path: path}, nop)
	require.NoError(t, err)
	return a
}
