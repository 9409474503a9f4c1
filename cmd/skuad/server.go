package main

import (
	"context"
	"errors"
	"net"

	"github.com/buaazp/fasthttprouter"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"skua/adapter"
)

type TableInfo struct {
	Table  string `json:"table"`
	Exists bool   `json:"exists"`
	Rows   int64  `json:"rows"`
}

type ClearResult struct {
	Removed int64 `json:"removed"`
}

// Server exposes table statistics and maintenance of one adapter.
type Server struct {
	a      adapter.Adapter
	log    *zap.SugaredLogger
	tables []string

	rows     *prometheus.GaugeVec
	registry *prometheus.Registry
	srv      *fasthttp.Server
}

func NewServer(a adapter.Adapter, tables []string, log *zap.SugaredLogger) *Server {
	s := &Server{
		a:        a,
		log:      log,
		tables:   tables,
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "skua_table_rows",
			Help: "Number of rows stored in a table.",
		}, []string{"table"}),
	}
	s.registry.MustRegister(s.rows)

	router := fasthttprouter.New()
	router.GET("/healthz", s.HealthHandler)
	router.GET("/metrics", s.MetricsHandler())
	router.GET("/tables/:table", s.TableHandler)
	router.DELETE("/tables/:table/rows", s.ClearHandler)
	router.NotFound = func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(404)
	}

	s.srv = &fasthttp.Server{
		Handler:               router.Handler,
		ReadBufferSize:        10000,
		WriteBufferSize:       10000,
		NoDefaultServerHeader: true,
		NoDefaultDate:         true,
	}
	return s
}

// Serve blocks until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Infow("listening", "addr", ln.Addr().String())
		errc <- s.srv.Serve(ln)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	err := s.srv.Shutdown()
	if serr := <-errc; serr != nil && !errors.Is(serr, net.ErrClosed) {
		s.log.Debugw("serve returned", "err", serr)
	}
	return err
}

func (s *Server) HealthHandler(ctx *fasthttp.RequestCtx) {
	if !s.a.IsOpen() {
		ctx.Error("adapter is closed", 503)
		return
	}
	ctx.SetStatusCode(200)
}

func (s *Server) TableHandler(ctx *fasthttp.RequestCtx) {
	table, err := getTable(ctx)
	if err != nil {
		ctx.Error(err.Error(), 400)
		return
	}
	info, err := s.info(ctx, table)
	if err != nil {
		s.log.Errorw("table info", "table", table, "err", err)
		ctx.Error(err.Error(), 500)
		return
	}
	writeJSON(ctx, info)
}

func (s *Server) ClearHandler(ctx *fasthttp.RequestCtx) {
	table, err := getTable(ctx)
	if err != nil {
		ctx.Error(err.Error(), 400)
		return
	}
	ok, err := s.a.TableExists(ctx, table)
	if err != nil {
		ctx.Error(err.Error(), 500)
		return
	}
	if !ok {
		ctx.Error("table not found", 404)
		return
	}
	n, err := s.a.Remove(ctx, table, nil)
	if err != nil {
		s.log.Errorw("clear table", "table", table, "err", err)
		ctx.Error(err.Error(), 500)
		return
	}
	s.log.Infow("table cleared", "table", table, "removed", n)
	writeJSON(ctx, ClearResult{Removed: n})
}

// MetricsHandler refreshes the row gauges before every scrape.
func (s *Server) MetricsHandler() fasthttp.RequestHandler {
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return func(ctx *fasthttp.RequestCtx) {
		s.refresh(ctx)
		h(ctx)
	}
}

func (s *Server) refresh(ctx context.Context) {
	for _, table := range s.tables {
		info, err := s.info(ctx, table)
		if err != nil {
			s.log.Warnw("refresh row gauge", "table", table, "err", err)
			continue
		}
		s.rows.WithLabelValues(table).Set(float64(info.Rows))
	}
}

func (s *Server) info(ctx context.Context, table string) (TableInfo, error) {
	info := TableInfo{Table: table}
	ok, err := s.a.TableExists(ctx, table)
	if err != nil || !ok {
		return info, err
	}
	info.Exists = true
	info.Rows, err = s.a.Count(ctx, table, nil)
	return info, err
}

func getTable(ctx *fasthttp.RequestCtx) (string, error) {
	table, _ := ctx.UserValue("table").(string)
	if err := adapter.ValidName(table); err != nil {
		return "", err
	}
	return table, nil
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		ctx.Error(err.Error(), 500)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}
