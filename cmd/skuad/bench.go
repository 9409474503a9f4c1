package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"skua"
	"skua/backend"
	"skua/config"
	"skua/internal/logging"
)

type BenchOptions struct {
	Producers int
	Consumers int
	Items     int
	MaxSize   int
	Table     string
	Size      int
}

type BenchResult struct {
	Put      int64
	Got      int64
	Took     time.Duration
	Leftover int
}

type benchItem struct {
	Seq  int64  `json:"seq"`
	Data string `json:"raw"`
}

func newBenchCmd(load func() (config.Config, error)) *cobra.Command {
	var o BenchOptions
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run producers and consumers against a queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			a, err := backend.Open(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, a.Close()) }()

			res, err := runBench(ctx, o, log, skua.WithAdapter(a))
			if err != nil {
				return err
			}
			total := float64(res.Got)
			log.Infof("%d producers %d consumers: %d items in %d ms, %.1fk items/sec",
				o.Producers, o.Consumers, res.Got, res.Took.Milliseconds(), total/res.Took.Seconds()/1000)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.Producers, "producers", 4, "number of producers")
	f.IntVar(&o.Consumers, "consumers", 4, "number of consumers")
	f.IntVar(&o.Items, "items", 1000, "items per producer")
	f.IntVar(&o.MaxSize, "max-size", 0, "queue capacity, 0 is unbounded")
	f.IntVar(&o.Size, "size", 64, "payload bytes per item")
	f.StringVar(&o.Table, "table", "skua_bench", "queue table")
	return cmd
}

// runBench drains exactly Producers*Items items. The table is deleted when
// the run ends.
func runBench(ctx context.Context, o BenchOptions, log *zap.SugaredLogger, opts ...skua.Option) (res BenchResult, err error) {
	if o.Producers <= 0 || o.Consumers <= 0 || o.Items <= 0 {
		return res, errors.New("producers, consumers and items must be positive")
	}
	opts = append(opts, skua.WithTable(o.Table), skua.WithMaxSize(o.MaxSize), skua.WithLogger(log))
	q, err := skua.NewQueue[benchItem](ctx, opts...)
	if err != nil {
		return res, err
	}
	defer func() {
		err = multierr.Append(err, q.Delete(context.Background()))
		err = multierr.Append(err, q.Close())
	}()

	payload := make([]byte, o.Size)
	for i := range payload {
		payload[i] = byte(i%26) + 'A'
	}

	var (
		put, got atomic.Int64
		want     = int64(o.Producers * o.Items)
		errs     = make(chan error, o.Producers+o.Consumers)
		wg       sync.WaitGroup
	)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	for i := 0; i < o.Producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < o.Items; j++ {
				item := benchItem{Seq: put.Inc(), Data: string(payload)}
				if err := q.Put(ctx, item); err != nil {
					errs <- fmt.Errorf("put: %w", err)
					cancel()
					return
				}
			}
		}()
	}
	for i := 0; i < o.Consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				// claim an item before waiting for it
				if got.Inc() > want {
					got.Dec()
					return
				}
				if _, err := q.Get(ctx); err != nil {
					errs <- fmt.Errorf("get: %w", err)
					cancel()
					return
				}
				if err := q.TaskDone(); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		err = multierr.Append(err, e)
	}
	res = BenchResult{Put: put.Load(), Got: got.Load(), Took: time.Since(start)}
	if err != nil {
		return res, err
	}
	if err := q.Join(ctx, skua.NoWait()); err != nil {
		return res, err
	}
	res.Leftover, err = q.Qsize(ctx)
	return res, err
}
