package skua

import (
	"time"

	"go.uber.org/zap"

	"skua/adapter"
)

type options struct {
	adapter adapter.Adapter
	table   string
	maxSize int
	codec   Codec
	log     *zap.SugaredLogger
}

// Option configures a collection at construction time.
type Option func(*options)

// WithAdapter stores the collection through a, which must be connected.
// The collection never closes a shared adapter.
func WithAdapter(a adapter.Adapter) Option {
	return func(o *options) { o.adapter = a }
}

// WithTable overrides the default table name.
func WithTable(name string) Option {
	return func(o *options) { o.table = name }
}

// WithMaxSize bounds a queue. Zero or less means unbounded.
func WithMaxSize(n int) Option {
	return func(o *options) { o.maxSize = n }
}

func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.log = l }
}

type waitOptions struct {
	block      bool
	timeout    time.Duration
	hasTimeout bool
}

// WaitOption controls how Put, Get and Join wait. Without options they
// block until the condition holds or the context is done.
type WaitOption func(*waitOptions)

// NoWait fails immediately instead of blocking.
func NoWait() WaitOption {
	return func(w *waitOptions) { w.block = false }
}

// Timeout blocks for at most d. A negative d is rejected with
// ErrNegativeTimeout.
func Timeout(d time.Duration) WaitOption {
	return func(w *waitOptions) {
		w.block = true
		w.timeout = d
		w.hasTimeout = true
	}
}

// deadline resolves wait options at call entry.
type deadline struct {
	block bool
	at    time.Time // zero means no deadline
}

func newDeadline(opts []WaitOption) (deadline, error) {
	w := waitOptions{block: true}
	for _, o := range opts {
		o(&w)
	}
	if !w.block {
		return deadline{}, nil
	}
	if !w.hasTimeout {
		return deadline{block: true}, nil
	}
	if w.timeout < 0 {
		return deadline{}, ErrNegativeTimeout
	}
	// a zero timeout still blocks, but expires at once
	return deadline{block: true, at: time.Now().Add(w.timeout)}, nil
}

func (d deadline) expired() bool {
	return !d.at.IsZero() && !time.Now().Before(d.at)
}
