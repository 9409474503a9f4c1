package skua

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"skua/adapter"
)

const (
	indexColumn    = "_index"
	hashColumn     = "_hash"
	objectColumn   = "_object"
	priorityColumn = "_priority"

	DefaultQueueTable = "skua_queue"
)

// Queue is a bounded, blocking FIFO queue whose items live in an adapter
// table. Put, Get and Join block the calling goroutine the way a channel
// would, but the items survive the process.
//
// All operations on one Queue are serialised by a single mutex. Two Queue
// values over the same table, in one process or many, do not coordinate.
type Queue[T any] struct {
	*Container

	maxSize int
	orderBy []string
	// priority is set for priority queues only.
	priority func(*T) (int64, error)

	mu           sync.Mutex
	notEmpty     *sync.Cond
	notFull      *sync.Cond
	allTasksDone *sync.Cond
	unfinished   int
	lastIndex    int64
}

// NewQueue opens the queue table, creating it when missing.
func NewQueue[T any](ctx context.Context, opts ...Option) (*Queue[T], error) {
	return newQueue[T](ctx, DefaultQueueTable, nil, opts)
}

func newQueue[T any](ctx context.Context, table string, priority func(*T) (int64, error), opts []Option) (*Queue[T], error) {
	if err := checkItemType[T](priority != nil); err != nil {
		return nil, err
	}
	o := options{table: table}
	for _, opt := range opts {
		opt(&o)
	}
	columns := []adapter.Column{
		adapter.BigInt(indexColumn),
		adapter.VarChar(hashColumn, 64),
		adapter.Blob(objectColumn),
	}
	orderBy := []string{indexColumn}
	if priority != nil {
		columns = append(columns, adapter.BigInt(priorityColumn))
		orderBy = []string{priorityColumn, indexColumn}
	}
	c, err := newContainer(ctx, o, columns)
	if err != nil {
		return nil, err
	}
	q := &Queue[T]{
		Container: c,
		maxSize:   o.maxSize,
		orderBy:   orderBy,
		priority:  priority,
	}
	if q.maxSize < 0 {
		q.maxSize = 0
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	q.allTasksDone = sync.NewCond(&q.mu)

	last, err := c.adapter.FindOne(ctx, c.table, nil, adapter.FindOptions{OrderBy: []string{indexColumn}, Descending: true})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("read last index of %s: %w", c.table, err)
	}
	if last != nil {
		q.lastIndex, _ = adapter.Int64(last[indexColumn])
	}
	return q, nil
}

// MaxSize returns the capacity, 0 when unbounded.
func (q *Queue[T]) MaxSize() int { return q.maxSize }

// Put appends item. On a full bounded queue it blocks until a Get frees
// a slot; with NoWait or an expired Timeout it returns ErrFull.
func (q *Queue[T]) Put(ctx context.Context, item T, opts ...WaitOption) error {
	d, err := newDeadline(opts)
	if err != nil {
		return err
	}
	row, err := q.row(&item)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.maxSize > 0 {
		err := waitUntil(ctx, &q.mu, q.notFull, d, func() (bool, error) {
			n, err := q.count(ctx)
			return n < q.maxSize, err
		}, ErrFull, ErrFull)
		if err != nil {
			return err
		}
	}
	idx := q.nextIndex()
	row[indexColumn] = idx
	if err := q.adapter.AddOneBinary(ctx, q.table, row); err != nil {
		return fmt.Errorf("put into %s: %w", q.table, err)
	}
	q.lastIndex = idx
	q.unfinished++
	q.notEmpty.Signal()
	return nil
}

// PutNoWait is Put with NoWait.
func (q *Queue[T]) PutNoWait(ctx context.Context, item T) error {
	return q.Put(ctx, item, NoWait())
}

// Get removes and returns the oldest item, or for a priority queue the
// one with the lowest priority. On an empty queue NoWait gives ErrEmpty
// and an expired Timeout gives ErrTimeout.
func (q *Queue[T]) Get(ctx context.Context, opts ...WaitOption) (T, error) {
	var zero T
	d, err := newDeadline(opts)
	if err != nil {
		return zero, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		err := waitUntil(ctx, &q.mu, q.notEmpty, d, func() (bool, error) {
			n, err := q.count(ctx)
			return n > 0, err
		}, ErrEmpty, ErrTimeout)
		if err != nil {
			return zero, err
		}
		item, ok, err := q.take(ctx)
		if err != nil {
			return zero, err
		}
		if !ok {
			// the row went away between select and delete
			q.log.Debugw("row vanished before delete, retrying")
			continue
		}
		q.notFull.Signal()
		return item, nil
	}
}

// GetNoWait is Get with NoWait.
func (q *Queue[T]) GetNoWait(ctx context.Context) (T, error) {
	return q.Get(ctx, NoWait())
}

// take selects the head row, decodes it and deletes it by hash. ok is
// false when another writer removed the row first.
func (q *Queue[T]) take(ctx context.Context) (item T, ok bool, err error) {
	row, err := q.adapter.FindOne(ctx, q.table, nil, adapter.FindOptions{OrderBy: q.orderBy})
	if err != nil {
		return item, false, fmt.Errorf("select from %s: %w", q.table, err)
	}
	if row == nil {
		return item, false, nil
	}
	if err := q.decode(&item, row[objectColumn]); err != nil {
		return item, false, err
	}
	hash, _ := adapter.String(row[hashColumn])
	n, err := q.adapter.Remove(ctx, q.table, adapter.Filter{hashColumn: hash})
	if err != nil {
		return item, false, fmt.Errorf("delete from %s: %w", q.table, err)
	}
	return item, n > 0, nil
}

// Qsize counts the persisted items.
func (q *Queue[T]) Qsize(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count(ctx)
}

func (q *Queue[T]) Empty(ctx context.Context) (bool, error) {
	n, err := q.Qsize(ctx)
	return n == 0, err
}

// Full is always false for an unbounded queue.
func (q *Queue[T]) Full(ctx context.Context) (bool, error) {
	if q.maxSize <= 0 {
		return false, nil
	}
	n, err := q.Qsize(ctx)
	return n >= q.maxSize, err
}

// TaskDone marks one item returned by Get as processed. When every Put
// has been matched, goroutines blocked in Join are released.
func (q *Queue[T]) TaskDone() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished <= 0 {
		return ErrTaskDone
	}
	q.unfinished--
	if q.unfinished == 0 {
		q.allTasksDone.Broadcast()
	}
	return nil
}

// Join blocks until every item put has been marked with TaskDone.
func (q *Queue[T]) Join(ctx context.Context, opts ...WaitOption) error {
	d, err := newDeadline(opts)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return waitUntil(ctx, &q.mu, q.allTasksDone, d, func() (bool, error) {
		return q.unfinished == 0, nil
	}, ErrJoinTimeout, ErrJoinTimeout)
}

// Unfinished returns the number of items put but not yet marked done.
func (q *Queue[T]) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Clear drops every item and resets the unfinished count, releasing
// producers and joiners. Goroutines blocked in Get stay blocked.
func (q *Queue[T]) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.Container.Clear(ctx); err != nil {
		return err
	}
	q.unfinished = 0
	q.allTasksDone.Broadcast()
	q.notFull.Broadcast()
	return nil
}

// checkItemType rejects item types that cannot be decoded back from a row.
// Only the empty interface has a concrete decoding, and it loses any
// methods, so priority queues need a concrete T.
func checkItemType[T any](prioritized bool) error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Interface {
		return nil
	}
	if prioritized || t.NumMethod() > 0 {
		return fmt.Errorf("%w: items of interface type %s cannot be decoded", ErrTypeMismatch, t)
	}
	return nil
}

func (q *Queue[T]) count(ctx context.Context) (int, error) {
	n, err := q.adapter.Count(ctx, q.table, nil)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.table, err)
	}
	return int(n), nil
}

// nextIndex must be called with q.mu held.
func (q *Queue[T]) nextIndex() int64 {
	idx := time.Now().UnixNano()
	if idx <= q.lastIndex {
		idx = q.lastIndex + 1
	}
	return idx
}

func (q *Queue[T]) row(item *T) (adapter.Fields, error) {
	row := adapter.Fields{}
	if q.priority != nil {
		p, err := q.priority(item)
		if err != nil {
			return nil, err
		}
		row[priorityColumn] = p
	}
	b, err := q.encode(item)
	if err != nil {
		return nil, err
	}
	row[hashColumn] = rowHash(b)
	row[objectColumn] = b
	return row, nil
}
