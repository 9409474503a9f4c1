package skua

import (
	"context"
	"fmt"
)

const DefaultPriorityQueueTable = "skua_priority_queue"

// Prioritized items report their own priority. Lower values leave the
// queue first.
type Prioritized interface {
	Priority() int64
}

// PriorityQueue is a Queue that hands out the item with the lowest
// priority first, and among equal priorities the oldest one.
type PriorityQueue[T any] struct {
	*Queue[T]
}

// NewPriorityQueue creates a queue for items that implement Prioritized,
// either on T or on *T. Put fails with ErrTypeMismatch for anything else.
// T must be a concrete type; an interface T fails with ErrTypeMismatch.
func NewPriorityQueue[T any](ctx context.Context, opts ...Option) (*PriorityQueue[T], error) {
	q, err := newQueue[T](ctx, DefaultPriorityQueueTable, prioritized[T], opts)
	if err != nil {
		return nil, err
	}
	return &PriorityQueue[T]{Queue: q}, nil
}

// NewPriorityQueueFunc creates a queue whose priorities come from fn, for
// item types that carry the priority in a plain field.
func NewPriorityQueueFunc[T any](ctx context.Context, fn func(T) int64, opts ...Option) (*PriorityQueue[T], error) {
	if fn == nil {
		return NewPriorityQueue[T](ctx, opts...)
	}
	q, err := newQueue[T](ctx, DefaultPriorityQueueTable, func(item *T) (int64, error) {
		return fn(*item), nil
	}, opts)
	if err != nil {
		return nil, err
	}
	return &PriorityQueue[T]{Queue: q}, nil
}

func prioritized[T any](item *T) (int64, error) {
	if p, ok := any(item).(Prioritized); ok {
		return p.Priority(), nil
	}
	// T may itself be a pointer type
	if p, ok := any(*item).(Prioritized); ok {
		return p.Priority(), nil
	}
	return 0, fmt.Errorf("%w: %T does not implement Prioritized", ErrTypeMismatch, *item)
}
