package skua

import (
	"errors"
	"fmt"
)

var (
	// ErrFull is returned by a non-blocking or timed out Put on a full queue.
	ErrFull = errors.New("queue is full")
	// ErrEmpty is returned by a non-blocking Get on an empty queue.
	ErrEmpty = errors.New("queue is empty")
	// ErrTimeout is returned by a blocking Get whose deadline passed.
	ErrTimeout = errors.New("timed out waiting for item")
	// ErrJoinTimeout is returned by Join; errors.Is(err, ErrTimeout) holds.
	ErrJoinTimeout = fmt.Errorf("%w: unfinished tasks remain", ErrTimeout)

	ErrNegativeTimeout = errors.New("timeout must be a non-negative duration")
	ErrTaskDone        = errors.New("TaskDone called too many times")
	ErrTypeMismatch    = errors.New("item has no priority")

	ErrKeyNotFound = errors.New("key not found")
	ErrSetEmpty    = errors.New("set is empty")
)
