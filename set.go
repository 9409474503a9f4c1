package skua

import (
	"context"
	"fmt"

	"skua/adapter"
)

const DefaultSetTable = "skua_set"

// Set stores distinct items. Two items are the same when the codec
// encodes them to the same bytes.
type Set[T any] struct {
	*Container
}

func NewSet[T any](ctx context.Context, opts ...Option) (*Set[T], error) {
	o := options{table: DefaultSetTable}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := newContainer(ctx, o, []adapter.Column{
		adapter.VarChar(hashColumn, 64),
		adapter.Blob(objectColumn),
	})
	if err != nil {
		return nil, err
	}
	return &Set[T]{Container: c}, nil
}

func (s *Set[T]) key(item *T) (string, []byte, error) {
	b, err := s.encode(item)
	if err != nil {
		return "", nil, err
	}
	return digest(b), b, nil
}

// Add inserts item unless an equal one is present.
func (s *Set[T]) Add(ctx context.Context, item T) error {
	h, b, err := s.key(&item)
	if err != nil {
		return err
	}
	row, err := s.adapter.FindOne(ctx, s.table, adapter.Filter{hashColumn: h}, adapter.FindOptions{})
	if err != nil {
		return fmt.Errorf("find in %s: %w", s.table, err)
	}
	if row != nil {
		return nil
	}
	if err := s.adapter.AddOneBinary(ctx, s.table, adapter.Fields{hashColumn: h, objectColumn: b}); err != nil {
		return fmt.Errorf("add to %s: %w", s.table, err)
	}
	return nil
}

// Update adds every item.
func (s *Set[T]) Update(ctx context.Context, items ...T) error {
	for _, item := range items {
		if err := s.Add(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// Remove is a no-op for an absent item.
func (s *Set[T]) Remove(ctx context.Context, item T) error {
	h, _, err := s.key(&item)
	if err != nil {
		return err
	}
	if _, err := s.adapter.Remove(ctx, s.table, adapter.Filter{hashColumn: h}); err != nil {
		return fmt.Errorf("remove from %s: %w", s.table, err)
	}
	return nil
}

func (s *Set[T]) Contains(ctx context.Context, item T) (bool, error) {
	h, _, err := s.key(&item)
	if err != nil {
		return false, err
	}
	n, err := s.adapter.Count(ctx, s.table, adapter.Filter{hashColumn: h})
	if err != nil {
		return false, fmt.Errorf("find in %s: %w", s.table, err)
	}
	return n > 0, nil
}

// Pop removes and returns an arbitrary item, ErrSetEmpty when empty.
func (s *Set[T]) Pop(ctx context.Context) (T, error) {
	var item T
	row, err := s.adapter.FindOne(ctx, s.table, nil, adapter.FindOptions{})
	if err != nil {
		return item, fmt.Errorf("select from %s: %w", s.table, err)
	}
	if row == nil {
		return item, ErrSetEmpty
	}
	if err := s.decode(&item, row[objectColumn]); err != nil {
		return item, err
	}
	h, _ := adapter.String(row[hashColumn])
	if _, err := s.adapter.Remove(ctx, s.table, adapter.Filter{hashColumn: h}); err != nil {
		return item, fmt.Errorf("remove from %s: %w", s.table, err)
	}
	return item, nil
}

// Range calls fn for each item until fn returns false.
func (s *Set[T]) Range(ctx context.Context, fn func(item T) bool) error {
	for offset := 0; ; offset += pageSize {
		rows, err := s.adapter.FindMany(ctx, s.table, nil, adapter.FindOptions{
			OrderBy: []string{hashColumn},
			Limit:   pageSize,
			Offset:  offset,
		})
		if err != nil {
			return fmt.Errorf("range %s: %w", s.table, err)
		}
		for _, row := range rows {
			var item T
			if err := s.decode(&item, row[objectColumn]); err != nil {
				return err
			}
			if !fn(item) {
				return nil
			}
		}
		if len(rows) < pageSize {
			return nil
		}
	}
}
