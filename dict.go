package skua

import (
	"bytes"
	"context"
	"fmt"

	"skua/adapter"
)

const (
	keyColumn   = "_key"
	valueColumn = "_value"

	DefaultDictTable = "skua_dict"

	// pageSize bounds the rows fetched per round trip while ranging.
	pageSize = 128
)

// Dict is a string keyed map stored in an adapter table. It has no
// locking of its own; every call is one or two adapter round trips.
type Dict[V any] struct {
	*Container
}

func NewDict[V any](ctx context.Context, opts ...Option) (*Dict[V], error) {
	o := options{table: DefaultDictTable}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := newContainer(ctx, o, []adapter.Column{
		adapter.VarChar(keyColumn, 128),
		adapter.Blob(valueColumn),
	})
	if err != nil {
		return nil, err
	}
	return &Dict[V]{Container: c}, nil
}

// Set stores v under key, replacing any previous value.
func (d *Dict[V]) Set(ctx context.Context, key string, v V) error {
	b, err := d.encode(&v)
	if err != nil {
		return err
	}
	n, err := d.adapter.Update(ctx, d.table, adapter.Fields{valueColumn: b}, adapter.Filter{keyColumn: key})
	if err != nil {
		return fmt.Errorf("set %q in %s: %w", key, d.table, err)
	}
	if n > 0 {
		return nil
	}
	if err := d.adapter.AddOneBinary(ctx, d.table, adapter.Fields{keyColumn: key, valueColumn: b}); err != nil {
		return fmt.Errorf("set %q in %s: %w", key, d.table, err)
	}
	return nil
}

// Get returns ErrKeyNotFound when key is absent.
func (d *Dict[V]) Get(ctx context.Context, key string) (V, error) {
	var v V
	row, err := d.find(ctx, key)
	if err != nil {
		return v, err
	}
	if row == nil {
		return v, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	err = d.decode(&v, row[valueColumn])
	return v, err
}

// GetOr returns def when key is absent.
func (d *Dict[V]) GetOr(ctx context.Context, key string, def V) (V, error) {
	row, err := d.find(ctx, key)
	if err != nil || row == nil {
		return def, err
	}
	var v V
	err = d.decode(&v, row[valueColumn])
	return v, err
}

func (d *Dict[V]) Contains(ctx context.Context, key string) (bool, error) {
	row, err := d.find(ctx, key)
	return row != nil, err
}

// Delete is a no-op for a missing key.
func (d *Dict[V]) Delete(ctx context.Context, key string) error {
	if _, err := d.adapter.Remove(ctx, d.table, adapter.Filter{keyColumn: key}); err != nil {
		return fmt.Errorf("delete %q from %s: %w", key, d.table, err)
	}
	return nil
}

// Pop removes key and returns its value.
func (d *Dict[V]) Pop(ctx context.Context, key string) (V, error) {
	v, err := d.Get(ctx, key)
	if err != nil {
		return v, err
	}
	return v, d.Delete(ctx, key)
}

// PopItem removes and returns some entry, ErrKeyNotFound when empty.
func (d *Dict[V]) PopItem(ctx context.Context) (string, V, error) {
	var v V
	row, err := d.adapter.FindOne(ctx, d.table, nil, adapter.FindOptions{})
	if err != nil {
		return "", v, fmt.Errorf("select from %s: %w", d.table, err)
	}
	if row == nil {
		return "", v, fmt.Errorf("%w: %s is empty", ErrKeyNotFound, d.table)
	}
	key, _ := adapter.String(row[keyColumn])
	if err := d.decode(&v, row[valueColumn]); err != nil {
		return "", v, err
	}
	return key, v, d.Delete(ctx, key)
}

// Update sets every entry of m whose stored value differs.
func (d *Dict[V]) Update(ctx context.Context, m map[string]V) error {
	for k, v := range m {
		b, err := d.encode(&v)
		if err != nil {
			return err
		}
		row, err := d.find(ctx, k)
		if err != nil {
			return err
		}
		if row != nil {
			if old, ok := adapter.Bytes(row[valueColumn]); ok && bytes.Equal(old, b) {
				continue
			}
		}
		if err := d.Set(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Range calls fn for each entry in key order until fn returns false.
func (d *Dict[V]) Range(ctx context.Context, fn func(key string, v V) bool) error {
	for offset := 0; ; offset += pageSize {
		rows, err := d.adapter.FindMany(ctx, d.table, nil, adapter.FindOptions{
			OrderBy: []string{keyColumn},
			Limit:   pageSize,
			Offset:  offset,
		})
		if err != nil {
			return fmt.Errorf("range %s: %w", d.table, err)
		}
		for _, row := range rows {
			key, _ := adapter.String(row[keyColumn])
			var v V
			if err := d.decode(&v, row[valueColumn]); err != nil {
				return err
			}
			if !fn(key, v) {
				return nil
			}
		}
		if len(rows) < pageSize {
			return nil
		}
	}
}

// Keys returns every key in order.
func (d *Dict[V]) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := d.Range(ctx, func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys, err
}

func (d *Dict[V]) find(ctx context.Context, key string) (adapter.Fields, error) {
	row, err := d.adapter.FindOne(ctx, d.table, adapter.Filter{keyColumn: key}, adapter.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("find %q in %s: %w", key, d.table, err)
	}
	return row, nil
}
