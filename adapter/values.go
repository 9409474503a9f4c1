package adapter

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Bytes extracts a binary value the way drivers tend to return it.
func Bytes(v any) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case string:
		return []byte(b), true
	}
	return nil, false
}

func String(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case float64:
		return int64(n), n == float64(int64(n))
	case float32:
		return int64(n), n == float32(int64(n))
	}
	return 0, false
}

func float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	if i, ok := Int64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// Compare orders two column values. Numbers compare numerically, strings
// and byte slices lexically. nil sorts before everything else.
func Compare(a, b any) (int, error) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, nil
		case a == nil:
			return -1, nil
		default:
			return 1, nil
		}
	}
	if x, ok := Int64(a); ok {
		if y, ok := Int64(b); ok {
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			}
			return 0, nil
		}
	}
	if x, ok := float(a); ok {
		if y, ok := float(b); ok {
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			}
			return 0, nil
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	}
	if x, ok := Bytes(a); ok {
		if y, ok := Bytes(b); ok {
			return bytes.Compare(x, y), nil
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

// Match reports whether row satisfies every condition in filter.
func Match(row Fields, filter Filter) (bool, error) {
	for name, raw := range filter {
		c, err := CondOf(raw)
		if err != nil {
			return false, err
		}
		v, ok := row[name]
		if !ok {
			return false, nil
		}
		cmp, err := Compare(v, c.Value)
		if err != nil {
			return false, fmt.Errorf("column %s: %w", name, err)
		}
		var hit bool
		switch c.Op {
		case OpEq:
			hit = cmp == 0
		case OpGt:
			hit = cmp > 0
		case OpGe:
			hit = cmp >= 0
		case OpLt:
			hit = cmp < 0
		case OpLe:
			hit = cmp <= 0
		}
		if !hit {
			return false, nil
		}
	}
	return true, nil
}

// Arrange sorts rows by opts.OrderBy (stable, so the incoming order breaks
// ties) and applies offset and limit.
func Arrange(rows []Fields, opts FindOptions) ([]Fields, error) {
	if len(opts.OrderBy) > 0 {
		var cmpErr error
		sort.SliceStable(rows, func(i, j int) bool {
			for _, col := range opts.OrderBy {
				c, err := Compare(rows[i][col], rows[j][col])
				if err != nil {
					cmpErr = err
					return false
				}
				if c == 0 {
					continue
				}
				if opts.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
		if cmpErr != nil {
			return nil, cmpErr
		}
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return nil, nil
		}
		rows = rows[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(rows) {
		rows = rows[:opts.Limit]
	}
	return rows, nil
}

// SameColumns checks that every row in a batch carries the columns of the
// first one, which batch inserts rely on.
func SameColumns(rows []Fields) error {
	if len(rows) == 0 {
		return ErrEmptyBatch
	}
	first := rows[0]
	for i, row := range rows[1:] {
		if len(row) != len(first) {
			return fmt.Errorf("row %d: column set differs from row 0", i+1)
		}
		for name := range first {
			if _, ok := row[name]; !ok {
				return fmt.Errorf("row %d: missing column %s", i+1, name)
			}
		}
	}
	return nil
}

// SortedKeys returns map keys in a stable order so generated statements are
// deterministic.
func SortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidName rejects table and column names that cannot be embedded in a
// key or a quoted identifier.
func ValidName(name string) error {
	if len(name) == 0 || len(name) > 128 {
		return fmt.Errorf("name %q: length is not in range 1~128", name)
	}
	for _, r := range name {
		if r == 0 || r == '"' || r == '`' {
			return fmt.Errorf("name %q: character %q is not allowed", name, r)
		}
	}
	return nil
}
