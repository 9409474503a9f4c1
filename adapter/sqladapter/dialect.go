package sqladapter

import (
	"strconv"
	"strings"

	"skua/adapter"
)

// Dialect is the query-translation strategy of one SQL backend.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// ColumnType renders a column declaration type.
	ColumnType func(c adapter.Column) string
	// TableExistsQuery counts tables named by its single parameter.
	TableExistsQuery string
	// Paging renders LIMIT/OFFSET; limit <= 0 means unlimited.
	Paging func(limit, offset int) string
}

func (d Dialect) quote(ident string) string {
	return `"` + ident + `"`
}

// builder accumulates one statement and its arguments.
type builder struct {
	d    Dialect
	sb   strings.Builder
	args []any
}

func (b *builder) bind(v any) {
	b.args = append(b.args, v)
	b.sb.WriteString(b.d.Placeholder(len(b.args)))
}

func (b *builder) where(filter adapter.Filter) error {
	if len(filter) == 0 {
		return nil
	}
	b.sb.WriteString(" WHERE ")
	for i, name := range adapter.SortedKeys(filter) {
		if err := adapter.ValidName(name); err != nil {
			return err
		}
		c, err := adapter.CondOf(filter[name])
		if err != nil {
			return err
		}
		if i > 0 {
			b.sb.WriteString(" AND ")
		}
		b.sb.WriteString(b.d.quote(name))
		if c.Value == nil && c.Op == adapter.OpEq {
			b.sb.WriteString(" IS NULL")
			continue
		}
		b.sb.WriteString(" " + string(c.Op) + " ")
		b.bind(c.Value)
	}
	return nil
}

func (b *builder) order(opts adapter.FindOptions) error {
	if len(opts.OrderBy) > 0 {
		dir := " ASC"
		if opts.Descending {
			dir = " DESC"
		}
		b.sb.WriteString(" ORDER BY ")
		for i, name := range opts.OrderBy {
			if err := adapter.ValidName(name); err != nil {
				return err
			}
			if i > 0 {
				b.sb.WriteString(", ")
			}
			b.sb.WriteString(b.d.quote(name) + dir)
		}
	}
	b.sb.WriteString(b.d.Paging(opts.Limit, opts.Offset))
	return nil
}

func (d Dialect) selectSQL(table string, filter adapter.Filter, opts adapter.FindOptions) (string, []any, error) {
	b := &builder{d: d}
	b.sb.WriteString("SELECT * FROM " + d.quote(table))
	if err := b.where(filter); err != nil {
		return "", nil, err
	}
	if err := b.order(opts); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

func (d Dialect) countSQL(table string, filter adapter.Filter) (string, []any, error) {
	b := &builder{d: d}
	b.sb.WriteString("SELECT COUNT(*) FROM " + d.quote(table))
	if err := b.where(filter); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

func (d Dialect) deleteSQL(table string, filter adapter.Filter) (string, []any, error) {
	b := &builder{d: d}
	b.sb.WriteString("DELETE FROM " + d.quote(table))
	if err := b.where(filter); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

func (d Dialect) updateSQL(table string, update adapter.Fields, where adapter.Filter) (string, []any, error) {
	if len(update) == 0 {
		return "", nil, adapter.ErrEmptyBatch
	}
	b := &builder{d: d}
	b.sb.WriteString("UPDATE " + d.quote(table) + " SET ")
	for i, name := range adapter.SortedKeys(update) {
		if err := adapter.ValidName(name); err != nil {
			return "", nil, err
		}
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.sb.WriteString(d.quote(name) + " = ")
		b.bind(update[name])
	}
	if err := b.where(where); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

// insertSQL renders the statement for the column set of fields; the
// returned names give the argument order for every row of a batch.
func (d Dialect) insertSQL(table string, fields adapter.Fields) (string, []string, error) {
	if len(fields) == 0 {
		return "", nil, adapter.ErrEmptyBatch
	}
	names := adapter.SortedKeys(fields)
	cols := make([]string, len(names))
	marks := make([]string, len(names))
	for i, name := range names {
		if err := adapter.ValidName(name); err != nil {
			return "", nil, err
		}
		cols[i] = d.quote(name)
		marks[i] = d.Placeholder(i + 1)
	}
	q := "INSERT INTO " + d.quote(table) + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	return q, names, nil
}

func (d Dialect) createSQL(table string, columns []adapter.Column) (string, error) {
	if len(columns) == 0 {
		return "", adapter.ErrEmptyBatch
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		if err := adapter.ValidName(c.Name); err != nil {
			return "", err
		}
		defs[i] = d.quote(c.Name) + " " + d.ColumnType(c)
	}
	return "CREATE TABLE " + d.quote(table) + " (" + strings.Join(defs, ", ") + ")", nil
}

func (d Dialect) dropSQL(table string) string {
	return "DROP TABLE " + d.quote(table)
}

// QuestionMark is the "?" placeholder style.
func QuestionMark(int) string { return "?" }

// Dollar is the "$n" placeholder style.
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// VarCharSize returns the declared size of a text column.
func VarCharSize(c adapter.Column) int {
	if c.Size <= 0 {
		return 255
	}
	return c.Size
}
