// Package adapter defines the storage contract shared by every skua
// collection. An Adapter exposes table-level CRUD over some backend
// (embedded SQL, relational server, document store, embedded KV) and
// commits every call immediately; there are no multi-call transactions.
package adapter

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("adapter not connected")
	ErrAlreadyConnected = errors.New("adapter already connected")
	ErrTableExists      = errors.New("table already exists")
	ErrTableNotFound    = errors.New("table not found")
	ErrEmptyBatch       = errors.New("empty batch")
)

// Fields is a single row keyed by column name.
type Fields map[string]any

// Filter selects rows. Values are matched for equality unless they are a
// Cond, in which case Cond.Op is applied.
type Filter map[string]any

type Op string

const (
	OpEq Op = "="
	OpGt Op = ">"
	OpGe Op = ">="
	OpLt Op = "<"
	OpLe Op = "<="
)

type Cond struct {
	Op    Op
	Value any
}

func Eq(v any) Cond { return Cond{Op: OpEq, Value: v} }
func Gt(v any) Cond { return Cond{Op: OpGt, Value: v} }
func Ge(v any) Cond { return Cond{Op: OpGe, Value: v} }
func Lt(v any) Cond { return Cond{Op: OpLt, Value: v} }
func Le(v any) Cond { return Cond{Op: OpLe, Value: v} }

// CondOf normalises a filter value into a Cond.
func CondOf(v any) (Cond, error) {
	c, ok := v.(Cond)
	if !ok {
		return Eq(v), nil
	}
	switch c.Op {
	case OpEq, OpGt, OpGe, OpLt, OpLe:
		return c, nil
	case "":
		c.Op = OpEq
		return c, nil
	}
	return c, fmt.Errorf("unsupported operator %q", c.Op)
}

type ColumnType int

const (
	TypeText ColumnType = iota
	TypeBlob
	TypeBigInt
)

type Column struct {
	Name string
	Type ColumnType
	Size int // TypeText only
}

func VarChar(name string, size int) Column { return Column{Name: name, Type: TypeText, Size: size} }
func Blob(name string) Column              { return Column{Name: name, Type: TypeBlob} }
func BigInt(name string) Column            { return Column{Name: name, Type: TypeBigInt} }

// FindOptions controls ordering and paging. Descending applies to every
// OrderBy column. Limit <= 0 means no limit.
type FindOptions struct {
	OrderBy    []string
	Descending bool
	Limit      int
	Offset     int
}

type Adapter interface {
	Connect(ctx context.Context) error
	IsOpen() bool
	Close() error

	TableExists(ctx context.Context, table string) (bool, error)
	// CreateTable returns ErrTableExists when the table is already present.
	// Callers bootstrapping a table treat that as a warning.
	CreateTable(ctx context.Context, table string, columns []Column) error
	DeleteTable(ctx context.Context, table string) error

	AddOne(ctx context.Context, table string, fields Fields) error
	AddMany(ctx context.Context, table string, rows []Fields) error
	// AddOneBinary and AddManyBinary mark []byte values as raw binary.
	// Backends without a binary distinction route them to AddOne/AddMany.
	AddOneBinary(ctx context.Context, table string, fields Fields) error
	AddManyBinary(ctx context.Context, table string, rows []Fields) error

	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, table string, filter Filter, opts FindOptions) (Fields, error)
	FindMany(ctx context.Context, table string, filter Filter, opts FindOptions) ([]Fields, error)
	Update(ctx context.Context, table string, update Fields, where Filter) (int64, error)
	Remove(ctx context.Context, table string, filter Filter) (int64, error)
	Count(ctx context.Context, table string, filter Filter) (int64, error)
}
