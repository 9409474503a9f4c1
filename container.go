package skua

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"skua/adapter"
	"skua/adapter/sqlite"
	"skua/internal/logging"
)

// Container binds one adapter to one table.
type Container struct {
	adapter adapter.Adapter
	table   string
	owned   bool
	codec   Codec
	log     *zap.SugaredLogger
}

func newContainer(ctx context.Context, o options, columns []adapter.Column) (*Container, error) {
	if err := adapter.ValidName(o.table); err != nil {
		return nil, err
	}
	c := &Container{adapter: o.adapter, table: o.table, codec: o.codec, log: o.log}
	if c.codec == nil {
		c.codec = JSONCodec{}
	}
	if c.log == nil {
		c.log = logging.FromContext(ctx)
	}
	c.log = c.log.With("table", c.table)
	if c.adapter == nil {
		db := sqlite.New(sqlite.Config{}, c.log)
		if err := db.Connect(ctx); err != nil {
			return nil, err
		}
		c.adapter, c.owned = db, true
	} else if !c.adapter.IsOpen() {
		return nil, adapter.ErrNotConnected
	}
	if err := c.bootstrap(ctx, columns); err != nil {
		if c.owned {
			_ = c.adapter.Close()
		}
		return nil, err
	}
	return c, nil
}

func (c *Container) bootstrap(ctx context.Context, columns []adapter.Column) error {
	ok, err := c.adapter.TableExists(ctx, c.table)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	err = c.adapter.CreateTable(ctx, c.table, columns)
	if errors.Is(err, adapter.ErrTableExists) {
		c.log.Debugw("table already exists", "error", err)
		return nil
	}
	return err
}

func (c *Container) Table() string { return c.table }

func (c *Container) Adapter() adapter.Adapter { return c.adapter }

// Len counts the rows of the table.
func (c *Container) Len(ctx context.Context) (int, error) {
	n, err := c.adapter.Count(ctx, c.table, nil)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.table, err)
	}
	return int(n), nil
}

// Clear removes every row.
func (c *Container) Clear(ctx context.Context) error {
	if _, err := c.adapter.Remove(ctx, c.table, nil); err != nil {
		return fmt.Errorf("clear %s: %w", c.table, err)
	}
	return nil
}

// Delete drops the table. The collection is unusable afterwards.
func (c *Container) Delete(ctx context.Context) error {
	return c.adapter.DeleteTable(ctx, c.table)
}

// Close releases the adapter if the container created it.
func (c *Container) Close() error {
	if !c.owned {
		return nil
	}
	return c.adapter.Close()
}

func (c *Container) encode(v any) ([]byte, error) {
	b, err := c.codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode for %s: %w", c.table, err)
	}
	return b, nil
}

func (c *Container) decode(v any, raw any) error {
	b, ok := adapter.Bytes(raw)
	if !ok {
		return fmt.Errorf("decode from %s: unexpected column type %T", c.table, raw)
	}
	if err := c.codec.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode from %s: %w", c.table, err)
	}
	return nil
}
