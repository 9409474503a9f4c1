package pebble

import (
	"github.com/tinylib/msgp/msgp"

	"skua/adapter"
)

// TableMeta is stored under the meta key of every table.
type TableMeta struct {
	Seq     uint64   `msg:"s"`
	Columns []string `msg:"c"`
}

func (z *TableMeta) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 2)
	b = msgp.AppendString(b, "s")
	b = msgp.AppendUint64(b, z.Seq)
	b = msgp.AppendString(b, "c")
	b = msgp.AppendArrayHeader(b, uint32(len(z.Columns)))
	for _, c := range z.Columns {
		b = msgp.AppendString(b, c)
	}
	return b, nil
}

func (z *TableMeta) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, msgp.WrapError(err)
	}
	for ; sz > 0; sz-- {
		var field []byte
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return bts, msgp.WrapError(err)
		}
		switch msgp.UnsafeString(field) {
		case "s":
			z.Seq, bts, err = msgp.ReadUint64Bytes(bts)
			if err != nil {
				return bts, msgp.WrapError(err, "Seq")
			}
		case "c":
			var n uint32
			n, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				return bts, msgp.WrapError(err, "Columns")
			}
			z.Columns = make([]string, n)
			for i := range z.Columns {
				z.Columns[i], bts, err = msgp.ReadStringBytes(bts)
				if err != nil {
					return bts, msgp.WrapError(err, "Columns", i)
				}
			}
		default:
			bts, err = msgp.Skip(bts)
			if err != nil {
				return bts, msgp.WrapError(err)
			}
		}
	}
	return bts, nil
}

// encodeRow writes a row as a msgpack map in column order.
func encodeRow(row adapter.Fields) ([]byte, error) {
	b := msgp.AppendMapHeader(nil, uint32(len(row)))
	var err error
	for _, name := range adapter.SortedKeys(row) {
		b = msgp.AppendString(b, name)
		b, err = msgp.AppendIntf(b, row[name])
		if err != nil {
			return nil, msgp.WrapError(err, name)
		}
	}
	return b, nil
}

// decodeRow copies everything out of bts, so bts may be reused.
func decodeRow(bts []byte) (adapter.Fields, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return nil, msgp.WrapError(err)
	}
	row := make(adapter.Fields, sz)
	for ; sz > 0; sz-- {
		var name string
		name, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return nil, msgp.WrapError(err)
		}
		var v any
		v, bts, err = msgp.ReadIntfBytes(bts)
		if err != nil {
			return nil, msgp.WrapError(err, name)
		}
		if u, ok := v.(uint64); ok {
			v = int64(u)
		}
		row[name] = v
	}
	return row, nil
}
