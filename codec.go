package skua

import (
	"fmt"
	"reflect"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tinylib/msgp/msgp"
)

// Codec turns items into the bytes stored in a row and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// MsgpCodec encodes with MessagePack. Types generated by msgp are encoded
// through their own methods. Anything else must be built from scalars,
// strings, byte slices, time.Time, pointers, slices, arrays and maps with
// string keys; other structs are rejected by Marshal.
type MsgpCodec struct{}

var timeType = reflect.TypeOf(time.Time{})

func (MsgpCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(msgp.Marshaler); ok {
		return m.MarshalMsg(nil)
	}
	x, err := dynamic(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return msgp.AppendIntf(nil, x)
}

func (MsgpCodec) Unmarshal(data []byte, v any) error {
	if u, ok := v.(msgp.Unmarshaler); ok {
		_, err := u.UnmarshalMsg(data)
		return err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("msgp: unmarshal into non-pointer %T", v)
	}
	x, _, err := msgp.ReadIntfBytes(data)
	if err != nil {
		return err
	}
	return assign(rv.Elem(), x)
}

// dynamic rewrites v into the builtin shapes msgp.AppendIntf encodes.
func dynamic(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return dynamic(v.Elem())
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), nil
	case reflect.Float32:
		return float32(v.Float()), nil
	case reflect.Float64:
		return v.Float(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Bytes(), nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			x, err := dynamic(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("msgp: map key %s is not a string", v.Type().Key())
		}
		if v.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, v.Len())
		it := v.MapRange()
		for it.Next() {
			x, err := dynamic(it.Value())
			if err != nil {
				return nil, err
			}
			out[it.Key().String()] = x
		}
		return out, nil
	case reflect.Struct:
		if v.Type() == timeType {
			return v.Interface(), nil
		}
	}
	return nil, fmt.Errorf("msgp: %s does not implement msgp.Marshaler", v.Type())
}

// assign stores a value decoded by msgp.ReadIntfBytes into dst, converting
// numbers, named types and containers element by element.
func assign(dst reflect.Value, x any) error {
	if x == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	src := reflect.ValueOf(x)
	dt := dst.Type()
	switch {
	case src.Type().AssignableTo(dt):
		dst.Set(src)
	case numeric(src.Kind()) && numeric(dst.Kind()):
		dst.Set(src.Convert(dt))
	case dst.Kind() == reflect.Pointer:
		p := reflect.New(dt.Elem())
		if err := assign(p.Elem(), x); err != nil {
			return err
		}
		dst.Set(p)
	case src.Kind() == reflect.Slice && dst.Kind() == reflect.Slice && src.Type().Elem().Kind() == reflect.Interface:
		out := reflect.MakeSlice(dt, src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			if err := assign(out.Index(i), src.Index(i).Interface()); err != nil {
				return err
			}
		}
		dst.Set(out)
	case src.Kind() == reflect.Slice && dst.Kind() == reflect.Array && src.Type().Elem().Kind() == reflect.Interface:
		if src.Len() != dst.Len() {
			return fmt.Errorf("msgp: cannot decode %d elements into %s", src.Len(), dt)
		}
		for i := 0; i < src.Len(); i++ {
			if err := assign(dst.Index(i), src.Index(i).Interface()); err != nil {
				return err
			}
		}
	case src.Kind() == reflect.Map && dst.Kind() == reflect.Map && dt.Key().Kind() == reflect.String:
		out := reflect.MakeMapWithSize(dt, src.Len())
		it := src.MapRange()
		for it.Next() {
			elem := reflect.New(dt.Elem()).Elem()
			if err := assign(elem, it.Value().Interface()); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(it.Key().String()).Convert(dt.Key()), elem)
		}
		dst.Set(out)
	case src.Kind() == dst.Kind() && src.Type().ConvertibleTo(dt):
		dst.Set(src.Convert(dt))
	default:
		return fmt.Errorf("msgp: cannot decode %T into %s", x, dt)
	}
	return nil
}

func numeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
