package mapper

import (
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/oy3o/wire"
)

// MapCollector accumulates decoded entries into a concrete map.
type MapCollector interface {
	Put(k, v any) error
	Result() any
}

// MapFactory builds an empty map for n entries of key and value types.
type MapFactory func(key, value *Type, n int) MapCollector

type mapSerializer struct {
	factory MapFactory
}

// MapSerializer writes an entry count followed by key then value for every
// entry, both through the mapper.
func MapSerializer(factory MapFactory) Serializer {
	return mapSerializer{factory: factory}
}

func (s mapSerializer) Write(buf *wire.Buffer, v any, t *Type, m *Mapper) error {
	keys, values, err := entriesOf(v)
	if err != nil {
		return err
	}
	buf.WriteUvarint(uint64(len(keys)))
	for i := range keys {
		if err := m.Write(buf, keys[i]); err != nil {
			return err
		}
		if err := m.Write(buf, values[i]); err != nil {
			return err
		}
	}
	return buf.Err()
}

func (s mapSerializer) Read(buf *wire.Buffer, t *Type, m *Mapper) (any, error) {
	if len(t.Args()) != 2 {
		return nil, malformed(t, 2)
	}
	kt, vt := t.Arg(0), t.Arg(1)
	n := buf.ReadLength(2)
	if err := buf.Err(); err != nil {
		return nil, err
	}
	c := s.factory(kt, vt, n)
	for i := 0; i < n; i++ {
		k, err := m.Read(buf, kt)
		if err != nil {
			return nil, err
		}
		v, err := m.Read(buf, vt)
		if err != nil {
			return nil, err
		}
		if err := c.Put(k, v); err != nil {
			return nil, err
		}
	}
	return c.Result(), nil
}

func entriesOf(v any) ([]any, []any, error) {
	if cm, ok := v.(*xsync.Map[any, any]); ok {
		keys := make([]any, 0, cm.Size())
		values := make([]any, 0, cm.Size())
		cm.Range(func(k, v any) bool {
			keys = append(keys, k)
			values = append(values, v)
			return true
		})
		return keys, values, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, nil, fmt.Errorf("%w: %T is not a map", ErrTypeMismatch, v)
	}
	keys := make([]any, 0, rv.Len())
	values := make([]any, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		keys = append(keys, iter.Key().Interface())
		values = append(values, iter.Value().Interface())
	}
	return keys, values, nil
}

type typedMapCollector struct {
	m reflect.Value
}

type anyMapCollector struct {
	m map[any]any
}

// NewMap decodes into a typed Go map when both key and value have Go types,
// into map[any]any otherwise.
func NewMap(key, value *Type, n int) MapCollector {
	kt, vt := goTypeOf(key), goTypeOf(value)
	if kt != nil && vt != nil && kt.Comparable() && (kt != anyType || vt != anyType) {
		return &typedMapCollector{m: reflect.MakeMapWithSize(reflect.MapOf(kt, vt), n)}
	}
	return &anyMapCollector{m: make(map[any]any, n)}
}

func (c *typedMapCollector) Put(k, v any) error {
	kv, err := convertValue(k, c.m.Type().Key())
	if err != nil {
		return err
	}
	if err := hashable(kv.Interface()); err != nil {
		return err
	}
	vv, err := convertValue(v, c.m.Type().Elem())
	if err != nil {
		return err
	}
	c.m.SetMapIndex(kv, vv)
	return nil
}

func (c *typedMapCollector) Result() any { return c.m.Interface() }

func (c *anyMapCollector) Put(k, v any) error {
	if err := hashable(k); err != nil {
		return err
	}
	c.m[k] = v
	return nil
}

func (c *anyMapCollector) Result() any { return c.m }

type concurrentMapCollector struct {
	m *xsync.Map[any, any]
}

// NewConcurrentMap decodes into an xsync map.
func NewConcurrentMap(_, _ *Type, _ int) MapCollector {
	return &concurrentMapCollector{m: xsync.NewMap[any, any]()}
}

func (c *concurrentMapCollector) Put(k, v any) error {
	if err := hashable(k); err != nil {
		return err
	}
	c.m.Store(k, v)
	return nil
}

func (c *concurrentMapCollector) Result() any { return c.m }
