package mapper

import (
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/oy3o/wire"
)

// fieldCache holds the encoded field indices of every record type seen.
var fieldCache = xsync.NewMap[reflect.Type, []int]()

// recordFields returns the exported fields of rt in declaration order,
// skipping those tagged `wire:"-"`.
func recordFields(rt reflect.Type) []int {
	if fields, ok := fieldCache.Load(rt); ok {
		return fields
	}
	fields := make([]int, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() || f.Tag.Get("wire") == "-" {
			continue
		}
		fields = append(fields, i)
	}
	fieldCache.Store(rt, fields)
	return fields
}

// recordSerializer is the fallback bound to Any. It encodes a struct as its
// exported fields, each through the mapper, and declines anything else.
type recordSerializer struct{}

var _ Acceptor = recordSerializer{}

func (recordSerializer) AcceptsWrite(v any, _ *Type) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Struct
}

func (recordSerializer) AcceptsRead(t *Type) bool {
	rt := t.GoType()
	return rt != nil && rt.Kind() == reflect.Struct
}

func (recordSerializer) Write(buf *wire.Buffer, v any, t *Type, m *Mapper) error {
	rv := reflect.ValueOf(v)
	for _, i := range recordFields(rv.Type()) {
		if err := m.Write(buf, rv.Field(i).Interface()); err != nil {
			return fmt.Errorf("%s.%s: %w", t.Key(), rv.Type().Field(i).Name, err)
		}
	}
	return buf.Err()
}

func (recordSerializer) Read(buf *wire.Buffer, t *Type, m *Mapper) (any, error) {
	rt := t.GoType()
	out := reflect.New(rt).Elem()
	for _, i := range recordFields(rt) {
		f := rt.Field(i)
		v, err := m.Read(buf, m.TypeOfGo(f.Type))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Key(), f.Name, err)
		}
		fv, err := convertValue(v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Key(), f.Name, err)
		}
		out.Field(i).Set(fv)
	}
	return out.Interface(), nil
}
