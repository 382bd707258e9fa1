package mapper

import (
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"
)

// TypeOf returns the descriptor Write would use for v, or nil for a nil value.
func (m *Mapper) TypeOf(v any) *Type {
	_, t := m.describe(v)
	return t
}

// describe normalizes v (dereferencing pointers) and derives its descriptor.
func (m *Mapper) describe(v any) (any, *Type) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case Described:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, nil
		}
		return v, x.WireType()
	case Maybe:
		inner := Any
		if x.Present {
			if _, t := m.describe(x.Value); t != nil {
				inner = t
			}
		}
		return v, Optional.Of(inner)
	case *xsync.Map[any, any]:
		if x == nil {
			return nil, nil
		}
		return v, ConcurrentMap.Of(Any, Any)
	}

	rv := reflect.ValueOf(v)
	if et, ok := setElem(rv.Type()); ok {
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, nil
		}
		return v, Set.Of(m.TypeOfGo(et))
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	// nil slices and maps are absent, so they decode back to nil
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map) && rv.IsNil() {
		return nil, nil
	}
	return rv.Interface(), m.TypeOfGo(rv.Type())
}

// TypeOfGo maps a Go type onto a descriptor. Types bound by a registration
// win, even when registered after the type was first seen; everything else
// is derived from its kind and cached until the next such registration.
func (m *Mapper) TypeOfGo(rt reflect.Type) *Type {
	if rt == nil {
		return Any
	}
	if t, ok := m.goTypes.Load(rt); ok {
		return t
	}
	if t, ok := m.derived.Load(rt); ok {
		return t
	}
	t := m.deriveGo(rt)
	actual, _ := m.derived.LoadOrStore(rt, t)
	return actual
}

func (m *Mapper) deriveGo(rt reflect.Type) *Type {
	if et, ok := setElem(rt); ok {
		return Set.Of(m.TypeOfGo(et))
	}
	switch rt.Kind() {
	case reflect.Pointer:
		return m.TypeOfGo(rt.Elem())
	case reflect.Interface:
		return Any
	case reflect.Bool:
		return Bool
	case reflect.Int8:
		return Int8
	case reflect.Int16:
		return Int16
	case reflect.Int32:
		return Int32
	case reflect.Int64:
		return Int64
	case reflect.Int:
		return Int
	case reflect.Uint8:
		return Uint8
	case reflect.Uint16:
		return Uint16
	case reflect.Uint32:
		return Uint32
	case reflect.Uint64:
		return Uint64
	case reflect.Uint:
		return Uint
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	case reflect.String:
		return String
	case reflect.Slice, reflect.Array:
		if rt.Elem().Kind() == reflect.Uint8 {
			return Bytes
		}
		return List.Of(m.TypeOfGo(rt.Elem()))
	case reflect.Map:
		return Map.Of(m.TypeOfGo(rt.Key()), m.TypeOfGo(rt.Elem()))
	case reflect.Struct:
		return Record(rt)
	}
	return Named(rt.String()).Bind(rt)
}

// setElem reports whether rt is a golang-set set and returns its element type.
func setElem(rt reflect.Type) (reflect.Type, bool) {
	toSlice, ok := rt.MethodByName("ToSlice")
	if !ok {
		return nil, false
	}
	if _, ok := rt.MethodByName("Cardinality"); !ok {
		return nil, false
	}
	if _, ok := rt.MethodByName("Contains"); !ok {
		return nil, false
	}
	ft := toSlice.Type
	if ft.NumOut() != 1 || ft.Out(0).Kind() != reflect.Slice {
		return nil, false
	}
	return ft.Out(0).Elem(), true
}

// convertValue adapts a decoded value to the Go type it is stored into.
// Only conversions within one kind are made, so a named type round trips
// through its underlying descriptor without int to string surprises.
func convertValue(v any, to reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(to), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(to) {
		return rv, nil
	}
	if to.Kind() == reflect.Pointer {
		inner, err := convertValue(v, to.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(to.Elem())
		p.Elem().Set(inner)
		return p, nil
	}
	if rv.Kind() == to.Kind() && rv.Type().ConvertibleTo(to) {
		return rv.Convert(to), nil
	}
	if rv.Kind() == reflect.Slice && to.Kind() == reflect.Slice {
		out := reflect.MakeSlice(to, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := convertValue(rv.Index(i).Interface(), to.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	}
	if rv.Kind() == reflect.Slice && to.Kind() == reflect.Array && rv.Len() == to.Len() {
		out := reflect.New(to).Elem()
		for i := 0; i < rv.Len(); i++ {
			ev, err := convertValue(rv.Index(i).Interface(), to.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %s into %s", ErrTypeMismatch, rv.Type(), to)
}
