package mapper

import (
	"reflect"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

// Any is the root of every closure. The record serializer is bound to it.
var Any = &Type{name: "any", key: "any"}

func init() {
	Any.raw = Any
	Any.goType = reflect.TypeFor[any]()
}

// Scalar descriptors.
var (
	Bool    = Named("bool").Bind(reflect.TypeFor[bool]())
	Int8    = Named("int8").Bind(reflect.TypeFor[int8]())
	Int16   = Named("int16").Bind(reflect.TypeFor[int16]())
	Int32   = Named("int32").Bind(reflect.TypeFor[int32]())
	Int64   = Named("int64").Bind(reflect.TypeFor[int64]())
	Int     = Named("int").Bind(reflect.TypeFor[int]())
	Uint8   = Named("uint8").Bind(reflect.TypeFor[uint8]())
	Uint16  = Named("uint16").Bind(reflect.TypeFor[uint16]())
	Uint32  = Named("uint32").Bind(reflect.TypeFor[uint32]())
	Uint64  = Named("uint64").Bind(reflect.TypeFor[uint64]())
	Uint    = Named("uint").Bind(reflect.TypeFor[uint]())
	Float32 = Named("float32").Bind(reflect.TypeFor[float32]())
	Float64 = Named("float64").Bind(reflect.TypeFor[float64]())
	// Char is a single code point. In Go it shares int32 with Int32, so values
	// only resolve to it when a caller asks for it explicitly.
	Char     = Named("char").Bind(reflect.TypeFor[rune]())
	String   = Named("string").Bind(reflect.TypeFor[string]())
	Bytes    = Named("bytes").Bind(reflect.TypeFor[[]byte]())
	UUID     = Named("uuid").Bind(reflect.TypeFor[uuid.UUID]())
	Duration = Named("duration").Bind(reflect.TypeFor[time.Duration]())
	Time     = Named("time").Bind(reflect.TypeFor[time.Time]())
	Document = Named("document").Bind(reflect.TypeFor[Doc]())
)

// Generic descriptors.
var (
	Optional      = Generic("optional", 1)
	Collection    = Generic("collection", 1)
	List          = Generic("list", 1, Collection)
	Set           = Generic("set", 1, Collection)
	ConcurrentSet = Generic("concurrent_set", 1, Set)
	Map           = Generic("map", 2)
	ConcurrentMap = Generic("concurrent_map", 2, Map)
)

// Record describes a Go struct encoded field by field.
func Record(rt reflect.Type) *Type {
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	name := rt.String()
	if rt.PkgPath() != "" {
		name = rt.PkgPath() + "." + rt.Name()
	}
	return Named(name).Bind(rt)
}

var (
	anyType           = reflect.TypeFor[any]()
	setType           = reflect.TypeFor[mapset.Set[any]]()
	concurrentMapType = reflect.TypeFor[*xsync.Map[any, any]]()
	maybeType         = reflect.TypeFor[Maybe]()
)

// goTypeOf returns the Go type values of t decode into, or nil when only
// []any / map[any]any style containers can hold them.
func goTypeOf(t *Type) reflect.Type {
	if t == nil {
		return nil
	}
	if t.goType != nil {
		return t.goType
	}
	switch t.raw.key {
	case Optional.key:
		return maybeType
	case Set.key, ConcurrentSet.key:
		return setType
	case ConcurrentMap.key:
		return concurrentMapType
	case List.key, Collection.key:
		if et := goTypeOf(t.Arg(0)); et != nil {
			return reflect.SliceOf(et)
		}
	case Map.key:
		kt, vt := goTypeOf(t.Arg(0)), goTypeOf(t.Arg(1))
		if kt != nil && vt != nil && kt.Comparable() {
			return reflect.MapOf(kt, vt)
		}
	}
	return nil
}
