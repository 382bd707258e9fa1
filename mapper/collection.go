package mapper

import (
	"fmt"
	"reflect"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/oy3o/wire"
)

// Collector accumulates decoded elements into a concrete container.
type Collector interface {
	Add(v any) error
	Result() any
}

// CollectionFactory builds an empty container for n elements of type elem.
type CollectionFactory func(elem *Type, n int) Collector

type collectionSerializer struct {
	factory CollectionFactory
}

// CollectionSerializer writes an element count followed by every element
// through the mapper, and reads them back into the container the factory
// builds.
func CollectionSerializer(factory CollectionFactory) Serializer {
	return collectionSerializer{factory: factory}
}

func (s collectionSerializer) Write(buf *wire.Buffer, v any, t *Type, m *Mapper) error {
	elems, err := elementsOf(v)
	if err != nil {
		return err
	}
	buf.WriteUvarint(uint64(len(elems)))
	for _, e := range elems {
		if err := m.Write(buf, e); err != nil {
			return err
		}
	}
	return buf.Err()
}

func (s collectionSerializer) Read(buf *wire.Buffer, t *Type, m *Mapper) (any, error) {
	if len(t.Args()) != 1 {
		return nil, malformed(t, 1)
	}
	elem := t.Arg(0)
	// every element carries at least its presence flag
	n := buf.ReadLength(1)
	if err := buf.Err(); err != nil {
		return nil, err
	}
	c := s.factory(elem, n)
	for i := 0; i < n; i++ {
		v, err := m.Read(buf, elem)
		if err != nil {
			return nil, err
		}
		if err := c.Add(v); err != nil {
			return nil, err
		}
	}
	return c.Result(), nil
}

func elementsOf(v any) ([]any, error) {
	if xs, ok := v.([]any); ok {
		return xs, nil
	}
	rv := reflect.ValueOf(v)
	if _, ok := setElem(rv.Type()); ok {
		rv = rv.MethodByName("ToSlice").Call(nil)[0]
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T is not a collection", ErrTypeMismatch, v)
}

type sliceCollector struct {
	slice reflect.Value
}

type anyCollector struct {
	items []any
}

// NewList decodes into a typed slice when the element type has a Go type,
// into []any otherwise.
func NewList(elem *Type, n int) Collector {
	if et := goTypeOf(elem); et != nil && et != anyType {
		return &sliceCollector{slice: reflect.MakeSlice(reflect.SliceOf(et), 0, n)}
	}
	return &anyCollector{items: make([]any, 0, n)}
}

func (c *sliceCollector) Add(v any) error {
	ev, err := convertValue(v, c.slice.Type().Elem())
	if err != nil {
		return err
	}
	c.slice = reflect.Append(c.slice, ev)
	return nil
}

func (c *sliceCollector) Result() any { return c.slice.Interface() }

func (c *anyCollector) Add(v any) error {
	c.items = append(c.items, v)
	return nil
}

func (c *anyCollector) Result() any { return c.items }

type setCollector struct {
	set mapset.Set[any]
}

// NewSet decodes into a thread-unsafe golang-set.
func NewSet(_ *Type, n int) Collector {
	return &setCollector{set: mapset.NewThreadUnsafeSetWithSize[any](n)}
}

// NewConcurrentSet decodes into a thread-safe golang-set.
func NewConcurrentSet(_ *Type, n int) Collector {
	return &setCollector{set: mapset.NewSetWithSize[any](n)}
}

func (c *setCollector) Add(v any) error {
	if err := hashable(v); err != nil {
		return err
	}
	c.set.Add(v)
	return nil
}

func (c *setCollector) Result() any { return c.set }

func hashable(v any) error {
	if v != nil && !reflect.TypeOf(v).Comparable() {
		return fmt.Errorf("%w: %T", ErrUnhashable, v)
	}
	return nil
}
