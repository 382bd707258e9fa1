package mapper

import (
	"fmt"

	"github.com/oy3o/wire"
)

// Maybe is an optional value. The zero Maybe is absent.
type Maybe struct {
	Value   any
	Present bool
}

// Some wraps a present value.
func Some(v any) Maybe { return Maybe{Value: v, Present: true} }

// None is the absent value.
func None() Maybe { return Maybe{} }

// Get returns the value and whether it is present.
func (o Maybe) Get() (any, bool) { return o.Value, o.Present }

// optionalSerializer writes a presence flag and then the wrapped value
// through the mapper, so the value keeps its own dynamic type.
type optionalSerializer struct{}

func (optionalSerializer) Write(buf *wire.Buffer, v any, t *Type, m *Mapper) error {
	o, ok := v.(Maybe)
	if !ok {
		return fmt.Errorf("%w: %T is not an optional", ErrTypeMismatch, v)
	}
	buf.WriteBool(o.Present)
	if !o.Present {
		return buf.Err()
	}
	return m.Write(buf, o.Value)
}

func (optionalSerializer) Read(buf *wire.Buffer, t *Type, m *Mapper) (any, error) {
	if len(t.Args()) != 1 {
		return nil, malformed(t, 1)
	}
	if !buf.ReadBool() {
		return None(), buf.Err()
	}
	v, err := m.Read(buf, t.Arg(0))
	if err != nil {
		return nil, err
	}
	return Some(v), nil
}
