package mapper

import (
	"reflect"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/atomic"

	"github.com/oy3o/wire"
	"github.com/oy3o/wire/log"
)

// Serializer encodes and decodes one family of types. The mapper is passed in
// so containers can recurse into their elements.
type Serializer interface {
	Write(buf *wire.Buffer, v any, t *Type, m *Mapper) error
	Read(buf *wire.Buffer, t *Type, m *Mapper) (any, error)
}

// Acceptor lets a serializer bound to a broad type decline a specific value
// or descriptor, so resolution continues with the next supertype.
type Acceptor interface {
	AcceptsWrite(v any, t *Type) bool
	AcceptsRead(t *Type) bool
}

type binding struct {
	serializer Serializer
	owner      string
	id         uint64
}

// Mapper is the serializer registry. It is safe for concurrent use: lookups
// are lock-free, registration of supertype bindings holds a short mutex so a
// bulk unregister never observes half a registration.
type Mapper struct {
	bindings *xsync.Map[string, binding]
	closures *xsync.Map[string, []*Type]
	goTypes  *xsync.Map[reflect.Type, *Type] // bound by registration
	derived  *xsync.Map[reflect.Type, *Type] // derived from the Go kind
	mu       sync.Mutex
	seq      atomic.Uint64
	logger   log.Logger
}

// Option configures a Mapper.
type Option func(*options)

type options struct {
	defaults bool
	logger   log.Logger
}

// WithoutDefaults builds an empty mapper.
func WithoutDefaults() Option { return func(o *options) { o.defaults = false } }

// WithLogger sets the logger used to report registration changes.
func WithLogger(l log.Logger) Option { return func(o *options) { o.logger = l } }

// New builds a mapper holding the built-in serializers.
func New(opts ...Option) *Mapper {
	o := options{defaults: true, logger: log.DiscardLogger}
	for _, opt := range opts {
		opt(&o)
	}
	m := &Mapper{
		bindings: xsync.NewMap[string, binding](),
		closures: xsync.NewMap[string, []*Type](),
		goTypes:  xsync.NewMap[reflect.Type, *Type](),
		derived:  xsync.NewMap[reflect.Type, *Type](),
		logger:   o.logger,
	}
	if o.defaults {
		registerDefaults(m)
	}
	return m
}

// BindingOption configures a single RegisterBinding call.
type BindingOption func(*bindingOptions)

type bindingOptions struct {
	owner   string
	replace bool
}

// WithOwner records the module a binding belongs to, for UnregisterOwner.
func WithOwner(owner string) BindingOption { return func(o *bindingOptions) { o.owner = owner } }

// WithReplace overwrites an existing binding for the exact type.
func WithReplace() BindingOption { return func(o *bindingOptions) { o.replace = true } }

// RegisterBinding binds s to t and reports whether the exact key was taken.
// With includeSupertypes, s also becomes the fallback of every supertype in
// t's closure that has no binding yet. Any is never claimed that way.
func (m *Mapper) RegisterBinding(t *Type, s Serializer, includeSupertypes bool, opts ...BindingOption) bool {
	var o bindingOptions
	for _, opt := range opts {
		opt(&o)
	}
	entry := binding{serializer: s, owner: o.owner, id: m.seq.Inc()}

	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := true
	if o.replace {
		m.bindings.Store(t.Key(), entry)
	} else {
		_, loaded := m.bindings.LoadOrStore(t.Key(), entry)
		inserted = !loaded
	}
	if rt := t.GoType(); rt != nil {
		m.bindGoType(rt, t, o.replace)
	}
	if includeSupertypes {
		for _, st := range m.closure(t)[1:] {
			if st.Key() == Any.Key() {
				continue
			}
			m.bindings.LoadOrStore(st.Key(), entry)
		}
	}
	if inserted {
		m.logger.Debugf("mapper: bound %s", t.Key())
	}
	return inserted
}

// bindGoType makes t the descriptor of rt. Descriptors derived before may
// embed the one rt had, so the derived cache starts over.
func (m *Mapper) bindGoType(rt reflect.Type, t *Type, replace bool) {
	if replace {
		m.goTypes.Store(rt, t)
	} else if _, loaded := m.goTypes.LoadOrStore(rt, t); loaded {
		return
	}
	if old, ok := m.derived.LoadAndDelete(rt); ok {
		m.closures.Delete(old.Key())
	}
	m.derived.Clear()
}

// UnregisterBinding removes the binding of t. With includeSupertypes it also
// removes the supertype fallbacks that registration created.
func (m *Mapper) UnregisterBinding(t *Type, includeSupertypes bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.bindings.LoadAndDelete(t.Key())
	if !ok {
		return false
	}
	if includeSupertypes {
		for _, st := range m.closure(t)[1:] {
			m.bindings.Compute(st.Key(), func(old binding, loaded bool) (binding, xsync.ComputeOp) {
				if loaded && old.id == entry.id {
					return old, xsync.DeleteOp
				}
				return old, xsync.CancelOp
			})
		}
	}
	return true
}

// UnregisterOwner drops every binding registered with WithOwner(owner) and
// returns how many were removed.
func (m *Mapper) UnregisterOwner(owner string) int {
	if owner == "" {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	m.bindings.Range(func(key string, b binding) bool {
		if b.owner == owner {
			keys = append(keys, key)
		}
		return true
	})
	for _, key := range keys {
		m.bindings.Delete(key)
	}
	if len(keys) > 0 {
		m.logger.Infof("mapper: released %d bindings owned by %s", len(keys), owner)
	}
	return len(keys)
}

// Lookup resolves the serializer that would decode t.
func (m *Mapper) Lookup(t *Type) (Serializer, bool) {
	s, err := m.resolve(t, nil, true)
	return s, err == nil
}

func (m *Mapper) closure(t *Type) []*Type {
	if c, ok := m.closures.Load(t.Key()); ok {
		return c
	}
	c, _ := m.closures.LoadOrStore(t.Key(), t.Closure())
	return c
}

// resolve walks the closure of t, trying the generic aware key and then the
// erased key at every step. The first binding that accepts wins.
func (m *Mapper) resolve(t *Type, v any, reading bool) (Serializer, error) {
	for _, c := range m.closure(t) {
		keys := [2]string{c.Key(), c.Raw().Key()}
		for i, key := range keys {
			if i == 1 && key == keys[0] {
				break
			}
			b, ok := m.bindings.Load(key)
			if !ok {
				continue
			}
			if acc, ok := b.serializer.(Acceptor); ok {
				if reading && !acc.AcceptsRead(t) || !reading && !acc.AcceptsWrite(v, t) {
					continue
				}
			}
			return b.serializer, nil
		}
	}
	return nil, &MissingSerializerError{Type: t}
}

// Write encodes v preceded by its presence flag. A nil value, including a
// nil pointer, writes the absent flag only.
func (m *Mapper) Write(buf *wire.Buffer, v any) error {
	v, t := m.describe(v)
	if t == nil {
		buf.WriteBool(false)
		return buf.Err()
	}
	return m.WriteAs(buf, v, t)
}

// WriteAs encodes a present v using the serializer resolved for t.
func (m *Mapper) WriteAs(buf *wire.Buffer, v any, t *Type) error {
	if v == nil {
		buf.WriteBool(false)
		return buf.Err()
	}
	s, err := m.resolve(t, v, false)
	if err != nil {
		return err
	}
	buf.WriteBool(true)
	if err := s.Write(buf, v, t, m); err != nil {
		return err
	}
	return buf.Err()
}

// Read decodes a value written by Write. An absent value returns (nil, nil)
// without reading anything past the flag.
func (m *Mapper) Read(buf *wire.Buffer, t *Type) (any, error) {
	present := buf.ReadBool()
	if err := buf.Err(); err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	s, err := m.resolve(t, nil, true)
	if err != nil {
		return nil, err
	}
	v, err := s.Read(buf, t, m)
	if err != nil {
		return nil, err
	}
	return v, buf.Err()
}

// Encode writes v into a fresh buffer and returns its bytes.
func (m *Mapper) Encode(v any) ([]byte, error) {
	buf := wire.NewBuffer()
	if err := m.Write(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads one value of type t from data.
func (m *Mapper) Decode(data []byte, t *Type) (any, error) {
	return m.Read(wire.BufferFrom(data), t)
}

// ReadAs decodes a value of type t and converts it to T. The boolean is false
// when the value was absent.
func ReadAs[T any](m *Mapper, buf *wire.Buffer, t *Type) (T, bool, error) {
	var zero T
	v, err := m.Read(buf, t)
	if err != nil || v == nil {
		return zero, false, err
	}
	if x, ok := v.(T); ok {
		return x, true, nil
	}
	rv, err := convertValue(v, reflect.TypeFor[T]())
	if err != nil {
		return zero, false, err
	}
	return rv.Interface().(T), true, nil
}
