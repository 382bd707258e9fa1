package mapper

import (
	"fmt"
	"reflect"
	"strings"
)

// Type describes what is being encoded or decoded. It is an explicit value
// carrying its own supertype chain, so resolving a serializer never has to
// inspect a Go type hierarchy.
//
// A Type is either concrete (arity 0), a generic definition (arity > 0, no
// arguments) or an instantiation of a definition created with Of. Types are
// immutable once built and are identified by Key.
type Type struct {
	name   string
	arity  int
	args   []*Type
	raw    *Type
	supers []*Type
	goType reflect.Type
	key    string
}

// Named declares a concrete type with its direct supertypes, most specific first.
func Named(name string, supers ...*Type) *Type {
	t := &Type{name: name, supers: supers, key: name}
	t.raw = t
	return t
}

// Generic declares a generic definition taking arity type arguments.
// Supertypes with the same arity are instantiated with the same arguments
// when the definition is.
func Generic(name string, arity int, supers ...*Type) *Type {
	t := Named(name, supers...)
	t.arity = arity
	return t
}

// Of instantiates a generic definition. It panics when the number of
// arguments does not match the arity, like regexp.MustCompile does on a bad
// pattern: descriptors are declared by code, not parsed from input.
func (t *Type) Of(args ...*Type) *Type {
	raw := t.raw
	if len(args) != raw.arity {
		panic(fmt.Sprintf("mapper: %s takes %d type arguments, got %d", raw.name, raw.arity, len(args)))
	}
	keys := make([]string, len(args))
	for i, a := range args {
		if a == nil {
			panic(fmt.Sprintf("mapper: nil type argument %d for %s", i, raw.name))
		}
		keys[i] = a.key
	}

	inst := &Type{
		name:  raw.name,
		arity: raw.arity,
		args:  append([]*Type(nil), args...),
		raw:   raw,
		key:   raw.name + "[" + strings.Join(keys, ",") + "]",
	}
	for _, s := range raw.supers {
		if s.arity == len(args) && len(s.args) == 0 {
			inst.supers = append(inst.supers, s.Of(args...))
			continue
		}
		inst.supers = append(inst.supers, s)
	}
	return inst
}

// Bind returns a copy of t that decodes into values of the Go type rt.
func (t *Type) Bind(rt reflect.Type) *Type {
	c := *t
	c.goType = rt
	if t.raw == t {
		c.raw = &c
	}
	return &c
}

func (t *Type) Name() string { return t.name }

// Key identifies the type, including its arguments: "list[string]".
func (t *Type) Key() string { return t.key }

// Raw returns the erased form: the generic definition for an instantiation,
// the type itself otherwise.
func (t *Type) Raw() *Type { return t.raw }

func (t *Type) Arity() int           { return t.arity }
func (t *Type) Args() []*Type        { return t.args }
func (t *Type) Supers() []*Type      { return t.supers }
func (t *Type) GoType() reflect.Type { return t.goType }
func (t *Type) String() string       { return t.key }

// Arg returns the i-th type argument or nil.
func (t *Type) Arg(i int) *Type {
	if i < 0 || i >= len(t.args) {
		return nil
	}
	return t.args[i]
}

// Closure returns t followed by every supertype, breadth first, most derived
// first and without duplicates. The universal root Any always comes last.
func (t *Type) Closure() []*Type {
	if t.key == Any.key {
		return []*Type{Any}
	}
	seen := map[string]struct{}{Any.key: {}}
	out := make([]*Type, 0, 4)
	queue := []*Type{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := seen[cur.key]; ok {
			continue
		}
		seen[cur.key] = struct{}{}
		out = append(out, cur)
		queue = append(queue, cur.supers...)
	}
	return append(out, Any)
}

// Described is implemented by values that know their own descriptor.
type Described interface {
	WireType() *Type
}
