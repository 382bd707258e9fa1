package datasync

import (
	"context"
	"fmt"
	"reflect"

	"github.com/oy3o/wire"
	"github.com/oy3o/wire/storage"
)

// Handler synchronizes one kind of cluster object under a stable key.
// Handlers are built with NewHandler or StoreHandler.
type Handler interface {
	Key() string
	// Owner names the module that registered the handler, if any.
	Owner() string
	AlwaysForce() bool
	// Name describes obj in logs and conflict prompts.
	Name(obj any) string

	encode(buf *wire.Buffer, obj any) error
	decode(buf *wire.Buffer) (any, error)
	current(ctx context.Context, obj any) (any, bool, error)
	write(ctx context.Context, obj any) error
	collect(ctx context.Context) ([]any, error)
	equal(a, b any) bool
}

// Writer applies an incoming object to local state.
type Writer[T any] func(ctx context.Context, v T) error

// Current returns the local counterpart of an incoming object.
type Current[T any] func(ctx context.Context, incoming T) (T, bool, error)

// Collector returns every locally authoritative object.
type Collector[T any] func(ctx context.Context) ([]T, error)

type handlerConfig struct {
	alwaysForce bool
	owner       string
	equal       any
	name        any
}

// HandlerOption customizes a handler built by NewHandler.
type HandlerOption func(*handlerConfig)

// WithAlwaysForce makes the handler overwrite local state on every sync.
func WithAlwaysForce() HandlerOption {
	return func(c *handlerConfig) { c.alwaysForce = true }
}

// WithOwner tags the handler so UnregisterOwner can remove it.
func WithOwner(owner string) HandlerOption {
	return func(c *handlerConfig) { c.owner = owner }
}

// WithEqual replaces reflect.DeepEqual when comparing the local and incoming
// versions. fn must match the handler's object type.
func WithEqual[T any](fn func(a, b T) bool) HandlerOption {
	return func(c *handlerConfig) { c.equal = fn }
}

// WithName sets how objects are named in logs. fn must match the handler's
// object type.
func WithName[T any](fn func(T) string) HandlerOption {
	return func(c *handlerConfig) { c.name = fn }
}

type handler[T any] struct {
	key         string
	owner       string
	alwaysForce bool
	converter   Converter[T]
	writer      Writer[T]
	currentFn   Current[T]
	collector   Collector[T]
	equalFn     func(a, b T) bool
	nameFn      func(T) string
}

// NewHandler builds a handler from all of its parts. Every part is mandatory;
// a handler is either complete or not returned at all.
func NewHandler[T any](key string, converter Converter[T], writer Writer[T], current Current[T], collect Collector[T], opts ...HandlerOption) (Handler, error) {
	switch {
	case key == "":
		return nil, fmt.Errorf("%w: empty key", ErrInvalidHandler)
	case converter == nil:
		return nil, fmt.Errorf("%w: %q has no converter", ErrInvalidHandler, key)
	case writer == nil:
		return nil, fmt.Errorf("%w: %q has no writer", ErrInvalidHandler, key)
	case current == nil:
		return nil, fmt.Errorf("%w: %q has no current getter", ErrInvalidHandler, key)
	case collect == nil:
		return nil, fmt.Errorf("%w: %q has no data collector", ErrInvalidHandler, key)
	}

	var cfg handlerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &handler[T]{
		key:         key,
		owner:       cfg.owner,
		alwaysForce: cfg.alwaysForce,
		converter:   converter,
		writer:      writer,
		currentFn:   current,
		collector:   collect,
		equalFn:     func(a, b T) bool { return reflect.DeepEqual(a, b) },
		nameFn:      func(v T) string { return fmt.Sprintf("%v", v) },
	}
	if cfg.equal != nil {
		fn, ok := cfg.equal.(func(a, b T) bool)
		if !ok {
			return nil, fmt.Errorf("%w: %q equality is %T", ErrInvalidHandler, key, cfg.equal)
		}
		h.equalFn = fn
	}
	if cfg.name != nil {
		fn, ok := cfg.name.(func(T) string)
		if !ok {
			return nil, fmt.Errorf("%w: %q naming is %T", ErrInvalidHandler, key, cfg.name)
		}
		h.nameFn = fn
	}
	return h, nil
}

// StoreHandler synchronizes the objects held in store, keyed by keyOf.
func StoreHandler[T any](key string, store storage.Store[T], keyOf func(T) string, converter Converter[T], opts ...HandlerOption) (Handler, error) {
	if store == nil || keyOf == nil {
		return nil, fmt.Errorf("%w: %q needs a store and a key function", ErrInvalidHandler, key)
	}
	return NewHandler(key, converter,
		func(ctx context.Context, v T) error { return store.Put(ctx, keyOf(v), v) },
		func(ctx context.Context, v T) (T, bool, error) { return store.Get(ctx, keyOf(v)) },
		store.Values,
		opts...,
	)
}

func (h *handler[T]) Key() string       { return h.key }
func (h *handler[T]) Owner() string     { return h.owner }
func (h *handler[T]) AlwaysForce() bool { return h.alwaysForce }

func (h *handler[T]) Name(obj any) string {
	if v, ok := obj.(T); ok {
		return h.nameFn(v)
	}
	return fmt.Sprintf("%v", obj)
}

func (h *handler[T]) encode(buf *wire.Buffer, obj any) error {
	v, ok := obj.(T)
	if !ok {
		return fmt.Errorf("datasync: %q cannot encode %T", h.key, obj)
	}
	return h.converter.Encode(buf, v)
}

func (h *handler[T]) decode(buf *wire.Buffer) (any, error) {
	v, err := h.converter.Decode(buf)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (h *handler[T]) current(ctx context.Context, obj any) (any, bool, error) {
	v, ok, err := h.currentFn(ctx, obj.(T))
	if err != nil || !ok {
		return nil, false, err
	}
	return v, true, nil
}

func (h *handler[T]) write(ctx context.Context, obj any) error {
	return h.writer(ctx, obj.(T))
}

func (h *handler[T]) collect(ctx context.Context) ([]any, error) {
	items, err := h.collector(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = v
	}
	return out, nil
}

func (h *handler[T]) equal(a, b any) bool {
	x, ok1 := a.(T)
	y, ok2 := b.(T)
	return ok1 && ok2 && h.equalFn(x, y)
}
