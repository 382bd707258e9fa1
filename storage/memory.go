package storage

import (
	"context"
	"slices"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/atomic"
)

// Memory is an in-process Store.
type Memory[T any] struct {
	items  *xsync.Map[string, T]
	closed *atomic.Bool
}

var _ Store[struct{}] = (*Memory[struct{}])(nil)

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{items: xsync.NewMap[string, T](), closed: atomic.NewBool(false)}
}

func (m *Memory[T]) ensureOpen(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return contextErr(ctx)
}

func (m *Memory[T]) Put(ctx context.Context, key string, value T) error {
	if err := m.ensureOpen(ctx); err != nil {
		return err
	}
	m.items.Store(key, value)
	return nil
}

func (m *Memory[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := m.ensureOpen(ctx); err != nil {
		return zero, false, err
	}
	v, ok := m.items.Load(key)
	return v, ok, nil
}

func (m *Memory[T]) Delete(ctx context.Context, key string) error {
	if err := m.ensureOpen(ctx); err != nil {
		return err
	}
	m.items.Delete(key)
	return nil
}

func (m *Memory[T]) Values(ctx context.Context) ([]T, error) {
	if err := m.ensureOpen(ctx); err != nil {
		return nil, err
	}
	keys := make([]string, 0, m.items.Size())
	m.items.Range(func(key string, _ T) bool {
		keys = append(keys, key)
		return true
	})
	slices.Sort(keys)
	out := make([]T, 0, len(keys))
	for _, key := range keys {
		if v, ok := m.items.Load(key); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Memory[T]) Close() error {
	m.closed.Store(true)
	return nil
}
