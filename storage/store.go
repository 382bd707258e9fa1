// Package storage holds the keyed object stores that back data sync handlers.
package storage

import (
	"context"
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("storage: store is closed")

// Store keeps objects of one kind by key.
type Store[T any] interface {
	Put(ctx context.Context, key string, value T) error
	Get(ctx context.Context, key string) (T, bool, error)
	Delete(ctx context.Context, key string) error
	// Values returns every object ordered by key.
	Values(ctx context.Context) ([]T, error)
	Close() error
}

// Codec turns stored objects into bytes and back.
type Codec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

type cborCodec[T any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a Codec using canonical CBOR.
func CBOR[T any]() Codec[T] {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return &cborCodec[T]{enc: enc, dec: dec}
}

func (c *cborCodec[T]) Marshal(v T) ([]byte, error) { return c.enc.Marshal(v) }

func (c *cborCodec[T]) Unmarshal(data []byte) (T, error) {
	var v T
	err := c.dec.Unmarshal(data, &v)
	return v, err
}

func contextErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
