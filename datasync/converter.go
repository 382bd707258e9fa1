package datasync

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/oy3o/wire"
	"github.com/oy3o/wire/mapper"
)

// Converter moves one kind of object between its domain form and a buffer.
type Converter[T any] interface {
	Encode(buf *wire.Buffer, v T) error
	Decode(buf *wire.Buffer) (T, error)
}

type mapperConverter[T any] struct {
	m *mapper.Mapper
	t *mapper.Type
}

// MapperConverter encodes objects through m as type t.
func MapperConverter[T any](m *mapper.Mapper, t *mapper.Type) Converter[T] {
	return &mapperConverter[T]{m: m, t: t}
}

func (c *mapperConverter[T]) Encode(buf *wire.Buffer, v T) error {
	return c.m.WriteAs(buf, v, c.t)
}

func (c *mapperConverter[T]) Decode(buf *wire.Buffer) (T, error) {
	v, ok, err := mapper.ReadAs[T](c.m, buf, c.t)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("%w: %s", ErrAbsentObject, c.t)
	}
	return v, nil
}

type cborConverter[T any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBORConverter encodes objects as a canonical CBOR blob.
func CBORConverter[T any]() Converter[T] {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return &cborConverter[T]{enc: enc, dec: dec}
}

func (c *cborConverter[T]) Encode(buf *wire.Buffer, v T) error {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return err
	}
	buf.WriteBlob(data)
	return buf.Err()
}

func (c *cborConverter[T]) Decode(buf *wire.Buffer) (T, error) {
	var v T
	data := buf.ReadBlob()
	if err := buf.Err(); err != nil {
		return v, err
	}
	err := c.dec.Unmarshal(data, &v)
	return v, err
}
