package mapper

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/oy3o/wire"
)

// Doc is a schemaless document, the shape configuration blobs and node
// properties travel in. It is encoded as a CBOR blob.
type Doc map[string]any

type documentSerializer struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newDocumentSerializer() Serializer {
	enc, err := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeUnixDynamic,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{
		MaxNestedLevels: 64,
		IndefLength:     cbor.IndefLengthForbidden,
		DefaultMapType:  reflect.TypeFor[map[string]any](),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return documentSerializer{enc: enc, dec: dec}
}

func (s documentSerializer) Write(buf *wire.Buffer, v any, t *Type, _ *Mapper) error {
	doc, ok := v.(Doc)
	if !ok {
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %T is not a document", ErrTypeMismatch, v)
		}
		doc = m
	}
	data, err := s.enc.Marshal(doc)
	if err != nil {
		return fmt.Errorf("mapper: encode document: %w", err)
	}
	buf.WriteBlob(data)
	return buf.Err()
}

func (s documentSerializer) Read(buf *wire.Buffer, _ *Type, _ *Mapper) (any, error) {
	data := buf.ReadBlob()
	if err := buf.Err(); err != nil {
		return nil, err
	}
	doc := Doc{}
	if err := s.dec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("mapper: decode document: %w", err)
	}
	return doc, nil
}
