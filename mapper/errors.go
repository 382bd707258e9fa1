package mapper

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSerializer is matched by every MissingSerializerError.
	ErrMissingSerializer = errors.New("mapper: no serializer for type")

	// ErrMalformedGenericRead is returned when a container is decoded without
	// the type arguments its element, key or value serializer needs.
	ErrMalformedGenericRead = errors.New("mapper: generic read without type arguments")

	// ErrTypeMismatch is returned when a value does not fit the Go type a
	// descriptor decodes into.
	ErrTypeMismatch = errors.New("mapper: value does not match type")

	// ErrUnhashable is returned when a set element or map key cannot be hashed.
	ErrUnhashable = errors.New("mapper: value cannot be used as a set element or map key")
)

// MissingSerializerError identifies the type no serializer could be found for.
// It is a configuration error and must not be retried.
type MissingSerializerError struct {
	Type *Type
}

func (e *MissingSerializerError) Error() string {
	if e.Type == nil {
		return ErrMissingSerializer.Error()
	}
	if rt := e.Type.GoType(); rt != nil {
		return fmt.Sprintf("%s %s (go type %s)", ErrMissingSerializer, e.Type.Key(), rt)
	}
	return fmt.Sprintf("%s %s", ErrMissingSerializer, e.Type.Key())
}

func (e *MissingSerializerError) Is(target error) bool { return target == ErrMissingSerializer }

func malformed(t *Type, want int) error {
	return fmt.Errorf("%w: %s needs %d, has %d", ErrMalformedGenericRead, t.Key(), want, len(t.Args()))
}
