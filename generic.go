package wire

import (
	"bytes"
	"fmt"
	"io"
)

// MarshalBinaryGeneric provides an `encoding.BinaryMarshaler` for any self-sizing
// type that already knows how to stream itself.
func MarshalBinaryGeneric[T interface {
	Size() int
	io.WriterTo
}](v T) ([]byte, error) {
	size := v.Size()
	buf := NewBufferSize(size)
	n, err := v.WriteTo(buf)
	if err != nil {
		return nil, err
	}
	if n < int64(size) {
		return nil, fmt.Errorf("%w: expected at least %d bytes, but write %d", ErrTruncatedData, size, n)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinaryGeneric adapts a stream-based `ReadFrom` to `UnmarshalBinary`.
// Bytes past the decoded value must be zero padding.
func UnmarshalBinaryGeneric[T interface {
	io.ReaderFrom
	Size() int
}](v T, data []byte) error {
	n, err := v.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if size := v.Size(); n < int64(size) {
		return fmt.Errorf("%w: expected at least %d bytes, but read %d", ErrTruncatedData, size, n)
	}
	if len(data) > int(n) {
		return CheckBufferNotZeros(data[n:])
	}
	return nil
}

// MarshalToGeneric encodes v into the front of p without allocating.
func MarshalToGeneric[T interface {
	Size() int
	io.WriterTo
}](v T, p []byte) (int, error) {
	size := v.Size()
	if len(p) < size {
		return 0, io.ErrShortWrite
	}
	// capped at size so an encoder that overruns its own Size never
	// writes past it into p
	buf := &Buffer{b: p[:0:size], order: Order}
	n, err := v.WriteTo(buf)
	if err != nil {
		return int(n), err
	}
	if n != int64(size) {
		return int(n), io.ErrShortWrite
	}
	return int(n), nil
}
