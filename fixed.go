package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"
)

// sizeCache avoids the cost of reflection in `binary.Size` on every call.
var sizeCache = xsync.NewMap[reflect.Type, int]()

// Fixed streams any struct composed of fixed-size fields, such as the header
// that leads every transfer frame.
//
// Constraint: Payload MUST NOT contain variable-size fields like slices,
// maps, or strings, as this will cause `binary.Size` to fail.
type Fixed[Payload any] struct {
	Payload Payload
}

var (
	_ Sizer         = (*Fixed[struct{}])(nil)
	_ io.ReaderFrom = (*Fixed[struct{}])(nil)
	_ io.WriterTo   = (*Fixed[struct{}])(nil)
)

// Size returns the encoded size of Payload, cached per type.
func (c *Fixed[Payload]) Size() int {
	t := reflect.TypeOf((*Payload)(nil)).Elem()
	size, _ := sizeCache.LoadOrCompute(t, func() (int, bool) {
		return binary.Size(&c.Payload), false
	})
	return size
}

// ReadFrom decodes Payload off r. A stream that ends before the first byte
// reports io.EOF unchanged.
func (c *Fixed[Payload]) ReadFrom(r io.Reader) (int64, error) {
	err := binary.Read(r, Order, &c.Payload)
	if err == io.EOF {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTruncatedData, err)
	}
	return int64(c.Size()), nil
}

func (c *Fixed[Payload]) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, Order, &c.Payload); err != nil {
		return 0, err
	}
	return int64(c.Size()), nil
}
