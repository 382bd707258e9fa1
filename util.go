package wire

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/constraints"
)

// ByteOrder is what a Buffer needs from an order: decoding in place and
// appending without a scratch array.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

var (
	BE = binary.BigEndian
	LE = binary.LittleEndian
	// Order is the byte order of every fixed-width value on the wire.
	Order ByteOrder = BE
)

// CeilDiv returns the number of size-sized pieces needed to hold n.
func CeilDiv[T constraints.Integer](n, size T) T {
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// CheckBufferNotZeros rejects padding that carries anything but zero bytes.
func CheckBufferNotZeros(data []byte) error {
	for i, b := range data {
		if b != 0 {
			return fmt.Errorf("%w: found non-zero byte 0x%02x at offset %d", ErrTrailingData, b, i)
		}
	}
	return nil
}

// UvarintSize is the encoded length of v as an unsigned varint.
func UvarintSize(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
