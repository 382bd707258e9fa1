package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// Buffer is a growable byte sequence with independent read and write cursors.
//
// Writes append at the end, reads consume from the front and never pass the
// write position. Like Reader and Writer, a Buffer tracks the first error it
// sees: once a read underflows or a value is rejected, every later operation is
// a no-op returning zero values and Err reports the original cause.
type Buffer struct {
	b     []byte
	r     int // read cursor
	err   error
	order ByteOrder
}

var (
	_ io.Reader     = (*Buffer)(nil)
	_ io.Writer     = (*Buffer)(nil)
	_ io.ByteReader = (*Buffer)(nil)
	_ io.ByteWriter = (*Buffer)(nil)
)

// NewBuffer returns an empty buffer ready for writing.
func NewBuffer() *Buffer {
	return &Buffer{order: Order}
}

// NewBufferSize returns an empty buffer with capacity for n bytes.
func NewBufferSize(n int) *Buffer {
	return &Buffer{b: make([]byte, 0, n), order: Order}
}

// BufferFrom wraps data for reading. The buffer takes ownership of data.
func BufferFrom(data []byte) *Buffer {
	return &Buffer{b: data, order: Order}
}

func (b *Buffer) Err() error { return b.err }

// ReadableBytes returns how many bytes remain between the read and write cursors.
func (b *Buffer) ReadableBytes() int { return len(b.b) - b.r }

// Len is an alias of ReadableBytes.
func (b *Buffer) Len() int { return len(b.b) - b.r }

// Bytes returns the unread portion. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.b[b.r:] }

// Reset empties the buffer and clears the latched error. It is the only way to
// reuse a buffer after it has been consumed.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
	b.r = 0
	b.err = nil
}

func (b *Buffer) setError(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

// next consumes n bytes or latches ErrUnderflow.
func (b *Buffer) next(n int) []byte {
	if b.err != nil {
		return nil
	}
	if n < 0 || n > len(b.b)-b.r {
		b.err = fmt.Errorf("%w: need %d bytes, %d readable", ErrUnderflow, n, len(b.b)-b.r)
		return nil
	}
	p := b.b[b.r : b.r+n : b.r+n]
	b.r += n
	return p
}

// --- io interfaces ---

// Read implements io.Reader over the unread bytes.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	if b.r >= len(b.b) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.b[b.r:])
	b.r += n
	return n, nil
}

// Write implements io.Writer by appending p.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	b.b = append(b.b, p...)
	return len(p), nil
}

// ReadByte implements io.ByteReader.
func (b *Buffer) ReadByte() (byte, error) {
	p := b.next(1)
	if p == nil {
		return 0, b.err
	}
	return p[0], nil
}

// WriteByte implements io.ByteWriter.
func (b *Buffer) WriteByte(c byte) error {
	if b.err != nil {
		return b.err
	}
	b.b = append(b.b, c)
	return nil
}

// WriteTo drains the unread bytes into w.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	if w == nil {
		b.setError(ErrWriteToNil)
		return 0, b.err
	}
	n, err := w.Write(b.b[b.r:])
	b.r += n
	return int64(n), err
}

// --- Primitive writes ---

func (b *Buffer) WriteBool(v bool) {
	if v {
		b.WriteUint8(1)
	} else {
		b.WriteUint8(0)
	}
}

func (b *Buffer) WriteUint8(v uint8) {
	if b.err == nil {
		b.b = append(b.b, v)
	}
}

func (b *Buffer) WriteInt8(v int8) { b.WriteUint8(uint8(v)) }

func (b *Buffer) WriteUint16(v uint16) {
	if b.err == nil {
		b.b = b.order.AppendUint16(b.b, v)
	}
}

func (b *Buffer) WriteUint32(v uint32) {
	if b.err == nil {
		b.b = b.order.AppendUint32(b.b, v)
	}
}

func (b *Buffer) WriteUint64(v uint64) {
	if b.err == nil {
		b.b = b.order.AppendUint64(b.b, v)
	}
}

func (b *Buffer) WriteInt16(v int16)     { b.WriteUint16(uint16(v)) }
func (b *Buffer) WriteInt32(v int32)     { b.WriteUint32(uint32(v)) }
func (b *Buffer) WriteInt64(v int64)     { b.WriteUint64(uint64(v)) }
func (b *Buffer) WriteFloat32(v float32) { b.WriteUint32(math.Float32bits(v)) }
func (b *Buffer) WriteFloat64(v float64) { b.WriteUint64(math.Float64bits(v)) }

// WriteChar writes a single code point as a 32-bit value.
func (b *Buffer) WriteChar(v rune) { b.WriteInt32(v) }

// WriteUvarint writes v as an unsigned varint. Lengths and counts use it.
func (b *Buffer) WriteUvarint(v uint64) {
	if b.err == nil {
		b.b = binary.AppendUvarint(b.b, v)
	}
}

// WriteVarint writes v as a zig-zag varint.
func (b *Buffer) WriteVarint(v int64) {
	if b.err == nil {
		b.b = binary.AppendVarint(b.b, v)
	}
}

// WriteString writes a length-prefixed UTF-8 string.
func (b *Buffer) WriteString(s string) {
	if b.err != nil {
		return
	}
	if !utf8.ValidString(s) {
		b.err = ErrInvalidUTF8
		return
	}
	b.b = binary.AppendUvarint(b.b, uint64(len(s)))
	b.b = append(b.b, s...)
}

// WriteBlob writes a length-prefixed byte array.
func (b *Buffer) WriteBlob(p []byte) {
	if b.err != nil {
		return
	}
	b.b = binary.AppendUvarint(b.b, uint64(len(p)))
	b.b = append(b.b, p...)
}

// WriteBuffer writes the unread bytes of nested as a length-prefixed block.
// nested is not consumed.
func (b *Buffer) WriteBuffer(nested *Buffer) {
	if nested == nil {
		b.WriteBlob(nil)
		return
	}
	if nested.err != nil {
		b.setError(nested.err)
		return
	}
	b.WriteBlob(nested.Bytes())
}

// WriteNullable writes the presence flag and, when present, lets fn write
// the payload. An absent value writes nothing but the flag.
func (b *Buffer) WriteNullable(present bool, fn func(*Buffer)) {
	b.WriteBool(present)
	if present && b.err == nil && fn != nil {
		fn(b)
	}
}

// --- Primitive reads ---

// ReadBool reads a strict 0/1 byte.
func (b *Buffer) ReadBool() bool {
	p := b.next(1)
	if p == nil {
		return false
	}
	switch p[0] {
	case 0:
		return false
	case 1:
		return true
	}
	b.setError(fmt.Errorf("%w: 0x%02x", ErrInvalidFlag, p[0]))
	return false
}

func (b *Buffer) ReadUint8() uint8 {
	p := b.next(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (b *Buffer) ReadInt8() int8 { return int8(b.ReadUint8()) }

func (b *Buffer) ReadUint16() uint16 {
	p := b.next(2)
	if p == nil {
		return 0
	}
	return b.order.Uint16(p)
}

func (b *Buffer) ReadUint32() uint32 {
	p := b.next(4)
	if p == nil {
		return 0
	}
	return b.order.Uint32(p)
}

func (b *Buffer) ReadUint64() uint64 {
	p := b.next(8)
	if p == nil {
		return 0
	}
	return b.order.Uint64(p)
}

func (b *Buffer) ReadInt16() int16     { return int16(b.ReadUint16()) }
func (b *Buffer) ReadInt32() int32     { return int32(b.ReadUint32()) }
func (b *Buffer) ReadInt64() int64     { return int64(b.ReadUint64()) }
func (b *Buffer) ReadFloat32() float32 { return math.Float32frombits(b.ReadUint32()) }
func (b *Buffer) ReadFloat64() float64 { return math.Float64frombits(b.ReadUint64()) }

// ReadChar reads a code point written by WriteChar.
func (b *Buffer) ReadChar() rune { return b.ReadInt32() }

func (b *Buffer) ReadUvarint() uint64 {
	if b.err != nil {
		return 0
	}
	v, n := binary.Uvarint(b.b[b.r:])
	switch {
	case n == 0:
		b.err = fmt.Errorf("%w: truncated varint", ErrUnderflow)
		return 0
	case n < 0:
		b.err = fmt.Errorf("%w: varint overflows 64 bits", ErrLengthOverflow)
		return 0
	}
	b.r += n
	return v
}

func (b *Buffer) ReadVarint() int64 {
	if b.err != nil {
		return 0
	}
	v, n := binary.Varint(b.b[b.r:])
	switch {
	case n == 0:
		b.err = fmt.Errorf("%w: truncated varint", ErrUnderflow)
		return 0
	case n < 0:
		b.err = fmt.Errorf("%w: varint overflows 64 bits", ErrLengthOverflow)
		return 0
	}
	b.r += n
	return v
}

// ReadLength reads a length or count prefix and checks it against the
// readable bytes, scaled by the minimum encoded size of one item.
func (b *Buffer) ReadLength(minItemSize int) int {
	n := b.ReadUvarint()
	if b.err != nil {
		return 0
	}
	if minItemSize < 1 {
		minItemSize = 1
	}
	if n > uint64(b.ReadableBytes()/minItemSize) {
		b.err = fmt.Errorf("%w: %d items declared, %d bytes readable", ErrUnderflow, n, b.ReadableBytes())
		return 0
	}
	return int(n)
}

// ReadString reads a length-prefixed UTF-8 string.
func (b *Buffer) ReadString() string {
	n := b.ReadLength(1)
	p := b.next(n)
	if p == nil {
		return ""
	}
	if !utf8.Valid(p) {
		b.setError(ErrInvalidUTF8)
		return ""
	}
	return string(p)
}

// ReadBlob reads a length-prefixed byte array into a fresh slice.
func (b *Buffer) ReadBlob() []byte {
	n := b.ReadLength(1)
	p := b.next(n)
	if p == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, p)
	return out
}

// ReadBuffer reads a nested block written by WriteBuffer.
func (b *Buffer) ReadBuffer() *Buffer {
	data := b.ReadBlob()
	if b.err != nil {
		return nil
	}
	return BufferFrom(data)
}

// ReadNullable reads the presence flag and, when present, lets fn read the
// payload. It reports whether a value was present.
func (b *Buffer) ReadNullable(fn func(*Buffer)) bool {
	present := b.ReadBool()
	if !present || b.err != nil {
		return false
	}
	if fn != nil {
		fn(b)
	}
	return b.err == nil
}

// ReadRaw consumes exactly n bytes into a fresh slice.
func (b *Buffer) ReadRaw(n int) []byte {
	p := b.next(n)
	if p == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, p)
	return out
}
