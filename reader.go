package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// source is a byte stream that Reader can decode from without adding its own
// buffering.
type source interface {
	io.Reader
	io.ByteReader
	Size() int
}

// Reader is the streaming counterpart of Buffer. It decodes frames straight off
// a connection or file, wraps bufio.Reader when the source is not already
// buffered, and tracks the first error. Subsequent reads become no-ops.
type Reader struct {
	r     source
	count int64 // total bytes read
	err   error // first error encountered.
}

var _ source = (*Reader)(nil)

// NewReaderSize returns a Reader over r. Plain streams are buffered with size
// bytes, CHUNK_SIZE when size is not positive. In-memory sources and readers
// that already buffer enough are used as they are.
func NewReaderSize(r io.Reader, size int) (*Reader, error) {
	if r == nil {
		return nil, ErrNilIO
	}
	switch src := r.(type) {
	case *Reader:
		// share the source so consecutive frames stay in step
		return &Reader{r: src.r}, nil
	case *bufio.Reader:
		if src.Size() >= size {
			return &Reader{r: src}, nil
		}
		return nil, ErrAlreadyBuffered
	case *Buffer:
		return &Reader{r: bufferSource{src}}, nil
	case *bytes.Reader:
		return &Reader{r: bytesSource{src}}, nil
	case *bytes.Buffer:
		return &Reader{r: bytesBufferSource{src}}, nil
	}

	if size <= 0 {
		size = CHUNK_SIZE
	}
	if size < 16 {
		return nil, ErrSizeTooSmall
	}
	return &Reader{r: bufio.NewReaderSize(r, size)}, nil
}

// NewReader creates a new Reader, buffering plain readers with CHUNK_SIZE bytes.
func NewReader(r io.Reader) (*Reader, error) {
	return NewReaderSize(r, 0)
}

// Read implements the io.Reader interface.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.r.Read(p)
	r.count += int64(n)
	r.setError(err)
	return n, r.err
}

func (r *Reader) ReadByte() (byte, error) {
	if r.err != nil {
		return 0, r.err
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.err = err
		return 0, err
	}
	r.count++
	return b, nil
}

func (r *Reader) Size() int    { return r.r.Size() }
func (r *Reader) Count() int64 { return r.count }
func (r *Reader) Err() error   { return r.err }

func (r *Reader) setError(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// Result returns the total bytes read and the final error state.
func (r *Reader) Result() (int64, error) {
	return r.count, r.err
}

// ReadTo lets w decode itself from the stream.
func (r *Reader) ReadTo(w io.ReaderFrom) {
	if r.err != nil {
		return
	}
	if w == nil {
		r.setError(ErrReadToNil)
		return
	}
	n, err := w.ReadFrom(r.r)
	r.count += n
	r.setError(err)
}

func (r *Reader) readFull(n int) []byte {
	if r.err != nil {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			// a value was started, so the end of the stream is premature
			r.err = io.ErrUnexpectedEOF
		} else {
			r.err = err
		}
		return nil
	}
	return buf
}

func (r *Reader) ReadInt64(dest *int64) {
	buf := r.readFull(8)
	if r.err == nil {
		*dest = int64(Order.Uint64(buf))
	}
}

// ReadUvarint reads an unsigned varint as written by Writer.WriteUvarint.
func (r *Reader) ReadUvarint(dest *uint64) {
	if r.err != nil {
		return
	}
	v, err := binary.ReadUvarint(r)
	if err != nil {
		// io.EOF before the first byte stays a clean end of stream.
		r.setError(err)
		return
	}
	*dest = v
}

// ReadBlob reads a length-prefixed byte array of at most max bytes.
func (r *Reader) ReadBlob(max int) []byte {
	var n uint64
	r.ReadUvarint(&n)
	if r.err != nil {
		return nil
	}
	if max >= 0 && n > uint64(max) {
		r.setError(fmt.Errorf("%w: %d bytes declared, limit %d", ErrLengthOverflow, n, max))
		return nil
	}
	if n == 0 {
		return []byte{}
	}
	return r.readFull(int(n))
}

// ReadUTF8 reads a length-prefixed UTF-8 string of at most max bytes.
func (r *Reader) ReadUTF8(dest *string, max int) {
	p := r.ReadBlob(max)
	if r.err != nil {
		return
	}
	if !utf8.Valid(p) {
		r.setError(ErrInvalidUTF8)
		return
	}
	*dest = string(p)
}
