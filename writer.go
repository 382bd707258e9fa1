package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf8"
)

// sink is a destination Writer can encode into without adding its own
// buffering. Flush pushes out whatever the sink holds back.
type sink interface {
	io.Writer
	io.StringWriter
	Flush() error
}

// Writer is the streaming counterpart of Buffer, used to emit frames onto a
// connection or file. It wraps bufio.Writer when the destination is not
// already buffered and tracks the first error that occurs. After an error, all
// subsequent write operations become no-ops.
type Writer struct {
	w     sink
	count int64 // total bytes written
	err   error // first error encountered. Subsequent writes become no-ops.
	depth int
}

var _ sink = (*Writer)(nil)

// NewWriter returns a Writer over w. Plain streams get a CHUNK_SIZE bufio
// layer; in-memory destinations and other Writers are written directly.
func NewWriter(w io.Writer) (*Writer, error) {
	if w == nil {
		return nil, ErrNilIO
	}

	switch dst := w.(type) {
	case *Writer:
		// only the outermost writer flushes
		return &Writer{w: dst.w, depth: dst.depth + 1}, nil
	case *bufio.Writer:
		// someone else owns this buffer and its flushing
		return nil, ErrAlreadyBuffered
	case *Buffer:
		return &Writer{w: bufferSink{dst}}, nil
	case *bytes.Buffer:
		return &Writer{w: bytesBufferSink{dst}}, nil
	}
	return &Writer{w: bufio.NewWriterSize(w, CHUNK_SIZE)}, nil
}

// Write implements the io.Writer interface.
func (w *Writer) Write(buf []byte) (int, error) {
	if len(buf) == 0 || w.err != nil {
		return 0, w.err
	}
	n, err := w.w.Write(buf)
	w.count += int64(n)
	w.setError(err)
	return n, w.err
}

func (w *Writer) WriteString(str string) (int, error) {
	if str == "" || w.err != nil {
		return 0, w.err
	}
	n, err := w.w.WriteString(str)
	w.count += int64(n)
	w.setError(err)
	return n, w.err
}

func (w *Writer) Count() int64 { return w.count }
func (w *Writer) Err() error   { return w.err }

func (w *Writer) setError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// Result flushes the buffer and returns the final count and error state.
func (w *Writer) Result() (int64, error) {
	w.Flush()
	return w.count, w.err
}

// Flush writes any buffered data to the underlying io.Writer. Nested writers
// leave that to the outermost one.
func (w *Writer) Flush() error {
	if w.depth > 0 || w.err != nil {
		return w.err
	}
	err := w.w.Flush()
	w.setError(err)
	return err
}

// WriteFrom lets wt encode itself into the stream.
func (w *Writer) WriteFrom(wt io.WriterTo) {
	if wt == nil || w.err != nil {
		return
	}
	n, err := wt.WriteTo(w.w)
	w.count += n
	w.setError(err)
}

func (w *Writer) WriteInt64(v int64) {
	if w.err != nil {
		return
	}
	var buf [8]byte
	_, _ = w.Write(Order.AppendUint64(buf[:0], uint64(v)))
}

// WriteUvarint writes v as an unsigned varint.
func (w *Writer) WriteUvarint(v uint64) {
	if w.err != nil {
		return
	}
	var buf [binary.MaxVarintLen64]byte
	_, _ = w.Write(binary.AppendUvarint(buf[:0], v))
}

// WriteBlob writes a length-prefixed byte array.
func (w *Writer) WriteBlob(p []byte) {
	w.WriteUvarint(uint64(len(p)))
	_, _ = w.Write(p)
}

// WriteUTF8 writes a length-prefixed UTF-8 string.
func (w *Writer) WriteUTF8(s string) {
	if w.err != nil {
		return
	}
	if !utf8.ValidString(s) {
		w.err = ErrInvalidUTF8
		return
	}
	w.WriteUvarint(uint64(len(s)))
	_, _ = w.WriteString(s)
}
