package wire

import (
	"fmt"
	"io"
)

// ChainedReaderCallback runs once the main stream has been fully consumed. It
// receives the underlying reader, so it can read a trailer or release the
// resources backing the stream.
type ChainedReaderCallback func(rest io.Reader) error

// ChainedReader yields the first n bytes of a stream and then runs a callback
// on the remainder, exactly once. Reassembled transfer payloads are handed out
// through it so their spool goes away as soon as the consumer reaches the end.
type ChainedReader struct {
	src  io.Reader
	body *io.LimitedReader
	then ChainedReaderCallback
	done bool
}

// ChainReader returns the first n bytes of r, running then once they are
// read. Close closes r when it is an io.Closer.
func ChainReader(r io.Reader, n int64, then ChainedReaderCallback) io.ReadCloser {
	return &ChainedReader{
		src:  r,
		body: &io.LimitedReader{R: r, N: n},
		then: then,
	}
}

func (r *ChainedReader) finish() error {
	if r.done {
		return nil
	}
	r.done = true
	if r.then == nil {
		return nil
	}
	if err := r.then(r.src); err != nil {
		return fmt.Errorf("wire: chained action failed after the main stream: %w", err)
	}
	return nil
}

func (r *ChainedReader) Read(p []byte) (int, error) {
	if r.done && r.body.N <= 0 {
		return 0, io.EOF
	}
	n, err := r.body.Read(p)
	if r.body.N > 0 && err != io.EOF {
		return n, err
	}
	// drained, or the source ended early
	if cerr := r.finish(); cerr != nil {
		return n, cerr
	}
	if err == nil {
		err = io.EOF
	}
	return n, err
}

func (r *ChainedReader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// WriteTo copies the rest of the main stream to w and then runs the callback.
func (r *ChainedReader) WriteTo(w io.Writer) (int64, error) {
	if r.done && r.body.N <= 0 {
		return 0, nil
	}
	n, err := io.CopyN(w, r.body, r.body.N)
	if err != nil {
		return n, err
	}
	return n, r.finish()
}
