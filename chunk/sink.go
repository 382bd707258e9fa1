package chunk

import (
	"io"
	"os"
	"sync"

	"go.uber.org/multierr"

	"github.com/oy3o/wire"
)

// Sink accumulates the payload of one session in index order.
type Sink interface {
	io.Writer
	// Reader returns the reassembled bytes from the start.
	Reader() (io.Reader, error)
	Size() int64
	// Release frees the storage. It is safe to call more than once.
	Release() error
}

type memorySink struct {
	buf *wire.Buffer
}

func newMemorySink() *memorySink { return &memorySink{buf: wire.NewBuffer()} }

func (s *memorySink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *memorySink) Size() int64                 { return int64(s.buf.Len()) }

func (s *memorySink) Reader() (io.Reader, error) {
	return wire.BufferFrom(s.buf.Bytes()), nil
}

func (s *memorySink) Release() error {
	s.buf.Reset()
	return nil
}

// fileSink spools to a temporary file that is removed on release.
type fileSink struct {
	f    *os.File
	size int64
	once sync.Once
	err  error
}

func newFileSink(dir string) (*fileSink, error) {
	f, err := os.CreateTemp(dir, "wire-chunk-*")
	if err != nil {
		return nil, err
	}
	return &fileSink{f: f}, nil
}

func (s *fileSink) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	s.size += int64(n)
	return n, err
}

func (s *fileSink) Size() int64 { return s.size }

func (s *fileSink) Reader() (io.Reader, error) {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return s.f, nil
}

func (s *fileSink) Release() error {
	s.once.Do(func() {
		name := s.f.Name()
		s.err = multierr.Combine(s.f.Close(), os.Remove(name))
	})
	return s.err
}

func (r *Receiver) newSink() (Sink, error) {
	if r.s.spoolDir == "" {
		return newMemorySink(), nil
	}
	return newFileSink(r.s.spoolDir)
}
