package wire

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// --- Mocks and Helpers ---

type mockPayload struct {
	ID   uint32
	Data [4]byte
}

type mockCodec = Fixed[mockPayload]

// record is a small self-sizing value that streams through Writer and Reader
// the way transfer frames do.
type record struct {
	head  mockCodec
	name  string
	stamp int64
	body  []byte
}

func (r *record) Size() int {
	return r.head.Size() +
		UvarintSize(uint64(len(r.name))) + len(r.name) +
		8 +
		UvarintSize(uint64(len(r.body))) + len(r.body)
}

func (r *record) WriteTo(w io.Writer) (int64, error) {
	ww, err := NewWriter(w)
	if err != nil {
		return 0, err
	}
	ww.WriteFrom(&r.head)
	ww.WriteUTF8(r.name)
	ww.WriteInt64(r.stamp)
	ww.WriteBlob(r.body)
	return ww.Result()
}

func (r *record) ReadFrom(src io.Reader) (int64, error) {
	rr, err := NewReader(src)
	if err != nil {
		return 0, err
	}
	rr.ReadTo(&r.head)
	rr.ReadUTF8(&r.name, 64)
	rr.ReadInt64(&r.stamp)
	r.body = rr.ReadBlob(64)
	return rr.Result()
}

func (r *record) MarshalBinary() ([]byte, error)   { return MarshalBinaryGeneric(r) }
func (r *record) MarshalTo(p []byte) (int, error)  { return MarshalToGeneric(r, p) }
func (r *record) UnmarshalBinary(data []byte) error { return UnmarshalBinaryGeneric(r, data) }

var _ Codec = (*record)(nil)

func sampleRecord() *record {
	return &record{
		head:  mockCodec{mockPayload{ID: 0xDEADBEEF, Data: [4]byte{1, 2, 3, 4}}},
		name:  "héllo",
		stamp: -2,
		body:  []byte{9, 8, 7},
	}
}

// failingWriter accepts limit bytes and then fails every write.
type failingWriter struct {
	limit int
	got   []byte
}

var errDiskFull = errors.New("disk full")

func (f *failingWriter) Write(p []byte) (int, error) {
	room := f.limit - len(f.got)
	if room <= 0 {
		return 0, errDiskFull
	}
	if len(p) > room {
		f.got = append(f.got, p[:room]...)
		return room, errDiskFull
	}
	f.got = append(f.got, p...)
	return len(p), nil
}

// --- Writer Test Suite ---

type WriterTestSuite struct {
	suite.Suite
	buf    *bytes.Buffer
	writer *Writer
}

func (s *WriterTestSuite) SetupTest() {
	s.buf = &bytes.Buffer{}
	s.writer, _ = NewWriter(s.buf)
}

func (s *WriterTestSuite) TestConstructors() {
	s.T().Run("NilWriter", func(t *testing.T) {
		_, err := NewWriter(nil)
		assert.ErrorIs(t, err, ErrNilIO)
	})

	s.T().Run("AlreadyBuffered", func(t *testing.T) {
		_, err := NewWriter(bufio.NewWriter(io.Discard))
		assert.ErrorIs(t, err, ErrAlreadyBuffered)
	})
}

func (s *WriterTestSuite) TestBasicWrites() {
	s.writer.WriteFrom(&mockCodec{mockPayload{ID: 0xDEADBEEF, Data: [4]byte{1, 2, 3, 4}}})
	s.writer.WriteInt64(0x0102030405060708)
	s.writer.WriteUvarint(300)
	s.writer.WriteUTF8("ab")
	s.writer.WriteBlob(nil)

	n, err := s.writer.Result()
	s.Require().NoError(err)
	s.EqualValues(8+8+2+3+1, n)
	s.EqualValues(s.buf.Len(), s.writer.Count())

	expected := []byte{
		0xDE, 0xAD, 0xBE, 0xEF, 1, 2, 3, 4, // WriteFrom
		1, 2, 3, 4, 5, 6, 7, 8, // WriteInt64
		0xAC, 0x02, // WriteUvarint(300)
		2, 'a', 'b', // WriteUTF8
		0, // WriteBlob(nil)
	}
	s.Equal(expected, s.buf.Bytes())
}

func (s *WriterTestSuite) TestInvalidUTF8() {
	s.writer.WriteUTF8("\xff")
	s.writer.WriteInt64(1)
	_, err := s.writer.Result()
	s.ErrorIs(err, ErrInvalidUTF8)
	s.Zero(s.buf.Len())
}

func (s *WriterTestSuite) TestErrorLatches() {
	dst := &failingWriter{limit: 5}
	w, err := NewWriter(dst)
	s.Require().NoError(err)

	w.WriteInt64(0x1122334455667788)
	s.NoError(w.Err(), "bytes wait in the bufio layer until flushed")

	s.Require().ErrorIs(w.Flush(), errDiskFull)
	first := w.Err()

	w.WriteBlob([]byte{1})
	w.Flush()
	s.Equal(first, w.Err(), "the first error sticks")
	s.Equal([]byte{0x11, 0x22, 0x33, 0x44, 0x55}, dst.got)
}

func (s *WriterTestSuite) TestNestedWriterDefersFlush() {
	dst := &failingWriter{limit: 64}
	outer, err := NewWriter(dst)
	s.Require().NoError(err)

	inner, err := NewWriter(outer)
	s.Require().NoError(err)
	inner.WriteUTF8("nested")
	_, err = inner.Result()
	s.Require().NoError(err)
	s.Empty(dst.got, "only the outermost writer flushes")

	_, err = outer.Result()
	s.Require().NoError(err)
	s.Equal([]byte("\x06nested"), dst.got)
}

func (s *WriterTestSuite) TestOverBuffer() {
	b := NewBuffer()
	w, err := NewWriter(b)
	s.Require().NoError(err)
	w.WriteUTF8("frame")
	_, err = w.Result()
	s.Require().NoError(err)
	s.Equal([]byte("\x05frame"), b.Bytes(), "no extra length prefix from Buffer.WriteString")
}

func TestWriter(t *testing.T) {
	suite.Run(t, new(WriterTestSuite))
}

// --- Reader Test Suite ---

type ReaderTestSuite struct {
	suite.Suite
}

func (s *ReaderTestSuite) TestConstructors() {
	s.T().Run("NilReader", func(t *testing.T) {
		_, err := NewReader(nil)
		assert.ErrorIs(t, err, ErrNilIO)
	})

	s.T().Run("SmallBufio", func(t *testing.T) {
		_, err := NewReaderSize(bufio.NewReaderSize(bytes.NewReader(nil), 16), 64)
		assert.ErrorIs(t, err, ErrAlreadyBuffered)
	})
}

func (s *ReaderTestSuite) TestRoundTrip() {
	var buf bytes.Buffer
	in := sampleRecord()
	n, err := in.WriteTo(&buf)
	s.Require().NoError(err)
	s.EqualValues(in.Size(), n)

	var out record
	m, err := out.ReadFrom(&buf)
	s.Require().NoError(err)
	s.Equal(n, m)
	s.Equal(in, &out)
}

func (s *ReaderTestSuite) TestCleanAndTruncatedEnd() {
	s.T().Run("CleanEOF", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader(nil))
		var v uint64
		r.ReadUvarint(&v)
		assert.ErrorIs(t, r.Err(), io.EOF)
	})

	s.T().Run("Truncated", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader([]byte{1, 2, 3}))
		var v int64
		r.ReadInt64(&v)
		assert.ErrorIs(t, r.Err(), io.ErrUnexpectedEOF)
	})

	s.T().Run("ReadAfterErrorIsNoOp", func(t *testing.T) {
		r, _ := NewReader(bytes.NewReader([]byte{1, 2, 3}))
		var v int64
		r.ReadInt64(&v)
		first := r.Err()
		require.Error(t, first)

		var str string
		r.ReadUTF8(&str, 8)
		assert.Equal(t, first, r.Err())
		assert.Empty(t, str)
		assert.Zero(t, v)
	})
}

func (s *ReaderTestSuite) TestBlobLimit() {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf)
	w.WriteBlob(make([]byte, 32))
	_, _ = w.Result()

	r, _ := NewReader(bytes.NewReader(buf.Bytes()))
	s.Nil(r.ReadBlob(16))
	s.ErrorIs(r.Err(), ErrLengthOverflow)
}

func (s *ReaderTestSuite) TestInvalidUTF8() {
	r, _ := NewReader(bytes.NewReader([]byte{1, 0xff}))
	var str string
	r.ReadUTF8(&str, 8)
	s.ErrorIs(r.Err(), ErrInvalidUTF8)
}

func (s *ReaderTestSuite) TestReadToNil() {
	r, _ := NewReader(bytes.NewReader([]byte{1}))
	r.ReadTo(nil)
	s.ErrorIs(r.Err(), ErrReadToNil)
}

func (s *ReaderTestSuite) TestOverBuffer() {
	b := NewBuffer()
	w, err := NewWriter(b)
	s.Require().NoError(err)
	w.WriteInt64(7)
	w.WriteUTF8("frame")
	_, err = w.Result()
	s.Require().NoError(err)

	r, err := NewReader(b)
	s.Require().NoError(err)
	var v int64
	var str string
	r.ReadInt64(&v)
	r.ReadUTF8(&str, 16)
	s.Require().NoError(r.Err())
	s.Equal(int64(7), v)
	s.Equal("frame", str)
	s.Zero(b.Len())
}

func TestReader(t *testing.T) {
	suite.Run(t, new(ReaderTestSuite))
}

// --- Standalone Codec Tests ---

func TestFixedSizeCodec_SizeCache(t *testing.T) {
	c := &mockCodec{mockPayload{ID: 1}}
	expectedSize := 8 // uint32(4) + [4]byte(4)
	assert.Equal(t, expectedSize, c.Size())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c2 := &mockCodec{mockPayload{ID: 2}}
			assert.Equal(t, expectedSize, c2.Size())
		}()
	}
	wg.Wait()
}

func TestFixedSizeCodec_Truncated(t *testing.T) {
	var c mockCodec
	_, err := c.ReadFrom(bytes.NewReader([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, ErrTruncatedData)

	_, err = c.ReadFrom(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestGenericHelpers(t *testing.T) {
	in := sampleRecord()

	t.Run("MarshalBinary", func(t *testing.T) {
		data, err := in.MarshalBinary()
		require.NoError(t, err)
		assert.Len(t, data, in.Size())

		var out record
		require.NoError(t, out.UnmarshalBinary(data))
		assert.Equal(t, in, &out)
	})

	t.Run("MarshalTo", func(t *testing.T) {
		p := make([]byte, in.Size()+4)
		n, err := in.MarshalTo(p)
		require.NoError(t, err)
		assert.Equal(t, in.Size(), n)

		want, _ := in.MarshalBinary()
		assert.Equal(t, want, p[:n])
		assert.Equal(t, []byte{0, 0, 0, 0}, p[n:], "nothing past Size is touched")
	})

	t.Run("MarshalToShortBuffer", func(t *testing.T) {
		_, err := in.MarshalTo(make([]byte, in.Size()-1))
		assert.ErrorIs(t, err, io.ErrShortWrite)
	})

	t.Run("ZeroPaddingAccepted", func(t *testing.T) {
		data, _ := in.MarshalBinary()
		var out record
		assert.NoError(t, out.UnmarshalBinary(append(data, 0, 0)))
	})

	t.Run("TrailingData", func(t *testing.T) {
		data, _ := in.MarshalBinary()
		var out record
		err := out.UnmarshalBinary(append(data, 0, 7))
		assert.ErrorIs(t, err, ErrTrailingData)
	})

	t.Run("Truncated", func(t *testing.T) {
		data, _ := in.MarshalBinary()
		var out record
		assert.Error(t, out.UnmarshalBinary(data[:len(data)-1]))
	})
}

func TestReaderBuffersPlainReaders(t *testing.T) {
	var stream bytes.Buffer
	first, second := sampleRecord(), sampleRecord()
	second.name = "second"
	_, _ = first.WriteTo(&stream)
	_, _ = second.WriteTo(&stream)

	src := io.MultiReader(&stream)
	r, err := NewReader(src)
	require.NoError(t, err)

	// consecutive values share one buffered source
	var a, b record
	_, err = a.ReadFrom(r)
	require.NoError(t, err)
	_, err = b.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, first, &a)
	assert.Equal(t, second, &b)

	nested, err := NewReader(r)
	require.NoError(t, err)
	assert.Same(t, r.r, nested.r, "nested readers share the buffer")

	_, err = NewReaderSize(src, 8)
	assert.ErrorIs(t, err, ErrSizeTooSmall)
}
