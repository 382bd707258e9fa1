package wire

import "bytes"

// In-memory sources and sinks already hold every byte, so they only need the
// few methods Reader and Writer expect from a buffered stream.
type (
	bytesSource       struct{ *bytes.Reader }
	bytesBufferSource struct{ *bytes.Buffer }
	bufferSource      struct{ *Buffer }

	bytesBufferSink struct{ *bytes.Buffer }
	bufferSink      struct{ *Buffer }
)

func (s bytesSource) Size() int       { return int(s.Reader.Size()) }
func (s bytesBufferSource) Size() int { return s.Buffer.Len() }
func (s bufferSource) Size() int      { return s.Buffer.Len() }

func (s bytesBufferSink) Flush() error { return nil }
func (s bufferSink) Flush() error      { return s.Buffer.err }

// WriteString appends str verbatim, without the length prefix
// Buffer.WriteString adds.
func (s bufferSink) WriteString(str string) (int, error) {
	return s.Buffer.Write([]byte(str))
}
