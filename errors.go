package wire

import "errors"

var (
	// ErrNilIO indicates that NewReader/NewWriter was called with an nil interface
	ErrNilIO = errors.New("wire: NewReader/NewWriter called with a nil io.Reader/io.Writer")

	// ErrSizeTooSmall indicates a size conflict with bufio
	ErrSizeTooSmall = errors.New("wire: NewReaderSize with a size smaller than 16 conflict with bufio")

	// ErrAlreadyBuffered indicates that NewReader/NewWriter was called with an already-buffered
	// reader/writer, which would lead to unpredictable behavior and performance issues.
	ErrAlreadyBuffered = errors.New("wire: reader or writer is already buffered")

	// ErrWriteToNil indicates a WriteTo operation was attempted on a nil io.Writer.
	ErrWriteToNil = errors.New("wire: WriteTo called with a nil io.Writer")

	// ErrReadToNil indicates a ReadTo operation was attempted on a nil io.ReaderFrom.
	ErrReadToNil = errors.New("wire: ReadTo called with a nil io.ReaderFrom")

	// ErrTrailingData is returned when non-zero bytes are found after the expected end of a frame.
	ErrTrailingData = errors.New("wire: non-zero trailing data found after decoding")

	// ErrTruncatedData indicates that the underlying source ended before a value was complete.
	ErrTruncatedData = errors.New("wire: truncated data")

	// ErrUnderflow is latched by a Buffer when a read asks for more bytes than were written.
	ErrUnderflow = errors.New("wire: buffer underflow")

	// ErrInvalidUTF8 rejects strings that are not valid UTF-8, on either side of the wire.
	ErrInvalidUTF8 = errors.New("wire: string is not valid UTF-8")

	// ErrInvalidFlag is returned when a boolean or presence byte is neither 0 nor 1.
	ErrInvalidFlag = errors.New("wire: invalid flag byte")

	// ErrLengthOverflow is returned when a length prefix does not fit the remaining input
	// or the configured limit.
	ErrLengthOverflow = errors.New("wire: length prefix out of range")
)
