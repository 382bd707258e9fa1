package chunk

import "errors"

var (
	// ErrSessionClosed is returned for a frame that targets a session which already finished.
	ErrSessionClosed = errors.New("chunk: session already closed")

	// ErrUnknownSession is returned for a non-open frame whose session was never opened.
	ErrUnknownSession = errors.New("chunk: frame for unknown session")

	// ErrUnknownChannel fails a session opened on a channel nobody is bound to.
	ErrUnknownChannel = errors.New("chunk: no callback bound to channel")

	// ErrIndexGap fails a session when a frame arrives ahead of the next expected index.
	ErrIndexGap = errors.New("chunk: frame index gap")

	// ErrChecksum fails a session when a payload does not match its frame checksum.
	ErrChecksum = errors.New("chunk: payload checksum mismatch")

	// ErrDuplicateFinal fails a session that sees a second frame carrying the final flag.
	ErrDuplicateFinal = errors.New("chunk: duplicate final frame")

	// ErrLengthMismatch fails a session whose reassembled size differs from the declared length.
	ErrLengthMismatch = errors.New("chunk: reassembled length differs from declared length")

	// ErrTimeout is attached to results and sessions that ran out of time.
	ErrTimeout = errors.New("chunk: transfer timed out")

	// ErrReceiverClosed is returned by a receiver after Close.
	ErrReceiverClosed = errors.New("chunk: receiver closed")
)
