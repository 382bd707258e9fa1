package datasync

import "errors"

var (
	// ErrInvalidHandler is returned by NewHandler when a mandatory part is missing.
	ErrInvalidHandler = errors.New("datasync: invalid handler")

	// ErrAbsentObject is returned when a sync payload holds no object.
	ErrAbsentObject = errors.New("datasync: payload holds no object")

	// ErrMalformedBatch stops a batch whose framing cannot be read any further.
	ErrMalformedBatch = errors.New("datasync: malformed batch")
)
