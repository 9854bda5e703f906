package protocol

import (
	"errors"
)

var (
	// ErrIncomplete is returned when the buffer does not yet hold a full
	// frame. The buffer is left untouched, callers should read more bytes
	// and try again.
	ErrIncomplete = errors.New("frame is incomplete")

	// ErrMalformed is returned when the buffered bytes can never form a
	// valid frame. There is no point at which the stream can be resynced, so
	// the connection should be dropped.
	ErrMalformed = errors.New("frame is malformed")

	// ErrTooDeep is returned by CheckDepth when arrays are nested beyond the
	// caller's limit.
	ErrTooDeep = errors.New("frame is nested too deeply")
)

// IsIncomplete reports whether err signals that more bytes are needed.
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrIncomplete)
}
