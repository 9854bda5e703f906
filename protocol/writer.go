package protocol

import (
	"fmt"
	"io"
)

var (
	OkTerminal = []byte("+OK\r\n")
)

func WriteFrame(w io.Writer, f Frame) error {
	_, err := w.Write(Encode(f))
	return err
}

func WriteOk(w io.Writer) error {
	_, err := w.Write(OkTerminal)
	return err
}

// WriteError writes errMsg as a simple error. Line terminators in errMsg are
// replaced with spaces so the reply stays a single line.
func WriteError(w io.Writer, errMsg string) error {
	return WriteFrame(w, NewError(errMsg))
}

// WriteCommand writes a request as an array of bulk strings, the form clients
// send commands in.
func WriteCommand(w io.Writer, name string, args ...string) error {
	return WriteFrame(w, NewCommand(name, args...))
}

// NewCommand builds the array of bulk strings for a client request.
func NewCommand(name string, args ...string) Array {
	frames := make(Array, 0, len(args)+1)
	frames = append(frames, BulkString(name))

	for _, arg := range args {
		frames = append(frames, BulkString(arg))
	}

	return frames
}

// NewError builds a simple error from msg with any "\r" or "\n" replaced.
func NewError(msg string) SimpleError {
	return SimpleError(sanitizeLine(msg))
}

// NewErrorf is NewError with fmt.Sprintf formatting.
func NewErrorf(format string, args ...interface{}) SimpleError {
	return NewError(fmt.Sprintf(format, args...))
}

func sanitizeLine(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c == '\r' || c == '\n' {
			b[i] = ' '
		}
	}
	return string(b)
}
