package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// decodeLine consumes a "<marker><text>\r\n" frame and returns the text.
// The text is kept verbatim, bytes that are not valid UTF-8 are not rejected.
func decodeLine(buf *bytes.Buffer, marker Type) (string, error) {
	b := buf.Bytes()

	end, err := scanLine(b, marker)
	if err != nil {
		return "", err
	}

	s := string(b[1:end])
	buf.Next(end + TerminalLen)

	return s, nil
}

func decodeSimpleString(buf *bytes.Buffer) (SimpleString, error) {
	s, err := decodeLine(buf, TypeSimpleString)
	return SimpleString(s), err
}

func decodeSimpleError(buf *bytes.Buffer) (SimpleError, error) {
	s, err := decodeLine(buf, TypeSimpleError)
	return SimpleError(s), err
}

func decodeInteger(buf *bytes.Buffer) (Integer, error) {
	b := buf.Bytes()

	end, err := scanLine(b, TypeInteger)
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseInt(string(b[1:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid integer %q", ErrMalformed, b[1:end])
	}

	buf.Next(end + TerminalLen)
	return Integer(n), nil
}

// - simple string: "+OK\r\n"
func (s SimpleString) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(TypeSimpleString))
	dst = appendLine(dst, string(s))
	return append(dst, Terminal...)
}

// - error: "-Error message\r\n"
func (e SimpleError) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(TypeSimpleError))
	dst = appendLine(dst, string(e))
	return append(dst, Terminal...)
}

// - integer: ":1000\r\n"
func (i Integer) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(TypeInteger))
	dst = strconv.AppendInt(dst, int64(i), 10)
	return append(dst, Terminal...)
}

// appendLine appends the text of a line terminated frame with every "\r\n"
// written as two spaces, since the first terminator ends the frame.
func appendLine(dst []byte, s string) []byte {
	for {
		idx := strings.Index(s, "\r\n")
		if idx == -1 {
			return append(dst, s...)
		}

		dst = append(dst, s[:idx]...)
		dst = append(dst, "  "...)
		s = s[idx+TerminalLen:]
	}
}
