package protocol

import (
	"bytes"
	"fmt"
	"strconv"
)

func decodeBulkString(buf *bytes.Buffer) (BulkString, error) {
	b := buf.Bytes()

	end, n, err := parseLength(b, TypeBulkString)
	if err != nil {
		return nil, err
	}

	if n < 0 {
		return nil, fmt.Errorf("%w: bulk string length %d", ErrMalformed, n)
	}

	start := end + TerminalLen
	if len(b)-start < n+TerminalLen {
		return nil, ErrIncomplete
	}

	if !bytes.Equal(b[start+n:start+n+TerminalLen], Terminal) {
		return nil, fmt.Errorf("%w: bulk string of length %d is not terminated by CRLF",
			ErrMalformed, n)
	}

	// The buffer's memory is reused once consumed, so the payload is copied.
	payload := make([]byte, n)
	copy(payload, b[start:start+n])

	buf.Next(start + n + TerminalLen)

	return BulkString(payload), nil
}

func decodeNullBulkString(buf *bytes.Buffer) (NullBulkString, error) {
	if err := matchLiteral(buf.Bytes(), NullBulkStringLiteral, "null bulk string"); err != nil {
		return NullBulkString{}, err
	}

	buf.Next(len(NullBulkStringLiteral))
	return NullBulkString{}, nil
}

// - bulk string: "$<length>\r\n<data>\r\n"
func (s BulkString) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(TypeBulkString))
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = append(dst, Terminal...)
	dst = append(dst, s...)
	return append(dst, Terminal...)
}

// - null bulk string: "$-1\r\n"
func (NullBulkString) AppendTo(dst []byte) []byte {
	return append(dst, NullBulkStringLiteral...)
}
