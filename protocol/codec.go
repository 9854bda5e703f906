package protocol

import (
	"bytes"
	"fmt"
)

// Decode decodes the frame at the start of buf and advances buf past it.
//
// Decode never blocks. If buf does not hold a complete frame yet it returns
// ErrIncomplete and leaves buf untouched; append more bytes and call Decode
// again. An error wrapping ErrMalformed means the stream is unusable and the
// state of buf is undefined.
//
// Only the marker, and for bulk strings and arrays the declared length, are
// inspected here. The matching variant does the actual work.
func Decode(buf *bytes.Buffer) (Frame, error) {
	b := buf.Bytes()
	if len(b) == 0 {
		return nil, ErrIncomplete
	}

	if Type(b[0]) != TypeArray {
		return decodeScalar(buf)
	}

	_, n, err := parseLength(b, TypeArray)
	if err != nil {
		return nil, err
	}

	if n < 0 {
		null, err := decodeNullArray(buf)
		if err != nil {
			return nil, err
		}
		return null, nil
	}

	a, err := decodeArray(buf)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// decodeScalar decodes every frame that is not an array.
func decodeScalar(buf *bytes.Buffer) (Frame, error) {
	b := buf.Bytes()
	if len(b) == 0 {
		return nil, ErrIncomplete
	}

	switch Type(b[0]) {
	case TypeSimpleString:
		s, err := decodeSimpleString(buf)
		if err != nil {
			return nil, err
		}
		return s, nil

	case TypeSimpleError:
		e, err := decodeSimpleError(buf)
		if err != nil {
			return nil, err
		}
		return e, nil

	case TypeInteger:
		i, err := decodeInteger(buf)
		if err != nil {
			return nil, err
		}
		return i, nil

	case TypeBulkString:
		_, n, err := parseLength(b, TypeBulkString)
		if err != nil {
			return nil, err
		}

		if n < 0 {
			null, err := decodeNullBulkString(buf)
			if err != nil {
				return nil, err
			}
			return null, nil
		}

		s, err := decodeBulkString(buf)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("%w: unknown marker %q", ErrMalformed, b[0])
	}
}

// DecodeBytes decodes a single frame from b. It is a convenience for callers
// that hold a complete payload, the number of bytes consumed is returned.
func DecodeBytes(b []byte) (Frame, int, error) {
	buf := bytes.NewBuffer(b)

	frame, err := Decode(buf)
	if err != nil {
		return nil, 0, err
	}

	return frame, len(b) - buf.Len(), nil
}

// Encode returns the canonical wire form of f.
func Encode(f Frame) []byte {
	return f.AppendTo(nil)
}

// AppendFrame appends the canonical wire form of f to dst.
func AppendFrame(dst []byte, f Frame) []byte {
	return f.AppendTo(dst)
}
