package protocol

import (
	"bytes"
	"fmt"
	"strconv"
)

// decodeArray decodes "*<n>\r\n<element-1>...<element-n>".
//
// The whole array, including every nested child, is measured once before
// anything is consumed. An array that is missing any part of any descendant
// is reported as incomplete and the buffer is untouched.
func decodeArray(buf *bytes.Buffer) (Array, error) {
	b := buf.Bytes()

	total, err := ExpectedLength(b)
	if err != nil {
		return nil, err
	}

	if len(b) < total {
		return nil, ErrIncomplete
	}

	frame, err := decodeMeasured(buf)
	if err != nil {
		// Every child was measured above, so running out of bytes here
		// means the stream is inconsistent.
		return nil, fmt.Errorf("%w: array element: %v", ErrMalformed, err)
	}

	a, ok := frame.(Array)
	if !ok {
		return nil, fmt.Errorf("%w: expected array, got %q", ErrMalformed, byte(frame.Type()))
	}

	return a, nil
}

// decodeMeasured decodes a frame whose bytes are known to be buffered. Arrays
// are assembled with an explicit stack so neither the nesting depth nor the
// number of levels re-measured grows the work beyond one pass.
func decodeMeasured(buf *bytes.Buffer) (Frame, error) {
	var open []Array

	for {
		b := buf.Bytes()
		if len(b) == 0 {
			return nil, ErrIncomplete
		}

		var frame Frame

		if Type(b[0]) == TypeArray {
			end, n, err := parseLength(b, TypeArray)
			if err != nil {
				return nil, err
			}

			switch {
			case n < 0:
				if frame, err = decodeNullArray(buf); err != nil {
					return nil, err
				}
			case n == 0:
				buf.Next(end + TerminalLen)
				frame = Array{}
			default:
				buf.Next(end + TerminalLen)
				open = append(open, make(Array, 0, n))
				continue
			}
		} else {
			var err error
			if frame, err = decodeScalar(buf); err != nil {
				return nil, err
			}
		}

		// Attach the frame to its parent, closing every array it fills.
		for len(open) > 0 {
			top := len(open) - 1
			open[top] = append(open[top], frame)

			if len(open[top]) < cap(open[top]) {
				break
			}

			frame = open[top]
			open = open[:top]
		}

		if len(open) == 0 {
			return frame, nil
		}
	}
}

func decodeNullArray(buf *bytes.Buffer) (NullArray, error) {
	if err := matchLiteral(buf.Bytes(), NullArrayLiteral, "null array"); err != nil {
		return NullArray{}, err
	}

	buf.Next(len(NullArrayLiteral))
	return NullArray{}, nil
}

// - array: "*<number-of-elements>\r\n<element-1>...<element-n>"
func (a Array) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(TypeArray))
	dst = strconv.AppendInt(dst, int64(len(a)), 10)
	dst = append(dst, Terminal...)

	for _, frame := range a {
		dst = frame.AppendTo(dst)
	}

	return dst
}

// - null array: "*-1\r\n"
func (NullArray) AppendTo(dst []byte) []byte {
	return append(dst, NullArrayLiteral...)
}
