package protocol

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// maxLength bounds declared bulk string lengths and array counts so the
// length arithmetic below can never overflow.
const maxLength = math.MaxInt32

// matchLiteral checks that b starts with literal.
//
// A buffer shorter than literal is incomplete, a buffer that holds enough
// bytes but differs is malformed.
func matchLiteral(b []byte, literal []byte, name string) error {
	if len(b) < len(literal) {
		return ErrIncomplete
	}

	if !bytes.HasPrefix(b, literal) {
		return fmt.Errorf("%w: expected %s %q, got %q",
			ErrMalformed, name, literal, b[:len(literal)])
	}

	return nil
}

// scanLine finds the first "\r\n" after the one byte marker of a line
// terminated frame and returns the offset of the '\r'.
func scanLine(b []byte, marker Type) (int, error) {
	if len(b) == 0 {
		return 0, ErrIncomplete
	}

	if b[0] != byte(marker) {
		return 0, fmt.Errorf("%w: expected marker %q, got %q", ErrMalformed, marker, b[0])
	}

	idx := bytes.Index(b[1:], Terminal)
	if idx == -1 {
		return 0, ErrIncomplete
	}

	return idx + 1, nil
}

// parseLength parses the "<marker><n>\r\n" header of a bulk string or array.
// It returns the offset of the header's '\r' and the declared length, which
// is either non-negative or the -1 null sentinel.
func parseLength(b []byte, marker Type) (end int, length int, err error) {
	end, err = scanLine(b, marker)
	if err != nil {
		return 0, 0, err
	}

	n, err := strconv.ParseInt(string(b[1:end]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid length %q", ErrMalformed, b[1:end])
	}

	if n < -1 || n > maxLength {
		return 0, 0, fmt.Errorf("%w: length %d out of range", ErrMalformed, n)
	}

	return end, int(n), nil
}

// ExpectedLength peeks at the frame at the start of b and returns the total
// number of bytes it occupies on the wire, without consuming anything.
//
// For arrays every child is peeked as well, so an incomplete child makes the
// whole array incomplete. For bulk strings the returned length may exceed
// len(b), callers must compare it against the bytes they hold.
func ExpectedLength(b []byte) (int, error) {
	return measure(b, 0)
}

// CheckDepth reports an error wrapping ErrTooDeep when the frame at the start
// of b nests arrays more than maxDepth levels deep. Only the bytes already in
// b are inspected, a frame that is still incomplete but within the limit so
// far passes. Malformed input is reported as such.
func CheckDepth(b []byte, maxDepth int) error {
	_, err := measure(b, maxDepth)
	if err != nil && !IsIncomplete(err) {
		return err
	}

	return nil
}

// measure walks the frame at the start of b without recursing. pending holds
// the number of children still expected by each open array, innermost last.
// A maxDepth of 0 disables the nesting limit.
func measure(b []byte, maxDepth int) (int, error) {
	var (
		total   int
		pending []int
	)

	for {
		if total >= len(b) {
			return 0, ErrIncomplete
		}

		n, children, err := header(b[total:])
		if err != nil {
			return 0, err
		}

		total += n

		if children >= 0 {
			if maxDepth > 0 && len(pending) >= maxDepth {
				return 0, fmt.Errorf("%w: more than %d levels", ErrTooDeep, maxDepth)
			}

			if children > 0 {
				pending = append(pending, children)
				continue
			}
		}

		// A frame just ended, close every array it completes.
		for len(pending) > 0 {
			pending[len(pending)-1]--
			if pending[len(pending)-1] > 0 {
				break
			}
			pending = pending[:len(pending)-1]
		}

		if len(pending) == 0 {
			return total, nil
		}
	}
}

// header returns the wire length of the frame at the start of b, or of its
// header alone when it is a non-null array. children is the element count of
// such an array and -1 for every other frame.
func header(b []byte) (n int, children int, err error) {
	marker := Type(b[0])

	switch marker {
	case TypeSimpleString, TypeSimpleError, TypeInteger:
		end, err := scanLine(b, marker)
		if err != nil {
			return 0, 0, err
		}
		return end + TerminalLen, -1, nil

	case TypeBulkString:
		end, length, err := parseLength(b, marker)
		if err != nil {
			return 0, 0, err
		}
		if length < 0 {
			return end + TerminalLen, -1, nil
		}
		return end + TerminalLen + length + TerminalLen, -1, nil

	case TypeArray:
		end, length, err := parseLength(b, marker)
		if err != nil {
			return 0, 0, err
		}
		if length < 0 {
			return end + TerminalLen, -1, nil
		}
		return end + TerminalLen, length, nil

	default:
		return 0, 0, fmt.Errorf("%w: unknown marker %q", ErrMalformed, b[0])
	}
}
