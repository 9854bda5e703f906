package client

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/luma/respkv/protocol"
)

var ErrUnbalancedQuotes = errors.New("unbalanced quotes")

// Format renders a reply the way redis-cli does.
func Format(f protocol.Frame) string {
	var sb strings.Builder
	format(&sb, f, 0)
	return sb.String()
}

func format(sb *strings.Builder, f protocol.Frame, indent int) {
	switch v := f.(type) {
	case protocol.SimpleString:
		sb.WriteString(string(v))

	case protocol.SimpleError:
		sb.WriteString("(error) ")
		sb.WriteString(string(v))

	case protocol.Integer:
		sb.WriteString("(integer) ")
		sb.WriteString(strconv.FormatInt(int64(v), 10))

	case protocol.BulkString:
		sb.WriteString(strconv.Quote(string(v)))

	case protocol.NullBulkString, protocol.NullArray:
		sb.WriteString("(nil)")

	case protocol.Array:
		if len(v) == 0 {
			sb.WriteString("(empty array)")
			return
		}

		width := len(strconv.Itoa(len(v)))
		for i, child := range v {
			if i > 0 {
				sb.WriteByte('\n')
				sb.WriteString(strings.Repeat(" ", indent))
			}

			prefix := fmt.Sprintf("%*d) ", width, i+1)
			sb.WriteString(prefix)
			format(sb, child, indent+len(prefix))
		}

	default:
		fmt.Fprintf(sb, "%v", f)
	}
}

// SplitArgs splits an interactive command line into arguments. Arguments are
// separated by spaces or tabs, double quotes group words and support the
// escapes strconv.Unquote understands, single quotes are literal.
func SplitArgs(line string) ([]string, error) {
	var (
		args []string
		cur  strings.Builder
		in   bool
	)

	flush := func() {
		if in {
			args = append(args, cur.String())
			cur.Reset()
			in = false
		}
	}

	for i := 0; i < len(line); i++ {
		switch c := line[i]; c {
		case ' ', '\t':
			flush()

		case '"':
			end := closingQuote(line, i)
			if end < 0 {
				return nil, ErrUnbalancedQuotes
			}

			s, err := strconv.Unquote(line[i : end+1])
			if err != nil {
				return nil, fmt.Errorf("invalid quoted argument: %w", err)
			}

			cur.WriteString(s)
			in = true
			i = end

		case '\'':
			end := strings.IndexByte(line[i+1:], '\'')
			if end < 0 {
				return nil, ErrUnbalancedQuotes
			}

			cur.WriteString(line[i+1 : i+1+end])
			in = true
			i += end + 1

		default:
			cur.WriteByte(c)
			in = true
		}
	}

	flush()

	return args, nil
}

// closingQuote returns the index of the double quote closing the one at
// start, skipping escaped quotes.
func closingQuote(line string, start int) int {
	for i := start + 1; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}

	return -1
}
