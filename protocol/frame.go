package protocol

// Type is the leading marker byte of a frame on the wire.
type Type byte

const (
	TypeSimpleString Type = '+'
	TypeSimpleError  Type = '-'
	TypeInteger      Type = ':'
	TypeBulkString   Type = '$'
	TypeArray        Type = '*'
)

var (
	Terminal = []byte("\r\n")

	NullBulkStringLiteral = []byte("$-1\r\n")
	NullArrayLiteral      = []byte("*-1\r\n")
)

// TerminalLen is the length of the "\r\n" line terminator.
const TerminalLen = 2

// Frame is one self-delimited unit of the wire protocol. The set of frames is
// closed: SimpleString, SimpleError, Integer, BulkString, NullBulkString,
// Array and NullArray.
type Frame interface {
	// Type returns the marker the frame is written with.
	Type() Type

	// AppendTo appends the canonical wire form of the frame to dst.
	AppendTo(dst []byte) []byte

	frame()
}

// SimpleString is written as "+<text>\r\n". A "\r\n" inside the text is
// written as two spaces.
type SimpleString string

// SimpleError is written as "-<text>\r\n", with "\r\n" inside the text
// written as two spaces.
type SimpleError string

// Integer is written as ":<n>\r\n".
type Integer int64

// BulkString is a length prefixed, binary safe byte string.
type BulkString []byte

// NullBulkString is the "$-1\r\n" sentinel.
type NullBulkString struct{}

// Array is an ordered sequence of frames. Children are owned by the array.
type Array []Frame

// NullArray is the "*-1\r\n" sentinel.
type NullArray struct{}

// OK is the canonical acknowledgement reply.
var OK = SimpleString("OK")

func (SimpleString) Type() Type   { return TypeSimpleString }
func (SimpleError) Type() Type    { return TypeSimpleError }
func (Integer) Type() Type        { return TypeInteger }
func (BulkString) Type() Type     { return TypeBulkString }
func (NullBulkString) Type() Type { return TypeBulkString }
func (Array) Type() Type          { return TypeArray }
func (NullArray) Type() Type      { return TypeArray }

func (SimpleString) frame()   {}
func (SimpleError) frame()    {}
func (Integer) frame()        {}
func (BulkString) frame()     {}
func (NullBulkString) frame() {}
func (Array) frame()          {}
func (NullArray) frame()      {}

// Error implements the error interface so a SimpleError received from a
// server can be returned directly to callers.
func (e SimpleError) Error() string {
	return string(e)
}

// IsNull reports whether f is one of the null sentinels.
func IsNull(f Frame) bool {
	switch f.(type) {
	case NullBulkString, NullArray:
		return true
	default:
		return false
	}
}

var (
	_ Frame = SimpleString("")
	_ Frame = SimpleError("")
	_ Frame = Integer(0)
	_ Frame = BulkString(nil)
	_ Frame = NullBulkString{}
	_ Frame = Array(nil)
	_ Frame = NullArray{}
)
