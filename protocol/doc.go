// Package protocol implements parsing and serialising the frames that
// respkv uses to communicate with its clients.
//
// The wire format is the Redis serialization protocol (RESP2):
//
//	+<text>\r\n                  simple string
//	-<text>\r\n                  simple error
//	:<n>\r\n                     integer
//	$<byte-length>\r\n<bytes>\r\n bulk string
//	$-1\r\n                      null bulk string
//	*<count>\r\n<element>...     array
//	*-1\r\n                      null array
//
// === Decoding
//
// Network reads deliver arbitrary chunks, so Decode is incremental. It is
// given the connection's buffer of unconsumed bytes and either
//
//   - returns a frame and advances the buffer past it,
//   - returns ErrIncomplete and leaves the buffer untouched, or
//   - returns an error wrapping ErrMalformed.
//
// A frame is consumed atomically. Arrays are measured up front with
// ExpectedLength, peeking at every nested child, so an array that is only
// partially buffered never consumes its header or its leading children.
// Measuring and decoding both walk nested arrays with an explicit stack, in
// a single pass.
//
// Decode itself has no limits on nesting depth or payload size. Connection
// layers call CheckDepth on their buffer before decoding and check the size
// of the buffer themselves.
//
// === Encoding
//
// Every Frame knows how to append its canonical wire form, Encode and
// AppendFrame are thin wrappers around that. For any frame f,
// Decode(Encode(f)) yields f.
//
// Simple strings and simple errors cannot carry "\r\n". Encoding writes each
// such pair as two spaces so the stream stays in sync, the round trip above
// holds for text without it. NewError replaces every line terminator so
// arbitrary error messages can be sent.
package protocol
