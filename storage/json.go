package storage

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/respkv/protocol"
)

// Frame kinds used in the JSON form of stored values.
const (
	KindSimple    = "simple"
	KindError     = "error"
	KindInteger   = "integer"
	KindBulk      = "bulk"
	KindNullBulk  = "nullbulk"
	KindArray     = "array"
	KindNullArray = "nullarray"
)

// MarshalFrame returns the JSON form of a stored value:
//
//	{"type":"bulk","value":"hello"}
//	{"type":"array","value":[{"type":"integer","value":1}]}
//	{"type":"nullbulk"}
//
// Bulk strings are written as JSON strings, so bytes that are not valid UTF-8
// do not survive a round trip.
func MarshalFrame(f protocol.Frame) ([]byte, error) {
	out := []byte(`{}`)

	var (
		kind  string
		value interface{}
		err   error
	)

	switch v := f.(type) {
	case protocol.SimpleString:
		kind, value = KindSimple, string(v)
	case protocol.SimpleError:
		kind, value = KindError, string(v)
	case protocol.Integer:
		kind, value = KindInteger, int64(v)
	case protocol.BulkString:
		kind, value = KindBulk, string(v)
	case protocol.NullBulkString:
		kind = KindNullBulk
	case protocol.NullArray:
		kind = KindNullArray
	case protocol.Array:
		kind = KindArray

		children := make([][]byte, 0, len(v))
		for _, child := range v {
			raw, err := MarshalFrame(child)
			if err != nil {
				return nil, err
			}
			children = append(children, raw)
		}

		if out, err = sjson.SetRawBytes(out, "value", joinArray(children)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("cannot marshal frame of type %T", f)
	}

	if value != nil {
		if out, err = sjson.SetBytes(out, "value", value); err != nil {
			return nil, err
		}
	}

	return sjson.SetBytes(out, "type", kind)
}

// Entry is a stored key and its value.
type Entry struct {
	Key   string
	Value protocol.Frame
}

// MarshalFrames writes entries as a JSON array of
// {"key":...,"type":...,"value":...} objects.
func MarshalFrames(entries []Entry) ([]byte, error) {
	raws := make([][]byte, 0, len(entries))

	for _, e := range entries {
		entry, err := MarshalFrame(e.Value)
		if err != nil {
			return nil, err
		}

		if entry, err = sjson.SetBytes(entry, "key", e.Key); err != nil {
			return nil, err
		}

		raws = append(raws, entry)
	}

	return joinArray(raws), nil
}

// joinArray wraps already encoded JSON values in a single array. Appending
// them one at a time with sjson would copy the document on every element.
func joinArray(values [][]byte) []byte {
	size := 2 + len(values)
	for _, v := range values {
		size += len(v)
	}

	out := make([]byte, 0, size)
	out = append(out, '[')
	out = append(out, bytes.Join(values, []byte{','})...)
	return append(out, ']')
}

// UnmarshalFrame is the inverse of MarshalFrame. A bare JSON string is
// accepted as a bulk string.
func UnmarshalFrame(v gjson.Result) (protocol.Frame, error) {
	if v.Type == gjson.String {
		return protocol.BulkString(v.String()), nil
	}

	if !v.IsObject() {
		return nil, fmt.Errorf("%w: expected an object, got %s", ErrInvalidSnapshot, v.Raw)
	}

	value := v.Get("value")
	kind := v.Get("type").String()

	switch kind {
	case KindSimple, KindError, KindBulk:
		if value.Type != gjson.String {
			return nil, fmt.Errorf("%w: %s value must be a string", ErrInvalidSnapshot, kind)
		}

		switch kind {
		case KindSimple:
			return protocol.SimpleString(value.String()), nil
		case KindError:
			return protocol.SimpleError(value.String()), nil
		default:
			return protocol.BulkString(value.String()), nil
		}

	case KindInteger:
		if value.Type != gjson.Number {
			return nil, fmt.Errorf("%w: integer value must be a number", ErrInvalidSnapshot)
		}
		return protocol.Integer(value.Int()), nil

	case KindNullBulk:
		return protocol.NullBulkString{}, nil

	case KindNullArray:
		return protocol.NullArray{}, nil

	case KindArray:
		if !value.IsArray() {
			return nil, fmt.Errorf("%w: array value must be an array", ErrInvalidSnapshot)
		}

		children := value.Array()
		frames := make(protocol.Array, 0, len(children))

		for _, child := range children {
			frame, err := UnmarshalFrame(child)
			if err != nil {
				return nil, err
			}
			frames = append(frames, frame)
		}

		return frames, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidSnapshot, kind)
	}
}
