package command

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/luma/respkv/protocol"
)

// FromFrame converts a decoded top level frame into a command. Anything
// other than an array is rejected.
func FromFrame(f protocol.Frame) (Command, error) {
	arr, ok := f.(protocol.Array)
	if !ok {
		return nil, ErrNotAnArray
	}

	return FromArray(arr)
}

// FromArray dispatches on the case-insensitive command name in element zero.
func FromArray(arr protocol.Array) (Command, error) {
	if len(arr) == 0 {
		return nil, ErrEmptyCommand
	}

	name, ok := arr[0].(protocol.BulkString)
	if !ok {
		return nil, fmt.Errorf("%w: command name must be a bulk string", ErrInvalidArgument)
	}

	var (
		cmd Command
		err error
	)

	switch Name(strings.ToUpper(string(name))) {
	case GET:
		cmd, err = NewGet(arr)
	case SET:
		cmd, err = NewSet(arr)
	case DEL:
		cmd, err = NewDel(arr)
	case EXISTS:
		cmd, err = NewExists(arr)
	case PING:
		cmd, err = NewPing(arr)
	case ECHO:
		cmd, err = NewEcho(arr)
	case QUIT:
		cmd, err = NewQuit(arr)
	default:
		return nil, fmt.Errorf("%w '%s'", ErrUnknownCommand, name)
	}

	// The constructors return a zero value alongside an error, which would
	// be a non-nil Command.
	if err != nil {
		return nil, err
	}

	return cmd, nil
}

// NewGet validates "GET key".
func NewGet(arr protocol.Array) (Get, error) {
	if err := validate(arr, GET, 2, false); err != nil {
		return Get{}, err
	}

	key, err := bulkArg(arr, 1, "key")
	if err != nil {
		return Get{}, err
	}

	return Get{Key: key}, nil
}

// NewSet validates "SET key value". The value may be any frame and is stored
// as is.
func NewSet(arr protocol.Array) (Set, error) {
	if err := validate(arr, SET, 3, false); err != nil {
		return Set{}, err
	}

	key, err := bulkArg(arr, 1, "key")
	if err != nil {
		return Set{}, err
	}

	return Set{Key: key, Value: arr[2]}, nil
}

// NewDel validates "DEL key [key ...]".
func NewDel(arr protocol.Array) (Del, error) {
	if err := validate(arr, DEL, 2, true); err != nil {
		return Del{}, err
	}

	keys, err := bulkArgs(arr, 1, "key")
	if err != nil {
		return Del{}, err
	}

	return Del{Keys: keys}, nil
}

// NewExists validates "EXISTS key [key ...]".
func NewExists(arr protocol.Array) (Exists, error) {
	if err := validate(arr, EXISTS, 2, true); err != nil {
		return Exists{}, err
	}

	keys, err := bulkArgs(arr, 1, "key")
	if err != nil {
		return Exists{}, err
	}

	return Exists{Keys: keys}, nil
}

// NewPing validates "PING [message]".
func NewPing(arr protocol.Array) (Ping, error) {
	if err := validate(arr, PING, 1, true); err != nil {
		return Ping{}, err
	}

	if len(arr) > 2 {
		return Ping{}, arityError(PING)
	}

	if len(arr) == 1 {
		return Ping{}, nil
	}

	msg, ok := arr[1].(protocol.BulkString)
	if !ok {
		return Ping{}, argumentError("message", 1, arr[1])
	}

	return Ping{Message: msg}, nil
}

// NewEcho validates "ECHO message".
func NewEcho(arr protocol.Array) (Echo, error) {
	if err := validate(arr, ECHO, 2, false); err != nil {
		return Echo{}, err
	}

	msg, ok := arr[1].(protocol.BulkString)
	if !ok {
		return Echo{}, argumentError("message", 1, arr[1])
	}

	return Echo{Message: msg}, nil
}

// NewQuit validates "QUIT".
func NewQuit(arr protocol.Array) (Quit, error) {
	if err := validate(arr, QUIT, 1, false); err != nil {
		return Quit{}, err
	}

	return Quit{}, nil
}

// validate checks the command name in element zero and the element count,
// which includes the name. With atLeast set arity is a minimum.
func validate(arr protocol.Array, name Name, arity int, atLeast bool) error {
	if len(arr) == 0 {
		return ErrEmptyCommand
	}

	got, ok := arr[0].(protocol.BulkString)
	if !ok || !bytes.EqualFold(got, []byte(name)) {
		return fmt.Errorf("%w: expected the %s command", ErrInvalidArgument, name)
	}

	if len(arr) < arity || (!atLeast && len(arr) != arity) {
		return arityError(name)
	}

	return nil
}

func arityError(name Name) error {
	return fmt.Errorf("%w for '%s' command", ErrWrongArity, strings.ToLower(string(name)))
}

func argumentError(what string, i int, got protocol.Frame) error {
	return fmt.Errorf("%w: %s at position %d must be a bulk string, got %T", ErrInvalidArgument, what, i, got)
}

func bulkArg(arr protocol.Array, i int, what string) (string, error) {
	s, ok := arr[i].(protocol.BulkString)
	if !ok {
		return "", argumentError(what, i, arr[i])
	}

	return string(s), nil
}

func bulkArgs(arr protocol.Array, from int, what string) ([]string, error) {
	out := make([]string, 0, len(arr)-from)

	for i := from; i < len(arr); i++ {
		s, err := bulkArg(arr, i, what)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, nil
}
