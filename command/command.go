// Package command turns decoded request frames into typed commands and
// executes them against a storage.Store.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/luma/respkv/protocol"
	"github.com/luma/respkv/storage"
)

var (
	// ErrInvalidCommand is wrapped by every error FromFrame returns. These
	// errors are reported to the client, the connection stays open.
	ErrInvalidCommand = errors.New("invalid command")

	ErrNotAnArray      = fmt.Errorf("%w: request must be an array of bulk strings", ErrInvalidCommand)
	ErrEmptyCommand    = fmt.Errorf("%w: empty command", ErrInvalidCommand)
	ErrUnknownCommand  = fmt.Errorf("%w: unknown command", ErrInvalidCommand)
	ErrWrongArity      = fmt.Errorf("%w: wrong number of arguments", ErrInvalidCommand)
	ErrInvalidArgument = fmt.Errorf("%w: invalid argument", ErrInvalidCommand)
)

type Name string

const (
	GET    Name = "GET"
	SET    Name = "SET"
	DEL    Name = "DEL"
	EXISTS Name = "EXISTS"
	PING   Name = "PING"
	ECHO   Name = "ECHO"
	QUIT   Name = "QUIT"
)

// Command is a validated client request. It is executed once and produces
// the reply frame.
type Command interface {
	Name() Name
	Execute(ctx context.Context, store storage.Store) protocol.Frame
}

type Get struct {
	Key string
}

type Set struct {
	Key   string
	Value protocol.Frame
}

type Del struct {
	Keys []string
}

type Exists struct {
	Keys []string
}

type Ping struct {
	Message protocol.BulkString
}

type Echo struct {
	Message protocol.BulkString
}

type Quit struct{}

func (Get) Name() Name    { return GET }
func (Set) Name() Name    { return SET }
func (Del) Name() Name    { return DEL }
func (Exists) Name() Name { return EXISTS }
func (Ping) Name() Name   { return PING }
func (Echo) Name() Name   { return ECHO }
func (Quit) Name() Name   { return QUIT }

// ErrorReply converts an error into the simple error sent to clients.
func ErrorReply(err error) protocol.SimpleError {
	msg := err.Error()
	if !strings.HasPrefix(msg, "ERR ") {
		msg = "ERR " + msg
	}

	return protocol.NewError(msg)
}

var (
	_ Command = Get{}
	_ Command = Set{}
	_ Command = Del{}
	_ Command = Exists{}
	_ Command = Ping{}
	_ Command = Echo{}
	_ Command = Quit{}
)
