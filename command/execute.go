package command

import (
	"context"

	"github.com/luma/respkv/protocol"
	"github.com/luma/respkv/storage"
)

var pong = protocol.SimpleString("PONG")

// Execute returns the stored frame, or a null bulk string if key is absent.
func (c Get) Execute(ctx context.Context, store storage.Store) protocol.Frame {
	value, ok, err := store.Get(ctx, c.Key)
	if err != nil {
		return ErrorReply(err)
	}

	if !ok {
		return protocol.NullBulkString{}
	}

	return value
}

// Execute stores the value unconditionally and acknowledges with OK.
func (c Set) Execute(ctx context.Context, store storage.Store) protocol.Frame {
	if err := store.Set(ctx, c.Key, c.Value); err != nil {
		return ErrorReply(err)
	}

	return protocol.OK
}

func (c Del) Execute(ctx context.Context, store storage.Store) protocol.Frame {
	n, err := store.Delete(ctx, c.Keys...)
	if err != nil {
		return ErrorReply(err)
	}

	return protocol.Integer(n)
}

func (c Exists) Execute(ctx context.Context, store storage.Store) protocol.Frame {
	n, err := store.Exists(ctx, c.Keys...)
	if err != nil {
		return ErrorReply(err)
	}

	return protocol.Integer(n)
}

func (c Ping) Execute(context.Context, storage.Store) protocol.Frame {
	if c.Message != nil {
		return c.Message
	}

	return pong
}

func (c Echo) Execute(context.Context, storage.Store) protocol.Frame {
	return c.Message
}

// Execute only acknowledges, closing the connection is up to the caller.
func (Quit) Execute(context.Context, storage.Store) protocol.Frame {
	return protocol.OK
}

// Run converts f into a command and executes it. Invalid commands produce an
// error reply rather than an error, the returned command is nil in that case.
func Run(ctx context.Context, store storage.Store, f protocol.Frame) (Command, protocol.Frame) {
	cmd, err := FromFrame(f)
	if err != nil {
		return nil, ErrorReply(err)
	}

	return cmd, cmd.Execute(ctx, store)
}
