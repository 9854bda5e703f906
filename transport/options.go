package transport

import (
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/luma/respkv/storage"
)

const (
	DefaultMaxBufferSize  = 64 << 20
	DefaultReadBufferSize = 16 << 10
	DefaultCommandTimeout = 3 * time.Second

	// DefaultMaxDepth is how deeply a request may nest arrays. Commands are
	// flat arrays, nesting only shows up in stored values.
	DefaultMaxDepth = 32

	// WriteQueueSize is the number of replies a connection can have queued
	// before its read loop blocks.
	WriteQueueSize = 127
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on, 0 picks a free port. See TCP.Addr()
	Port int

	// Reuseport controls setting SO_REUSEPORT
	Reuseport bool

	// NumListeners only applies with Reuseport, without it there is always a
	// single listener. Defaults to the number of CPUs.
	NumListeners int

	// MaxBufferSize bounds how much unparsed data a connection may hold while
	// waiting for a frame to complete.
	MaxBufferSize int

	// MaxDepth bounds how deeply a request may nest arrays. It is checked
	// before a request is decoded.
	MaxDepth int

	// ReadBufferSize is the size of each socket read.
	ReadBufferSize int

	// CommandTimeout bounds each store operation.
	CommandTimeout time.Duration

	// Trace will log every request and reply at debug level. This is only
	// useful in local debugging
	Trace bool

	Store storage.Store

	Log *zap.Logger
}

// connOptions is the subset of Options each connection needs.
type connOptions struct {
	store          storage.Store
	maxBufferSize  int
	maxDepth       int
	readBufferSize int
	commandTimeout time.Duration
	trace          bool
}

func (o Options) withDefaults() Options {
	if !o.Reuseport {
		o.NumListeners = 1
	} else if o.NumListeners < 1 {
		o.NumListeners = runtime.NumCPU()
	}

	if o.MaxBufferSize <= 0 {
		o.MaxBufferSize = DefaultMaxBufferSize
	}

	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}

	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}

	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}

func (o Options) connOptions() connOptions {
	return connOptions{
		store:          o.Store,
		maxBufferSize:  o.MaxBufferSize,
		maxDepth:       o.MaxDepth,
		readBufferSize: o.ReadBufferSize,
		commandTimeout: o.CommandTimeout,
		trace:          o.Trace,
	}
}
