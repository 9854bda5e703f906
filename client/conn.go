package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/respkv/protocol"
)

const readChunkSize = 4096

var (
	// ErrClosed is returned for requests made on, or pending when, the
	// connection is closed.
	ErrClosed = errors.New("connection is closed")

	ErrEmptyCommand    = errors.New("command name is required")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

type result struct {
	frame protocol.Frame
	err   error
}

// Conn is a RESP client connection. It is safe for concurrent use, replies are
// matched to requests in the order the requests were written.
type Conn struct {
	conn net.Conn

	// mu guards pending and err, and serialises writes so the order of
	// pending matches the order requests hit the wire
	mu      sync.Mutex
	pending []chan result
	err     error

	// buf is owned by the read loop
	buf bytes.Buffer

	closed chan struct{}

	log *zap.Logger
}

func Dial(ctx context.Context, addr string, log *zap.Logger) (*Conn, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	return New(conn, log), nil
}

// New wraps an established connection and starts reading replies from it.
func New(conn net.Conn, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}

	c := &Conn{
		conn:   conn,
		closed: make(chan struct{}),
		log:    log,
	}

	go c.readLoop()

	return c
}

// Do sends a command and waits for its reply. Error replies are returned as
// protocol.SimpleError frames, not as errors; err is only set when no reply
// was received.
func (c *Conn) Do(ctx context.Context, args ...string) (protocol.Frame, error) {
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}

	respChan := make(chan result, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}

	c.pending = append(c.pending, respChan)

	if err := protocol.WriteCommand(c.conn, args[0], args[1:]...); err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		return nil, c.closedError(err)
	}
	c.mu.Unlock()

	select {
	case resp := <-respChan:
		return resp.frame, resp.err

	case <-ctx.Done():
		// The reply will still arrive and be dropped into respChan, which
		// keeps later replies matched to the right requests.
		return nil, ctx.Err()
	}
}

func (c *Conn) Ping(ctx context.Context) error {
	reply, err := c.Do(ctx, "PING")
	if err != nil {
		return err
	}

	return expectSimple(reply, "PONG")
}

// Get returns the value stored under key, found is false if it does not
// exist.
func (c *Conn) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	reply, err := c.Do(ctx, "GET", key)
	if err != nil {
		return nil, false, err
	}

	switch r := reply.(type) {
	case protocol.BulkString:
		return []byte(r), true, nil
	case protocol.NullBulkString:
		return nil, false, nil
	case protocol.SimpleError:
		return nil, false, r
	default:
		return nil, false, unexpected(reply)
	}
}

func (c *Conn) Set(ctx context.Context, key string, value []byte) error {
	reply, err := c.Do(ctx, "SET", key, string(value))
	if err != nil {
		return err
	}

	return expectSimple(reply, "OK")
}

// Del deletes keys and returns how many existed.
func (c *Conn) Del(ctx context.Context, keys ...string) (int64, error) {
	return c.count(ctx, "DEL", keys)
}

// Exists returns how many of keys exist.
func (c *Conn) Exists(ctx context.Context, keys ...string) (int64, error) {
	return c.count(ctx, "EXISTS", keys)
}

func (c *Conn) count(ctx context.Context, name string, keys []string) (int64, error) {
	reply, err := c.Do(ctx, append([]string{name}, keys...)...)
	if err != nil {
		return 0, err
	}

	switch r := reply.(type) {
	case protocol.Integer:
		return int64(r), nil
	case protocol.SimpleError:
		return 0, r
	default:
		return 0, unexpected(reply)
	}
}

// Quit asks the server to close the connection, then closes our end.
func (c *Conn) Quit(ctx context.Context) error {
	reply, err := c.Do(ctx, "QUIT")
	if err != nil {
		return err
	}

	if err := expectSimple(reply, "OK"); err != nil {
		return err
	}

	return c.Close()
}

// Close closes the connection and waits for the read loop to exit. Pending
// requests fail with ErrClosed.
func (c *Conn) Close() error {
	err := c.conn.Close()
	<-c.closed

	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// Err returns the error that stopped the connection, or nil while it is
// usable.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

func (c *Conn) readLoop() {
	log := c.log.Named("readLoop")
	defer close(c.closed)

	chunk := make([]byte, readChunkSize)

	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.buf.Write(chunk[:n])

			if derr := c.deliverBuffered(log); derr != nil {
				log.Warn("Failed to decode server reply", zap.Error(derr))
				c.fail(derr)
				return
			}
		}

		if err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *Conn) deliverBuffered(log *zap.Logger) error {
	for c.buf.Len() > 0 {
		frame, err := protocol.Decode(&c.buf)
		if protocol.IsIncomplete(err) {
			return nil
		}

		if err != nil {
			return err
		}

		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			log.Warn("Dropping reply with no pending request",
				zap.ByteString("reply", protocol.Encode(frame)))
			continue
		}

		respChan := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		respChan <- result{frame: frame}
	}

	return nil
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failLocked(err)
}

func (c *Conn) failLocked(err error) {
	if c.err == nil {
		c.err = c.closedError(err)
	}

	for _, respChan := range c.pending {
		respChan <- result{err: c.err}
	}
	c.pending = nil
}

func (c *Conn) closedError(err error) error {
	if errors.Is(err, ErrClosed) {
		return err
	}

	return fmt.Errorf("%w: %v", ErrClosed, err)
}

func expectSimple(reply protocol.Frame, want string) error {
	switch r := reply.(type) {
	case protocol.SimpleString:
		if string(r) == want {
			return nil
		}
	case protocol.SimpleError:
		return r
	}

	return unexpected(reply)
}

func unexpected(reply protocol.Frame) error {
	return fmt.Errorf("%w: %s", ErrUnexpectedReply, Format(reply))
}
