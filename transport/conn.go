package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/luma/respkv/command"
	"github.com/luma/respkv/protocol"
)

type closeWriter interface {
	CloseWrite() error
}

// TCPConn serves a single client. The read loop decodes requests and runs
// them, the write loop writes the replies in request order.
type TCPConn struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn    net.Conn
	options connOptions

	// buf holds bytes read from the client that do not form a complete
	// frame yet. Only the read loop touches it.
	buf bytes.Buffer

	// writeQueue is only sent to, and closed, by the read loop
	writeQueue chan []byte

	done chan struct{}

	log *zap.Logger
}

func NewTCPConn(
	parentCtx context.Context,
	conn net.Conn,
	options connOptions,
	log *zap.Logger,
) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &TCPConn{
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		options:    options,
		writeQueue: make(chan []byte, WriteQueueSize),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Close stops the connection and waits until its loops have exited.
func (t *TCPConn) Close() error {
	t.cancel()
	<-t.done

	return nil
}

// Start runs the connection until the client leaves, sends QUIT, breaks the
// protocol, or Close is called.
func (t *TCPConn) Start() {
	defer close(t.done)

	// Unblock any pending socket operation once we're cancelled
	go func() {
		<-t.ctx.Done()
		_ = t.conn.SetDeadline(time.Now())
	}()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		t.WriteLoop()
	}()

	t.ReadLoop()
	<-writeDone

	t.cancel()

	if err := t.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		t.log.Warn("Connection did not close cleanly", zap.Error(err))
	}
}

func (t *TCPConn) ReadLoop() {
	log := t.log.Named("readLoop")

	defer func() {
		// Let the write loop drain and exit
		close(t.writeQueue)
		log.Debug("Read loop exited")
	}()

	chunk := make([]byte, t.options.readBufferSize)

	for {
		n, err := t.conn.Read(chunk)
		if n > 0 {
			t.buf.Write(chunk[:n])

			if !t.process(log) {
				return
			}
		}

		if err != nil {
			switch {
			case errors.Is(err, io.EOF), t.ctx.Err() != nil:
				log.Debug("Client disconnected")
			default:
				log.Warn("Failed to read from client", zap.Error(err))
			}

			return
		}
	}
}

// process runs every complete request in the buffer. It returns false once the
// connection should be closed.
func (t *TCPConn) process(log *zap.Logger) bool {
	for t.buf.Len() > 0 {
		if err := protocol.CheckDepth(t.buf.Bytes(), t.options.maxDepth); err != nil {
			log.Warn("Rejected request", zap.Error(err), zap.Int("maxDepth", t.options.maxDepth))
			t.reply(log, protocol.NewErrorf("ERR Protocol error: %s", err))
			return false
		}

		frame, err := protocol.Decode(&t.buf)

		if protocol.IsIncomplete(err) {
			if t.buf.Len() > t.options.maxBufferSize {
				log.Warn("Request exceeds the maximum buffer size",
					zap.Int("buffered", t.buf.Len()),
					zap.Int("max", t.options.maxBufferSize))

				t.reply(log, protocol.NewErrorf(
					"ERR Protocol error: request exceeds %d bytes", t.options.maxBufferSize))
				return false
			}

			return true
		}

		if err != nil {
			log.Warn("Malformed request", zap.Error(err))
			t.reply(log, protocol.NewErrorf("ERR Protocol error: %s", err))
			return false
		}

		if t.options.trace {
			log.Debug("Request", zap.ByteString("frame", protocol.Encode(frame)))
		}

		ctx, cancel := context.WithTimeout(t.ctx, t.options.commandTimeout)
		cmd, reply := command.Run(ctx, t.options.store, frame)
		cancel()

		t.reply(log, reply)

		if _, ok := cmd.(command.Quit); ok {
			log.Debug("Client QUIT, closing")
			return false
		}
	}

	return true
}

func (t *TCPConn) reply(log *zap.Logger, f protocol.Frame) {
	data := protocol.Encode(f)

	if t.options.trace {
		log.Debug("Reply", zap.ByteString("frame", data))
	}

	t.writeQueue <- data
}

// WriteLoop writes queued replies until the queue is closed. Consecutive
// replies are coalesced into a single write.
func (t *TCPConn) WriteLoop() {
	log := t.log.Named("writeLoop")
	w := bufio.NewWriter(t.conn)

	var failed bool

	for data := range t.writeQueue {
		if failed {
			// Keep draining so the read loop never blocks on us
			continue
		}

		_, err := w.Write(data)
		if err == nil && len(t.writeQueue) == 0 {
			err = w.Flush()
		}

		if err != nil {
			log.Warn("Failed to write reply", zap.Error(err))
			failed = true
			t.cancel()
		}
	}

	if failed {
		return
	}

	if err := w.Flush(); err != nil {
		log.Warn("Failed to flush replies", zap.Error(err))
		return
	}

	if cw, ok := t.conn.(closeWriter); ok {
		if err := cw.CloseWrite(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debug("Failed to close writes on connection cleanly", zap.Error(err))
		}
	}
}
