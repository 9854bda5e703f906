package transport

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/respkv/storage"
)

// ErrNotStarted is returned by Close when Start was never called.
var ErrNotStarted = errors.New("tcp server has not been started")

// TCP serves RESP clients from one or more listeners sharing a store.
type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr      string
	reuseport bool

	numListeners int
	listeners    []*TCPListener

	connOptions connOptions
	store       storage.Store

	log *zap.Logger
}

func NewTCP(options Options) *TCP {
	options = options.withDefaults()

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport:    options.Reuseport,
		numListeners: options.NumListeners,
		listeners:    make([]*TCPListener, 0, options.NumListeners),
		connOptions:  options.connOptions(),
		store:        options.Store,
		log:          options.Log,
	}
}

// Start binds every listener before returning, so a bind failure is reported
// here. Connections are then accepted in the background until Close is
// called or parentCtx is done.
func (w *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("Starting tcp listeners", zap.Int("count", w.numListeners))

	addr := w.addr
	for i := 0; i < w.numListeners; i++ {
		ln, err := w.listen(addr)
		if err != nil {
			cancel()
			for _, listener := range w.listeners {
				listener.Close()
			}
			w.listeners = w.listeners[:0]
			return err
		}

		// With port 0 every further listener must share the port the first
		// one was given.
		addr = ln.Addr().String()

		w.startListener(ctx, ln)
	}

	return nil
}

func (w *TCP) listen(addr string) (net.Listener, error) {
	if w.reuseport {
		return reuseport.Listen("tcp", addr)
	}

	return net.Listen("tcp", addr)
}

func (w *TCP) startListener(ctx context.Context, ln net.Listener) {
	listener := NewTCPListener(
		ctx,
		ln,
		w.connOptions,
		w.log.Named("listener").With(zap.Int("listener", len(w.listeners))),
	)

	w.listeners = append(w.listeners, listener)

	w.stopWaiter.Add(1)
	go func() {
		defer w.stopWaiter.Done()

		if err := listener.Serve(); err != nil {
			w.log.Error("Listener stopped accepting connections", zap.Error(err))
		}
	}()
}

func (t *TCP) Store() storage.Store {
	return t.store
}

// Addr returns the address the first listener is bound to, or nil before
// Start.
func (t *TCP) Addr() net.Addr {
	if len(t.listeners) == 0 {
		return nil
	}

	return t.listeners[0].Addr()
}

// ActiveConns counts the open client connections across all listeners.
func (t *TCP) ActiveConns() int {
	n := 0
	for _, listener := range t.listeners {
		n += listener.ActiveConns()
	}

	return n
}

// Close immediately closes all active listeners and connections. Replies that
// are queued but not yet written are dropped, only a client's QUIT drains its
// queue before the connection closes.
func (w *TCP) Close() (err error) {
	if w.cancel == nil {
		return ErrNotStarted
	}

	w.log.Info("Stopping TCP server")
	w.cancel()

	for _, listener := range w.listeners {
		err = multierr.Append(err, listener.Close())
	}

	w.stopWaiter.Wait()
	w.log.Info("TCP server stopped")

	return err
}

type TCPListener struct {
	ctx context.Context

	listener net.Listener
	options  connOptions
	log      *zap.Logger

	mu          sync.Mutex
	closed      bool
	activeConns map[*TCPConn]struct{}
	connWaiter  sync.WaitGroup
}

func NewTCPListener(
	ctx context.Context,
	listener net.Listener,
	options connOptions,
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		listener:    listener,
		options:     options,
		activeConns: make(map[*TCPConn]struct{}),
		log:         log,
	}
}

func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

func (t *TCPListener) ActiveConns() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.activeConns)
}

// Close stops accepting, closes every active connection and waits for their
// loops to exit.
func (t *TCPListener) Close() (err error) {
	if lerr := t.listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) {
		err = lerr
	}

	t.mu.Lock()
	t.closed = true
	conns := make([]*TCPConn, 0, len(t.activeConns))
	for conn := range t.activeConns {
		conns = append(conns, conn)
	}
	t.mu.Unlock()

	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}

	t.connWaiter.Wait()

	return err
}

// Serve accepts connections until the listener is closed.
func (t *TCPListener) Serve() error {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				t.log.Info("Stopped accepting new connections")
				return nil
			}

			return err
		}

		tcpConn := NewTCPConn(t.ctx, conn, t.options, t.log.Named("conn").With(
			zap.Stringer("remote", conn.RemoteAddr()),
		))

		if !t.addConn(tcpConn) {
			// Close already collected the connections it waits for
			if err := conn.Close(); err != nil {
				t.log.Debug("Failed to close connection accepted after close", zap.Error(err))
			}
			return nil
		}

		go func() {
			defer t.connWaiter.Done()
			defer t.removeConn(tcpConn)

			tcpConn.Start()
		}()
	}
}

// addConn registers conn with Close, or reports false once Close has started.
func (t *TCPListener) addConn(conn *TCPConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	t.activeConns[conn] = struct{}{}
	t.connWaiter.Add(1)

	return true
}

func (t *TCPListener) removeConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, conn)
}
