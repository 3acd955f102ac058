package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/albertocavalcante/slnsync/internal/log"
)

// drainTimeout bounds how long Shutdown waits for connections to finish.
const drainTimeout = 5 * time.Second

// ServerConfig configures the daemon server.
type ServerConfig struct {
	Paths   *Paths
	Version string
	Handler *Handler

	// Initialize initializes the engine when the server starts.
	Initialize bool
}

// Server serves one engine over a Unix socket. While it runs, the lease
// at Paths.Lease tracks the engine lifecycle.
type Server struct {
	cfg       ServerConfig
	handler   *Handler
	startTime time.Time

	listener net.Listener
	ready    chan struct{}

	mu      sync.Mutex
	clients map[*ClientConn]struct{}

	// stop is closed by RequestShutdown; stopped guards Shutdown.
	stop     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	conns    sync.WaitGroup
	leaseMu  sync.Mutex
}

// NewServer creates a daemon server. A nil Handler gets an engineless one.
func NewServer(cfg ServerConfig) *Server {
	h := cfg.Handler
	if h == nil {
		h = NewHandler(nil)
	}
	s := &Server{
		cfg:       cfg,
		handler:   h,
		startTime: time.Now(),
		ready:     make(chan struct{}),
		clients:   make(map[*ClientConn]struct{}),
		stop:      make(chan struct{}),
	}
	h.server = s
	return s
}

// Handler returns the request handler.
func (s *Server) Handler() *Handler {
	return s.handler
}

// Ready is closed once the socket accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Start claims the socket, publishes the lease and serves until ctx ends,
// a signal arrives or a client requests shutdown.
func (s *Server) Start(ctx context.Context) error {
	logger := log.Component("daemon")
	paths := s.cfg.Paths

	if st := GetStatus(paths); st.Running && st.PID != os.Getpid() {
		return fmt.Errorf("daemon already running for %s (PID: %d)", st.Lease.Root, st.PID)
	}
	if _, err := CleanupStale(paths); err != nil {
		logger.Warn("failed to clean up stale files", "error", err)
	}
	if err := paths.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create daemon directory: %w", err)
	}

	ln, err := net.Listen("unix", paths.Socket)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	if err := os.Chmod(paths.Socket, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}
	s.listener = ln

	if err := s.publish(); err != nil {
		_ = ln.Close()
		_ = paths.Release()
		return fmt.Errorf("failed to write lease: %w", err)
	}
	logger.Info("daemon started", "pid", os.Getpid(), "socket", paths.Socket, "version", s.cfg.Version)

	s.handler.ctx = context.WithoutCancel(ctx)
	if s.cfg.Initialize && s.handler.engine != nil {
		if err := s.handler.engine.Initialize(ctx); err != nil {
			logger.Error("failed to initialize engine", "error", err)
		}
		s.refreshLease()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s.conns.Add(1)
	go s.serve()
	close(s.ready)

	select {
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-s.stop:
		logger.Info("shutdown requested via RPC")
	}
	return s.Shutdown()
}

// publish writes the lease from the current engine state.
func (s *Server) publish() error {
	status := s.handler.Status()

	s.leaseMu.Lock()
	defer s.leaseMu.Unlock()
	if s.stopped.Load() {
		return nil
	}
	return s.cfg.Paths.WriteLease(&Lease{
		PID:         os.Getpid(),
		Root:        status.Root,
		Socket:      s.cfg.Paths.Socket,
		Version:     s.cfg.Version,
		Started:     s.startTime,
		Initialized: status.Initialized,
		Modules:     status.Modules,
		Updated:     time.Now(),
	})
}

// refreshLease republishes after an engine lifecycle change.
func (s *Server) refreshLease() {
	if err := s.publish(); err != nil {
		log.Component("daemon").Warn("failed to update lease", "error", err)
	}
}

func (s *Server) serve() {
	defer s.conns.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Component("daemon").Warn("accept error", "error", err)
			continue
		}

		c := newClientConn(conn)
		s.mu.Lock()
		s.clients[c] = struct{}{}
		n := len(s.clients)
		s.mu.Unlock()
		log.Component("daemon").Debug("client connected", "client_count", n)

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.serveConn(c)
		}()
	}
}

// serveConn answers requests from one connection until it fails.
func (s *Server) serveConn(c *ClientConn) {
	logger := log.Component("daemon")
	defer func() {
		c.Close()
		s.mu.Lock()
		delete(s.clients, c)
		n := len(s.clients)
		s.mu.Unlock()
		logger.Debug("client disconnected", "client_count", n)
	}()

	for {
		var req Request
		err := c.decoder.Decode(&req)
		var syntaxErr *json.SyntaxError
		switch {
		case err == nil:
		case errors.As(err, &syntaxErr):
			logger.Debug("failed to decode request", "error", err)
			_ = c.Send(NewErrorResponse(nil, ErrCodeParseError, "Parse error", nil))
			return
		default:
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("client read failed", "error", err)
			}
			return
		}

		var resp *Response
		if req.JSONRPC != JSONRPCVersion {
			resp = NewErrorResponse(req.ID, ErrCodeInvalidRequest, "Invalid Request: unsupported JSON-RPC version", nil)
		} else {
			resp = s.handler.HandleRequest(c, &req)
		}
		if resp == nil {
			continue
		}
		if err := c.Send(resp); err != nil {
			logger.Debug("failed to send response", "error", err)
			return
		}
	}
}

// Shutdown flushes and stops the engine, tells subscribers, closes every
// connection and withdraws the lease. Later calls are no-ops.
func (s *Server) Shutdown() error {
	s.leaseMu.Lock()
	already := s.stopped.Swap(true)
	s.leaseMu.Unlock()
	if already {
		return nil
	}

	logger := log.Component("daemon")
	logger.Info("shutting down daemon")

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Warn("failed to close listener", "error", err)
		}
	}

	// Pending changes are flushed while clients can still hear about them.
	s.handler.Stop()
	if notif, err := NewNotification(MethodEvent, EventParams{
		Type:      "shutdown",
		Message:   "daemon is shutting down",
		Timestamp: time.Now().Format(time.RFC3339),
	}); err == nil {
		s.Broadcast(notif)
	}

	s.mu.Lock()
	for c := range s.clients {
		c.Close()
	}
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		logger.Warn("shutdown timed out waiting for connections")
	}

	err := s.cfg.Paths.Release()
	if err != nil {
		logger.Warn("failed to remove daemon files", "error", err)
	}
	logger.Info("daemon stopped")
	return err
}

// RequestShutdown asks Start to return.
func (s *Server) RequestShutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Broadcast sends a notification to every subscribed client.
func (s *Server) Broadcast(notif *Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if c.Subscribed() {
			_ = c.Send(notif)
		}
	}
}

// ClientConn is the server side of one connection.
type ClientConn struct {
	conn    net.Conn
	decoder *json.Decoder

	sendMu  sync.Mutex
	encoder *json.Encoder

	subscribed atomic.Bool
	closed     atomic.Bool
}

func newClientConn(conn net.Conn) *ClientConn {
	return &ClientConn{
		conn:    conn,
		decoder: json.NewDecoder(bufio.NewReader(conn)),
		encoder: json.NewEncoder(conn),
	}
}

// Send writes one message. Concurrent calls are serialized.
func (c *ClientConn) Send(msg any) error {
	if c.closed.Load() {
		return net.ErrClosed
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.encoder.Encode(msg)
}

// Close closes the connection once.
func (c *ClientConn) Close() {
	if c.closed.CompareAndSwap(false, true) {
		_ = c.conn.Close()
	}
}

// Subscribe enables sync/event notifications for this client.
func (c *ClientConn) Subscribe() {
	c.subscribed.Store(true)
}

// Subscribed reports whether the client receives events.
func (c *ClientConn) Subscribed() bool {
	return c.subscribed.Load()
}
