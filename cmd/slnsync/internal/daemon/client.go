package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/albertocavalcante/slnsync/internal/log"
)

// ErrNotConnected is returned when trying to use a disconnected client.
var ErrNotConnected = errors.New("not connected to daemon")

// ErrDaemonNotRunning is returned when the daemon is not running.
var ErrDaemonNotRunning = errors.New("daemon not running")

// eventBuffer is how many unread notifications a client holds before
// dropping new ones.
const eventBuffer = 100

// Client is a client for connecting to the daemon.
//
// A single reader goroutine owns the decoder. Responses are routed to the
// waiting call by ID; notifications go to the Events channel.
type Client struct {
	conn      net.Conn
	encoder   *json.Encoder
	encoderMu sync.Mutex
	idGen     IDGenerator

	mu      sync.Mutex
	pending map[int64]chan *Response
	closed  bool

	events    chan *Notification
	done      chan struct{}
	closeOnce sync.Once
}

// Connect connects to the daemon at the given socket path.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		if isConnectionRefused(err) {
			return nil, fmt.Errorf("%w: %w", ErrDaemonNotRunning, err)
		}
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return newClient(conn), nil
}

func newClient(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		pending: make(map[int64]chan *Response),
		events:  make(chan *Notification, eventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop(json.NewDecoder(bufio.NewReader(conn)))
	return c
}

// isConnectionRefused checks if the error is a dial failure (refused
// connection or missing socket file).
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Events returns server notifications. The channel is closed when the
// connection ends. Use Subscribe to ask the server for sync events.
func (c *Client) Events() <-chan *Notification {
	return c.events
}

// readLoop dispatches inbound frames until the connection fails.
func (c *Client) readLoop(dec *json.Decoder) {
	defer c.fail()

	for {
		var msg message
		if err := dec.Decode(&msg); err != nil {
			log.Component("daemon").Debug("client read loop ended", "error", err)
			return
		}

		if msg.ID == nil && msg.Method != "" {
			select {
			case c.events <- &Notification{JSONRPC: msg.JSONRPC, Method: msg.Method, Params: msg.Params}:
			default:
				log.Component("daemon").Debug("dropping event, buffer full", "method", msg.Method)
			}
			continue
		}
		if msg.ID == nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		delete(c.pending, *msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- &Response{JSONRPC: msg.JSONRPC, ID: msg.ID, Result: msg.Result, Error: msg.Error}
		}
	}
}

// fail marks the client closed and releases every waiter.
func (c *Client) fail() {
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	close(c.events)
	close(c.done)
	_ = c.Close()
}

// call sends a request and waits for its response.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	id := c.idGen.Next()
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}

	ch := make(chan *Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.encoderMu.Lock()
	err = c.encoder.Encode(req)
	c.encoderMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("failed to send request: %w", err)
	}

	var resp *Response
	select {
	case resp = <-ch:
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
	if resp == nil {
		return ErrNotConnected
	}

	if resp.Error != nil {
		return resp.Error
	}

	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	return nil
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Ping sends a ping request to the daemon.
func (c *Client) Ping(ctx context.Context) (*PingResult, error) {
	var result PingResult
	if err := c.call(ctx, MethodPing, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Shutdown asks the daemon process to exit.
func (c *Client) Shutdown(ctx context.Context) (*ShutdownResult, error) {
	var result ShutdownResult
	if err := c.call(ctx, MethodShutdown, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Initialize initializes the daemon's engine and subscribes to its events.
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	var result InitializeResult
	if err := c.call(ctx, MethodInitialize, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StopSync shuts the engine down without stopping the daemon.
func (c *Client) StopSync(ctx context.Context) (*StopResult, error) {
	var result StopResult
	if err := c.call(ctx, MethodStop, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ForceSync rescans from scratch and regenerates everything.
func (c *Client) ForceSync(ctx context.Context) (*GenerateResult, error) {
	var result GenerateResult
	if err := c.call(ctx, MethodForceSync, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Generate regenerates every artifact.
func (c *Client) Generate(ctx context.Context) (*GenerateResult, error) {
	var result GenerateResult
	if err := c.call(ctx, MethodGenerate, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Notify reports a file change.
func (c *Client) Notify(ctx context.Context, params *NotifyParams) (*NotifyResult, error) {
	var result NotifyResult
	if err := c.call(ctx, MethodNotify, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Flush drains pending changes.
func (c *Client) Flush(ctx context.Context) (*FlushResult, error) {
	var result FlushResult
	if err := c.call(ctx, MethodFlush, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status returns engine state and counters.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var result StatusResult
	if err := c.call(ctx, MethodStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Subscribe asks the server for sync/event notifications and returns the
// channel they arrive on.
func (c *Client) Subscribe(ctx context.Context) (<-chan *Notification, error) {
	var result SubscribeResult
	if err := c.call(ctx, MethodSubscribe, nil, &result); err != nil {
		return nil, err
	}
	return c.events, nil
}

// IsDaemonRunningAt checks if the daemon is running at the given paths.
func IsDaemonRunningAt(paths *Paths) bool {
	return GetStatus(paths).Running
}
