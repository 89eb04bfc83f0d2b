// Package client implements the controller side of the FSM wire protocol: a
// TCP client that frames outgoing commands, incrementally decodes the inbound
// byte stream, and reports connection lifecycle and messages on a single
// event stream.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/corvid-labs/strand/pkg/protocol"
)

// State is the connection lifecycle phase. A reconnect always passes through
// the full Disconnected -> Connecting -> Connected cycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// ErrAlreadyConnected is returned by Connect when a connection attempt or an
// established connection already exists.
var ErrAlreadyConnected = errors.New("already connecting or connected")

// ErrNotConnected is returned by Send when no connection is established.
var ErrNotConnected = errors.New("not connected")

// EventKind tags an Event.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventMessage      EventKind = "message"
	EventError        EventKind = "error"
)

// Event is a single observable occurrence on the client: a lifecycle change,
// an inbound message, or an error description. A remote-closed connection
// yields only a Disconnected event; socket faults yield an Error event
// followed by Disconnected.
type Event struct {
	Kind    EventKind
	Message protocol.Message
	Err     error
}

// Client owns at most one TCP connection to a running FSM interpreter.
// Events are delivered on the stream returned by Events; the consumer is
// expected to keep draining it.
type Client struct {
	logger      *slog.Logger
	dialTimeout time.Duration
	events      chan Event

	mu         sync.Mutex
	state      State
	conn       net.Conn
	closing    bool
	cancelDial context.CancelFunc
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDialTimeout bounds a connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// New creates a disconnected client.
func New(opts ...Option) *Client {
	c := &Client{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		dialTimeout: 10 * time.Second,
		events:      make(chan Event, 64),
		state:       StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the event stream. It is never closed; a Disconnected event
// marks the end of each connection.
func (c *Client) Events() <-chan Event { return c.events }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts an asynchronous connection attempt. The outcome is
// reported as a Connected event, or an Error event with the state back at
// Disconnected.
func (c *Client) Connect(host string, port int) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect: %w", ErrAlreadyConnected)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	c.state = StateConnecting
	c.closing = false
	c.cancelDial = cancel
	c.mu.Unlock()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	c.logger.Info("connecting", "addr", addr)
	go c.dial(ctx, cancel, addr)
	return nil
}

func (c *Client) dial(ctx context.Context, cancel context.CancelFunc, addr string) {
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect won the race; discard the attempt.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.state = StateDisconnected
		c.cancelDial = nil
		c.mu.Unlock()
		c.logger.Warn("connect failed", "addr", addr, "err", err)
		c.events <- Event{Kind: EventError, Err: fmt.Errorf("connect %s: %w", addr, err)}
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.cancelDial = nil
	c.mu.Unlock()

	c.logger.Info("connected", "addr", addr)
	c.events <- Event{Kind: EventConnected}
	go c.readLoop(conn)
}

// readLoop appends every arrival to the receive buffer and runs the codec,
// emitting a Message event per decoded frame. The buffer is local to the
// connection, so a reconnect never sees residual bytes.
func (c *Client) readLoop(conn net.Conn) {
	var acc []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			var msgs []protocol.Message
			var errs []error
			msgs, acc, errs = protocol.Decode(acc)
			for _, ferr := range errs {
				// A malformed frame poisons only itself.
				c.logger.Warn("framing error", "err", ferr)
				c.events <- Event{Kind: EventError, Err: ferr}
			}
			for _, m := range msgs {
				c.events <- Event{Kind: EventMessage, Message: m}
			}
		}
		if err != nil {
			c.finishConnection(err)
			return
		}
	}
}

// finishConnection tears the connection down and reports exactly one
// Disconnected event. Remote close and deliberate local close are not
// errors.
func (c *Client) finishConnection(err error) {
	c.mu.Lock()
	wasClosing := c.closing
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.closing = false
	c.mu.Unlock()

	if err != nil && !wasClosing && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		c.logger.Warn("connection error", "err", err)
		c.events <- Event{Kind: EventError, Err: err}
	} else {
		c.logger.Info("disconnected")
	}
	c.events <- Event{Kind: EventDisconnected}
}

// Send frames and writes a message, retrying partial writes to completion.
// A write failure is surfaced both as the returned error and as an Error
// event, and tears the connection down.
func (c *Client) Send(msg protocol.Message) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("send %s: %w", msg.Type, ErrNotConnected)
	}
	conn := c.conn
	c.mu.Unlock()

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	for written := 0; written < len(data); {
		n, err := conn.Write(data[written:])
		written += n
		if err != nil {
			werr := fmt.Errorf("send %s: %w", msg.Type, err)
			c.events <- Event{Kind: EventError, Err: werr}
			conn.Close() // readLoop observes the close and reports Disconnected
			return werr
		}
	}
	c.logger.Debug("sent", "type", msg.Type)
	return nil
}

// SetVariable sends a SET_VARIABLE command.
func (c *Client) SetVariable(name string, value any) error {
	return c.Send(protocol.SetVariable(name, value))
}

// StopFSM sends a STOP_FSM command.
func (c *Client) StopFSM() error {
	return c.Send(protocol.StopFSM())
}

// Disconnect closes the connection gracefully (write side first). Calling it
// while already disconnected is a no-op. The Disconnected event is emitted by
// the read loop once the close is observed.
func (c *Client) Disconnect() {
	c.mu.Lock()
	switch c.state {
	case StateDisconnected:
		c.mu.Unlock()
		return
	case StateConnecting:
		cancel := c.cancelDial
		c.state = StateDisconnected
		c.cancelDial = nil
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	conn := c.conn
	c.mu.Unlock()

	c.logger.Info("disconnecting")
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
	conn.Close()
}
