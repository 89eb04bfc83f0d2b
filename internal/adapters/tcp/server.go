// Package tcp exposes a running FSM engine over the newline-framed JSON
// wire protocol. The server accepts one controller at a time; a new
// connection replaces the previous one.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/corvid-labs/strand/internal/logging"
	"github.com/corvid-labs/strand/pkg/protocol"
)

// Engine is the slice of the runtime the server drives.
type Engine interface {
	Events() <-chan protocol.Message
	SetVariable(name string, value any) error
	Stop()
}

// Server bridges the wire protocol and an Engine: outbound engine events
// become frames on the current connection, inbound frames become engine
// commands.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	onConnect func()

	mu        sync.Mutex
	ln        net.Listener
	conn      net.Conn
	startOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOnConnect registers a callback invoked once, when the first
// controller connects. The facade uses it to launch the FSM run.
func WithOnConnect(fn func()) Option {
	return func(s *Server) { s.onConnect = fn }
}

// NewServer creates a server for the engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the bound listen address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve listens on addr and runs until the engine's event stream closes or
// the context is cancelled. It returns nil on a completed run.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("listening", "addr", ln.Addr())

	stop := context.AfterFunc(ctx, func() { s.shutdown() })
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.forwardEvents(ctx)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.engine.Stop()
				<-done
				return ctx.Err()
			}
			<-done
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.attach(conn)
	}
}

// forwardEvents drains the engine stream into the current connection. When
// the stream closes the run is over and the server shuts down.
func (s *Server) forwardEvents(ctx context.Context) {
	for {
		select {
		case msg, ok := <-s.engine.Events():
			if !ok {
				s.logger.Info("run complete, shutting down")
				s.shutdown()
				return
			}
			if err := s.write(msg); err != nil {
				s.logger.Debug("dropping event", "type", msg.Type, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// attach makes conn the current controller, closing any previous one, and
// greets it with FSM_CONNECTED.
func (s *Server) attach(conn net.Conn) {
	s.mu.Lock()
	prev := s.conn
	s.conn = conn
	s.mu.Unlock()
	if prev != nil {
		s.logger.Info("replacing controller", "remote", prev.RemoteAddr())
		prev.Close()
	}
	s.logger.Info("controller connected", "remote", conn.RemoteAddr())

	if err := s.writeTo(conn, protocol.FSMConnected("FSM interpreter ready")); err != nil {
		s.logger.Warn("greeting failed", "err", err)
		s.detach(conn)
		return
	}
	if s.onConnect != nil {
		s.startOnce.Do(s.onConnect)
	}
	go s.readLoop(conn)
}

// readLoop decodes inbound frames from the controller and applies them to
// the engine. A controller disconnect stops the run.
func (s *Server) readLoop(conn net.Conn) {
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
				s.logger.Warn("framing error", "err", ferr)
			}
			for _, m := range msgs {
				s.handle(conn, m)
			}
		}
		if err != nil {
			if s.detach(conn) {
				s.logger.Info("controller disconnected, stopping run")
				s.engine.Stop()
			}
			return
		}
	}
}

func (s *Server) handle(conn net.Conn, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeSetVariable:
		p, err := msg.SetVariable()
		if err != nil {
			s.replyError(conn, err)
			return
		}
		if err := s.engine.SetVariable(p.Name, p.Value); err != nil {
			s.replyError(conn, err)
		}
	case protocol.TypeStopFSM:
		s.logger.Info("stop requested")
		s.engine.Stop()
	default:
		s.replyError(conn, fmt.Errorf("unsupported message type %q", msg.Type))
	}
}

func (s *Server) replyError(conn net.Conn, err error) {
	s.logger.Warn("rejecting command", "err", err)
	if werr := s.writeTo(conn, protocol.FSMError(err.Error())); werr != nil {
		s.logger.Debug("error reply failed", "err", werr)
	}
}

// write sends a frame to the current controller, if any.
func (s *Server) write(msg protocol.Message) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("no controller connected")
	}
	return s.writeTo(conn, msg)
}

func (s *Server) writeTo(conn net.Conn, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for written := 0; written < len(data); {
		n, err := conn.Write(data[written:])
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

// detach clears conn if it is still the current controller. It reports
// whether it was.
func (s *Server) detach(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn.Close()
	if s.conn != conn {
		return false
	}
	s.conn = nil
	return true
}

// shutdown closes the listener and the current connection.
func (s *Server) shutdown() {
	s.mu.Lock()
	ln := s.ln
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		conn.Close()
	}
	if ln != nil {
		ln.Close()
	}
}
