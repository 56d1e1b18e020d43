package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"
	"golang.org/x/time/rate"

	"ostrich/internal/logging"
	"ostrich/pkg/wire"
)

var tlog = logging.For("transport")

const (
	defaultMaxConns    = 128
	defaultIdleTimeout = 5 * time.Minute
	defaultFrameRate   = 20
	defaultFrameBurst  = 40
	handshakeTimeout   = 10 * time.Second
)

// Handler receives decoded packets and connection lifecycle events. Handle
// is called from the connection's read goroutine; a slow handler stalls
// only its own connection.
type Handler interface {
	Connected(c *Conn)
	Handle(c *Conn, p wire.Packet)
	Disconnected(c *Conn)
}

// Options configures a Server. Zero values mean built-in defaults.
type Options struct {
	Listen      string
	MaxConns    int
	IdleTimeout time.Duration

	// Per-connection token bucket: sustained frames/sec and burst.
	FrameRate  float64
	FrameBurst int

	// Noise wraps every connection in an encrypted tunnel using StaticKey.
	Noise     bool
	StaticKey noise.DHKey
}

func (o Options) withDefaults() Options {
	if o.MaxConns == 0 {
		o.MaxConns = defaultMaxConns
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = defaultIdleTimeout
	}
	if o.FrameRate == 0 {
		o.FrameRate = defaultFrameRate
	}
	if o.FrameBurst == 0 {
		o.FrameBurst = defaultFrameBurst
	}
	return o
}

// Server accepts connections and feeds decoded frames to a Handler.
type Server struct {
	opts    Options
	handler Handler

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*Conn

	done      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a server; call Listen then Serve.
func NewServer(opts Options, h Handler) *Server {
	return &Server{
		opts:    opts.withDefaults(),
		handler: h,
		conns:   make(map[string]*Conn),
		done:    make(chan struct{}),
	}
}

// Listen binds the configured address. Addr is valid afterwards.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("transport listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until ctx is cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.listener
		s.mu.Unlock()
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()

	tlog.Info("listening", "addr", ln.Addr().String(), "noise", s.opts.Noise)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				tlog.Warn("accept error", "err", err)
				continue
			}
		}
		go s.handleConn(conn)
	}
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		for _, c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
	})
}

// ConnCount returns the number of open connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handleConn(raw net.Conn) {
	// Cheap capacity check before any crypto; addConn decides for real.
	s.mu.Lock()
	atCapacity := len(s.conns) >= s.opts.MaxConns
	s.mu.Unlock()
	if atCapacity {
		tlog.Info("rejecting connection: at capacity", "remote", raw.RemoteAddr())
		_ = raw.Close()
		return
	}

	stream := frameConn(raw)
	var peerStatic []byte
	if s.opts.Noise {
		_ = raw.SetDeadline(time.Now().Add(handshakeTimeout))
		nc, static, err := Handshake(raw, false, s.opts.StaticKey)
		if err != nil {
			tlog.Warn("noise handshake failed", "remote", raw.RemoteAddr(), "err", err)
			_ = raw.Close()
			return
		}
		_ = raw.SetDeadline(time.Time{})
		stream, peerStatic = nc, static
	}

	c := newConn(raw, stream, peerStatic)
	if !s.addConn(c) {
		tlog.Info("rejecting connection: at capacity", "remote", raw.RemoteAddr())
		_ = c.Close()
		return
	}

	tlog.Info("client connected", "conn", c.ID(), "remote", raw.RemoteAddr())
	s.handler.Connected(c)

	s.readLoop(c)

	s.removeConn(c.ID())
	s.handler.Disconnected(c)
	_ = c.Close()
	tlog.Info("client disconnected", "conn", c.ID())
}

func (s *Server) readLoop(c *Conn) {
	limiter := rate.NewLimiter(rate.Limit(s.opts.FrameRate), s.opts.FrameBurst)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := c.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout)); err != nil {
			return
		}

		p, err := c.ReadPacket()
		if err != nil {
			switch {
			case errors.Is(err, wire.ErrInvalidLength):
				// Corrupt or hostile frame: the stream is not worth
				// resynchronizing, drop the connection.
				tlog.Warn("malformed frame", "conn", c.ID(), "err", err)
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			default:
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					tlog.Info("idle timeout", "conn", c.ID())
				} else {
					tlog.Debug("read error", "conn", c.ID(), "err", err)
				}
			}
			return
		}

		if !limiter.Allow() {
			tlog.Warn("rate limit exceeded", "conn", c.ID())
			_ = c.WritePacket(wire.Packet{Command: wire.CmdErr, Text: "rate limited"})
			continue
		}

		s.handler.Handle(c, p)
	}
}

func (s *Server) addConn(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	if len(s.conns) >= s.opts.MaxConns {
		return false
	}
	s.conns[c.ID()] = c
	return true
}

func (s *Server) removeConn(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}
