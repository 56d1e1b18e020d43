package transport

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"ostrich/pkg/wire"
)

const defaultWriteTimeout = 10 * time.Second

// frameConn is the stream a Conn runs over: the raw TCP connection, or the
// Noise wrapper when the tunnel is on.
type frameConn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Conn exchanges whole frames over a stream. Reads pull exactly
// wire.FrameSize bytes before the decoder ever runs, so a partial frame is
// indistinguishable from a dead connection and never reaches packet logic.
// WritePacket is safe for concurrent use; reads belong to one goroutine.
type Conn struct {
	id         string
	raw        net.Conn
	stream     frameConn
	peerStatic []byte // remote Noise static, nil on plaintext conns

	readBuf [wire.FrameSize]byte

	writeMu      sync.Mutex
	writeBuf     [wire.FrameSize]byte
	writeTimeout time.Duration

	closeOnce sync.Once
}

func newConn(raw net.Conn, stream frameConn, peerStatic []byte) *Conn {
	return &Conn{
		id:           uuid.NewString(),
		raw:          raw,
		stream:       stream,
		peerStatic:   peerStatic,
		writeTimeout: defaultWriteTimeout,
	}
}

// ID returns the connection's log identifier.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// PeerStatic returns the remote Noise static key, or nil without the tunnel.
func (c *Conn) PeerStatic() []byte { return c.peerStatic }

// ReadPacket reads and decodes the next frame.
func (c *Conn) ReadPacket() (wire.Packet, error) {
	if _, err := io.ReadFull(c.stream, c.readBuf[:]); err != nil {
		return wire.Packet{}, err
	}
	return wire.Decode(c.readBuf[:])
}

// WritePacket encodes p and writes it as one frame in a single Write call,
// so a Noise tunnel carries exactly one frame per message.
func (c *Conn) WritePacket(p wire.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := wire.EncodeTo(p, c.writeBuf[:]); err != nil {
		return err
	}
	if c.writeTimeout > 0 {
		if err := c.stream.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := c.stream.Write(c.writeBuf[:])
	return err
}

// SetReadDeadline bounds the next ReadPacket.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

// Close closes the connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.stream.Close()
	})
	return err
}
