package transport

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/flynn/noise"
)

// DialOptions configures a client connection.
type DialOptions struct {
	// Noise enables the encrypted tunnel; StaticKey is the client's own
	// static keypair (an ephemeral one is fine).
	Noise     bool
	StaticKey noise.DHKey

	// ServerKey pins the server's Noise static public key. Nil accepts any.
	ServerKey []byte

	Timeout time.Duration
}

// Dial connects to a server and returns a framed connection.
func Dial(addr string, opts DialOptions) (*Conn, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	raw, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	stream := frameConn(raw)
	var peerStatic []byte
	if opts.Noise {
		_ = raw.SetDeadline(time.Now().Add(timeout))
		nc, static, err := Handshake(raw, true, opts.StaticKey)
		if err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("noise handshake: %w", err)
		}
		_ = raw.SetDeadline(time.Time{})

		if len(opts.ServerKey) > 0 && !bytes.Equal(static, opts.ServerKey) {
			_ = raw.Close()
			return nil, fmt.Errorf("server key mismatch: got %x", static)
		}
		stream, peerStatic = nc, static
	}

	return newConn(raw, stream, peerStatic), nil
}
