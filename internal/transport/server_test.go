package transport_test

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/flynn/noise"

	"ostrich/internal/logging"
	"ostrich/internal/transport"
	"ostrich/pkg/wire"
)

// echoHandler writes every received packet straight back.
type echoHandler struct{}

func (echoHandler) Connected(c *transport.Conn)             {}
func (echoHandler) Handle(c *transport.Conn, p wire.Packet) { _ = c.WritePacket(p) }
func (echoHandler) Disconnected(c *transport.Conn)          {}

func startServer(t *testing.T, opts transport.Options, h transport.Handler) *transport.Server {
	t.Helper()
	if opts.Listen == "" {
		opts.Listen = "127.0.0.1:0"
	}
	srv := transport.NewServer(opts, h)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(context.Background()) }()
	t.Cleanup(srv.Stop)
	return srv
}

func dialPlain(t *testing.T, addr string) *transport.Conn {
	t.Helper()
	c, err := transport.Dial(addr, transport.DialOptions{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func roundTrip(t *testing.T, c *transport.Conn, p wire.Packet) wire.Packet {
	t.Helper()
	if err := c.WritePacket(p); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	got, err := c.ReadPacket()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return got
}

func TestServerEcho(t *testing.T) {
	srv := startServer(t, transport.Options{}, echoHandler{})
	c := dialPlain(t, srv.Addr())

	sent := wire.Packet{Command: wire.CmdMsg, Sender: "alice", Receiver: "bob", Text: "hi"}
	got := roundTrip(t, c, sent)
	if got != sent {
		t.Errorf("echo mismatch: got %+v, want %+v", got, sent)
	}
}

func TestServerConnCount(t *testing.T) {
	srv := startServer(t, transport.Options{}, echoHandler{})

	c := dialPlain(t, srv.Addr())
	roundTrip(t, c, wire.Packet{Command: wire.CmdOk})
	if n := srv.ConnCount(); n != 1 {
		t.Fatalf("ConnCount = %d, want 1", n)
	}

	_ = c.Close()
	deadline := time.Now().Add(2 * time.Second)
	for srv.ConnCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := srv.ConnCount(); n != 0 {
		t.Fatalf("ConnCount after close = %d, want 0", n)
	}
}

func TestServerNoise(t *testing.T) {
	serverKey, err := noise.DH25519.GenerateKeypair(nil)
	if err != nil {
		t.Fatalf("server keypair: %v", err)
	}
	clientKey, err := noise.DH25519.GenerateKeypair(nil)
	if err != nil {
		t.Fatalf("client keypair: %v", err)
	}

	srv := startServer(t, transport.Options{Noise: true, StaticKey: serverKey}, echoHandler{})

	c, err := transport.Dial(srv.Addr(), transport.DialOptions{
		Noise:     true,
		StaticKey: clientKey,
		ServerKey: serverKey.Public,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	sent := wire.Packet{Command: wire.CmdLogin, Sender: "alice", Text: "secret"}
	got := roundTrip(t, c, sent)
	if got != sent {
		t.Errorf("echo over noise mismatch: got %+v, want %+v", got, sent)
	}
}

func TestServerNoiseKeyPinMismatch(t *testing.T) {
	serverKey, err := noise.DH25519.GenerateKeypair(nil)
	if err != nil {
		t.Fatalf("server keypair: %v", err)
	}
	clientKey, err := noise.DH25519.GenerateKeypair(nil)
	if err != nil {
		t.Fatalf("client keypair: %v", err)
	}

	srv := startServer(t, transport.Options{Noise: true, StaticKey: serverKey}, echoHandler{})

	wrongKey := make([]byte, 32)
	_, err = transport.Dial(srv.Addr(), transport.DialOptions{
		Noise:     true,
		StaticKey: clientKey,
		ServerKey: wrongKey,
	})
	if err == nil {
		t.Fatal("expected error for pinned key mismatch")
	}
	if !strings.Contains(err.Error(), "server key mismatch") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestServerMalformedFrameDropsConn(t *testing.T) {
	logs := logging.CaptureForTest()
	defer logs.Restore()

	srv := startServer(t, transport.Options{}, echoHandler{})

	raw, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer raw.Close()

	// sender_len 0xFF exceeds the field capacity; the server should give
	// up on the stream rather than answer.
	var frame [wire.FrameSize]byte
	frame[0] = byte(wire.CmdMsg)
	frame[1] = 0xFF
	if _, err := raw.Write(frame[:]); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = raw.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1)
	if _, err := raw.Read(buf); err == nil {
		t.Fatal("expected connection to be closed after malformed frame")
	}
	if !logs.Has(slog.LevelWarn, "malformed frame") {
		t.Error("dropping a bad frame should leave a warning in the log")
	}
}

func TestServerMaxConns(t *testing.T) {
	srv := startServer(t, transport.Options{MaxConns: 1}, echoHandler{})

	c1 := dialPlain(t, srv.Addr())
	roundTrip(t, c1, wire.Packet{Command: wire.CmdOk})

	c2 := dialPlain(t, srv.Addr())
	if err := c2.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	if _, err := c2.ReadPacket(); err == nil {
		t.Fatal("expected second connection to be closed at capacity")
	}

	if n := srv.ConnCount(); n != 1 {
		t.Errorf("ConnCount = %d, want 1", n)
	}
}

func TestServerRateLimit(t *testing.T) {
	srv := startServer(t, transport.Options{FrameRate: 0.5, FrameBurst: 1}, echoHandler{})
	c := dialPlain(t, srv.Addr())

	sent := wire.Packet{Command: wire.CmdMsg, Sender: "alice", Receiver: "bob", Text: "one"}
	got := roundTrip(t, c, sent)
	if got != sent {
		t.Fatalf("first frame should pass: got %+v", got)
	}

	// The bucket is empty now; the next frame draws an error reply
	// instead of an echo, and the connection stays up.
	got = roundTrip(t, c, sent)
	if got.Command != wire.CmdErr {
		t.Fatalf("second frame: got command %v, want %v", got.Command, wire.CmdErr)
	}
	if got.Text != "rate limited" {
		t.Errorf("second frame text = %q", got.Text)
	}
}

func TestServerIdleTimeout(t *testing.T) {
	srv := startServer(t, transport.Options{IdleTimeout: 150 * time.Millisecond}, echoHandler{})
	c := dialPlain(t, srv.Addr())

	if err := c.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	if _, err := c.ReadPacket(); err == nil {
		t.Fatal("expected idle connection to be closed")
	}
}

func TestServerStop(t *testing.T) {
	srv := startServer(t, transport.Options{}, echoHandler{})
	c := dialPlain(t, srv.Addr())
	roundTrip(t, c, wire.Packet{Command: wire.CmdOk})

	srv.Stop()

	if err := c.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	if _, err := c.ReadPacket(); err == nil {
		t.Fatal("expected connection to be closed after Stop")
	}
}
