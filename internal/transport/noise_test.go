package transport

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"

	"github.com/flynn/noise"

	"ostrich/pkg/wire"
)

func makeNoiseKeypair(t *testing.T) noise.DHKey {
	t.Helper()
	kp, err := noise.DH25519.GenerateKeypair(nil)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return kp
}

func doHandshake(t *testing.T, keyA, keyB noise.DHKey) (*noiseConn, *noiseConn) {
	t.Helper()
	connA, connB := net.Pipe()
	t.Cleanup(func() {
		_ = connA.Close()
		_ = connB.Close()
	})

	var ncA, ncB *noiseConn
	var errA, errB error

	done := make(chan struct{})
	go func() {
		defer close(done)
		ncB, _, errB = Handshake(connB, false, keyB)
	}()
	ncA, _, errA = Handshake(connA, true, keyA)
	<-done

	if errA != nil || errB != nil {
		t.Fatalf("handshake: A=%v B=%v", errA, errB)
	}
	return ncA, ncB
}

func TestHandshakePeerStatic(t *testing.T) {
	keyA := makeNoiseKeypair(t)
	keyB := makeNoiseKeypair(t)
	ncA, ncB := doHandshake(t, keyA, keyB)

	if !bytes.Equal(ncA.PeerStatic(), keyB.Public) {
		t.Error("initiator PeerStatic should match responder public key")
	}
	if !bytes.Equal(ncB.PeerStatic(), keyA.Public) {
		t.Error("responder PeerStatic should match initiator public key")
	}
}

func TestNoiseConnReadWrite(t *testing.T) {
	ncA, ncB := doHandshake(t, makeNoiseKeypair(t), makeNoiseKeypair(t))

	msg := []byte("hello tunnel")
	go func() {
		if _, err := ncA.Write(msg); err != nil {
			t.Errorf("write: %v", err)
		}
	}()

	buf := make([]byte, 100)
	n, err := ncB.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Errorf("got %q, want %q", buf[:n], msg)
	}
}

func TestNoiseConnCarriesWholeFrame(t *testing.T) {
	ncA, ncB := doHandshake(t, makeNoiseKeypair(t), makeNoiseKeypair(t))

	frame := bytes.Repeat([]byte{0x42}, wire.FrameSize)
	go func() {
		if _, err := ncA.Write(frame); err != nil {
			t.Errorf("write: %v", err)
		}
	}()

	// A full frame fits in one message, so one Read returns all of it.
	buf := make([]byte, wire.FrameSize)
	n, err := ncB.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != wire.FrameSize {
		t.Fatalf("read %d bytes, want %d", n, wire.FrameSize)
	}
	if !bytes.Equal(buf, frame) {
		t.Error("frame corrupted in tunnel")
	}
}

func TestNoiseConnPartialRead(t *testing.T) {
	ncA, ncB := doHandshake(t, makeNoiseKeypair(t), makeNoiseKeypair(t))

	msg := []byte("a message longer than the tiny read buffer below")
	go func() {
		if _, err := ncA.Write(msg); err != nil {
			t.Errorf("write: %v", err)
		}
	}()

	var result []byte
	buf := make([]byte, 10)
	for len(result) < len(msg) {
		n, err := ncB.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		result = append(result, buf[:n]...)
	}

	if !bytes.Equal(result, msg) {
		t.Errorf("got %q, want %q", result, msg)
	}
}

func TestNoiseConnRejectsOversizedLength(t *testing.T) {
	keyA := makeNoiseKeypair(t)
	keyB := makeNoiseKeypair(t)
	connA, connB := net.Pipe()
	t.Cleanup(func() {
		_ = connA.Close()
		_ = connB.Close()
	})

	var ncB *noiseConn
	var errB error
	done := make(chan struct{})
	go func() {
		defer close(done)
		ncB, _, errB = Handshake(connB, false, keyB)
	}()
	if _, _, err := Handshake(connA, true, keyA); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	<-done
	if errB != nil {
		t.Fatalf("handshake: %v", errB)
	}

	// A length header far past one frame must be refused before any
	// allocation of that size.
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 1<<30)
	go func() {
		_, _ = connA.Write(lenBuf[:])
	}()

	if _, err := ncB.Read(make([]byte, 16)); err == nil {
		t.Fatal("expected error for oversized noise message")
	}
}

func TestNoiseConnClose(t *testing.T) {
	ncA, ncB := doHandshake(t, makeNoiseKeypair(t), makeNoiseKeypair(t))

	if err := ncA.Close(); err != nil {
		t.Errorf("close A: %v", err)
	}
	if err := ncB.Close(); err != nil {
		t.Errorf("close B: %v", err)
	}
}
