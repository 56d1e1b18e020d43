package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"

	"ostrich/pkg/wire"
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// One encrypted message carries at most one frame plus the AEAD tag.
const maxNoiseMsg = wire.FrameSize + 16

// noiseConn wraps a net.Conn with Noise transport encryption. Callers write
// plaintext; each Write becomes one encrypted message on the wire, framed
// as [4B ciphertext_len][ciphertext].
type noiseConn struct {
	conn       net.Conn
	send       *noise.CipherState
	recv       *noise.CipherState
	readBuf    []byte
	writeMu    sync.Mutex
	peerStatic []byte
}

// Handshake runs a Noise XX handshake over conn with the given static
// keypair. Returns the encrypted wrapper and the peer's static public key,
// which callers compare against a pinned key.
func Handshake(conn net.Conn, initiator bool, staticKey noise.DHKey) (*noiseConn, []byte, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: staticKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("noise handshake config: %w", err)
	}

	var sendCS, recvCS *noise.CipherState

	if initiator {
		// -> e
		msg1, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("noise write msg1: %w", err)
		}
		if err := writeHandshakeMsg(conn, msg1); err != nil {
			return nil, nil, err
		}

		// <- e, ee, s, es
		msg2, err := readHandshakeMsg(conn)
		if err != nil {
			return nil, nil, err
		}
		if _, _, _, err = hs.ReadMessage(nil, msg2); err != nil {
			return nil, nil, fmt.Errorf("noise read msg2: %w", err)
		}

		// -> s, se
		msg3, cs1, cs2, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("noise write msg3: %w", err)
		}
		if err := writeHandshakeMsg(conn, msg3); err != nil {
			return nil, nil, err
		}
		sendCS, recvCS = cs1, cs2
	} else {
		// <- e
		msg1, err := readHandshakeMsg(conn)
		if err != nil {
			return nil, nil, err
		}
		if _, _, _, err = hs.ReadMessage(nil, msg1); err != nil {
			return nil, nil, fmt.Errorf("noise read msg1: %w", err)
		}

		// -> e, ee, s, es
		msg2, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("noise write msg2: %w", err)
		}
		if err := writeHandshakeMsg(conn, msg2); err != nil {
			return nil, nil, err
		}

		// <- s, se
		msg3, err := readHandshakeMsg(conn)
		if err != nil {
			return nil, nil, err
		}
		_, cs1, cs2, err := hs.ReadMessage(nil, msg3)
		if err != nil {
			return nil, nil, fmt.Errorf("noise read msg3: %w", err)
		}
		sendCS, recvCS = cs2, cs1
	}

	return &noiseConn{
		conn:       conn,
		send:       sendCS,
		recv:       recvCS,
		peerStatic: hs.PeerStatic(),
	}, hs.PeerStatic(), nil
}

// PeerStatic returns the peer's X25519 static public key.
func (nc *noiseConn) PeerStatic() []byte {
	return nc.peerStatic
}

// Write encrypts p as a single Noise transport message.
func (nc *noiseConn) Write(p []byte) (int, error) {
	nc.writeMu.Lock()
	defer nc.writeMu.Unlock()

	ciphertext, err := nc.send.Encrypt(nil, nil, p)
	if err != nil {
		return 0, fmt.Errorf("noise encrypt: %w", err)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(ciphertext)))

	if _, err := nc.conn.Write(lenBuf[:]); err != nil {
		return 0, err
	}
	if _, err := nc.conn.Write(ciphertext); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read decrypts the next Noise transport message and returns plaintext.
func (nc *noiseConn) Read(p []byte) (int, error) {
	// Hand out leftovers from a previous message first.
	if len(nc.readBuf) > 0 {
		n := copy(p, nc.readBuf)
		nc.readBuf = nc.readBuf[n:]
		return n, nil
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(nc.conn, lenBuf[:]); err != nil {
		return 0, err
	}
	msgLen := binary.BigEndian.Uint32(lenBuf[:])
	if msgLen > maxNoiseMsg {
		return 0, fmt.Errorf("noise message too large: %d > %d", msgLen, maxNoiseMsg)
	}

	ciphertext := make([]byte, msgLen)
	if _, err := io.ReadFull(nc.conn, ciphertext); err != nil {
		return 0, err
	}

	plaintext, err := nc.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return 0, fmt.Errorf("noise decrypt: %w", err)
	}

	n := copy(p, plaintext)
	if n < len(plaintext) {
		nc.readBuf = plaintext[n:]
	}
	return n, nil
}

// SetReadDeadline applies to the underlying connection. It only takes
// effect when Read would hit the socket; with one frame per message the
// buffer is empty between frames, so that is the normal case.
func (nc *noiseConn) SetReadDeadline(t time.Time) error {
	return nc.conn.SetReadDeadline(t)
}

func (nc *noiseConn) SetWriteDeadline(t time.Time) error {
	return nc.conn.SetWriteDeadline(t)
}

func (nc *noiseConn) Close() error {
	return nc.conn.Close()
}

// Handshake messages are framed [2B length][message].
func writeHandshakeMsg(w io.Writer, msg []byte) error {
	if len(msg) > 0xFFFF {
		return fmt.Errorf("handshake message too large: %d", len(msg))
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(msg)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("noise handshake write len: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("noise handshake write msg: %w", err)
	}
	return nil
}

func readHandshakeMsg(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("noise handshake read len: %w", err)
	}
	msg := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, fmt.Errorf("noise handshake read msg: %w", err)
	}
	return msg, nil
}
