package chat

import (
	"ostrich/pkg/wire"
)

const sessionBuffer = 64

// packetWriter is the outbound half of a client connection.
type packetWriter interface {
	WritePacket(p wire.Packet) error
}

// session is one connection's chat state. Outbound frames are queued on
// send and written by a single goroutine, so hub routing never blocks on a
// slow client. user is set by the hub at login and read by the connection's
// own dispatch goroutine; the hub's reply channels order the two.
type session struct {
	id   string
	user string
	send chan wire.Packet
	w    packetWriter
}

func newSession(id string, w packetWriter) *session {
	return &session{
		id:   id,
		send: make(chan wire.Packet, sessionBuffer),
		w:    w,
	}
}

// run pumps queued frames to the connection until send is closed. After a
// write error the remaining frames are discarded; the transport notices the
// dead connection by itself.
func (s *session) run() {
	for p := range s.send {
		if err := s.w.WritePacket(p); err != nil {
			for range s.send {
			}
			return
		}
	}
}

// enqueue queues p for delivery. Reports false if the buffer is full.
func (s *session) enqueue(p wire.Packet) bool {
	select {
	case s.send <- p:
		return true
	default:
		// drop if the session buffer is full
		return false
	}
}
