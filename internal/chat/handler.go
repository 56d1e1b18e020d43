package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"ostrich/internal/auth"
	"ostrich/internal/transport"
	"ostrich/pkg/wire"
)

// Handler glues the transport to the hub: one session per connection,
// command dispatch on the connection's read goroutine. Replies and routed
// messages all leave through the session queue, so a client sees them in
// a single consistent order.
type Handler struct {
	hub   *Hub
	users *auth.Users

	mu       sync.RWMutex
	sessions map[string]*session // conn ID -> session
}

func NewHandler(hub *Hub, users *auth.Users) *Handler {
	return &Handler{
		hub:      hub,
		users:    users,
		sessions: make(map[string]*session),
	}
}

func (h *Handler) Connected(c *transport.Conn) {
	s := newSession(c.ID(), c)
	if !h.hub.attachSession(s) {
		// hub is stopping; the transport will close the conn on its own
		return
	}
	h.mu.Lock()
	h.sessions[c.ID()] = s
	h.mu.Unlock()
	go s.run()
}

func (h *Handler) Disconnected(c *transport.Conn) {
	h.mu.Lock()
	s := h.sessions[c.ID()]
	delete(h.sessions, c.ID())
	h.mu.Unlock()
	if s != nil {
		h.hub.detachSession(s)
	}
}

func (h *Handler) Handle(c *transport.Conn, p wire.Packet) {
	h.mu.RLock()
	s := h.sessions[c.ID()]
	h.mu.RUnlock()
	if s == nil {
		return
	}
	h.dispatch(s, p)
}

func (h *Handler) dispatch(s *session, p wire.Packet) {
	switch p.Command {
	case wire.CmdLogin:
		h.login(s, p)

	case wire.CmdLogout:
		if s.user == "" {
			h.reject(s, ErrNotLoggedIn)
			return
		}
		h.hub.unbindUser(s)
		h.ok(s)

	case wire.CmdMsg:
		if s.user == "" {
			h.reject(s, ErrNotLoggedIn)
			return
		}
		if p.Receiver == "" {
			h.reject(s, ErrNoReceiver)
			return
		}
		if err := h.hub.routeMsg(s, p); err != nil {
			h.reject(s, err)
			return
		}
		h.ok(s)

	case wire.CmdGet:
		if s.user == "" {
			h.reject(s, ErrNotLoggedIn)
			return
		}
		if err := h.hub.drainInbox(s); err != nil {
			h.reject(s, err)
			return
		}
		// queued messages are already on the session queue; Ok closes
		// the batch
		h.ok(s)

	case wire.CmdJoin:
		h.membership(s, p, true)

	case wire.CmdLeave:
		h.membership(s, p, false)

	case wire.CmdOk, wire.CmdErr:
		// acks from the peer, answering them would just bounce back
		// and forth

	default:
		h.reject(s, fmt.Errorf("unknown command %d", p.Command))
	}
}

func (h *Handler) login(s *session, p wire.Packet) {
	if s.user != "" {
		h.reject(s, ErrLoggedIn)
		return
	}
	if p.Sender == "" {
		h.reject(s, ErrNoSender)
		return
	}
	// No client can type a zero byte; a name carrying one is a forgery.
	if strings.Contains(p.Sender, "\x00") {
		h.reject(s, ErrBadName)
		return
	}

	if err := h.users.Authenticate(p.Sender, p.Text); err != nil {
		if !errors.Is(err, auth.ErrBadPassword) {
			clog.Error("authentication", "user", p.Sender, "err", err)
			err = errInternal
		}
		clog.Info("login failed", "user", p.Sender, "conn", s.id)
		h.reject(s, err)
		return
	}

	if err := h.hub.bindUser(s, p.Sender); err != nil {
		h.reject(s, err)
		return
	}

	h.ok(s)
	// messages queued while offline follow the Ok
	if err := h.hub.drainInbox(s); err != nil {
		clog.Warn("post-login drain", "user", s.user, "err", err)
	}
}

func (h *Handler) membership(s *session, p wire.Packet, join bool) {
	if s.user == "" {
		h.reject(s, ErrNotLoggedIn)
		return
	}
	if p.Receiver == "" {
		h.reject(s, ErrNoReceiver)
		return
	}
	if err := h.hub.updateMember(s, p.Receiver, join); err != nil {
		h.reject(s, err)
		return
	}
	h.ok(s)
}

func (h *Handler) ok(s *session) {
	s.enqueue(wire.Packet{Command: wire.CmdOk})
}

func (h *Handler) reject(s *session, err error) {
	s.enqueue(wire.Packet{Command: wire.CmdErr, Text: wire.Fit(err.Error(), wire.TextCap)})
}
