package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"ostrich/internal/auth"
	"ostrich/internal/logging"
	"ostrich/pkg/wire"
)

var clog = logging.For("chat")

var (
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrLoggedIn      = errors.New("already logged in")
	ErrUserConnected = errors.New("user already connected")
	ErrNotMember     = errors.New("not a member")
	ErrNoReceiver    = errors.New("missing receiver")
	ErrNoSender      = errors.New("missing sender")
	ErrBadName       = errors.New("not a valid name")
	ErrBadGroupName  = errors.New("not a group name")

	errInternal     = errors.New("internal error")
	errShuttingDown = errors.New("shutting down")
)

// Hub routes messages between live sessions and the offline queues. A single
// goroutine owns the session maps; every operation goes through a request
// channel and comes back on its reply channel, so no session or membership
// state is ever touched concurrently.
type Hub struct {
	users  *auth.Users
	inbox  *Inbox
	groups *Groups

	attach chan sessionReq
	bind   chan bindReq
	unbind chan sessionReq
	detach chan sessionReq
	route  chan routeReq
	member chan memberReq
	drain  chan drainReq

	stop     chan struct{}
	stopOnce sync.Once
}

type bindReq struct {
	s     *session
	user  string
	reply chan error
}

type sessionReq struct {
	s     *session
	reply chan struct{}
}

type routeReq struct {
	s     *session
	p     wire.Packet
	reply chan error
}

type memberReq struct {
	s     *session
	group string
	join  bool
	reply chan error
}

type drainReq struct {
	s     *session
	reply chan error
}

// NewHub creates a hub over the given stores. Call Run in a goroutine.
func NewHub(users *auth.Users, inbox *Inbox, groups *Groups) *Hub {
	return &Hub{
		users:  users,
		inbox:  inbox,
		groups: groups,
		attach: make(chan sessionReq),
		bind:   make(chan bindReq),
		unbind: make(chan sessionReq),
		detach: make(chan sessionReq),
		route:  make(chan routeReq),
		member: make(chan memberReq),
		drain:  make(chan drainReq),
		stop:   make(chan struct{}),
	}
}

// Run is the hub's main loop. It owns the session maps and processes all
// operations sequentially. Run blocks until Stop is called.
func (h *Hub) Run() {
	sessions := make(map[string]*session) // user name -> live session
	attached := make(map[string]*session) // conn id -> session, bound or not

	for {
		select {
		case req := <-h.attach:
			attached[req.s.id] = req.s
			req.reply <- struct{}{}

		case req := <-h.bind:
			err := h.handleBind(sessions, req.s, req.user)
			if err == nil {
				attached[req.s.id] = req.s
			}
			req.reply <- err

		case req := <-h.unbind:
			if req.s.user != "" {
				delete(sessions, req.s.user)
				clog.Info("user offline", "user", req.s.user, "conn", req.s.id)
				req.s.user = ""
			}
			req.reply <- struct{}{}

		case req := <-h.detach:
			if req.s.user != "" {
				delete(sessions, req.s.user)
				clog.Info("user offline", "user", req.s.user, "conn", req.s.id)
			}
			delete(attached, req.s.id)
			close(req.s.send)
			req.reply <- struct{}{}

		case req := <-h.route:
			req.reply <- h.handleRoute(sessions, req.s, req.p)

		case req := <-h.member:
			req.reply <- h.handleMember(req.s, req.group, req.join)

		case req := <-h.drain:
			req.reply <- h.handleDrain(req.s)

		case <-h.stop:
			// Every attached session's queue closes here, logged in or
			// not, so no writer goroutine outlives the hub.
			for _, s := range attached {
				close(s.send)
			}
			return
		}
	}
}

// Stop shuts down the hub. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) handleBind(sessions map[string]*session, s *session, user string) error {
	if s.user != "" {
		return ErrLoggedIn
	}
	if _, ok := sessions[user]; ok {
		return ErrUserConnected
	}
	sessions[user] = s
	s.user = user
	clog.Info("user online", "user", user, "conn", s.id)
	return nil
}

func (h *Hub) handleRoute(sessions map[string]*session, s *session, p wire.Packet) error {
	// The sender field on delivered frames is the authenticated name,
	// whatever the client claimed.
	out := wire.Packet{Command: wire.CmdMsg, Sender: s.user, Receiver: p.Receiver, Text: p.Text}

	if strings.HasPrefix(p.Receiver, "#") {
		group := p.Receiver
		ok, err := h.groups.IsMember(group, s.user)
		if err != nil {
			clog.Error("membership lookup", "group", group, "err", err)
			return errInternal
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotMember, group)
		}
		members, err := h.groups.Members(group)
		if err != nil {
			clog.Error("roster lookup", "group", group, "err", err)
			return errInternal
		}
		for _, m := range members {
			if m == s.user {
				continue
			}
			if ms, ok := sessions[m]; ok {
				ms.enqueue(out)
			}
		}
		return nil
	}

	// Direct message: live session first, the receiver's inbox otherwise.
	if rs, ok := sessions[p.Receiver]; ok {
		if rs.enqueue(out) {
			return nil
		}
	}
	exists, err := h.users.Exists(p.Receiver)
	if err != nil {
		clog.Error("user lookup", "user", p.Receiver, "err", err)
		return errInternal
	}
	if !exists {
		return fmt.Errorf("%w: %s", auth.ErrUnknownUser, p.Receiver)
	}
	if err := h.inbox.Push(p.Receiver, out); err != nil {
		clog.Error("inbox push", "user", p.Receiver, "err", err)
		return errInternal
	}
	return nil
}

func (h *Hub) handleMember(s *session, group string, join bool) error {
	if !strings.HasPrefix(group, "#") || len(group) < 2 || strings.Contains(group, "\x00") {
		return ErrBadGroupName
	}
	var err error
	if join {
		err = h.groups.Add(group, s.user)
	} else {
		err = h.groups.Remove(group, s.user)
	}
	if err != nil {
		clog.Error("membership update", "group", group, "user", s.user, "err", err)
		return errInternal
	}
	return nil
}

func (h *Hub) handleDrain(s *session) error {
	n, err := h.inbox.Drain(s.user, s.enqueue)
	if err != nil {
		clog.Error("inbox drain", "user", s.user, "err", err)
		return errInternal
	}
	if n > 0 {
		clog.Debug("inbox drained", "user", s.user, "delivered", n)
	}
	return nil
}

// attachSession puts s under the hub's shutdown sweep. Reports false when
// the hub is already stopping.
func (h *Hub) attachSession(s *session) bool {
	req := sessionReq{s: s, reply: make(chan struct{}, 1)}
	select {
	case h.attach <- req:
		<-req.reply
		return true
	case <-h.stop:
		return false
	}
}

// bindUser associates s with user. Fails if either side is already bound.
func (h *Hub) bindUser(s *session, user string) error {
	req := bindReq{s: s, user: user, reply: make(chan error, 1)}
	select {
	case h.bind <- req:
		return <-req.reply
	case <-h.stop:
		return errShuttingDown
	}
}

// unbindUser releases s's user binding.
func (h *Hub) unbindUser(s *session) {
	req := sessionReq{s: s, reply: make(chan struct{}, 1)}
	select {
	case h.unbind <- req:
		<-req.reply
	case <-h.stop:
	}
}

// detachSession removes s from routing and closes its outbound queue.
func (h *Hub) detachSession(s *session) {
	req := sessionReq{s: s, reply: make(chan struct{}, 1)}
	select {
	case h.detach <- req:
		<-req.reply
	case <-h.stop:
	}
}

// routeMsg delivers or queues a message from s.
func (h *Hub) routeMsg(s *session, p wire.Packet) error {
	req := routeReq{s: s, p: p, reply: make(chan error, 1)}
	select {
	case h.route <- req:
		return <-req.reply
	case <-h.stop:
		return errShuttingDown
	}
}

// updateMember adds s's user to a group, or removes it.
func (h *Hub) updateMember(s *session, group string, join bool) error {
	req := memberReq{s: s, group: group, join: join, reply: make(chan error, 1)}
	select {
	case h.member <- req:
		return <-req.reply
	case <-h.stop:
		return errShuttingDown
	}
}

// drainInbox pushes s's queued messages onto its outbound queue.
func (h *Hub) drainInbox(s *session) error {
	req := drainReq{s: s, reply: make(chan error, 1)}
	select {
	case h.drain <- req:
		return <-req.reply
	case <-h.stop:
		return errShuttingDown
	}
}
