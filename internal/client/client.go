package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"ostrich/internal/transport"
	"ostrich/pkg/wire"
)

// Client is an interactive connection to an ostrich server. Login runs
// synchronously before Start; afterwards the read loop owns the connection's
// inbound side and prints every frame. lastTo is only touched from the REPL
// goroutine.
type Client struct {
	conn    *transport.Conn
	out     io.Writer
	user    string
	lastTo  string
	started bool

	done chan struct{}
}

func New(conn *transport.Conn, out io.Writer) *Client {
	return &Client{
		conn: conn,
		out:  out,
		done: make(chan struct{}),
	}
}

// Login authenticates and binds the username. Call before Start; it reads
// the server's reply itself.
func (c *Client) Login(user, password string) error {
	p := wire.Packet{Command: wire.CmdLogin, Sender: user, Text: password}
	if err := c.conn.WritePacket(p); err != nil {
		return err
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	reply, err := c.conn.ReadPacket()
	if err != nil {
		return err
	}
	_ = c.conn.SetReadDeadline(time.Time{})

	switch reply.Command {
	case wire.CmdOk:
		c.user = user
		return nil
	case wire.CmdErr:
		return fmt.Errorf("login rejected: %s", reply.Text)
	default:
		return fmt.Errorf("unexpected login reply %s", reply.Command)
	}
}

// Start launches the read loop printing inbound frames.
func (c *Client) Start() {
	c.started = true
	go c.readLoop()
}

// Close tears down the connection and waits briefly for the read loop.
func (c *Client) Close() error {
	err := c.conn.Close()
	if c.started {
		select {
		case <-c.done:
		case <-time.After(time.Second):
		}
	}
	return err
}

// Msg sends text to a user or #group.
func (c *Client) Msg(to, text string) error {
	err := c.conn.WritePacket(wire.Packet{Command: wire.CmdMsg, Sender: c.user, Receiver: to, Text: text})
	if err == nil {
		c.lastTo = to
	}
	return err
}

// Join subscribes to a group.
func (c *Client) Join(group string) error {
	return c.conn.WritePacket(wire.Packet{Command: wire.CmdJoin, Sender: c.user, Receiver: group})
}

// Leave unsubscribes from a group.
func (c *Client) Leave(group string) error {
	return c.conn.WritePacket(wire.Packet{Command: wire.CmdLeave, Sender: c.user, Receiver: group})
}

// Get asks the server to replay the offline queue.
func (c *Client) Get() error {
	return c.conn.WritePacket(wire.Packet{Command: wire.CmdGet, Sender: c.user})
}

// Run reads lines from in and dispatches them until EOF or /quit. Plain
// lines go to the last /msg target.
func (c *Client) Run(in io.Reader, reg *CommandRegistry) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if reg.Dispatch(line, c, c.out) {
				return nil
			}
			continue
		}
		if c.lastTo == "" {
			_, _ = fmt.Fprintln(c.out, "no target yet, use /msg <to> <text> (or /help)")
			continue
		}
		if err := c.Msg(c.lastTo, line); err != nil {
			_, _ = fmt.Fprintf(c.out, "send failed: %v\n", err)
		}
	}
	return scanner.Err()
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		p, err := c.conn.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				_, _ = fmt.Fprintln(c.out, "disconnected")
			} else {
				_, _ = fmt.Fprintf(c.out, "connection lost: %v\n", err)
			}
			return
		}
		c.print(p)
	}
}

func (c *Client) print(p wire.Packet) {
	switch p.Command {
	case wire.CmdOk:
		_, _ = fmt.Fprintln(c.out, "ok")
	case wire.CmdErr:
		_, _ = fmt.Fprintf(c.out, "error: %s\n", p.Text)
	case wire.CmdMsg:
		if strings.HasPrefix(p.Receiver, "#") {
			_, _ = fmt.Fprintf(c.out, "[%s] %s: %s\n", p.Receiver, p.Sender, p.Text)
		} else {
			_, _ = fmt.Fprintf(c.out, "[%s] %s\n", p.Sender, p.Text)
		}
	default:
		_, _ = fmt.Fprintf(c.out, "%s: %+v\n", p.Command, p)
	}
}
