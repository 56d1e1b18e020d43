package wire

import "fmt"

// CommandID identifies a command on the wire. The assigned ids form a
// closed set fixed at build time; ids outside it still decode (see Resolve).
type CommandID uint8

const (
	CmdOk     CommandID = 0 // positive acknowledgement
	CmdErr    CommandID = 1 // failure, reason in text
	CmdGet    CommandID = 2 // drain queued messages
	CmdMsg    CommandID = 3 // chat message, sender to receiver
	CmdLogin  CommandID = 4 // bind sender to the connection, password in text
	CmdLogout CommandID = 5 // release the binding
	CmdJoin   CommandID = 6 // join the group named by receiver
	CmdLeave  CommandID = 7 // leave the group named by receiver
)

// FieldSet is a bitmask of the frame fields a command makes use of.
type FieldSet uint8

const (
	FieldSender FieldSet = 1 << iota
	FieldReceiver
	FieldText
)

// Has reports whether all fields in want are present.
func (f FieldSet) Has(want FieldSet) bool { return f&want == want }

// Descriptor describes one command: its wire id, its name, and which
// frame fields it carries.
type Descriptor struct {
	ID     CommandID
	Name   string
	Fields FieldSet
}

// Known reports whether the descriptor belongs to an assigned command id.
func (d Descriptor) Known() bool { return d.Name != "" }

// commands is indexed by CommandID. Read-only after init.
var commands = [...]Descriptor{
	CmdOk:     {CmdOk, "ok", 0},
	CmdErr:    {CmdErr, "err", FieldText},
	CmdGet:    {CmdGet, "get", 0},
	CmdMsg:    {CmdMsg, "msg", FieldSender | FieldReceiver | FieldText},
	CmdLogin:  {CmdLogin, "login", FieldSender | FieldText},
	CmdLogout: {CmdLogout, "logout", 0},
	CmdJoin:   {CmdJoin, "join", FieldReceiver},
	CmdLeave:  {CmdLeave, "leave", FieldReceiver},
}

// Resolve maps a command id to its descriptor. Unassigned ids yield an
// unknown descriptor that still carries the id, so peers speaking a newer
// protocol revision do not break the decoder.
func Resolve(id CommandID) Descriptor {
	if int(id) < len(commands) && commands[id].Known() {
		return commands[id]
	}
	return Descriptor{ID: id}
}

// Commands returns the assigned descriptors in id order.
func Commands() []Descriptor {
	out := make([]Descriptor, 0, len(commands))
	for _, d := range commands {
		if d.Known() {
			out = append(out, d)
		}
	}
	return out
}

func (c CommandID) String() string {
	if d := Resolve(c); d.Known() {
		return d.Name
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(c))
}
