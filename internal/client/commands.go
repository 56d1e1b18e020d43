package client

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// CommandContext holds the state available to command handlers.
type CommandContext struct {
	Client *Client
	Out    io.Writer
	Args   []string
}

// CommandHandler processes a slash command. Returns true if the REPL
// should exit (e.g., /quit).
type CommandHandler func(ctx CommandContext) bool

// Command describes a registered slash command.
type Command struct {
	Usage   string // full usage for help (e.g., "/msg <to> <text>"); defaults to command name
	Help    string
	Handler CommandHandler
}

// CommandRegistry maps command names to handlers and produces dynamic help.
// It is safe for concurrent use. Once frozen (via Freeze), no new commands
// can be registered.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]Command
	order    []string // insertion order for stable help output
	frozen   bool
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]Command),
	}
}

// Register adds a command to the registry. The name should include the
// leading slash (e.g., "/quit"). Registering the same name twice overwrites
// the previous entry. Panics if cmd.Handler is nil or if the registry is
// frozen.
func (r *CommandRegistry) Register(name string, cmd Command) {
	if cmd.Handler == nil {
		panic("client: Register called with nil handler for " + name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("client: Register called on frozen registry for " + name)
	}
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = cmd
}

// Freeze prevents further command registration.
func (r *CommandRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Dispatch parses a command line and calls the matching handler.
// Returns true if the REPL should exit.
func (r *CommandRegistry) Dispatch(line string, cl *Client, out io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	name := parts[0]
	args := parts[1:]

	r.mu.RLock()
	cmd, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		_, _ = fmt.Fprintf(out, "Unknown command: %s (try /help)\n", name)
		return false
	}

	return cmd.Handler(CommandContext{
		Client: cl,
		Out:    out,
		Args:   args,
	})
}

// HelpText returns a formatted help string listing all registered commands
// in registration order.
func (r *CommandRegistry) HelpText() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range r.order {
		cmd := r.commands[name]
		display := name
		if cmd.Usage != "" {
			display = cmd.Usage
		}
		_, _ = fmt.Fprintf(&b, "  %-18s %s\n", display, cmd.Help)
	}
	return b.String()
}

// RegisterBuiltins registers the default commands:
// /msg, /join, /leave, /get, /who, /quit, and /help.
func (r *CommandRegistry) RegisterBuiltins() {
	r.Register("/msg", Command{
		Usage: "/msg <to> <text>",
		Help:  "send a message to a user or #group",
		Handler: func(ctx CommandContext) bool {
			if len(ctx.Args) < 2 {
				_, _ = fmt.Fprintln(ctx.Out, "Usage: /msg <to> <text>")
				return false
			}
			to := ctx.Args[0]
			text := strings.Join(ctx.Args[1:], " ")
			if err := ctx.Client.Msg(to, text); err != nil {
				_, _ = fmt.Fprintf(ctx.Out, "send failed: %v\n", err)
			}
			return false
		},
	})

	r.Register("/join", Command{
		Usage: "/join <#group>",
		Help:  "subscribe to a group",
		Handler: func(ctx CommandContext) bool {
			if len(ctx.Args) != 1 {
				_, _ = fmt.Fprintln(ctx.Out, "Usage: /join <#group>")
				return false
			}
			if err := ctx.Client.Join(ctx.Args[0]); err != nil {
				_, _ = fmt.Fprintf(ctx.Out, "join failed: %v\n", err)
			}
			return false
		},
	})

	r.Register("/leave", Command{
		Usage: "/leave <#group>",
		Help:  "unsubscribe from a group",
		Handler: func(ctx CommandContext) bool {
			if len(ctx.Args) != 1 {
				_, _ = fmt.Fprintln(ctx.Out, "Usage: /leave <#group>")
				return false
			}
			if err := ctx.Client.Leave(ctx.Args[0]); err != nil {
				_, _ = fmt.Fprintf(ctx.Out, "leave failed: %v\n", err)
			}
			return false
		},
	})

	r.Register("/get", Command{
		Help: "replay messages queued while offline",
		Handler: func(ctx CommandContext) bool {
			if err := ctx.Client.Get(); err != nil {
				_, _ = fmt.Fprintf(ctx.Out, "get failed: %v\n", err)
			}
			return false
		},
	})

	r.Register("/who", Command{
		Help: "show your login and current target",
		Handler: func(ctx CommandContext) bool {
			if ctx.Client.user == "" {
				_, _ = fmt.Fprintln(ctx.Out, "not logged in")
				return false
			}
			_, _ = fmt.Fprintf(ctx.Out, "logged in as %s\n", ctx.Client.user)
			if ctx.Client.lastTo != "" {
				_, _ = fmt.Fprintf(ctx.Out, "sending to %s\n", ctx.Client.lastTo)
			}
			return false
		},
	})

	r.Register("/quit", Command{
		Help: "disconnect",
		Handler: func(ctx CommandContext) bool {
			_, _ = fmt.Fprintln(ctx.Out, "Goodbye.")
			return true
		},
	})

	r.Register("/help", Command{
		Help: "show this help",
		Handler: func(ctx CommandContext) bool {
			_, _ = fmt.Fprint(ctx.Out, r.HelpText())
			return false
		},
	})
}
