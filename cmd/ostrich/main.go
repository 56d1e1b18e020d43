package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"ostrich/internal/client"
	"ostrich/internal/crypto"
	"ostrich/internal/identity"
	"ostrich/internal/logging"
	"ostrich/internal/transport"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7878", "server address")
	user := flag.String("user", "", "username to log in as")
	noise := flag.Bool("noise", false, "use the encrypted transport")
	serverKey := flag.String("server-key", "", "hex-encoded server key to pin (implies -noise)")
	verbose := flag.Bool("verbose", false, "log transport internals to stderr")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "usage: ostrich -user <name> [-addr host:port] [-noise] [-server-key <hex>]")
		os.Exit(2)
	}

	// Logging would interleave with the conversation, so it is off unless
	// asked for.
	if *verbose {
		logging.Init("debug", "text")
	} else {
		logging.Discard()
	}

	_ = godotenv.Load()
	password, err := readPassword(*user)
	if err != nil {
		log.Fatalf("password: %v", err)
	}

	opts := transport.DialOptions{}
	if *noise || *serverKey != "" {
		id, err := identity.Ephemeral()
		if err != nil {
			log.Fatalf("identity: %v", err)
		}
		static, err := crypto.NoiseStatic(id)
		if err != nil {
			log.Fatalf("noise key: %v", err)
		}
		opts.Noise = true
		opts.StaticKey = static
		if *serverKey != "" {
			pin, err := hex.DecodeString(*serverKey)
			if err != nil {
				log.Fatalf("server key: %v", err)
			}
			opts.ServerKey = pin
		}
	}

	conn, err := transport.Dial(*addr, opts)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}

	cl := client.New(conn, os.Stdout)
	if err := cl.Login(*user, password); err != nil {
		_ = conn.Close()
		log.Fatalf("login: %v", err)
	}
	defer cl.Close()

	fmt.Printf("Connected to %s as %s. Type /help for commands.\n", *addr, *user)

	reg := client.NewCommandRegistry()
	reg.RegisterBuiltins()
	reg.Freeze()

	cl.Start()
	if err := cl.Run(os.Stdin, reg); err != nil {
		log.Fatalf("input: %v", err)
	}
}

// readPassword takes OSTRICH_PASSWORD from the environment, or prompts
// without echo when stdin is a terminal.
func readPassword(user string) (string, error) {
	if pw, ok := os.LookupEnv("OSTRICH_PASSWORD"); ok {
		return pw, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("stdin is not a terminal, set OSTRICH_PASSWORD")
	}
	fmt.Fprintf(os.Stderr, "password for %s: ", user)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
