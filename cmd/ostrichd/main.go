package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"ostrich/internal/auth"
	"ostrich/internal/chat"
	"ostrich/internal/config"
	"ostrich/internal/crypto"
	"ostrich/internal/identity"
	"ostrich/internal/logging"
	boltstore "ostrich/internal/store/bolt"
	"ostrich/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dataDir := flag.String("data-dir", "", "data directory (overrides config)")
	listen := flag.String("listen", "", "listen address (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Parse()

	// Load config (TOML file with defaults)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// CLI flags override config file values
	if *dataDir != "" {
		cfg.Node.DataDir = *dataDir
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	cfg.Node.DataDir = config.ExpandHome(cfg.Node.DataDir)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Format)

	if err := os.MkdirAll(cfg.Node.DataDir, 0700); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}

	// Load or generate the server's ED25519 identity
	id, err := identity.Load(cfg.KeyFile())
	if err != nil {
		log.Fatalf("identity: %v", err)
	}
	log.Printf("Server ID:   %s", id.Fingerprint)
	log.Printf("Server name: %s", cfg.Node.Name)

	// Open persistent store
	st, err := boltstore.Open(filepath.Join(cfg.Node.DataDir, "data.db"))
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	users := auth.NewUsers(st)
	if n, err := users.Count(); err == nil {
		log.Printf("Accounts:    %d", n)
	}
	hub := chat.NewHub(users, chat.NewInbox(st), chat.NewGroups(st))
	go hub.Run()

	opts := transport.Options{
		Listen:      cfg.Server.Listen,
		MaxConns:    cfg.Server.MaxConns,
		IdleTimeout: cfg.Server.IdleTimeout.Duration,
		FrameRate:   cfg.Server.FrameRate,
		FrameBurst:  cfg.Server.FrameBurst,
	}
	if cfg.Security.Noise {
		static, err := crypto.NoiseStatic(id)
		if err != nil {
			log.Fatalf("noise key: %v", err)
		}
		opts.Noise = true
		opts.StaticKey = static
	}

	srv := transport.NewServer(opts, chat.NewHandler(hub, users))
	if err := srv.Listen(); err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("Listening on %s (noise: %v)", srv.Addr(), cfg.Security.Noise)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := srv.Serve(ctx); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	srv.Stop()
	hub.Stop()
}
