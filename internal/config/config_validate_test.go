package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidateValid(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Listen = "127.0.0.1:5000"
	cfg.Logging.Level = "debug"

	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config should pass validation: %v", err)
	}
}

func TestConfigValidateListen(t *testing.T) {
	tests := []struct {
		name   string
		listen string
	}{
		{"missing port", "127.0.0.1"},
		{"empty host", ":7878"},
		{"empty port", "host:"},
		{"empty", ""},
		{"whitespace", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Server.Listen = tt.listen

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), "server.listen") {
				t.Errorf("error should mention 'server.listen': %v", err)
			}
		})
	}
}

func TestConfigValidateNegatives(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"max_conns", func(c *Config) { c.Server.MaxConns = -1 }, "server.max_conns"},
		{"idle_timeout", func(c *Config) { c.Server.IdleTimeout = Duration{-time.Second} }, "server.idle_timeout"},
		{"frame_rate", func(c *Config) { c.Server.FrameRate = -2 }, "server.frame_rate"},
		{"frame_burst", func(c *Config) { c.Server.FrameBurst = -3 }, "server.frame_burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mut(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q: %v", tt.want, err)
			}
		})
	}
}

func TestConfigValidateZeroMeansDefault(t *testing.T) {
	cfg := Defaults()
	cfg.Server.MaxConns = 0
	cfg.Server.IdleTimeout = Duration{}
	cfg.Server.FrameRate = 0
	cfg.Server.FrameBurst = 0

	if err := cfg.Validate(); err != nil {
		t.Errorf("zero limits mean defaults and must validate: %v", err)
	}
}

func TestConfigValidateLogging(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"warning", false},
		{"error", false},
		{"DEBUG", false},
		{"  Error  ", false},
		{"", false},
		{"   ", false},
		{"trace", true},
		{"fatal", true},
		{"loud", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := Defaults()
			cfg.Logging.Level = tt.level

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr && !strings.Contains(err.Error(), "logging.level") {
				t.Errorf("error should mention 'logging.level': %v", err)
			}
		})
	}
}

func TestConfigValidateFormat(t *testing.T) {
	for _, format := range []string{"", "text", "json", "TEXT", "Json"} {
		cfg := Defaults()
		cfg.Logging.Format = format
		if err := cfg.Validate(); err != nil {
			t.Errorf("format %q: unexpected error: %v", format, err)
		}
	}

	cfg := Defaults()
	cfg.Logging.Format = "yaml"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "logging.format") {
		t.Errorf("error should mention 'logging.format': %v", err)
	}
}

func TestConfigValidateCollectsAll(t *testing.T) {
	cfg := &Config{
		Node:   NodeConfig{DataDir: ""},
		Server: ServerConfig{Listen: "no-port", MaxConns: -5, FrameRate: -1},
		Logging: LoggingConfig{
			Level:  "silly",
			Format: "xml",
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, want := range []string{
		"node.data_dir",
		"server.listen",
		"server.max_conns",
		"server.frame_rate",
		"logging.level",
		"logging.format",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidateListenAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"0.0.0.0:7878", false},
		{"127.0.0.1:5000", false},
		{"[::]:9000", false},
		{"localhost:8080", false},
		{"  127.0.0.1:8080  ", false},
		{"no-port", true},
		{"", true},
		{"   ", true},
		{":7878", true},
		{"host:", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := validateListenAddr(tt.addr)
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
