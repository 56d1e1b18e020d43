package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Node     NodeConfig     `toml:"node"`
	Server   ServerConfig   `toml:"server"`
	Security SecurityConfig `toml:"security"`
	Logging  LoggingConfig  `toml:"logging"`
}

type NodeConfig struct {
	Name    string `toml:"name"`
	DataDir string `toml:"data_dir"`
}

type ServerConfig struct {
	Listen      string   `toml:"listen"`
	MaxConns    int      `toml:"max_conns"`
	IdleTimeout Duration `toml:"idle_timeout"`

	// Token bucket per connection: sustained frames per second and burst.
	// Zero means the built-in default.
	FrameRate  float64 `toml:"frame_rate"`
	FrameBurst int     `toml:"frame_burst"`
}

type SecurityConfig struct {
	Noise   bool   `toml:"noise"`
	KeyFile string `toml:"key_file"` // empty: <data_dir>/identity.pem
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration decodes TOML strings like "30s" or "5m" into a time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "ostrich"
	}
	return &Config{
		Node: NodeConfig{
			Name:    hostname,
			DataDir: "~/.ostrich",
		},
		Server: ServerConfig{
			Listen:      "0.0.0.0:7878",
			MaxConns:    128,
			IdleTimeout: Duration{5 * time.Minute},
			FrameRate:   20,
			FrameBurst:  40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the effective config: defaults, then the TOML file, then
// OSTRICH_* environment variables. A .env file in the working directory is
// folded into the environment first; variables already set win. If path is
// empty the default location is tried and silently skipped when absent.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path == "" {
		path = expandHome("~/.ostrich/config.toml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides individual settings from the environment. Only the
// settings an operator plausibly flips per deployment are exposed.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OSTRICH_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("OSTRICH_DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("OSTRICH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OSTRICH_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("OSTRICH_NOISE"); v != "" {
		cfg.Security.Noise = v == "1" || strings.EqualFold(v, "true")
	}
}

// KeyFile returns the identity key path, defaulting into the data dir.
func (c *Config) KeyFile() string {
	if c.Security.KeyFile != "" {
		return expandHome(c.Security.KeyFile)
	}
	return filepath.Join(expandHome(c.Node.DataDir), "identity.pem")
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
