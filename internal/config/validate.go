package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"ostrich/internal/logging"
)

// Validate checks the whole config and reports every problem at once,
// so an operator fixes a broken file in one pass.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Node.DataDir) == "" {
		errs = append(errs, errors.New("node.data_dir: must not be empty"))
	}
	if err := validateListenAddr(c.Server.Listen); err != nil {
		errs = append(errs, fmt.Errorf("server.listen: %w", err))
	}
	if c.Server.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("server.max_conns: must not be negative, got %d", c.Server.MaxConns))
	}
	if c.Server.IdleTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("server.idle_timeout: must not be negative, got %s", c.Server.IdleTimeout))
	}
	if c.Server.FrameRate < 0 {
		errs = append(errs, fmt.Errorf("server.frame_rate: must not be negative, got %g", c.Server.FrameRate))
	}
	if c.Server.FrameBurst < 0 {
		errs = append(errs, fmt.Errorf("server.frame_burst: must not be negative, got %d", c.Server.FrameBurst))
	}
	if err := validateLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// validateListenAddr requires host:port with both parts present.
// Wildcard hosts are fine for listening.
func validateListenAddr(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return errors.New("must not be empty")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("missing host in %q", addr)
	}
	if port == "" {
		return fmt.Errorf("missing port in %q", addr)
	}
	return nil
}

// validateLogLevel accepts anything logging.Init accepts; empty means info.
func validateLogLevel(level string) error {
	_, err := logging.ParseLevel(level)
	return err
}
