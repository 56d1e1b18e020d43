package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar) // runtime-adjustable via SetLevel

// Init configures the global slog logger. Call once at startup.
// Unknown level strings fall back to "info"; format is "text" or "json".
func Init(levelStr, format string) {
	if l, err := ParseLevel(levelStr); err == nil {
		level.Set(l)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// Discard routes all logging to a no-op handler. The interactive client
// uses this so frames and prompts are not interleaved with log lines.
func Discard() {
	slog.SetDefault(slog.New(discardHandler{}))
}

// discardHandler mirrors slog.DiscardHandler, which needs Go 1.24; this
// module builds with a 1.21 toolchain. Enabled is always false and records
// are dropped.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

// ParseLevel maps a level name to a slog level. Config validation and Init
// share this so they cannot drift.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// For returns a logger tagged with a component name. The logger delegates
// to slog.Default() on every call, so package-level loggers pick up
// Init, Discard, and CaptureForTest no matter when they were created.
func For(component string) *slog.Logger {
	return slog.New(&componentHandler{component: component})
}

// SetLevel changes the log level at runtime.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// componentHandler forwards records to the current default handler with a
// "component" attribute prepended.
type componentHandler struct {
	component string
}

func (h *componentHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return slog.Default().Handler().Enabled(ctx, l)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("component", h.component))
	return slog.Default().Handler().Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *componentHandler) WithGroup(name string) slog.Handler { return h }
