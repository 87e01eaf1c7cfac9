// Package log configures the process wide zerolog logger.
package log

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional level ("debug", "info", ...)
	Format  string    // "json" (default) or "console"
	Output  io.Writer // defaults to os.Stderr
	Service string    // attached to every entry, defaults to "enkfcore"
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure initialises the global logger exactly once; later calls are
// ignored.
func Configure(cfg Config) {
	once.Do(func() {
		base = New(cfg)
	})
}

// New builds a logger from cfg without touching the global one.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	service := cfg.Service
	if service == "" {
		service = "enkfcore"
	}
	return zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Base returns the configured global logger.
func Base() zerolog.Logger {
	Configure(Config{})
	return base
}

// WithComponent returns a child of the global logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

type ctxKey struct{}

// ContextWithRunID stores the run identifier used to correlate log entries.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// RunIDFromContext returns the run identifier stored in ctx, if any.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext decorates l with the run identifier carried by ctx.
func FromContext(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	if id := RunIDFromContext(ctx); id != "" {
		return l.With().Str("run_id", id).Logger()
	}
	return l
}
