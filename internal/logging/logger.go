// Package logging provides the structured logger handed to every component.
//
// It wraps log/slog. Console output for the user goes through util.Line;
// this logger records the detailed run trace (skip reasons, decoded keys at
// debug level) to a file by default.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects level, format and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Output string // stdout, stderr or a file path
}

// Logger is a slog.Logger that may own its output file.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New opens the configured output and returns a logger writing to it.
// File outputs are appended to.
func New(cfg Config, version string) (*Logger, error) {
	var (
		output io.Writer
		closer io.Closer
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		output, closer = f, f
	}
	l := newWriter(output, cfg, version)
	l.closer = closer
	return l, nil
}

// newWriter returns a logger writing to w.
func newWriter(w io.Writer, cfg Config, version string) *Logger {
	return &Logger{Logger: slog.New(newHandler(w, cfg, version))}
}

func newHandler(w io.Writer, cfg Config, version string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return handler.WithAttrs([]slog.Attr{
		slog.String("service", "btmigrate"),
		slog.String("version", version),
	})
}

// parseLevel defaults to info for unknown input.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger sharing the output.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Close closes the output file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
