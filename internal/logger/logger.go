// Package logger builds the *slog.Logger shared by the service and the CLI.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// Option configures a Logger created with New.
type Option func(*options)

type options struct {
	level   slog.Level
	format  string
	writers []io.Writer
}

// WithLevel parses a textual level (debug, info, warn, error). Unknown values keep info.
func WithLevel(level string) Option {
	return func(o *options) {
		switch strings.ToLower(strings.TrimSpace(level)) {
		case "debug":
			o.level = slog.LevelDebug
		case "warn", "warning":
			o.level = slog.LevelWarn
		case "error":
			o.level = slog.LevelError
		default:
			o.level = slog.LevelInfo
		}
	}
}

// WithFormat selects text, json or pretty (charmbracelet/log) output.
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = strings.ToLower(strings.TrimSpace(format))
	}
}

// WithWriter overrides the output writer. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writers = []io.Writer{w}
	}
}

// New returns a configured logger.
func New(opts ...Option) *slog.Logger {
	o := &options{level: slog.LevelInfo, format: "text"}
	for _, opt := range opts {
		opt(o)
	}
	var w io.Writer = os.Stderr
	if len(o.writers) == 1 {
		w = o.writers[0]
	} else if len(o.writers) > 1 {
		w = io.MultiWriter(o.writers...)
	}

	switch o.format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: o.level}))
	case "pretty":
		return slog.New(charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmLevel(o.level),
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
		}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: o.level}))
	}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func charmLevel(l slog.Level) charmlog.Level {
	switch {
	case l <= slog.LevelDebug:
		return charmlog.DebugLevel
	case l <= slog.LevelInfo:
		return charmlog.InfoLevel
	case l <= slog.LevelWarn:
		return charmlog.WarnLevel
	default:
		return charmlog.ErrorLevel
	}
}
