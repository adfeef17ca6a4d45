// Package logger provides the structured logger used throughout the storage
// core. All components log through *slog.Logger; this package only controls
// how records are rendered.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New builds the default colorized, millisecond-precision logger used by
// command-line entry points and long-running background loops.
func New(verbose bool) *slog.Logger {
	return NewWithWriter(os.Stdout, verbose)
}

// NewWithWriter is New but against an arbitrary writer, useful for tests that
// want to assert on emitted log lines.
func NewWithWriter(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// Nop returns a logger that discards everything, for tests that don't care
// about log output but still need to satisfy a *slog.Logger dependency.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Component returns a logger scoped to a named subsystem (e.g. "wal",
// "scheduler", "lru"), so log lines can be filtered by component in
// production.
func Component(log *slog.Logger, name string) *slog.Logger {
	return log.With("component", name)
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
