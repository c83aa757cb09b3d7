// Package logging builds the leveled slog loggers used on stderr.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LevelTrace is below Debug and shows every pipeline state transition.
const LevelTrace = slog.LevelDebug - 4

// Level names accepted by ParseLevel.
const (
	LevelNameInfo  = "info"
	LevelNameDebug = "debug"
	LevelNameTrace = "trace"
)

// ParseLevel maps "info", "debug" or "trace" (case-insensitive) to a
// slog.Level. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", LevelNameInfo:
		return slog.LevelInfo, nil
	case LevelNameDebug:
		return slog.LevelDebug, nil
	case LevelNameTrace:
		return LevelTrace, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (want info, debug or trace)", s)
	}
}

// NewLogger creates a text logger writing to w at level.
func NewLogger(level slog.Level, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Trace logs msg at LevelTrace.
func Trace(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelTrace, msg, args...)
}
