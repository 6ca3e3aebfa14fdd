// Package debug carries the --debug switch on the context and builds the
// slog logger that request tracing writes to.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type debugKey struct{}

// WithDebug records whether --debug is on.
func WithDebug(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, debugKey{}, enabled)
}

// IsEnabled reports the value stored by WithDebug. A nil context is off.
func IsEnabled(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	enabled, _ := ctx.Value(debugKey{}).(bool)
	return enabled
}

// NewLogger builds a slog logger writing to w. format "json" selects the
// JSON handler; anything else is human-readable text. Debug mode lowers the
// level from warn to debug.
func NewLogger(w io.Writer, debugEnabled bool, format string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level := slog.LevelWarn
	if debugEnabled {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// SetupLogger installs the logger from NewLogger as the slog default.
func SetupLogger(w io.Writer, debugEnabled bool, format string) {
	slog.SetDefault(NewLogger(w, debugEnabled, format))
}
