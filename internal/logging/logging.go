// Package logging builds the slog loggers used by datasets and the CLI.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Options holds logger configuration
type Options struct {
	Level     string // debug, info, warn, error
	Format    string // json, text
	AddSource bool
}

// ParseLevel maps a level name to a slog level. Unknown names are Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type queryIDKey struct{}

// WithQueryID stores a query id in ctx.
func WithQueryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, queryIDKey{}, id)
}

// QueryID returns the query id stored in ctx, if any.
func QueryID(ctx context.Context) string {
	id, _ := ctx.Value(queryIDKey{}).(string)
	return id
}

// FromContext adds the query id of ctx to logger.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := QueryID(ctx); id != "" {
		return logger.With("query_id", id)
	}
	return logger
}
