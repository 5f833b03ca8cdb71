// Package logging builds the process logger from CLI and config settings.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var Levels = []string{"debug", "info", "warn", "error"}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (expected one of %s)", name, strings.Join(Levels, ","))
	}
}

// New creates a logger writing text or json records to w. It does not set
// the global logger.
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	parsed, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: parsed}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected text or json)", format)
	}
	return slog.New(handler), nil
}
