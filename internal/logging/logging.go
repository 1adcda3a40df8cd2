// Package logging configures the process-wide slog logger and hands out
// component-scoped loggers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Formats accepted by Init and Setup.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Init configures the global slog default with the given level and format.
// If w is nil, os.Stderr is used. Unknown formats fall back to text.
func Init(level slog.Level, format string, w ...io.Writer) {
	var writer io.Writer = os.Stderr
	if len(w) > 0 && w[0] != nil {
		writer = w[0]
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Setup parses flag values and calls Init. Unlike Init it rejects unknown
// levels and formats.
func Setup(level, format string, w io.Writer) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	switch format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q (want %s or %s)", format, FormatText, FormatJSON)
	}
	Init(lvl, format, w)
	return nil
}

// ParseLevel maps debug, info, warn (or warning) and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// New returns a logger with a "component" attribute for module-scoped logging.
func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}
