// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const (
	// FormatText is colored console output.
	FormatText = "text"
	// FormatJSON is one JSON object per record.
	FormatJSON = "json"
)

// Config selects level and output format.
type Config struct {
	Level  slog.Level
	Format string
}

// New creates a logger writing to w.
func New(w io.Writer, config Config) (*slog.Logger, error) {
	switch strings.ToLower(strings.TrimSpace(config.Format)) {
	case "", FormatText:
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      config.Level,
			TimeFormat: time.Kitchen,
		})), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: config.Level})), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", config.Format)
	}
}

// ParseLevel parses a level name.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
