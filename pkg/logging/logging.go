// Package logging builds the structured logger shared by all components.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger returns a timestamped logger writing to w at level. Unknown
// levels fall back to info. A nil writer logs to stderr.
func NewLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

// NewConsoleLogger is NewLogger with human readable output for terminals
func NewConsoleLogger(level string) zerolog.Logger {
	return NewLogger(level, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}
