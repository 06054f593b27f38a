// Package logging builds the client logger. The TUI owns stdout and
// stderr, so everything goes to a file; an empty path disables logging.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New opens (or creates) the log file and returns a logger tagged with the
// service name. Unknown levels fall back to info.
func New(path, level string) (zerolog.Logger, error) {
	if strings.TrimSpace(path) == "" {
		return Nop(), nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Nop(), err
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	logger := zerolog.New(f).
		Level(parsed).
		With().
		Timestamp().
		Str("service", "sift").
		Logger()
	zerolog.TimeFieldFormat = time.RFC3339
	return logger, nil
}

// Nop returns a disabled logger for tests and for running without a file.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
