// Package logging builds the zerolog logger shared by the CLI and the server.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Setup creates a logger writing to stderr. Format "text" selects the console
// writer; anything else emits JSON lines.
func Setup(level, format string) (zerolog.Logger, error) {
	return New(os.Stderr, level, format)
}

// New creates a logger writing to w.
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
		}
		lvl = parsed
	}

	if strings.EqualFold(format, "text") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl), nil
}
