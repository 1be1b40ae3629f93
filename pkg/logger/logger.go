// Package logger builds the root zerolog logger for the rental backend.
// Everything downstream derives tagged child loggers from it (service, repo,
// handler, component fields).
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates the root logger. Unknown or empty levels fall back to info.
// Pretty output is the human console writer used in dev mode; production
// emits JSON lines.
func New(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(os.Stdout)
	if pretty {
		logger = logger.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	return logger.Level(lvl).With().
		Timestamp().
		Caller().
		Str("app", "quartermaster").
		Logger()
}
