package observ

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Init configures the process logger. pretty switches to the human console
// writer for interactive runs; default output is JSON lines on stderr.
func Init(pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// Log emits one structured event with arbitrary key-value context.
func Log(event string, kv map[string]any) {
	logger.Info().Fields(kv).Msg(event)
}

// Warn emits a warning-level event.
func Warn(event string, kv map[string]any) {
	logger.Warn().Fields(kv).Msg(event)
}

// Error emits an error-level event.
func Error(event string, err error, kv map[string]any) {
	logger.Error().Err(err).Fields(kv).Msg(event)
}
