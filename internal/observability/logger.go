package observability

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates the process logger. Pretty output is meant for a
// terminal; servers should log JSON.
func NewLogger(out io.Writer, verbose, pretty bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
