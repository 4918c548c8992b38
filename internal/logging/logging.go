// Package logging builds the zerolog logger shared by the binaries.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a structured logger writing to stdout at the given level.
// Unknown levels fall back to info.
func New(level, component string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
