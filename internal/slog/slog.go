// Package slog provides the process-wide structured logger used by
// the pipeline orchestrator and CLI, following the same
// zerolog.ConsoleWriter/caller-info setup as itohio-EasyRobot's
// pkg/logger.
package slog

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the shared logger instance.
var Log = log.With().Caller().Logger().Output(zerolog.ConsoleWriter{Out: os.Stderr})

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}
