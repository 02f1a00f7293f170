// Package logging configures the process-wide zerolog logger.
//
// Components tag their lines with a "component" field, either through a
// child logger or inline on a single event:
//
//	logger := logging.Component("gateway")
//	log.Warn().Str("component", "redis").Err(err).Msg("cluster client failed")
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Level is one of trace, debug, info, warn, error. Default: info
	Level string
	// Format is json or console. Default: json
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Init replaces the global logger. Safe to call more than once.
func Init(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := cfg.Output
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Str("service", "assethub").Logger()
	return log.Logger
}

// Component returns a child of the global logger tagged with name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
