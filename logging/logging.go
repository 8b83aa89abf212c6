// File: logging/logging.go
// Author: momentics <momentics@gmail.com>
//
// New constructs the process-wide zerolog.Logger from a config.Logging
// section (§9 ambient stack): JSON to stdout by default, or a
// console-pretty writer for interactive use, matching the level/format
// split every component in this module threads a zerolog.Logger through.

package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/rpcengine/config"
)

// New builds a zerolog.Logger from cfg. An unrecognized or empty Level
// falls back to info.
func New(cfg config.Logging) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writer io.Writer = os.Stdout
	if cfg.Pretty {
		writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// Sampled wraps base with a BasicSampler that admits one in every n
// messages, at every level, for high-frequency per-frame logging (e.g. the
// timer wheel or the dispatcher's recv path) that would otherwise flood the
// sink. n<=1 disables sampling.
func Sampled(base zerolog.Logger, n uint32) zerolog.Logger {
	if n <= 1 {
		return base
	}
	return base.Sample(&zerolog.BasicSampler{N: n})
}
