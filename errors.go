/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"io"

	"github.com/rs/zerolog"
)

// newLogger writes human-readable lines in the same timestamp format the
// request log uses. Debug output is only shown with --verbose.
func newLogger(cfg *Config, w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}

	zerolog.TimeFieldFormat = logDate

	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: logDate,
		NoColor:    true,
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
