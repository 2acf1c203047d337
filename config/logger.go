package config

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide logger. Console writer with colour in
// development log levels, structured JSON otherwise — the convention
// carried from the richer half of the reference codebase's handler/service
// layer, standardized across the whole repository (see DESIGN.md).
func NewLogger(cfg ServerConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
