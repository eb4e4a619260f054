// Package logging configures the zerolog logger shared by all packages.
//
// Every log line carries a component field; runs add run_id and query,
// workers add worker_id, page and proxy.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a zerolog level name such as "debug" or "warn".
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
)

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console format.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// Setup configures the global zerolog logger and returns it. An empty or
// unknown level means info.
func Setup(cfg Config) zerolog.Logger {
	level, err := toZerolog(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// ValidateLevel rejects names zerolog does not know.
func ValidateLevel(level LogLevel) error {
	if _, err := toZerolog(level); err != nil {
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}

func toZerolog(level LogLevel) (zerolog.Level, error) {
	l, err := zerolog.ParseLevel(strings.ToLower(string(level)))
	if err != nil {
		return zerolog.NoLevel, err
	}
	if l == zerolog.NoLevel {
		return zerolog.InfoLevel, nil
	}
	return l, nil
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
