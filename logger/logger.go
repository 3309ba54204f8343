// Package logger initializes the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var (
	log zerolog.Logger
)

// Options controls logger initialization.
type Options struct {
	File   string    // Append JSON logs to this file; empty logs to Output
	Pretty bool      // Human-readable console output (ignored with File)
	Level  string    // Overrides LOG_LEVEL when set
	Output io.Writer // Defaults to os.Stderr so command output stays clean
}

// InitWithOptions initializes the logger.
// Log level can be configured via LOG_LEVEL environment variable (trace, debug, info, warn, error).
func InitWithOptions(opts Options) (zerolog.Logger, error) {
	levelName := opts.Level
	if levelName == "" {
		levelName = os.Getenv("LOG_LEVEL")
	}
	level := parseLogLevel(levelName)

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	switch {
	case opts.File != "":
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		output = file
	case opts.Pretty:
		output = zerolog.ConsoleWriter{Out: output}
	}

	log = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	if opts.File != "" {
		log.Debug().Str("path", opts.File).Str("level", level.String()).Msg("Logger initialized")
	} else {
		log.Debug().Bool("pretty", opts.Pretty).Str("level", level.String()).Msg("Logger initialized")
	}
	return log, nil
}

// Get returns the logger created by InitWithOptions, or a disabled one.
func Get() zerolog.Logger {
	return log
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning", "":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}
