package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configures the zerolog backend.
type Options struct {
	// Production switches to JSON output with an Info floor.
	Production bool
	Level      string
	Output     io.Writer
}

// Init installs the global zerolog logger. Safe to call more than once.
func Init(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(opts.Level)
	if opts.Production {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		if level < zerolog.InfoLevel {
			level = zerolog.InfoLevel
		}
		SetLevel(level)
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount+1).Logger()
	SetLevel(level)
}

// ParseLevel maps a level name to a zerolog level; unknown names yield Info.
func ParseLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debugf logs a debug message
func Debugf(format string, args ...interface{}) {
	log.Debug().Msgf(format, args...)
}

// Infof logs an info message
func Infof(format string, args ...interface{}) {
	log.Info().Msgf(format, args...)
}

// Warnf logs a warning message
func Warnf(format string, args ...interface{}) {
	log.Warn().Msgf(format, args...)
}

// Errorf logs an error message
func Errorf(format string, args ...interface{}) {
	log.Error().Msgf(format, args...)
}

// SetLevel sets the minimum log level for every logger in the process.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// Level returns the minimum log level.
func Level() zerolog.Level {
	return zerolog.GlobalLevel()
}

// ContextLogger attaches fixed fields (request id, stage) to every line.
type ContextLogger struct {
	zl zerolog.Logger
}

// WithContext creates a new logger with context
func WithContext(fields map[string]interface{}) *ContextLogger {
	return &ContextLogger{zl: log.Logger.With().Fields(fields).Logger()}
}

// Debugf logs with context
func (c *ContextLogger) Debugf(format string, args ...interface{}) {
	c.zl.Debug().Msgf(format, args...)
}

// Infof logs with context
func (c *ContextLogger) Infof(format string, args ...interface{}) {
	c.zl.Info().Msgf(format, args...)
}

// Warnf logs with context
func (c *ContextLogger) Warnf(format string, args ...interface{}) {
	c.zl.Warn().Msgf(format, args...)
}

// Errorf logs with context
func (c *ContextLogger) Errorf(format string, args ...interface{}) {
	c.zl.Error().Msgf(format, args...)
}
