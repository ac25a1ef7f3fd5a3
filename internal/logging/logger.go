// Package logging provides structured logging for the CLI and the long-running front ends.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/panelfs/panelfs/internal/constants"
)

// Logger wraps zerolog with console formatting and optional rotating file output.
type Logger struct {
	zlog   zerolog.Logger
	output io.Writer // current output writer
	file   *lumberjack.Logger
}

// Options configures a Logger.
type Options struct {
	// Out is the console destination (default: stderr).
	Out io.Writer

	// LogFile enables rotating file output when non-empty.
	LogFile string

	// Component is attached to every entry as "component".
	Component string
}

// NewLogger creates a logger writing human-readable output to opts.Out and,
// when opts.LogFile is set, JSON lines to a rotating file.
func NewLogger(opts Options) *Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	l := &Logger{}
	var writer io.Writer = zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
	}

	if opts.LogFile != "" {
		l.file = &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    constants.LogFileMaxSizeMB,
			MaxBackups: constants.LogFileMaxBackups,
			MaxAge:     constants.LogFileMaxAgeDays,
			Compress:   true,
		}
		writer = zerolog.MultiLevelWriter(writer, l.file)
	}

	l.output = writer
	ctx := zerolog.New(writer).With().Timestamp()
	if opts.Component != "" {
		ctx = ctx.Str("component", opts.Component)
	}
	l.zlog = ctx.Logger()
	return l
}

// NewDefaultCLILogger creates a console-only logger on stderr.
func NewDefaultCLILogger() *Logger {
	return NewLogger(Options{})
}

// NewNopLogger returns a logger that discards everything. Used in tests.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop(), output: io.Discard}
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger context with additional fields.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		zlog:   l.zlog.With().Str("component", component).Logger(),
		output: l.output,
		file:   l.file,
	}
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// Debugf logs a debug message with printf-style formatting.
// This is only shown when debug/verbose mode is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// Close flushes and closes the rotating log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// RetryLogger adapts the logger to go-retryablehttp's LeveledLogger interface.
// Info and Debug chatter from the retry loop goes to debug level only.
type RetryLogger struct {
	L *Logger
}

func (r RetryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.L.zlog.Error().Fields(keysAndValues).Msg(msg)
}

func (r RetryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.L.zlog.Debug().Fields(keysAndValues).Msg(msg)
}

func (r RetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.L.zlog.Debug().Fields(keysAndValues).Msg(msg)
}

func (r RetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.L.zlog.Warn().Fields(keysAndValues).Msg(msg)
}

// ParseLevel maps a config/flag string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "verbose", "v":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "quiet", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
