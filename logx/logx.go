// Package logx provides the standard logger implementation for fichas-mcp,
// backed by zerolog.
package logx

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/localrivet/fichas-mcp/types"
)

// Level is a logging threshold.
type Level = zerolog.Level

// Supported levels.
const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

// DefaultLogger adapts a zerolog.Logger to the printf-style types.Logger.
type DefaultLogger struct {
	zl zerolog.Logger
}

// Ensure interface compliance
var _ types.Logger = (*DefaultLogger)(nil)

// NewConsole creates a human-readable logger writing to w. The binary
// points it at stderr: stdout belongs to the stdio transport.
func NewConsole(w io.Writer, level Level) *DefaultLogger {
	return New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}, level)
}

// New creates a logger writing to w at the given level.
func New(w io.Writer, level Level) *DefaultLogger {
	zl := zerolog.New(w).Level(level).With().Timestamp().Str("app", "fichas-mcp").Logger()
	return &DefaultLogger{zl: zl}
}

// ParseLevel maps a config string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// With returns a child logger carrying an extra string field.
func (l *DefaultLogger) With(key, value string) *DefaultLogger {
	return &DefaultLogger{zl: l.zl.With().Str(key, value).Logger()}
}

// SetLevel changes the logging threshold.
func (l *DefaultLogger) SetLevel(level Level) {
	l.zl = l.zl.Level(level)
}

func (l *DefaultLogger) Debug(msg string, args ...interface{}) { l.zl.Debug().Msgf(msg, args...) }
func (l *DefaultLogger) Info(msg string, args ...interface{})  { l.zl.Info().Msgf(msg, args...) }
func (l *DefaultLogger) Warn(msg string, args ...interface{})  { l.zl.Warn().Msgf(msg, args...) }
func (l *DefaultLogger) Error(msg string, args ...interface{}) { l.zl.Error().Msgf(msg, args...) }

// NopLogger discards everything. Handy in tests.
type NopLogger struct{}

var _ types.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
