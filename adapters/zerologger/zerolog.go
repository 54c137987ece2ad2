// Package zerologger adapts github.com/rs/zerolog to mailbus.Logger.
package zerologger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/coregx/mailbus"
)

// Adapter implements mailbus.Logger using zerolog.
type Adapter struct {
	logger zerolog.Logger
}

var _ mailbus.Logger = (*Adapter)(nil)

// New creates an adapter writing human-readable lines to stderr at the given
// level ("debug", "info", "warn", "error"). An unknown level falls back to info.
func New(level string) *Adapter {
	return NewWithWriter(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}, level)
}

// NewWithWriter creates an adapter writing to w. Pass os.Stdout for JSON
// lines, or a zerolog.ConsoleWriter for console output.
func NewWithWriter(w io.Writer, level string) *Adapter {
	logger := zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
	return &Adapter{logger: logger}
}

// NewWithLogger wraps an existing zerolog.Logger.
func NewWithLogger(logger zerolog.Logger) *Adapter {
	return &Adapter{logger: logger}
}

// ParseLevel converts a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Debugf implements mailbus.Logger.
func (a *Adapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

// Infof implements mailbus.Logger.
func (a *Adapter) Infof(format string, args ...interface{}) {
	a.logger.Info().Msg(fmt.Sprintf(format, args...))
}

// Warnf implements mailbus.Logger.
func (a *Adapter) Warnf(format string, args ...interface{}) {
	a.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

// Errorf implements mailbus.Logger.
func (a *Adapter) Errorf(format string, args ...interface{}) {
	a.logger.Error().Msg(fmt.Sprintf(format, args...))
}

// Info implements mailbus.Logger.
func (a *Adapter) Info(message string) {
	a.logger.Info().Msg(message)
}

// With returns a child adapter that adds a string field to every entry.
func (a *Adapter) With(key, value string) *Adapter {
	return &Adapter{logger: a.logger.With().Str(key, value).Logger()}
}

// Logger returns the underlying zerolog.Logger.
func (a *Adapter) Logger() zerolog.Logger {
	return a.logger
}
