// Package logging builds the zerolog loggers used across the service and
// adapts them to the logger interfaces of robfig/cron and gorm.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// New returns a logger writing to w (stdout when nil). format "json" keeps
// structured output, anything else renders a console view.
func New(level, format string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	zerolog.ErrorFieldName = "err"

	out := w
	if !strings.EqualFold(strings.TrimSpace(format), "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(out).Level(ParseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, falling back to def.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

// Cron adapts log to cron.Logger. robfig/cron info messages are chatty, so
// they are emitted at debug level.
func Cron(log zerolog.Logger) cron.Logger {
	return cronLogger{log: log.With().Str("component", "cron").Logger()}
}

type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	withFields(l.log.Debug(), keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	withFields(l.log.Error().Err(err), keysAndValues).Msg(msg)
}

func withFields(e *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		e = e.Interface(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1])
	}
	return e
}

// Printf adapts log to the Printf-style writer gorm's logger expects.
func Printf(log zerolog.Logger) PrintfWriter {
	return PrintfWriter{log: log}
}

// PrintfWriter forwards Printf calls as warn-level events.
type PrintfWriter struct {
	log zerolog.Logger
}

func (w PrintfWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Msgf(format, args...)
}
