// Package logger builds the zerolog logger used by every loggate component.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/loggate-io/loggate/pkg/config"
)

// Logger configuration constants
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
	FatalLevel = "fatal"
	TraceLevel = "trace"

	ConsoleFormat = "console"
	JSONFormat    = "json"

	TimeFormat = "02.01.2006 15:04:05"
)

// New creates a logger with the given level and output format
func New(level, format string) zerolog.Logger {
	return NewWithOutput(level, format, nil)
}

// NewWithOutput creates a logger writing to a custom output. A nil output
// selects stderr, wrapped in a console writer unless the format is json.
func NewWithOutput(level, format string, customOutput io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer

	if customOutput != nil {
		output = customOutput
	} else {
		switch format {
		case JSONFormat:
			output = os.Stderr
		default:
			output = newConsoleWriter()
		}
	}

	return zerolog.
		New(output).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("version", config.Version).
		Logger()
}

// newConsoleWriter creates a console writer with component formatting
func newConsoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: TimeFormat,
		FormatFieldName: func(i interface{}) string {
			if s, ok := i.(string); ok && s == "component" {
				return ""
			}

			return fmt.Sprintf("%s=", i)
		},
		FormatPrepare: func(m map[string]interface{}) error {
			if component, ok := m["component"].(string); ok {
				m["component"] = fmt.Sprintf("[%s]", component)
			}

			return nil
		},
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			"component",
			zerolog.MessageFieldName,
		},
	}
}

// parseLevel converts a string level to zerolog.Level
func parseLevel(level string) zerolog.Level {
	switch level {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case FatalLevel:
		return zerolog.FatalLevel
	case TraceLevel:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}
