package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_New(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		expected zerolog.Level
	}{
		{
			name:     "defaults",
			level:    "",
			format:   "",
			expected: zerolog.InfoLevel,
		},
		{
			name:     "debug console",
			level:    DebugLevel,
			format:   ConsoleFormat,
			expected: zerolog.DebugLevel,
		},
		{
			name:     "warn json",
			level:    WarnLevel,
			format:   JSONFormat,
			expected: zerolog.WarnLevel,
		},
		{
			name:     "unknown level falls back to info",
			level:    "loud",
			format:   ConsoleFormat,
			expected: zerolog.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := New(tt.level, tt.format)
			assert.Equal(t, tt.expected, log.GetLevel())
		})
	}
}

func Test_NewWithOutput(t *testing.T) {
	var buf bytes.Buffer

	log := NewWithOutput(DebugLevel, JSONFormat, &buf)
	log.Info().Str("component", "gateway").Msg("started")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "started", record["message"])
	assert.Equal(t, "gateway", record["component"])
	assert.NotEmpty(t, record["version"])
	assert.NotEmpty(t, record["time"])
}

func Test_NewWithOutput_LevelFilter(t *testing.T) {
	var buf bytes.Buffer

	log := NewWithOutput(ErrorLevel, JSONFormat, &buf)
	log.Debug().Msg("hidden")
	log.Info().Msg("hidden too")

	assert.Zero(t, buf.Len())
}

func Test_parseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
	}{
		{DebugLevel, zerolog.DebugLevel},
		{InfoLevel, zerolog.InfoLevel},
		{WarnLevel, zerolog.WarnLevel},
		{ErrorLevel, zerolog.ErrorLevel},
		{FatalLevel, zerolog.FatalLevel},
		{TraceLevel, zerolog.TraceLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}
