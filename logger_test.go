package xcomm

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Global{LogLevel: "WARN"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	logger, err = NewLogger(Global{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	_, err = NewLogger(Global{LogLevel: "loud"}, &buf)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestLogCallback(t *testing.T) {
	var lines []string
	logger := zerolog.New(LogCallback(func(line string) {
		lines = append(lines, line)
	}))
	logger.Info().Msg("one")
	logger.Error().Msg("two")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"level":"info","message":"one"}`, lines[0])
	assert.NotContains(t, lines[1], "\n")
}

func TestLoggerOrGlobal(t *testing.T) {
	assert.NotNil(t, loggerOrGlobal(nil))
	logger := zerolog.Nop()
	assert.Same(t, &logger, loggerOrGlobal(&logger))
}
