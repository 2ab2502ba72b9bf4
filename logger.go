package xcomm

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func loggerOrGlobal(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		return &log.Logger
	}
	return logger
}

// NewLogger builds a logger writing to out at the level named by
// global.LogLevel. An empty level means info.
func NewLogger(global Global, out io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if global.LogLevel != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(global.LogLevel))
		if err != nil {
			return zerolog.Nop(), invalidConfig("log level %q: %v", global.LogLevel, err)
		}
		level = parsed
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// LogCallback receives every formatted log line.
type LogCallback func(line string)

// Write lets a LogCallback serve as a zerolog output:
//
//	logger := zerolog.New(xcomm.LogCallback(func(line string) { ... }))
func (fn LogCallback) Write(p []byte) (int, error) {
	fn(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
