//go:build linux || darwin

package xcomm

import (
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// raiseOpenFiles lifts the soft RLIMIT_NOFILE to want, capped by the hard
// limit. Failures are logged only.
func raiseOpenFiles(want uint64, logger *zerolog.Logger) {
	limit := &unix.Rlimit{}
	err := unix.Getrlimit(unix.RLIMIT_NOFILE, limit)
	if err != nil {
		logger.Error().Msgf("error occur while getting OS limit of open files: %+v", err)
		return
	}
	if uint64(limit.Cur) >= want {
		return
	}
	limit.Cur = min(want, uint64(limit.Max))
	err = unix.Setrlimit(unix.RLIMIT_NOFILE, limit)
	if err != nil {
		logger.Error().Msgf("error occur while setting OS limit of open files: %+v", err)
		return
	}
	logger.Info().Msgf("open files limit raised to %d", limit.Cur)
}
