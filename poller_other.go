//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd && !windows

package xcomm

import (
	"github.com/rs/zerolog"
)

func OpenPoller(logger *zerolog.Logger) (Poller, error) {
	loggerOrGlobal(logger).Error().Msg("no poller backend for this platform")
	return nil, ErrNotSupported
}
