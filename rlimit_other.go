//go:build !linux && !darwin

package xcomm

import (
	"github.com/rs/zerolog"
)

func raiseOpenFiles(want uint64, logger *zerolog.Logger) {
	if logger.Debug().Enabled() {
		logger.Debug().Msgf("ignoring max open files %d on this platform", want)
	}
}
