//go:build !windows

package xcomm

import (
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// applySocketOptions makes fd non-blocking and applies the tunables. Only
// the non-blocking switch is fatal; a rejected tunable is logged.
func applySocketOptions(fd int, config SocketConfig, logger *zerolog.Logger) error {
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		return os.NewSyscallError("setnonblock", err)
	}
	err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, config.ReadBuffer)
	if err != nil {
		logger.Error().Msgf("[%d] got error while setting socket options SO_RCVBUF: %+v", fd, err)
	}
	err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, config.WriteBuffer)
	if err != nil {
		logger.Error().Msgf("[%d] got error while setting socket options SO_SNDBUF: %+v", fd, err)
	}
	if !config.isStream() {
		return nil
	}
	if config.NoDelay {
		err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		if err != nil {
			logger.Error().Msgf("[%d] got error while setting socket options TCP_NODELAY: %+v", fd, err)
		}
	}
	if config.KeepAlive {
		err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		if err != nil {
			logger.Error().Msgf("[%d] got error while setting socket options SO_KEEPALIVE: %+v", fd, err)
		}
	}
	return nil
}
