//go:build windows

package xcomm

import (
	"github.com/rs/zerolog"
)

// Listening sockets cannot report readiness through the completion port's
// zero-byte receive, so windows has no Listener.
func listen(config SocketConfig, logger *zerolog.Logger) (*Listener, error) {
	return nil, ErrNotSupported
}

func (l *Listener) Accept() (*Socket, error) {
	return nil, ErrNotSupported
}

func (l *Listener) Close() error {
	return nil
}
