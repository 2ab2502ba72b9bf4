package xcomm

import (
	"net"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// Listener is a non-blocking stream listener. Its Fd can be submitted to a
// readiness poller with OpRead to learn when Accept has work.
type Listener struct {
	fd     FD
	addr   net.Addr
	config SocketConfig
	closed *atomic.Bool
	logger *zerolog.Logger
}

func (l *Listener) Fd() FD {
	return l.fd
}

// Addr returns the bound address, with the kernel-chosen port when the
// configured one was 0.
func (l *Listener) Addr() net.Addr {
	return l.addr
}

// Listen binds and listens on config.Address.
func Listen(config SocketConfig) (*Listener, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()
	if !config.isStream() {
		return nil, invalidConfig("listen: network %q is not a stream network", config.Network)
	}
	logger := loggerOrGlobal(config.Logger)
	l, err := listen(config, logger)
	if err != nil {
		logger.Error().Msgf("can't listen on %s %s: %+v", config.Network, config.Address, err)
		return nil, err
	}
	logger.Info().Msgf("listening on %s %s", config.Network, l.addr)
	return l, nil
}
