//go:build !windows

package xcomm

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

func listen(config SocketConfig, logger *zerolog.Logger) (*Listener, error) {
	ips, port, err := config.Resolver.Resolve(context.Background(), config.Network, config.Address)
	if err != nil {
		return nil, err
	}
	domain, sa := sockaddr(config, ips[0], port)
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, wrapError("listen", os.NewSyscallError("socket", err))
	}
	fail := func(op string, err error) (*Listener, error) {
		_ = unix.Close(fd)
		return nil, wrapError("listen "+config.Address, os.NewSyscallError(op, err))
	}
	unix.CloseOnExec(fd)
	if err = unix.SetNonblock(fd, true); err != nil {
		return fail("setnonblock", err)
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if err = unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err = unix.Listen(fd, unix.SOMAXCONN); err != nil {
		return fail("listen", err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	return &Listener{
		fd:     FD(fd),
		addr:   sockaddrToAddr(bound, true),
		config: config,
		closed: atomic.NewBool(false),
		logger: logger,
	}, nil
}

// Accept returns the next pending connection, or (nil, nil) when none is
// waiting.
func (l *Listener) Accept() (*Socket, error) {
	if l.closed.Load() {
		return nil, &Error{Kind: KindDescriptorUnavailable, Op: "accept"}
	}
	for {
		fd, _, err := unix.Accept(int(l.fd))
		if err == unix.EINTR || err == unix.ECONNABORTED {
			continue
		}
		if err == unix.EAGAIN {
			return nil, nil
		}
		if err != nil {
			return nil, wrapError("accept", os.NewSyscallError("accept", err))
		}
		if err = applySocketOptions(fd, l.config, l.logger); err != nil {
			_ = unix.Close(fd)
			return nil, wrapError("accept", err)
		}
		socket, err := newSocket(fd, l.config, l.logger)
		if err != nil {
			return nil, err
		}
		if l.logger.Debug().Enabled() {
			l.logger.Debug().Msgf("[%d] accepted connection from %s", fd, socket.remote)
		}
		return socket, nil
	}
}

func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return wrapError("close", os.NewSyscallError("close", unix.Close(int(l.fd))))
}
