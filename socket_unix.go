//go:build !windows

package xcomm

import (
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

func sockaddr(config SocketConfig, ip net.IP, port int) (int, unix.Sockaddr) {
	if useIPv4(config, ip) {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip.To4())
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return unix.AF_INET6, sa
}

func sockaddrToAddr(sa unix.Sockaddr, stream bool) net.Addr {
	var ip net.IP
	var port int
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		ip = append(net.IP(nil), sa.Addr[:]...)
		port = sa.Port
	case *unix.SockaddrInet6:
		ip = append(net.IP(nil), sa.Addr[:]...)
		port = sa.Port
	default:
		return nil
	}
	if stream {
		return &net.TCPAddr{IP: ip, Port: port}
	}
	return &net.UDPAddr{IP: ip, Port: port}
}

func socketType(config SocketConfig) int {
	if config.isStream() {
		return unix.SOCK_STREAM
	}
	return unix.SOCK_DGRAM
}

func dialSocket(config SocketConfig, ip net.IP, port int, logger *zerolog.Logger) (*Socket, error) {
	domain, sa := sockaddr(config, ip, port)
	fd, err := unix.Socket(domain, socketType(config), 0)
	if err != nil {
		return nil, wrapError("dial "+config.Address, os.NewSyscallError("socket", err))
	}
	if err = applySocketOptions(fd, config, logger); err != nil {
		_ = unix.Close(fd)
		return nil, wrapError("dial "+config.Address, err)
	}
	err = unix.Connect(fd, sa)
	if err == unix.EINPROGRESS || err == unix.EINTR {
		err = waitConnect(fd, config.timeout())
	} else if err != nil {
		err = os.NewSyscallError("connect", err)
	}
	if err != nil {
		_ = unix.Close(fd)
		return nil, wrapError("dial "+config.Address, err)
	}
	return newSocket(fd, config, logger)
}

// waitConnect polls for the end of a non-blocking connect, then reports
// the socket's pending error.
func waitConnect(fd int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		msec := -1
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return &Error{Kind: KindTimedOut, Op: "connect"}
			}
			msec = timeoutMillis(remaining)
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, msec)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("poll", err)
		}
		if n == 0 {
			return &Error{Kind: KindTimedOut, Op: "connect"}
		}
		errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return os.NewSyscallError("getsockopt", err)
		}
		if errno != 0 {
			return os.NewSyscallError("connect", unix.Errno(errno))
		}
		return nil
	}
}

func newSocket(fd int, config SocketConfig, logger *zerolog.Logger) (*Socket, error) {
	s, err := newStream(FD(fd), fdDevice{fd: fd, eofOnZero: config.isStream()}, config.BufferSize, logger)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	s.datagram = !config.isStream()
	socket := &Socket{stream: s}
	if sa, err := unix.Getsockname(fd); err == nil {
		socket.local = sockaddrToAddr(sa, config.isStream())
	}
	if sa, err := unix.Getpeername(fd); err == nil {
		socket.remote = sockaddrToAddr(sa, config.isStream())
	}
	return socket, nil
}
