//go:build windows

package xcomm

import (
	"io"
	"net"
	"os"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"
)

const fionbio = 0x8004667e

func sockaddr(config SocketConfig, ip net.IP, port int) (int32, windows.Sockaddr) {
	if useIPv4(config, ip) {
		sa := &windows.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip.To4())
		return windows.AF_INET, sa
	}
	sa := &windows.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return windows.AF_INET6, sa
}

func sockaddrToAddr(sa windows.Sockaddr, stream bool) net.Addr {
	var ip net.IP
	var port int
	switch sa := sa.(type) {
	case *windows.SockaddrInet4:
		ip = append(net.IP(nil), sa.Addr[:]...)
		port = sa.Port
	case *windows.SockaddrInet6:
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

func dialSocket(config SocketConfig, ip net.IP, port int, logger *zerolog.Logger) (*Socket, error) {
	domain, sa := sockaddr(config, ip, port)
	typ, proto := int32(windows.SOCK_STREAM), int32(windows.IPPROTO_TCP)
	if !config.isStream() {
		typ, proto = windows.SOCK_DGRAM, windows.IPPROTO_UDP
	}
	h, err := windows.Socket(int(domain), int(typ), int(proto))
	if err != nil {
		return nil, wrapError("dial "+config.Address, os.NewSyscallError("socket", err))
	}
	applySocketOptions(h, config, logger)
	if err = connectWithin(h, sa, config.timeout()); err != nil {
		_ = windows.Closesocket(h)
		return nil, wrapError("dial "+config.Address, err)
	}
	if err = setNonblock(h); err != nil {
		_ = windows.Closesocket(h)
		return nil, wrapError("dial "+config.Address, err)
	}
	s, err := newStream(FD(h), socketDevice{h: h}, config.BufferSize, logger)
	if err != nil {
		_ = windows.Closesocket(h)
		return nil, err
	}
	s.datagram = !config.isStream()
	socket := &Socket{stream: s}
	if local, err := windows.Getsockname(h); err == nil {
		socket.local = sockaddrToAddr(local, config.isStream())
	}
	if remote, err := windows.Getpeername(h); err == nil {
		socket.remote = sockaddrToAddr(remote, config.isStream())
	}
	return socket, nil
}

// connectWithin runs a blocking connect and abandons it by closing the
// socket once timeout passes.
func connectWithin(h windows.Handle, sa windows.Sockaddr, timeout time.Duration) error {
	if timeout <= 0 {
		return os.NewSyscallError("connect", windows.Connect(h, sa))
	}
	done := make(chan error, 1)
	go func() {
		done <- windows.Connect(h, sa)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return os.NewSyscallError("connect", err)
	case <-timer.C:
		_ = windows.Closesocket(h)
		<-done
		return &Error{Kind: KindTimedOut, Op: "connect"}
	}
}

func setNonblock(h windows.Handle) error {
	flag := uint32(1)
	var returned uint32
	err := windows.WSAIoctl(h, fionbio, (*byte)(unsafe.Pointer(&flag)), uint32(unsafe.Sizeof(flag)), nil, 0, &returned, nil, 0)
	return os.NewSyscallError("ioctlsocket", err)
}

func applySocketOptions(h windows.Handle, config SocketConfig, logger *zerolog.Logger) {
	err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_RCVBUF, config.ReadBuffer)
	if err != nil {
		logger.Error().Msgf("[%d] got error while setting socket options SO_RCVBUF: %+v", h, err)
	}
	err = windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_SNDBUF, config.WriteBuffer)
	if err != nil {
		logger.Error().Msgf("[%d] got error while setting socket options SO_SNDBUF: %+v", h, err)
	}
	if !config.isStream() {
		return
	}
	if config.NoDelay {
		err = windows.SetsockoptInt(h, windows.IPPROTO_TCP, windows.TCP_NODELAY, 1)
		if err != nil {
			logger.Error().Msgf("[%d] got error while setting socket options TCP_NODELAY: %+v", h, err)
		}
	}
	if config.KeepAlive {
		err = windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_KEEPALIVE, 1)
		if err != nil {
			logger.Error().Msgf("[%d] got error while setting socket options SO_KEEPALIVE: %+v", h, err)
		}
	}
}

// socketDevice does synchronous WSARecv/WSASend on a non-blocking socket.
type socketDevice struct {
	h windows.Handle
}

func (d socketDevice) read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := windows.WSABuf{Len: uint32(len(p)), Buf: &p[0]}
	var n, flags uint32
	if err := windows.WSARecv(d.h, &buf, 1, &n, &flags, nil, nil); err != nil {
		return 0, os.NewSyscallError("WSARecv", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return int(n), nil
}

func (d socketDevice) write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := windows.WSABuf{Len: uint32(len(p)), Buf: &p[0]}
	var n uint32
	if err := windows.WSASend(d.h, &buf, 1, &n, 0, nil, nil); err != nil {
		return int(n), os.NewSyscallError("WSASend", err)
	}
	return int(n), nil
}

func (d socketDevice) close() error {
	return os.NewSyscallError("closesocket", windows.Closesocket(d.h))
}
