//go:build windows

package xcomm

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

func errnoKind(err error) ErrorKind {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return KindUnknown
	}
	switch errno {
	case windows.WSAEWOULDBLOCK, windows.ERROR_IO_PENDING, windows.WSAEINPROGRESS, windows.ERROR_IO_INCOMPLETE:
		return KindWouldBlock
	case windows.WSAECONNRESET, windows.WSAECONNABORTED, windows.WSAENOTCONN, windows.WSAESHUTDOWN,
		windows.ERROR_NETNAME_DELETED, windows.ERROR_BROKEN_PIPE, windows.WSAEHOSTUNREACH, windows.WSAENETUNREACH:
		return KindConnectionReset
	case windows.WSAETIMEDOUT, windows.WAIT_TIMEOUT, windows.ERROR_SEM_TIMEOUT:
		return KindTimedOut
	case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND, windows.ERROR_ACCESS_DENIED,
		windows.ERROR_INVALID_HANDLE, windows.WSAECONNREFUSED, windows.WSAENOTSOCK, windows.ERROR_SHARING_VIOLATION,
		windows.WSAEADDRNOTAVAIL, windows.ERROR_INVALID_PARAMETER:
		return KindDescriptorUnavailable
	case windows.ERROR_NOT_ENOUGH_MEMORY, windows.ERROR_OUTOFMEMORY, windows.WSAENOBUFS, windows.WSAEMFILE,
		windows.ERROR_NO_SYSTEM_RESOURCES:
		return KindReactorSaturated
	}
	return KindUnknown
}
