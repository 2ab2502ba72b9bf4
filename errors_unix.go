//go:build !windows

package xcomm

import (
	"errors"

	"golang.org/x/sys/unix"
)

func errnoKind(err error) ErrorKind {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return KindUnknown
	}
	switch errno {
	case unix.EAGAIN, unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
		return KindWouldBlock
	case unix.ECONNRESET, unix.EPIPE, unix.ECONNABORTED, unix.ENOTCONN, unix.EHOSTUNREACH, unix.ENETUNREACH:
		return KindConnectionReset
	case unix.ETIMEDOUT:
		return KindTimedOut
	case unix.ENOENT, unix.ENODEV, unix.ENXIO, unix.EACCES, unix.EPERM, unix.EBUSY,
		unix.EBADF, unix.ECONNREFUSED, unix.EADDRNOTAVAIL, unix.ENOTTY, unix.EINVAL, unix.EEXIST:
		return KindDescriptorUnavailable
	case unix.ENOMEM, unix.ENOSPC, unix.EMFILE, unix.ENFILE, unix.ENOBUFS:
		return KindReactorSaturated
	}
	return KindUnknown
}
