//go:build !windows

package xcomm

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// fdDevice does non-blocking I/O on a unix descriptor. A zero-byte read is
// end of stream for sockets, but only "no data yet" for a tty in raw mode
// with VMIN=0.
type fdDevice struct {
	fd        int
	eofOnZero bool
}

func (d fdDevice) read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.Read(d.fd, p)
	if err != nil {
		return 0, os.NewSyscallError("read", err)
	}
	if n == 0 {
		if d.eofOnZero {
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	return n, nil
}

func (d fdDevice) write(p []byte) (int, error) {
	n, err := unix.Write(d.fd, p)
	if err != nil {
		return max(n, 0), os.NewSyscallError("write", err)
	}
	return n, nil
}

func (d fdDevice) close() error {
	return os.NewSyscallError("close", unix.Close(d.fd))
}
