//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package xcomm

import (
	"golang.org/x/sys/unix"
)

const (
	ioctlGetTermios = unix.TIOCGETA
	ioctlSetTermios = unix.TIOCSETA
)

// BSD speed constants are the literal rates, stored in the termios speed
// fields rather than in Cflag.
func setSpeed(t *unix.Termios, baud BaudRate) error {
	switch baud {
	case Baud9600:
		t.Ispeed, t.Ospeed = unix.B9600, unix.B9600
	case Baud19200:
		t.Ispeed, t.Ospeed = unix.B19200, unix.B19200
	case Baud38400:
		t.Ispeed, t.Ospeed = unix.B38400, unix.B38400
	case Baud57600:
		t.Ispeed, t.Ospeed = unix.B57600, unix.B57600
	case Baud115200:
		t.Ispeed, t.Ospeed = unix.B115200, unix.B115200
	default:
		return invalidConfig("unsupported baud rate %d", baud)
	}
	return nil
}
