//go:build linux

package xcomm

import (
	"golang.org/x/sys/unix"
)

const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)

var baudRates = map[BaudRate]uint32{
	Baud9600:   unix.B9600,
	Baud19200:  unix.B19200,
	Baud38400:  unix.B38400,
	Baud57600:  unix.B57600,
	Baud115200: unix.B115200,
}

func setSpeed(t *unix.Termios, baud BaudRate) error {
	speed, ok := baudRates[baud]
	if !ok {
		return invalidConfig("unsupported baud rate %d", baud)
	}
	t.Cflag &^= unix.CBAUD
	t.Cflag |= speed
	t.Ispeed = speed
	t.Ospeed = speed
	return nil
}
