//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package xcomm

import (
	"os"

	"golang.org/x/sys/unix"
)

func openSerial(config SerialConfig) (FD, device, error) {
	fd, err := unix.Open(config.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, nil, os.NewSyscallError("open", err)
	}
	if err = configureTermios(fd, config); err != nil {
		_ = unix.Close(fd)
		return 0, nil, err
	}
	return FD(fd), fdDevice{fd: fd}, nil
}

// configureTermios puts the line in raw mode with the configured framing.
func configureTermios(fd int, config SerialConfig) error {
	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return os.NewSyscallError("tcgetattr", err)
	}
	if err = makeRaw(t, config); err != nil {
		return err
	}
	if err = unix.IoctlSetTermios(fd, ioctlSetTermios, t); err != nil {
		return os.NewSyscallError("tcsetattr", err)
	}
	return nil
}

// makeRaw rewrites t for raw I/O at the configured speed and framing.
// VMIN and VTIME are both zero: the descriptor is non-blocking, so the tty
// layer never waits on a read anyway.
func makeRaw(t *unix.Termios, config SerialConfig) error {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY | unix.INPCK
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	t.Cflag |= unix.CREAD | unix.CLOCAL
	if config.DataBits == DataBits7 {
		t.Cflag |= unix.CS7
	} else {
		t.Cflag |= unix.CS8
	}
	switch config.Parity {
	case ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
		t.Iflag |= unix.INPCK
	case ParityEven:
		t.Cflag |= unix.PARENB
		t.Iflag |= unix.INPCK
	}
	if config.StopBits == StopBits2 {
		t.Cflag |= unix.CSTOPB
	}
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	return setSpeed(t, config.BaudRate)
}
