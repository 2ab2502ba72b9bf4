//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd && !windows

package xcomm

func openSerial(config SerialConfig) (FD, device, error) {
	return 0, nil, ErrNotSupported
}
