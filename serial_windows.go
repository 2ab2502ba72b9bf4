//go:build windows

package xcomm

import (
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	dcbBinary = 0x0001
	dcbParity = 0x0002

	commNoParity   = 0
	commOddParity  = 1
	commEvenParity = 2
	commOneStop    = 0
	commTwoStop    = 2

	commMaxDword = 0xFFFFFFFF
)

func openSerial(config SerialConfig) (FD, device, error) {
	path := config.Device
	if !strings.HasPrefix(path, `\\.\`) {
		path = `\\.\` + path
	}
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, nil, invalidConfig("serial device %q: %v", config.Device, err)
	}
	h, err := windows.CreateFile(name, windows.GENERIC_READ|windows.GENERIC_WRITE, 0, nil,
		windows.OPEN_EXISTING, windows.FILE_FLAG_OVERLAPPED, 0)
	if err != nil {
		return 0, nil, os.NewSyscallError("CreateFile", err)
	}
	if err = configureComm(h, config); err != nil {
		_ = windows.CloseHandle(h)
		return 0, nil, err
	}
	dev, err := newCommDevice(h, uint32(config.TimeoutMs))
	if err != nil {
		_ = windows.CloseHandle(h)
		return 0, nil, err
	}
	return FD(h), dev, nil
}

func configureComm(h windows.Handle, config SerialConfig) error {
	var dcb windows.DCB
	dcb.DCBlength = uint32(unsafe.Sizeof(dcb))
	if err := windows.GetCommState(h, &dcb); err != nil {
		return os.NewSyscallError("GetCommState", err)
	}
	dcb.BaudRate = uint32(config.BaudRate)
	dcb.ByteSize = uint8(config.DataBits)
	dcb.Flags = dcbBinary
	switch config.Parity {
	case ParityOdd:
		dcb.Parity = commOddParity
		dcb.Flags |= dcbParity
	case ParityEven:
		dcb.Parity = commEvenParity
		dcb.Flags |= dcbParity
	default:
		dcb.Parity = commNoParity
	}
	if config.StopBits == StopBits2 {
		dcb.StopBits = commTwoStop
	} else {
		dcb.StopBits = commOneStop
	}
	if err := windows.SetCommState(h, &dcb); err != nil {
		return os.NewSyscallError("SetCommState", err)
	}
	// reads return at once with whatever is buffered; writes never time out
	// but are not waited on either
	timeouts := windows.CommTimeouts{
		ReadIntervalTimeout: commMaxDword,
	}
	if err := windows.SetCommTimeouts(h, &timeouts); err != nil {
		return os.NewSyscallError("SetCommTimeouts", err)
	}
	return nil
}

// commDevice does overlapped I/O on a comm handle, waiting on a private
// event. The low bit on the event keeps these operations off the
// completion port.
type commDevice struct {
	h      windows.Handle
	rEvent windows.Handle
	wEvent windows.Handle
	rov    windows.Overlapped
	wov    windows.Overlapped

	// wbuf holds the bytes of the write the driver is working on.
	wbuf    []byte
	writing bool
	linger  uint32
}

func newCommDevice(h windows.Handle, linger uint32) (*commDevice, error) {
	rEvent, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return nil, os.NewSyscallError("CreateEvent", err)
	}
	wEvent, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		_ = windows.CloseHandle(rEvent)
		return nil, os.NewSyscallError("CreateEvent", err)
	}
	return &commDevice{h: h, rEvent: rEvent, wEvent: wEvent, linger: linger}, nil
}

func (d *commDevice) read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	d.rov = windows.Overlapped{HEvent: d.rEvent | 1}
	var n uint32
	err := windows.ReadFile(d.h, p, &n, &d.rov)
	if err == windows.ERROR_IO_PENDING {
		err = windows.GetOverlappedResult(d.h, &d.rov, &n, true)
	}
	if err != nil {
		return 0, os.NewSyscallError("ReadFile", err)
	}
	if n == 0 {
		return 0, ErrWouldBlock
	}
	return int(n), nil
}

// write hands a copy of p to the driver and returns without waiting for the
// line. Until the driver finishes that write, further writes would block.
func (d *commDevice) write(p []byte) (int, error) {
	if d.writing {
		var n uint32
		err := windows.GetOverlappedResult(d.h, &d.wov, &n, false)
		if err == windows.ERROR_IO_INCOMPLETE {
			return 0, ErrWouldBlock
		}
		d.writing = false
		if err != nil {
			return 0, os.NewSyscallError("WriteFile", err)
		}
	}
	if len(p) == 0 {
		return 0, nil
	}
	d.wbuf = append(d.wbuf[:0], p...)
	d.wov = windows.Overlapped{HEvent: d.wEvent | 1}
	var n uint32
	err := windows.WriteFile(d.h, d.wbuf, &n, &d.wov)
	if err == windows.ERROR_IO_PENDING {
		d.writing = true
		return len(p), nil
	}
	if err != nil {
		return 0, os.NewSyscallError("WriteFile", err)
	}
	return int(n), nil
}

// close gives a write still held by the driver up to linger milliseconds
// before cancelling it.
func (d *commDevice) close() error {
	if d.writing {
		if event, err := windows.WaitForSingleObject(d.wEvent, d.linger); err != nil || event != windows.WAIT_OBJECT_0 {
			_ = windows.CancelIoEx(d.h, &d.wov)
		}
		var n uint32
		_ = windows.GetOverlappedResult(d.h, &d.wov, &n, true)
		d.writing = false
	}
	_ = windows.CloseHandle(d.rEvent)
	_ = windows.CloseHandle(d.wEvent)
	return os.NewSyscallError("CloseHandle", windows.CloseHandle(d.h))
}
