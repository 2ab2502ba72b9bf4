//go:build linux

package xcomm

import (
	"encoding/binary"
	"os"
	"syscall"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

const (
	readEvents  = unix.EPOLLPRI | unix.EPOLLIN | unix.EPOLLRDHUP
	writeEvents = unix.EPOLLOUT
)

type epollPoller struct {
	fd     int
	wakeFd int
	events [MaxCompletions]unix.EpollEvent
	cqes   [MaxCompletions]CQE
	regs   registry
	closed *atomic.Bool
	logger *zerolog.Logger
}

// OpenPoller creates the epoll reactor. A nil logger means the global one.
func OpenPoller(logger *zerolog.Logger) (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, wrapError("open poller", os.NewSyscallError("epoll_create1", err))
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return nil, wrapError("open poller", os.NewSyscallError("eventfd", err))
	}
	err = unix.EpollCtl(fd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{Fd: int32(wakeFd), Events: unix.EPOLLIN})
	if err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(fd)
		return nil, wrapError("open poller", os.NewSyscallError("epoll_ctl add", err))
	}
	return &epollPoller{
		fd:     fd,
		wakeFd: wakeFd,
		regs:   newRegistry(),
		closed: atomic.NewBool(false),
		logger: loggerOrGlobal(logger),
	}, nil
}

func epollEvents(op Op) uint32 {
	events := uint32(unix.EPOLLONESHOT)
	if op&OpRead != 0 {
		events |= readEvents
	}
	if op&OpWrite != 0 {
		events |= writeEvents
	}
	return events
}

func (p *epollPoller) Submit(sqe SQE) error {
	if p.closed.Load() {
		return ErrReactorClosed
	}
	if !validOp(sqe.Op) {
		return invalidConfig("unknown op %d", sqe.Op)
	}
	if p.logger.Debug().Enabled() {
		p.logger.Debug().Msgf("[%d] epoll submit %s", sqe.Fd, sqe.Op)
	}
	reg, existed := p.regs.acquire(sqe.Fd)
	event := unix.EpollEvent{Fd: int32(sqe.Fd), Events: epollEvents(sqe.Op)}
	var err error
	if existed {
		err = unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, int(sqe.Fd), &event)
		if err == unix.ENOENT {
			// the descriptor was closed and its number reused
			err = unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, int(sqe.Fd), &event)
		}
	} else {
		err = unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, int(sqe.Fd), &event)
		if err == unix.EEXIST {
			err = unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, int(sqe.Fd), &event)
		}
	}
	if err != nil {
		if !existed {
			p.regs.recycle(p.regs.remove(sqe.Fd))
		}
		return wrapError("submit", os.NewSyscallError("epoll_ctl", err))
	}
	reg.op = sqe.Op
	reg.userData = sqe.UserData
	// OpNone only disarms: a hangup reported meanwhile produces no CQE
	reg.armed = sqe.Op != OpNone
	return nil
}

func (p *epollPoller) Wait(timeout time.Duration) ([]CQE, error) {
	if p.closed.Load() {
		return nil, ErrReactorClosed
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	msec := timeoutMillis(timeout)
	for {
		n, err := epollWait(p.fd, p.events[:], msec)
		if err == unix.EINTR {
			if timeout > 0 {
				remaining := time.Until(deadline)
				if remaining <= 0 {
					return p.cqes[:0], nil
				}
				msec = timeoutMillis(remaining)
			}
			continue
		}
		if err != nil {
			if p.closed.Load() || err == unix.EBADF {
				return nil, ErrReactorClosed
			}
			return nil, wrapError("wait", os.NewSyscallError("epoll_wait", err))
		}
		return p.complete(n), nil
	}
}

func (p *epollPoller) complete(n int) []CQE {
	count := 0
	for i := 0; i < n; i++ {
		event := p.events[i]
		fd := int(event.Fd)
		if fd == p.wakeFd {
			p.drainWakeup()
			continue
		}
		reg := p.regs.get(FD(fd))
		if reg == nil || !reg.armed {
			continue
		}
		reg.armed = false
		p.cqes[count] = CQE{Op: reg.op, UserData: reg.userData, Err: epollError(fd, event.Events)}
		count++
	}
	return p.cqes[:count]
}

func epollError(fd int, events uint32) error {
	if events&unix.EPOLLERR == 0 {
		return nil
	}
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err == nil && errno != 0 {
		return wrapError("poll", syscall.Errno(errno))
	}
	return &Error{Kind: KindConnectionReset, Op: "poll"}
}

func (p *epollPoller) drainWakeup() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakeFd, buf[:])
		if err != nil {
			return
		}
	}
}

func (p *epollPoller) Delete(fd FD) error {
	if p.closed.Load() {
		return ErrReactorClosed
	}
	reg := p.regs.remove(fd)
	if reg == nil {
		return nil
	}
	p.regs.recycle(reg)
	if p.logger.Debug().Enabled() {
		p.logger.Debug().Msgf("[%d] epoll delete", fd)
	}
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, int(fd), nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return wrapError("delete", os.NewSyscallError("epoll_ctl del", err))
	}
	return nil
}

func (p *epollPoller) Wakeup() error {
	if p.closed.Load() {
		return ErrReactorClosed
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakeFd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return wrapError("wakeup", os.NewSyscallError("write", err))
	}
	return nil
}

func (p *epollPoller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if err := unix.Close(p.wakeFd); err != nil {
		p.logger.Error().Msgf("got error while closing eventfd: %+v", os.NewSyscallError("close", err))
	}
	err := os.NewSyscallError("close", unix.Close(p.fd))
	if err != nil {
		p.logger.Error().Msgf("got error while closing epoll: %+v", err)
		return wrapError("close", err)
	}
	return nil
}

// epollWait skips the scheduler hand-off for non-blocking polls.
func epollWait(epollFd int, events []unix.EpollEvent, msec int) (int, error) {
	var count uintptr
	var errno syscall.Errno
	eventsPointer := unsafe.Pointer(&events[0])
	if msec == 0 {
		count, _, errno = syscall.RawSyscall6(syscall.SYS_EPOLL_PWAIT, uintptr(epollFd), uintptr(eventsPointer), uintptr(len(events)), 0, 0, 0)
	} else {
		count, _, errno = syscall.Syscall6(syscall.SYS_EPOLL_PWAIT, uintptr(epollFd), uintptr(eventsPointer), uintptr(len(events)), uintptr(msec), 0, 0)
	}
	if errno != 0 {
		return 0, errno
	}
	return int(count), nil
}
