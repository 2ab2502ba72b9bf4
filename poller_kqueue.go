//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package xcomm

import (
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	fd      int
	wakeR   int
	wakeW   int
	events  [MaxCompletions]unix.Kevent_t
	changes [2]unix.Kevent_t
	cqes    [MaxCompletions]CQE
	regs    registry
	closed  *atomic.Bool
	logger  *zerolog.Logger
}

// OpenPoller creates the kqueue reactor. A nil logger means the global one.
func OpenPoller(logger *zerolog.Logger) (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, wrapError("open poller", os.NewSyscallError("kqueue", err))
	}
	unix.CloseOnExec(fd)
	var pipe [2]int
	if err = unix.Pipe(pipe[:]); err != nil {
		_ = unix.Close(fd)
		return nil, wrapError("open poller", os.NewSyscallError("pipe", err))
	}
	p := &kqueuePoller{
		fd:     fd,
		wakeR:  pipe[0],
		wakeW:  pipe[1],
		regs:   newRegistry(),
		closed: atomic.NewBool(false),
		logger: loggerOrGlobal(logger),
	}
	for _, end := range pipe {
		unix.CloseOnExec(end)
		if err = unix.SetNonblock(end, true); err != nil {
			p.closeAll()
			return nil, wrapError("open poller", os.NewSyscallError("fcntl", err))
		}
	}
	unix.SetKevent(&p.changes[0], p.wakeR, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE)
	if _, err = unix.Kevent(fd, p.changes[:1], nil, nil); err != nil {
		p.closeAll()
		return nil, wrapError("open poller", os.NewSyscallError("kevent add", err))
	}
	return p, nil
}

func (p *kqueuePoller) Submit(sqe SQE) error {
	if p.closed.Load() {
		return ErrReactorClosed
	}
	if !validOp(sqe.Op) {
		return invalidConfig("unknown op %d", sqe.Op)
	}
	if p.logger.Debug().Enabled() {
		p.logger.Debug().Msgf("[%d] kqueue submit %s", sqe.Fd, sqe.Op)
	}
	reg, existed := p.regs.acquire(sqe.Fd)
	// filters armed by an earlier submit but not wanted now
	p.deleteFilters(reg, reg.pending&^sqe.Op)
	changes := p.changes[:0]
	if sqe.Op&OpRead != 0 {
		changes = append(changes, unix.Kevent_t{})
		unix.SetKevent(&changes[len(changes)-1], int(sqe.Fd), unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE|unix.EV_ONESHOT)
	}
	if sqe.Op&OpWrite != 0 {
		changes = append(changes, unix.Kevent_t{})
		unix.SetKevent(&changes[len(changes)-1], int(sqe.Fd), unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE|unix.EV_ONESHOT)
	}
	if len(changes) > 0 {
		if _, err := unix.Kevent(p.fd, changes, nil, nil); err != nil {
			if !existed {
				p.regs.recycle(p.regs.remove(sqe.Fd))
			}
			return wrapError("submit", os.NewSyscallError("kevent add", err))
		}
	}
	reg.pending = sqe.Op
	reg.op = sqe.Op
	reg.userData = sqe.UserData
	// OpNone only disarms: a hangup reported meanwhile produces no CQE
	reg.armed = sqe.Op != OpNone
	return nil
}

// deleteFilters removes the filters in mask. Errors are ignored: a closed
// descriptor has already lost its filters.
func (p *kqueuePoller) deleteFilters(reg *registration, mask Op) {
	var changes [2]unix.Kevent_t
	n := 0
	if mask&OpRead != 0 {
		unix.SetKevent(&changes[n], int(reg.fd), unix.EVFILT_READ, unix.EV_DELETE)
		n++
	}
	if mask&OpWrite != 0 {
		unix.SetKevent(&changes[n], int(reg.fd), unix.EVFILT_WRITE, unix.EV_DELETE)
		n++
	}
	if n > 0 {
		_, _ = unix.Kevent(p.fd, changes[:n], nil, nil)
	}
	reg.pending &^= mask
}

func (p *kqueuePoller) Wait(timeout time.Duration) ([]CQE, error) {
	if p.closed.Load() {
		return nil, ErrReactorClosed
	}
	var deadline time.Time
	var ts *unix.Timespec
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
		spec := unix.NsecToTimespec(int64(timeout))
		ts = &spec
	}
	for {
		n, err := unix.Kevent(p.fd, nil, p.events[:], ts)
		if err == unix.EINTR {
			if ts != nil {
				remaining := time.Until(deadline)
				if remaining <= 0 {
					return p.cqes[:0], nil
				}
				*ts = unix.NsecToTimespec(int64(remaining))
			}
			continue
		}
		if err != nil {
			if p.closed.Load() || err == unix.EBADF {
				return nil, ErrReactorClosed
			}
			return nil, wrapError("wait", os.NewSyscallError("kevent", err))
		}
		return p.complete(n), nil
	}
}

// complete merges the filters that fired for one descriptor into a single
// CQE and drops the sibling filter that did not fire.
func (p *kqueuePoller) complete(n int) []CQE {
	count := 0
	for i := 0; i < n; i++ {
		event := &p.events[i]
		fd := int(event.Ident)
		if fd == p.wakeR {
			p.drainWakeup()
			continue
		}
		reg := p.regs.get(FD(fd))
		if reg == nil {
			continue
		}
		switch event.Filter {
		case unix.EVFILT_READ:
			reg.pending &^= OpRead
		case unix.EVFILT_WRITE:
			reg.pending &^= OpWrite
		}
		if !reg.armed {
			continue
		}
		reg.armed = false
		p.deleteFilters(reg, reg.pending)
		p.cqes[count] = CQE{Op: reg.op, UserData: reg.userData, Err: keventError(event)}
		count++
	}
	return p.cqes[:count]
}

func keventError(event *unix.Kevent_t) error {
	if event.Flags&unix.EV_ERROR != 0 && event.Data != 0 {
		return wrapError("poll", syscall.Errno(event.Data))
	}
	if event.Flags&unix.EV_EOF != 0 && event.Fflags != 0 {
		return wrapError("poll", syscall.Errno(event.Fflags))
	}
	return nil
}

func (p *kqueuePoller) drainWakeup() {
	var buf [64]byte
	for {
		_, err := unix.Read(p.wakeR, buf[:])
		if err != nil {
			return
		}
	}
}

func (p *kqueuePoller) Delete(fd FD) error {
	if p.closed.Load() {
		return ErrReactorClosed
	}
	reg := p.regs.remove(fd)
	if reg == nil {
		return nil
	}
	if p.logger.Debug().Enabled() {
		p.logger.Debug().Msgf("[%d] kqueue delete", fd)
	}
	p.deleteFilters(reg, reg.pending)
	p.regs.recycle(reg)
	return nil
}

func (p *kqueuePoller) Wakeup() error {
	if p.closed.Load() {
		return ErrReactorClosed
	}
	_, err := unix.Write(p.wakeW, []byte{1})
	if err != nil && err != unix.EAGAIN {
		return wrapError("wakeup", os.NewSyscallError("write", err))
	}
	return nil
}

func (p *kqueuePoller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.closeAll()
}

func (p *kqueuePoller) closeAll() error {
	for _, end := range []int{p.wakeR, p.wakeW} {
		if err := unix.Close(end); err != nil {
			p.logger.Error().Msgf("got error while closing wakeup pipe: %+v", os.NewSyscallError("close", err))
		}
	}
	err := os.NewSyscallError("close", unix.Close(p.fd))
	if err != nil {
		p.logger.Error().Msgf("got error while closing kqueue: %+v", err)
		return wrapError("close", err)
	}
	return nil
}
