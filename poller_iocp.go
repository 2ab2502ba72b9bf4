//go:build windows

package xcomm

import (
	"os"
	"syscall"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sys/windows"
)

const (
	evRxChar = 0x0001
	wakeKey  = 1
)

// iocpOp is one overlapped operation in flight. The Overlapped must stay the
// first field: the completion hands back its address.
type iocpOp struct {
	ov      windows.Overlapped
	node    ListNode[iocpOp]
	reg     *registration
	kind    Op
	evtMask uint32
	flags   uint32
	buf     windows.WSABuf
}

type iocpPoller struct {
	port     windows.Handle
	regs     registry
	inflight List[iocpOp]
	free     Stack[iocpOp]
	cqes     [MaxCompletions]CQE
	closed   *atomic.Bool
	logger   *zerolog.Logger
}

// OpenPoller creates the completion port reactor. A nil logger means the
// global one.
func OpenPoller(logger *zerolog.Logger) (Poller, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, wrapError("open poller", os.NewSyscallError("CreateIoCompletionPort", err))
	}
	return &iocpPoller{
		port:   port,
		regs:   newRegistry(),
		closed: atomic.NewBool(false),
		logger: loggerOrGlobal(logger),
	}, nil
}

func (p *iocpPoller) acquireOp(reg *registration, kind Op) *iocpOp {
	op := p.free.Pop()
	if op == nil {
		op = &iocpOp{}
		op.node.Init(op)
	}
	op.ov = windows.Overlapped{}
	op.reg = reg
	op.kind = kind
	op.evtMask = 0
	op.flags = 0
	op.buf = windows.WSABuf{}
	p.inflight.InsertTail(&op.node)
	return op
}

func (p *iocpPoller) releaseOp(op *iocpOp) {
	op.node.Remove()
	op.reg = nil
	p.free.Push(&op.node)
}

func (p *iocpPoller) associate(reg *registration) error {
	h := windows.Handle(reg.fd)
	_, err := windows.CreateIoCompletionPort(h, p.port, 0, 0)
	// ERROR_INVALID_PARAMETER: still associated from an earlier registration
	if err != nil && err != windows.ERROR_INVALID_PARAMETER {
		return err
	}
	if fileType, _ := windows.GetFileType(h); fileType == windows.FILE_TYPE_CHAR {
		reg.char = true
		if err = windows.SetCommMask(h, evRxChar); err != nil {
			return err
		}
	}
	return nil
}

func (p *iocpPoller) Submit(sqe SQE) error {
	if p.closed.Load() {
		return ErrReactorClosed
	}
	if !validOp(sqe.Op) {
		return invalidConfig("unknown op %d", sqe.Op)
	}
	if p.logger.Debug().Enabled() {
		p.logger.Debug().Msgf("[%d] iocp submit %s", sqe.Fd, sqe.Op)
	}
	reg, existed := p.regs.acquire(sqe.Fd)
	if !existed {
		if err := p.associate(reg); err != nil {
			p.regs.recycle(p.regs.remove(sqe.Fd))
			return wrapError("submit", os.NewSyscallError("CreateIoCompletionPort", err))
		}
	}
	reg.op = sqe.Op
	reg.userData = sqe.UserData
	reg.armed = sqe.Op != OpNone
	for _, kind := range []Op{OpRead, OpWrite} {
		if sqe.Op&kind == 0 || reg.pending&kind != 0 {
			continue
		}
		if err := p.issue(reg, kind); err != nil {
			reg.armed = reg.pending&sqe.Op != 0
			return wrapError("submit", err)
		}
	}
	return nil
}

// issue starts the zero-byte operation that completes once fd is ready for
// kind.
func (p *iocpPoller) issue(reg *registration, kind Op) error {
	op := p.acquireOp(reg, kind)
	h := windows.Handle(reg.fd)
	var n uint32
	var err error
	switch {
	case reg.char && kind == OpRead && !commQueued(h):
		err = windows.WaitCommEvent(h, &op.evtMask, &op.ov)
		err = os.NewSyscallError("WaitCommEvent", pendingOk(err))
	case reg.char:
		// comm devices accept writes at any time, and EV_RXCHAR does not
		// fire for bytes queued before the wait
		err = os.NewSyscallError("PostQueuedCompletionStatus", windows.PostQueuedCompletionStatus(p.port, 0, 0, &op.ov))
	case kind == OpRead:
		err = windows.WSARecv(h, &op.buf, 1, &n, &op.flags, &op.ov, nil)
		err = os.NewSyscallError("WSARecv", pendingOk(err))
	default:
		err = windows.WSASend(h, &op.buf, 1, &n, 0, &op.ov, nil)
		err = os.NewSyscallError("WSASend", pendingOk(err))
	}
	if err != nil {
		p.releaseOp(op)
		return err
	}
	reg.pending |= kind
	return nil
}

func commQueued(h windows.Handle) bool {
	var errors uint32
	var stat windows.ComStat
	if err := windows.ClearCommError(h, &errors, &stat); err != nil {
		return false
	}
	return stat.CBInQue > 0
}

func pendingOk(err error) error {
	if err == windows.ERROR_IO_PENDING {
		return nil
	}
	return err
}

func (p *iocpPoller) Wait(timeout time.Duration) ([]CQE, error) {
	if p.closed.Load() {
		return nil, ErrReactorClosed
	}
	msec := uint32(windows.INFINITE)
	if timeout >= 0 {
		msec = uint32(timeoutMillis(timeout))
	}
	count := 0
	for count < MaxCompletions {
		var qty uint32
		var key uintptr
		var ov *windows.Overlapped
		err := windows.GetQueuedCompletionStatus(p.port, &qty, &key, &ov, msec)
		msec = 0
		if ov == nil {
			if err == nil {
				// wakeup
				continue
			}
			errno, _ := err.(syscall.Errno)
			if errno == windows.WAIT_TIMEOUT {
				break
			}
			if p.closed.Load() || errno == windows.ERROR_ABANDONED_WAIT_0 || errno == windows.ERROR_INVALID_HANDLE {
				return nil, ErrReactorClosed
			}
			return nil, wrapError("wait", os.NewSyscallError("GetQueuedCompletionStatus", err))
		}
		op := (*iocpOp)(unsafe.Pointer(ov))
		reg, kind := op.reg, op.kind
		p.releaseOp(op)
		reg.pending &^= kind
		if reg.deleted {
			if reg.pending == 0 {
				p.regs.recycle(reg)
			}
			continue
		}
		if !reg.armed || reg.op&kind == 0 {
			continue
		}
		reg.armed = false
		var cqeErr error
		if err != nil {
			cqeErr = wrapError("poll", err)
		}
		p.cqes[count] = CQE{Op: reg.op, UserData: reg.userData, Err: cqeErr}
		count++
	}
	return p.cqes[:count], nil
}

// Delete unmaps fd at once and cancels its outstanding operations. The record
// is recycled when the last cancelled operation drains through Wait.
func (p *iocpPoller) Delete(fd FD) error {
	if p.closed.Load() {
		return ErrReactorClosed
	}
	reg := p.regs.remove(fd)
	if reg == nil {
		return nil
	}
	if p.logger.Debug().Enabled() {
		p.logger.Debug().Msgf("[%d] iocp delete", fd)
	}
	if reg.pending == 0 {
		p.regs.recycle(reg)
		return nil
	}
	reg.deleted = true
	err := windows.CancelIoEx(windows.Handle(fd), nil)
	if err != nil && err != windows.ERROR_NOT_FOUND && err != windows.ERROR_INVALID_HANDLE {
		return wrapError("delete", os.NewSyscallError("CancelIoEx", err))
	}
	return nil
}

func (p *iocpPoller) Wakeup() error {
	if p.closed.Load() {
		return ErrReactorClosed
	}
	err := windows.PostQueuedCompletionStatus(p.port, 0, wakeKey, nil)
	if err != nil {
		return wrapError("wakeup", os.NewSyscallError("PostQueuedCompletionStatus", err))
	}
	return nil
}

func (p *iocpPoller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	err := os.NewSyscallError("CloseHandle", windows.CloseHandle(p.port))
	if err != nil {
		p.logger.Error().Msgf("got error while closing completion port: %+v", err)
		return wrapError("close", err)
	}
	return nil
}
