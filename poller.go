package xcomm

import (
	"time"
)

// MaxCompletions is the number of completions a single Wait can return.
const MaxCompletions = 64

// Op is the kind of I/O interest carried by submissions and completions.
type Op uint8

const (
	OpNone      Op = 0
	OpRead      Op = 1
	OpWrite     Op = 2
	OpReadWrite Op = OpRead | OpWrite
)

func (o Op) String() string {
	switch o {
	case OpNone:
		return "none"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpReadWrite:
		return "read|write"
	}
	return "invalid"
}

// FD is a platform descriptor: a file descriptor on unix, a HANDLE or
// SOCKET on windows.
type FD uintptr

// SQE registers interest in Op on Fd. UserData comes back untouched in the
// CQE that satisfies it.
type SQE struct {
	Op       Op
	Fd       FD
	UserData interface{}
}

// CQE reports a satisfied SQE. Err is set when the kernel flagged an error
// or hangup on the descriptor together with the completion.
type CQE struct {
	Op       Op
	UserData interface{}
	Err      error
}

// Poller multiplexes descriptors behind one submission/completion contract,
// whether the platform reports readiness (epoll, kqueue) or completion
// (IOCP).
//
// Every SQE is one-shot: once its CQE has been returned from Wait, the
// descriptor stays registered but disarmed until the next Submit. A
// descriptor has at most one outstanding SQE; submitting again replaces it.
//
// Wait must be driven by a single goroutine. Wakeup is the only method safe
// to call concurrently with Wait.
type Poller interface {
	// Submit registers or updates interest for sqe.Fd.
	Submit(sqe SQE) error
	// Wait blocks up to timeout (forever when negative) and returns the
	// completed entries. The slice is reused by the next call. A timeout is
	// an empty batch, not an error.
	Wait(timeout time.Duration) ([]CQE, error)
	// Delete deregisters fd. Deleting an unknown descriptor is a no-op.
	Delete(fd FD) error
	// Wakeup makes a blocked Wait return early.
	Wakeup() error
	// Close releases the reactor. Later calls fail with ErrReactorClosed.
	Close() error
}

func validOp(op Op) bool {
	return op <= OpReadWrite
}

func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}
