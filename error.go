package xcomm

import (
	"errors"
	"fmt"
)

// ErrorKind is the portable classification of every error returned by the
// poller and the transports.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAllocationFailure
	KindInvalidConfiguration
	KindDescriptorUnavailable
	KindWouldBlock
	KindConnectionReset
	KindTimedOut
	KindReactorClosed
	KindReactorSaturated
)

var (
	ErrAllocationFailure     = errors.New("allocation failure")
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrDescriptorUnavailable = errors.New("descriptor unavailable")
	ErrWouldBlock            = errors.New("operation would block")
	ErrConnectionReset       = errors.New("connection reset")
	ErrTimedOut              = errors.New("timed out")
	ErrReactorClosed         = errors.New("reactor closed")
	ErrReactorSaturated      = errors.New("reactor saturated")
	ErrNotSupported          = errors.New("not supported on this platform")
)

var kindErrors = map[ErrorKind]error{
	KindAllocationFailure:     ErrAllocationFailure,
	KindInvalidConfiguration:  ErrInvalidConfiguration,
	KindDescriptorUnavailable: ErrDescriptorUnavailable,
	KindWouldBlock:            ErrWouldBlock,
	KindConnectionReset:       ErrConnectionReset,
	KindTimedOut:              ErrTimedOut,
	KindReactorClosed:         ErrReactorClosed,
	KindReactorSaturated:      ErrReactorSaturated,
}

func (k ErrorKind) String() string {
	if err, ok := kindErrors[k]; ok {
		return err.Error()
	}
	return "unknown"
}

// Error carries the platform cause of a failed operation together with its
// portable kind. errors.Is matches both the kind sentinel and the cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	sentinel, ok := kindErrors[e.Kind]
	return ok && sentinel == target
}

// wrapError classifies a platform error and attaches the operation name.
// A nil err stays nil.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var xe *Error
	if errors.As(err, &xe) {
		return err
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// KindOf maps an error onto the portable taxonomy. Sentinels map to their own
// kind, platform codes are translated by the per-OS errnoKind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Kind
	}
	for kind, sentinel := range kindErrors {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return errnoKind(err)
}

func isWouldBlock(err error) bool {
	return err != nil && KindOf(err) == KindWouldBlock
}

func invalidConfig(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
