//go:build !windows

package xcomm

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestErrnoKind(t *testing.T) {
	for errno, kind := range map[unix.Errno]ErrorKind{
		unix.EAGAIN:       KindWouldBlock,
		unix.ECONNRESET:   KindConnectionReset,
		unix.EPIPE:        KindConnectionReset,
		unix.ETIMEDOUT:    KindTimedOut,
		unix.ENOENT:       KindDescriptorUnavailable,
		unix.ECONNREFUSED: KindDescriptorUnavailable,
		unix.EMFILE:       KindReactorSaturated,
		unix.EDOM:         KindUnknown,
	} {
		assert.Equal(t, kind, KindOf(os.NewSyscallError("op", errno)), errno.Error())
	}
	assert.True(t, isWouldBlock(os.NewSyscallError("read", unix.EAGAIN)))
}
