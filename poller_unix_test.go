//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package xcomm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func newTestPoller(t *testing.T) Poller {
	t.Helper()
	p, err := OpenPoller(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Close()
	})
	return p
}

func TestPollerWritableCompletion(t *testing.T) {
	p := newTestPoller(t)
	_, w := newTestPipe(t)

	require.NoError(t, p.Submit(SQE{Op: OpWrite, Fd: FD(w), UserData: "tag"}))
	cqes, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, cqes, 1)
	assert.Equal(t, OpWrite, cqes[0].Op)
	assert.Equal(t, "tag", cqes[0].UserData)
	assert.NoError(t, cqes[0].Err)
}

func TestPollerReadableCompletion(t *testing.T) {
	p := newTestPoller(t)
	r, w := newTestPipe(t)

	require.NoError(t, p.Submit(SQE{Op: OpRead, Fd: FD(r), UserData: 7}))
	_, err := unix.Write(w, []byte("x"))
	require.NoError(t, err)

	cqes, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, cqes, 1)
	assert.Equal(t, OpRead, cqes[0].Op)
	assert.Equal(t, 7, cqes[0].UserData)
}

func TestPollerTimeoutIsEmptyBatch(t *testing.T) {
	p := newTestPoller(t)
	r, _ := newTestPipe(t)

	require.NoError(t, p.Submit(SQE{Op: OpRead, Fd: FD(r)}))
	start := time.Now()
	cqes, err := p.Wait(30 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, cqes)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	cqes, err = p.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, cqes)
}

func TestPollerOneShot(t *testing.T) {
	p := newTestPoller(t)
	_, w := newTestPipe(t)

	require.NoError(t, p.Submit(SQE{Op: OpWrite, Fd: FD(w), UserData: 1}))
	cqes, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, cqes, 1)

	cqes, err = p.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, cqes, "disarmed descriptor must stay silent")

	require.NoError(t, p.Submit(SQE{Op: OpWrite, Fd: FD(w), UserData: 2}))
	cqes, err = p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, cqes, 1)
	assert.Equal(t, 2, cqes[0].UserData)
}

func TestPollerNoneIgnoresHangup(t *testing.T) {
	p := newTestPoller(t)
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	r := fds[0]
	defer unix.Close(r)

	require.NoError(t, p.Submit(SQE{Op: OpNone, Fd: FD(r), UserData: "paused"}))
	require.NoError(t, unix.Close(fds[1]))
	for i := 0; i < 3; i++ {
		cqes, err := p.Wait(20 * time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, cqes, "wait %d", i)
	}

	// resuming reads reports the hangup once
	require.NoError(t, p.Submit(SQE{Op: OpRead, Fd: FD(r), UserData: "resumed"}))
	cqes, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, cqes, 1)
	assert.Equal(t, "resumed", cqes[0].UserData)
	cqes, err = p.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, cqes)
}

func TestPollerResubmitReplacesUserData(t *testing.T) {
	p := newTestPoller(t)
	r, w := newTestPipe(t)

	require.NoError(t, p.Submit(SQE{Op: OpRead, Fd: FD(r), UserData: "first"}))
	require.NoError(t, p.Submit(SQE{Op: OpRead, Fd: FD(r), UserData: "second"}))
	_, err := unix.Write(w, []byte("x"))
	require.NoError(t, err)

	cqes, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, cqes, 1)
	assert.Equal(t, "second", cqes[0].UserData)
}

func TestPollerManyDescriptors(t *testing.T) {
	p := newTestPoller(t)
	want := map[int]bool{}
	for i := 0; i < 4; i++ {
		_, w := newTestPipe(t)
		require.NoError(t, p.Submit(SQE{Op: OpWrite, Fd: FD(w), UserData: i}))
		want[i] = true
	}
	got := map[int]bool{}
	deadline := time.Now().Add(time.Second)
	for len(got) < len(want) && time.Now().Before(deadline) {
		cqes, err := p.Wait(10 * time.Millisecond)
		require.NoError(t, err)
		for _, cqe := range cqes {
			got[cqe.UserData.(int)] = true
		}
	}
	assert.Equal(t, want, got)
}

func TestPollerDelete(t *testing.T) {
	p := newTestPoller(t)
	_, w := newTestPipe(t)

	require.NoError(t, p.Submit(SQE{Op: OpWrite, Fd: FD(w)}))
	require.NoError(t, p.Delete(FD(w)))
	cqes, err := p.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, cqes)

	assert.NoError(t, p.Delete(FD(w)))
	assert.NoError(t, p.Delete(FD(12345)))
}

func TestPollerWakeup(t *testing.T) {
	p := newTestPoller(t)
	go func() {
		time.Sleep(30 * time.Millisecond)
		assert.NoError(t, p.Wakeup())
	}()
	start := time.Now()
	cqes, err := p.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Empty(t, cqes)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPollerRejectsUnknownOp(t *testing.T) {
	p := newTestPoller(t)
	_, w := newTestPipe(t)
	err := p.Submit(SQE{Op: Op(4), Fd: FD(w)})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestPollerClosed(t *testing.T) {
	p, err := OpenPoller(nil)
	require.NoError(t, err)
	_, w := newTestPipe(t)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Submit(SQE{Op: OpWrite, Fd: FD(w)}), ErrReactorClosed)
	_, err = p.Wait(0)
	assert.ErrorIs(t, err, ErrReactorClosed)
	assert.ErrorIs(t, p.Delete(FD(w)), ErrReactorClosed)
	assert.ErrorIs(t, p.Wakeup(), ErrReactorClosed)
	assert.Equal(t, KindReactorClosed, KindOf(p.Wakeup()))
}
