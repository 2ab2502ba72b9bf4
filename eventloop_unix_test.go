//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package xcomm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type echoHandler struct {
	buf    []byte
	closed chan error
}

func newEchoHandler() *echoHandler {
	return &echoHandler{buf: make([]byte, 512), closed: make(chan error, 1)}
}

func (h *echoHandler) OnReadable(conn Conn) error {
	for {
		n, err := conn.Recv(h.buf)
		if n > 0 {
			if _, sendErr := conn.Send(h.buf[:n]); sendErr != nil {
				return sendErr
			}
		}
		if err != nil || n == 0 {
			return err
		}
	}
}

func (h *echoHandler) OnWritable(conn Conn) error {
	return nil
}

func (h *echoHandler) OnClosed(conn Conn, err error) {
	h.closed <- err
}

func newTestLoop(t *testing.T) *EventLoop {
	t.Helper()
	el, err := NewEventLoop(EventLoopConfig{Name: "test", WaitTimeoutMs: 10})
	require.NoError(t, err)
	return el
}

// runLoop runs el until the test ends, then closes it.
func runLoop(t *testing.T, el *EventLoop) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- el.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Error("event loop did not stop")
		}
		assert.NoError(t, el.Close())
	})
}

func TestEventLoopEcho(t *testing.T) {
	el := newTestLoop(t)
	l := newTestListener(t)
	handler := newEchoHandler()
	require.NoError(t, el.AttachListener(l, func(socket *Socket) {
		assert.NoError(t, el.Attach(socket, handler))
	}))
	runLoop(t, el)

	client := dialTest(t, l, SocketConfig{})
	_, err := client.Send([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "ping", string(recvAll(t, client, 4)))

	require.Eventually(t, func() bool {
		return el.Stats().Attached == 2
	}, time.Second, time.Millisecond)

	require.NoError(t, client.Close())
	select {
	case err = <-handler.closed:
		assert.NoError(t, err, "an orderly peer close reports no error")
	case <-time.After(2 * time.Second):
		t.Fatal("OnClosed was not called")
	}
	stats := el.Stats()
	assert.Equal(t, "test", stats.Name)
	assert.Positive(t, stats.Waits)
	assert.Positive(t, stats.Completions)
}

func TestEventLoopPostRunsOnLoop(t *testing.T) {
	el := newTestLoop(t)
	runLoop(t, el)

	ran := make(chan struct{})
	require.NoError(t, el.Post(func() {
		close(ran)
	}))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("posted task did not run")
	}
}

func TestEventLoopRunOnce(t *testing.T) {
	el := newTestLoop(t)
	defer el.Close()

	counter := atomic.NewInt32(0)
	for i := 0; i < 3; i++ {
		require.NoError(t, el.Post(func() {
			counter.Inc()
		}))
	}
	n, err := el.RunOnce(0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int32(3), counter.Load())
	assert.Equal(t, uint64(1), el.Stats().Waits)
}

func TestEventLoopStop(t *testing.T) {
	el := newTestLoop(t)
	defer el.Close()

	done := make(chan error, 1)
	go func() {
		done <- el.Run(context.Background())
	}()
	require.Eventually(t, el.isRunning.Load, time.Second, time.Millisecond)
	el.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not end Run")
	}
}

type failingHandler struct {
	echoHandler
	err error
}

func (h *failingHandler) OnReadable(conn Conn) error {
	return h.err
}

func TestEventLoopHandlerErrorClosesConn(t *testing.T) {
	el := newTestLoop(t)
	l := newTestListener(t)
	boom := errors.New("boom")
	handler := &failingHandler{echoHandler: *newEchoHandler(), err: boom}
	require.NoError(t, el.AttachListener(l, func(socket *Socket) {
		assert.NoError(t, el.Attach(socket, handler))
	}))
	runLoop(t, el)

	client := dialTest(t, l, SocketConfig{})
	_, err := client.Send([]byte("x"))
	require.NoError(t, err)
	select {
	case err = <-handler.closed:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClosed was not called")
	}
	require.Eventually(t, func() bool {
		_, err := client.Recv(make([]byte, 1))
		return errors.Is(err, io.EOF) || KindOf(err) == KindConnectionReset
	}, time.Second, time.Millisecond)
}

func TestEventLoopCloseClosesAttached(t *testing.T) {
	el := newTestLoop(t)
	l := newTestListener(t)
	client := dialTest(t, l, SocketConfig{})
	handler := newEchoHandler()
	require.NoError(t, el.Attach(client, handler))
	assert.Equal(t, 1, el.Stats().Attached)

	require.NoError(t, el.Close())
	assert.ErrorIs(t, <-handler.closed, ErrReactorClosed)
	assert.Zero(t, el.Stats().Attached)
	_, err := client.Send([]byte("x"))
	assert.ErrorIs(t, err, ErrDescriptorUnavailable)
}

func TestEventLoopDetach(t *testing.T) {
	el := newTestLoop(t)
	defer el.Close()
	l := newTestListener(t)
	client := dialTest(t, l, SocketConfig{})
	require.NoError(t, el.Attach(client, newEchoHandler()))
	require.NoError(t, el.Detach(client))
	assert.Zero(t, el.Stats().Attached)
	assert.NoError(t, el.Detach(client))

	_, err := client.Send([]byte("still open"))
	assert.NoError(t, err)
}

func TestNewEventLoopRejectsNegativeTimeout(t *testing.T) {
	_, err := NewEventLoop(EventLoopConfig{WaitTimeoutMs: -1})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
