//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package xcomm

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeOverSockets(t *testing.T) {
	front := newTestListener(t)
	back := newTestListener(t)

	outside := dialTest(t, front, SocketConfig{})
	a := acceptOne(t, front)
	b := dialTest(t, back, SocketConfig{})
	far := acceptOne(t, back)

	el := newTestLoop(t)
	br := NewBridge("pair", a, b, nil)
	require.NoError(t, br.Start(el))
	runLoop(t, el)

	_, err := outside.Send([]byte("to the far side"))
	require.NoError(t, err)
	assert.Equal(t, "to the far side", string(recvAll(t, far, 15)))

	_, err = far.Send([]byte("and back"))
	require.NoError(t, err)
	assert.Equal(t, "and back", string(recvAll(t, outside, 8)))

	require.NoError(t, outside.Close())
	select {
	case <-br.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not finish")
	}
	assert.NoError(t, br.Err())
	assert.Equal(t, BridgeStats{Name: "pair", AToB: 15, BToA: 8}, br.Stats())

	require.Eventually(t, func() bool {
		_, err := far.Recv(make([]byte, 8))
		return err == io.EOF
	}, time.Second, time.Millisecond)
}

func TestBridgeOverSocketsWithSmallPeerRing(t *testing.T) {
	front := newTestListener(t)
	back := newTestListener(t)

	outside := dialTest(t, front, SocketConfig{})
	a := acceptOne(t, front)
	b := dialTest(t, back, SocketConfig{BufferSize: 1024})
	far := acceptOne(t, back)

	el := newTestLoop(t)
	br := NewBridge("narrow", a, b, nil)
	require.NoError(t, br.Start(el))
	runLoop(t, el)

	payload := bytes.Repeat([]byte("abcdefghij"), 300)
	n, err := outside.Send(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.Equal(t, payload, recvAll(t, far, len(payload)))
	assert.Equal(t, uint64(len(payload)), br.Stats().AToB)
}
