package xcomm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn accepts at most room bytes and serves input from a fixed buffer.
type fakeConn struct {
	input  []byte
	output []byte
	room   int
	paused bool
	closed bool
}

func (c *fakeConn) Kind() Kind { return KindSocket }
func (c *fakeConn) Fd() FD     { return 0 }

func (c *fakeConn) Send(p []byte) (int, error) {
	n := min(len(p), c.room)
	c.output = append(c.output, p[:n]...)
	c.room -= n
	return n, nil
}

func (c *fakeConn) Recv(p []byte) (int, error) {
	n := copy(p, c.input)
	c.input = c.input[n:]
	return n, nil
}

func (c *fakeConn) Flush() (int, error) { return 0, nil }
func (c *fakeConn) Pending() int        { return 0 }
func (c *fakeConn) Rearm() error        { return nil }
func (c *fakeConn) SuspendRead()        { c.paused = true }
func (c *fakeConn) Detach() error       { return nil }
func (c *fakeConn) Stats() Stats        { return Stats{} }

func (c *fakeConn) Attach(p Poller, userData interface{}) error {
	return nil
}

func (c *fakeConn) ResumeRead() error {
	c.paused = false
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestBridgeCarriesWhatThePeerRefuses(t *testing.T) {
	a := &fakeConn{input: []byte("abcdef"), room: 1 << 20}
	b := &fakeConn{room: 4}
	br := NewBridge("test", a, b, nil)

	require.NoError(t, br.a.OnReadable(a))
	assert.Equal(t, "abcd", string(b.output))
	assert.Equal(t, "ef", string(br.a.carry))
	assert.True(t, a.paused)
	assert.Equal(t, uint64(4), br.Stats().AToB)

	// still no room: the carry stays and reading stays paused
	require.NoError(t, br.b.OnWritable(b))
	assert.True(t, a.paused)

	b.room = 10
	require.NoError(t, br.b.OnWritable(b))
	assert.Equal(t, "abcdef", string(b.output))
	assert.Empty(t, br.a.carry)
	assert.False(t, a.paused)
	assert.Equal(t, uint64(6), br.Stats().AToB)
	assert.Zero(t, br.Stats().BToA)
}

func TestBridgeRelaysCarryBeforeNewInput(t *testing.T) {
	a := &fakeConn{input: []byte("12"), room: 1 << 20}
	b := &fakeConn{room: 1}
	br := NewBridge("test", a, b, nil)

	require.NoError(t, br.a.OnReadable(a))
	assert.Equal(t, "1", string(b.output))

	a.input = []byte("34")
	b.room = 1
	require.NoError(t, br.a.OnReadable(a))
	assert.Equal(t, "12", string(b.output), "carried bytes go first")
	assert.Equal(t, "34", string(br.a.carry))
	assert.True(t, a.paused)

	b.room = 10
	require.NoError(t, br.a.OnReadable(a))
	assert.Equal(t, "1234", string(b.output))
}

func TestBridgeBothDirections(t *testing.T) {
	a := &fakeConn{input: []byte("up"), room: 100}
	b := &fakeConn{input: []byte("down!"), room: 100}
	br := NewBridge("test", a, b, nil)

	require.NoError(t, br.a.OnReadable(a))
	require.NoError(t, br.b.OnReadable(b))
	assert.Equal(t, "up", string(b.output))
	assert.Equal(t, "down!", string(a.output))
	assert.Equal(t, BridgeStats{Name: "test", AToB: 2, BToA: 5}, br.Stats())
}
