package xcomm

// MaxRingBufferBytes bounds the backing storage a single ring buffer may
// allocate.
const MaxRingBufferBytes = 1 << 30

// RingBuffer is a fixed-capacity circular buffer of fixed-size elements.
//
// The capacity is a power of two, so cursor offsets are computed with a mask.
// Both cursors are free-running uint32 values: the occupied length is always
// wpos-rpos in modulo 2^32 arithmetic, which stays correct across wraparound
// of the cursors themselves.
//
// A RingBuffer is not safe for concurrent use.
type RingBuffer struct {
	buf  []byte
	esz  uint32
	mask uint32
	wpos uint32
	rpos uint32
}

// NewRingBuffer allocates a ring of elementSize-byte elements whose capacity
// is bufferSize/elementSize rounded down to a power of two.
func NewRingBuffer(elementSize, bufferSize uint32) (*RingBuffer, error) {
	if elementSize == 0 {
		return nil, invalidConfig("ring buffer element size must be positive")
	}
	count := roundDownPowerOfTwo(bufferSize / elementSize)
	if count == 0 {
		return nil, invalidConfig("ring buffer of %d bytes cannot hold a %d byte element", bufferSize, elementSize)
	}
	if uint64(count)*uint64(elementSize) > MaxRingBufferBytes {
		return nil, ErrAllocationFailure
	}
	return &RingBuffer{
		buf:  make([]byte, count*elementSize),
		esz:  elementSize,
		mask: count - 1,
	}, nil
}

func roundDownPowerOfTwo(n uint32) uint32 {
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return (n >> 1) + (n & 1)
}

// Len returns the number of occupied elements.
func (r *RingBuffer) Len() int {
	return int(r.wpos - r.rpos)
}

// Cap returns the capacity in elements.
func (r *RingBuffer) Cap() int {
	return int(r.mask) + 1
}

// Avail returns the number of free elements.
func (r *RingBuffer) Avail() int {
	return r.Cap() - r.Len()
}

func (r *RingBuffer) Empty() bool {
	return r.wpos == r.rpos
}

func (r *RingBuffer) Full() bool {
	return r.Len() == r.Cap()
}

// ElementSize returns the width of one element in bytes.
func (r *RingBuffer) ElementSize() int {
	return int(r.esz)
}

// Write copies whole elements from src, clamped to the free space, and
// returns the number of elements written. A short count is back-pressure,
// not an error.
func (r *RingBuffer) Write(src []byte) int {
	if r.buf == nil {
		return 0
	}
	count := uint32(min(len(src)/int(r.esz), r.Avail()))
	r.copyIn(src[:count*r.esz], r.wpos)
	r.wpos += count
	return int(count)
}

// Read copies up to len(dst)/ElementSize() elements out of the buffer and
// consumes them.
func (r *RingBuffer) Read(dst []byte) int {
	count := r.Peek(dst)
	r.rpos += uint32(count)
	return count
}

// Peek is Read without consuming.
func (r *RingBuffer) Peek(dst []byte) int {
	if r.buf == nil {
		return 0
	}
	count := uint32(min(len(dst)/int(r.esz), r.Len()))
	r.copyOut(dst[:count*r.esz], r.rpos)
	return int(count)
}

// copyIn and copyOut handle wrap-around with at most two copies.
func (r *RingBuffer) copyIn(src []byte, pos uint32) {
	off := (pos & r.mask) * r.esz
	n := copy(r.buf[off:], src)
	copy(r.buf, src[n:])
}

func (r *RingBuffer) copyOut(dst []byte, pos uint32) {
	off := (pos & r.mask) * r.esz
	n := copy(dst, r.buf[off:])
	copy(dst[n:], r.buf)
}

// Readable exposes the occupied region as at most two slices of the backing
// storage, in order. The slices are valid until the next mutating call.
func (r *RingBuffer) Readable() (a, b []byte) {
	return r.regions(r.rpos, uint32(r.Len()))
}

// Writable exposes the free region as at most two slices, in order. Fill them
// and call Commit with the number of elements written.
func (r *RingBuffer) Writable() (a, b []byte) {
	return r.regions(r.wpos, uint32(r.Avail()))
}

func (r *RingBuffer) regions(pos, count uint32) (a, b []byte) {
	if r.buf == nil || count == 0 {
		return nil, nil
	}
	off := (pos & r.mask) * r.esz
	n := count * r.esz
	if off+n <= uint32(len(r.buf)) {
		return r.buf[off : off+n], nil
	}
	return r.buf[off:], r.buf[:off+n-uint32(len(r.buf))]
}

// Discard consumes up to n elements without copying them and returns the
// number consumed.
func (r *RingBuffer) Discard(n int) int {
	n = max(0, min(n, r.Len()))
	r.rpos += uint32(n)
	return n
}

// Commit publishes up to n elements previously filled through Writable.
func (r *RingBuffer) Commit(n int) int {
	n = max(0, min(n, r.Avail()))
	r.wpos += uint32(n)
	return n
}

// Reset empties the buffer without releasing its storage.
func (r *RingBuffer) Reset() {
	r.rpos = r.wpos
}

// Release frees the backing storage. Calling it again is a no-op, and a
// released buffer accepts and yields nothing.
func (r *RingBuffer) Release() {
	if r.buf != nil {
		r.buf = nil
		r.rpos = r.wpos
	}
}
