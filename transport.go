package xcomm

import (
	"errors"
	"io"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const defaultBufferSize = 4096

// Kind identifies the transport behind a Conn.
type Kind uint8

const (
	KindSerial Kind = iota + 1
	KindSocket
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindSocket:
		return "socket"
	}
	return "unknown"
}

// Conn is the uniform surface of a dialed transport. Send and Recv never
// block: would-block collapses to a short or zero count.
type Conn interface {
	Kind() Kind
	Fd() FD
	// Send stages p for output and returns the number of bytes accepted.
	Send(p []byte) (int, error)
	// Recv returns buffered input. (0, nil) means nothing is available yet,
	// (0, io.EOF) that the peer closed and everything has been drained.
	Recv(p []byte) (int, error)
	// Flush pushes staged output to the descriptor.
	Flush() (int, error)
	// Pending returns the number of staged output bytes.
	Pending() int
	// Attach registers the descriptor with p for reads, and for writes while
	// output is staged. userData comes back in every CQE.
	Attach(p Poller, userData interface{}) error
	// Rearm re-submits interest after a CQE has been consumed.
	Rearm() error
	// SuspendRead drops read interest until ResumeRead.
	SuspendRead()
	ResumeRead() error
	Detach() error
	Close() error
	Stats() Stats
}

// Dialer opens a Conn. SerialConfig and SocketConfig implement it.
type Dialer interface {
	Dial() (Conn, error)
}

// Dial opens the transport described by d.
func Dial(d Dialer) (Conn, error) {
	return d.Dial()
}

// device is the platform I/O behind a stream. read reports no data as a
// would-block error and an orderly peer shutdown as io.EOF.
type device interface {
	read(p []byte) (int, error)
	write(p []byte) (int, error)
	close() error
}

// stream is the binding shared by every transport: one descriptor, an
// inbound and an outbound ring, and an optional poller registration.
type stream struct {
	fd       FD
	dev      device
	in       *RingBuffer
	out      *RingBuffer
	closed   *atomic.Bool
	eof      bool
	err      error
	blocked  bool
	paused   bool
	datagram bool
	scratch  []byte
	spill    []byte
	poller   Poller
	userData interface{}
	stats    connStats
	logger   *zerolog.Logger
}

func newStream(fd FD, dev device, bufferSize int, logger *zerolog.Logger) (*stream, error) {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	in, err := NewRingBuffer(1, uint32(bufferSize))
	if err != nil {
		return nil, err
	}
	out, err := NewRingBuffer(1, uint32(bufferSize))
	if err != nil {
		return nil, err
	}
	return &stream{
		fd:     fd,
		dev:    dev,
		in:     in,
		out:    out,
		closed: atomic.NewBool(false),
		stats:  newConnStats(),
		logger: loggerOrGlobal(logger),
	}, nil
}

func (s *stream) Fd() FD {
	return s.fd
}

func (s *stream) Stats() Stats {
	return s.stats.snapshot()
}

func (s *stream) Pending() int {
	if s.closed.Load() {
		return 0
	}
	return s.out.Len()
}

func (s *stream) Send(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, &Error{Kind: KindDescriptorUnavailable, Op: "send"}
	}
	// A short count always leaves the stream blocked with write interest
	// armed, so the caller can wait for OpWrite before retrying.
	total := 0
	for {
		n := s.out.Write(p[total:])
		total += n
		if s.blocked {
			return total, nil
		}
		if _, err := s.Flush(); err != nil {
			return total, err
		}
		if total == len(p) || s.blocked || n == 0 {
			return total, nil
		}
	}
}

// Flush writes staged output until the ring drains or the descriptor stops
// accepting bytes. In the latter case write interest is armed.
func (s *stream) Flush() (int, error) {
	if s.closed.Load() {
		return 0, &Error{Kind: KindDescriptorUnavailable, Op: "flush"}
	}
	total := 0
	for !s.out.Empty() {
		region, _ := s.out.Readable()
		n, err := s.dev.write(region)
		if n > 0 {
			s.out.Discard(n)
			s.stats.addSent(n)
			total += n
		}
		if err != nil {
			if isWouldBlock(err) {
				return total, s.block()
			}
			return total, wrapError("send", err)
		}
		if n < len(region) {
			return total, s.block()
		}
	}
	s.blocked = false
	return total, nil
}

func (s *stream) block() error {
	s.blocked = true
	if s.poller == nil {
		return nil
	}
	return s.Rearm()
}

func (s *stream) Recv(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, &Error{Kind: KindDescriptorUnavailable, Op: "recv"}
	}
	if !s.eof && s.err == nil {
		s.fill()
	}
	n := s.in.Read(p)
	if n > 0 {
		s.stats.addReceived(n)
		return n, nil
	}
	if s.err != nil {
		return 0, s.err
	}
	if s.eof {
		return 0, io.EOF
	}
	return 0, nil
}

// fill tops up the inbound ring with one non-blocking read per free region.
func (s *stream) fill() {
	if s.datagram {
		s.fillDatagrams()
		return
	}
	a, b := s.in.Writable()
	for _, region := range [][]byte{a, b} {
		if len(region) == 0 {
			return
		}
		n, err := s.dev.read(region)
		if n > 0 {
			s.in.Commit(n)
		}
		switch {
		case err == nil && n == len(region):
			continue
		case err == nil || isWouldBlock(err):
		case errors.Is(err, io.EOF):
			s.eof = true
		default:
			s.err = wrapError("recv", err)
		}
		return
	}
}

// fillDatagrams reads each datagram whole into scratch, since a read that
// straddles the ring's wrap would truncate it. Bytes that do not fit stay in
// spill until the ring drains.
func (s *stream) fillDatagrams() {
	if s.scratch == nil {
		s.scratch = make([]byte, s.in.Cap())
	}
	for {
		if len(s.spill) > 0 {
			n := s.in.Write(s.spill)
			s.spill = s.spill[n:]
			if len(s.spill) > 0 {
				return
			}
		}
		n, err := s.dev.read(s.scratch)
		if n > 0 {
			s.spill = s.scratch[:n]
		}
		switch {
		case err == nil && n > 0:
			continue
		case err == nil || isWouldBlock(err):
		case errors.Is(err, io.EOF):
			s.eof = true
		default:
			s.err = wrapError("recv", err)
		}
		if len(s.spill) > 0 {
			s.spill = s.spill[s.in.Write(s.spill):]
		}
		return
	}
}

func (s *stream) interest() Op {
	op := OpNone
	if !s.paused {
		op = OpRead
	}
	if s.blocked || !s.out.Empty() {
		op |= OpWrite
	}
	return op
}

func (s *stream) Attach(p Poller, userData interface{}) error {
	if s.closed.Load() {
		return &Error{Kind: KindDescriptorUnavailable, Op: "attach"}
	}
	s.poller = p
	s.userData = userData
	if err := s.Rearm(); err != nil {
		s.poller = nil
		s.userData = nil
		return err
	}
	return nil
}

func (s *stream) Rearm() error {
	if s.poller == nil || s.closed.Load() {
		return nil
	}
	return s.poller.Submit(SQE{Op: s.interest(), Fd: s.fd, UserData: s.userData})
}

func (s *stream) SuspendRead() {
	s.paused = true
}

func (s *stream) ResumeRead() error {
	if !s.paused {
		return nil
	}
	s.paused = false
	return s.Rearm()
}

func (s *stream) Detach() error {
	if s.poller == nil {
		return nil
	}
	p := s.poller
	s.poller = nil
	s.userData = nil
	return p.Delete(s.fd)
}

func (s *stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.Detach(); err != nil && !errors.Is(err, ErrReactorClosed) {
		s.logger.Error().Msgf("[%d] got error while detaching from poller: %+v", s.fd, err)
	}
	s.in.Release()
	s.out.Release()
	if s.logger.Debug().Enabled() {
		s.logger.Debug().Msgf("[%d] closed stream: %+v", s.fd, s.stats.snapshot())
	}
	return wrapError("close", s.dev.close())
}
