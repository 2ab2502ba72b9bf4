package xcomm

import (
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const bridgeChunk = 4096

// BridgeConfig pairs a configured serial line with a configured socket.
// Mode "dial" connects to the socket address, "listen" serves one client at
// a time on it.
type BridgeConfig struct {
	Name   string `yaml:"name" toml:"name"`
	Serial string `yaml:"serial" toml:"serial"`
	Socket string `yaml:"socket" toml:"socket"`
	Mode   string `yaml:"mode" toml:"mode"`
}

type BridgeStats struct {
	Name string
	// AToB counts bytes read from the first conn and accepted by the second.
	AToB uint64
	BToA uint64
}

// Bridge relays bytes both ways between two conns attached to the same
// loop. Bytes the peer cannot take yet are carried over and reading from
// the source pauses until the peer drains. When either side closes, the
// other is closed too.
type Bridge struct {
	Name   string
	a, b   *bridgeSide
	loop   *EventLoop
	done   chan struct{}
	err    error
	logger *zerolog.Logger
}

type bridgeSide struct {
	bridge  *Bridge
	conn    Conn
	peer    *bridgeSide
	buf     []byte
	carry   []byte
	relayed *atomic.Uint64
	closed  bool
}

func NewBridge(name string, a, b Conn, logger *zerolog.Logger) *Bridge {
	br := &Bridge{
		Name:   name,
		done:   make(chan struct{}),
		logger: loggerOrGlobal(logger),
	}
	br.a = &bridgeSide{bridge: br, conn: a, buf: make([]byte, bridgeChunk), relayed: atomic.NewUint64(0)}
	br.b = &bridgeSide{bridge: br, conn: b, buf: make([]byte, bridgeChunk), relayed: atomic.NewUint64(0)}
	br.a.peer = br.b
	br.b.peer = br.a
	return br
}

// Start attaches both conns to el. On failure nothing stays attached and
// both conns are closed.
func (br *Bridge) Start(el *EventLoop) error {
	br.loop = el
	if err := el.Attach(br.a.conn, br.a); err != nil {
		br.abort(err)
		return err
	}
	if err := el.Attach(br.b.conn, br.b); err != nil {
		_ = el.Detach(br.a.conn)
		br.abort(err)
		return err
	}
	br.logger.Info().Msgf("bridge %s started: %s[%d] <-> %s[%d]", br.Name, br.a.conn.Kind(), br.a.conn.Fd(), br.b.conn.Kind(), br.b.conn.Fd())
	return nil
}

func (br *Bridge) abort(err error) {
	_ = br.a.conn.Close()
	_ = br.b.conn.Close()
	br.err = err
	close(br.done)
}

// Done is closed once both sides are closed.
func (br *Bridge) Done() <-chan struct{} {
	return br.done
}

// Err returns the error that tore the bridge down, nil for an orderly close.
// Valid after Done.
func (br *Bridge) Err() error {
	return br.err
}

func (br *Bridge) Stats() BridgeStats {
	return BridgeStats{
		Name: br.Name,
		AToB: br.a.relayed.Load(),
		BToA: br.b.relayed.Load(),
	}
}

func (s *bridgeSide) OnReadable(conn Conn) error {
	if !s.relayCarry() {
		return nil
	}
	for {
		n, err := conn.Recv(s.buf)
		if n > 0 {
			sent, sendErr := s.peer.conn.Send(s.buf[:n])
			s.relayed.Add(uint64(sent))
			if sendErr != nil {
				return sendErr
			}
			if sent < n {
				s.carry = append(s.carry[:0], s.buf[sent:n]...)
				conn.SuspendRead()
				return nil
			}
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// relayCarry pushes leftover bytes to the peer and reports whether all of
// them went through.
func (s *bridgeSide) relayCarry() bool {
	if len(s.carry) == 0 {
		return true
	}
	sent, err := s.peer.conn.Send(s.carry)
	s.relayed.Add(uint64(sent))
	if err != nil {
		return false
	}
	s.carry = s.carry[:copy(s.carry, s.carry[sent:])]
	return len(s.carry) == 0
}

// OnWritable runs when this side's output drained, which is when the peer's
// carried bytes can move again.
func (s *bridgeSide) OnWritable(conn Conn) error {
	if len(s.peer.carry) == 0 || s.peer.closed {
		return nil
	}
	if s.peer.relayCarry() {
		return s.peer.conn.ResumeRead()
	}
	return nil
}

func (s *bridgeSide) OnClosed(conn Conn, err error) {
	s.closed = true
	br := s.bridge
	if err != nil && br.err == nil {
		br.err = err
	}
	if !s.peer.closed {
		br.loop.CloseConn(s.peer.conn, err)
		return
	}
	br.logger.Info().Msgf("bridge %s closed: %+v", br.Name, br.Stats())
	close(br.done)
}
