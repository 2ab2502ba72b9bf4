package xcomm

import (
	"time"

	"go.uber.org/atomic"
)

// Stats is a snapshot of one connection's traffic.
type Stats struct {
	BytesSent     uint64
	BytesReceived uint64
	LastActivity  time.Time
}

// LoopStats is a snapshot of an event loop's counters.
type LoopStats struct {
	Name        string
	Waits       uint64
	Completions uint64
	Attached    int
}

type connStats struct {
	sent     *atomic.Uint64
	received *atomic.Uint64
	lastTime *atomic.Int64
}

func newConnStats() connStats {
	return connStats{
		sent:     atomic.NewUint64(0),
		received: atomic.NewUint64(0),
		lastTime: atomic.NewInt64(0),
	}
}

func (s connStats) addSent(n int) {
	s.sent.Add(uint64(n))
	s.lastTime.Store(time.Now().UnixNano())
}

func (s connStats) addReceived(n int) {
	s.received.Add(uint64(n))
	s.lastTime.Store(time.Now().UnixNano())
}

func (s connStats) snapshot() Stats {
	stats := Stats{
		BytesSent:     s.sent.Load(),
		BytesReceived: s.received.Load(),
	}
	if last := s.lastTime.Load(); last != 0 {
		stats.LastActivity = time.Unix(0, last)
	}
	return stats
}

type loopStats struct {
	waits       *atomic.Uint64
	completions *atomic.Uint64
	attached    *atomic.Int32
}

func newLoopStats() loopStats {
	return loopStats{
		waits:       atomic.NewUint64(0),
		completions: atomic.NewUint64(0),
		attached:    atomic.NewInt32(0),
	}
}
