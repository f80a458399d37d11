package network

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/yard.fusion/internal/monitoring"
)

// FrameStats counts datagrams received by a listener. Safe for concurrent
// use; LogStats reports and resets the interval counters.
type FrameStats struct {
	packets   atomic.Int64
	bytes     atomic.Int64
	malformed atomic.Int64
	rejected  atomic.Int64
	assigned  atomic.Int64
	dropped   atomic.Int64

	lastLog atomic.Int64 // unix nanos
}

// NewFrameStats returns zeroed counters.
func NewFrameStats() *FrameStats {
	s := &FrameStats{}
	s.lastLog.Store(time.Now().UnixNano())
	return s
}

func (s *FrameStats) AddPacket(n int) {
	s.packets.Add(1)
	s.bytes.Add(int64(n))
}

func (s *FrameStats) AddMalformed()     { s.malformed.Add(1) }
func (s *FrameStats) AddRejected()      { s.rejected.Add(1) }
func (s *FrameStats) AddAssigned(n int) { s.assigned.Add(int64(n)) }
func (s *FrameStats) AddDropped()       { s.dropped.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Packets   int64 `json:"packets"`
	Bytes     int64 `json:"bytes"`
	Malformed int64 `json:"malformed"`
	Rejected  int64 `json:"rejected"`
	Assigned  int64 `json:"assigned"`
	Dropped   int64 `json:"dropped"`
}

// Snapshot reads the counters without resetting them.
func (s *FrameStats) Snapshot() Snapshot {
	return Snapshot{
		Packets:   s.packets.Load(),
		Bytes:     s.bytes.Load(),
		Malformed: s.malformed.Load(),
		Rejected:  s.rejected.Load(),
		Assigned:  s.assigned.Load(),
		Dropped:   s.dropped.Load(),
	}
}

func (s *FrameStats) reset() Snapshot {
	return Snapshot{
		Packets:   s.packets.Swap(0),
		Bytes:     s.bytes.Swap(0),
		Malformed: s.malformed.Swap(0),
		Rejected:  s.rejected.Swap(0),
		Assigned:  s.assigned.Swap(0),
		Dropped:   s.dropped.Swap(0),
	}
}

// LogStats logs the counters accumulated since the previous call and resets
// them. Nothing is logged for an idle interval.
func (s *FrameStats) LogStats() {
	now := time.Now()
	elapsed := now.Sub(time.Unix(0, s.lastLog.Swap(now.UnixNano())))
	snap := s.reset()
	if snap.Packets == 0 && snap.Dropped == 0 {
		return
	}
	rate := float64(snap.Packets) / elapsed.Seconds()
	monitoring.Logf("vision frames: %d received (%.1f/s, %d bytes), %d malformed, %d rejected, %d detections assigned, %d forwards dropped",
		snap.Packets, rate, snap.Bytes, snap.Malformed, snap.Rejected, snap.Assigned, snap.Dropped)
}
