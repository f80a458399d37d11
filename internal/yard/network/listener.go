// Package network receives vision frames over UDP, feeds them to the fusion
// engine and optionally relays the annotated frames downstream.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/yard.fusion/internal/monitoring"
	"github.com/banshee-data/yard.fusion/internal/yard/frames"
	"github.com/banshee-data/yard.fusion/internal/yard/fusion"
)

// maxDatagram covers the largest UDP payload.
const maxDatagram = 65535

// VisionIngester consumes decoded vision frames.
type VisionIngester interface {
	IngestVision(frame fusion.VisionFrame) ([]fusion.Assignment, error)
}

// Stats is the counter set the listener reports into.
type Stats interface {
	AddPacket(bytes int)
	AddMalformed()
	AddRejected()
	AddAssigned(n int)
	AddDropped()
	LogStats()
}

type noopStats struct{}

func (noopStats) AddPacket(int)   {}
func (noopStats) AddMalformed()   {}
func (noopStats) AddRejected()    {}
func (noopStats) AddAssigned(int) {}
func (noopStats) AddDropped()     {}
func (noopStats) LogStats()       {}

// VisionListenerConfig configures a VisionListener. Engine is required.
type VisionListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Engine      VisionIngester
	Stats       Stats
	Forwarder   *Forwarder
}

// VisionListener reads one JSON vision frame per datagram.
type VisionListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	engine      VisionIngester
	stats       Stats
	forwarder   *Forwarder

	mu    sync.Mutex
	conn  *net.UDPConn
	ready chan struct{}
}

// NewVisionListener applies defaults to config.
func NewVisionListener(config VisionListenerConfig) *VisionListener {
	stats := config.Stats
	if stats == nil {
		stats = noopStats{}
	}
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &VisionListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		engine:      config.Engine,
		stats:       stats,
		forwarder:   config.Forwarder,
		ready:       make(chan struct{}),
	}
}

// Ready is closed once the socket is bound.
func (l *VisionListener) Ready() <-chan struct{} { return l.ready }

// Addr returns the bound address, or nil before Start has bound the socket.
func (l *VisionListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Start binds the socket and processes datagrams until ctx is cancelled.
// It returns ctx.Err() on cancellation.
func (l *VisionListener) Start(ctx context.Context) error {
	if l.engine == nil {
		return errors.New("vision listener requires an engine")
	}
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Warnf("failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	close(l.ready)
	monitoring.Logf("vision listener started on %s", conn.LocalAddr())

	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}
	go l.logStats(ctx)

	buffer := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("vision listener stopping")
			return ctx.Err()
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Warnf("UDP read error: %v", err)
			continue
		}
		if err := l.HandleDatagram(buffer[:n]); err != nil {
			monitoring.Warnf("vision frame from %v rejected: %v", from, err)
		}
	}
}

func (l *VisionListener) logStats(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// HandleDatagram decodes one frame and ingests it. When a forwarder is
// configured the frame is relayed with each assigned detection annotated
// with its asset id.
func (l *VisionListener) HandleDatagram(packet []byte) error {
	l.stats.AddPacket(len(packet))

	frame, err := frames.ParseVisionFrame(packet)
	if err != nil {
		l.stats.AddMalformed()
		return err
	}
	assignments, err := l.engine.IngestVision(frame)
	if err != nil {
		l.stats.AddRejected()
		return err
	}
	l.stats.AddAssigned(len(assignments))

	if l.forwarder == nil {
		return nil
	}
	annotated, err := frames.AnnotateVisionFrame(packet, assignments)
	if err != nil {
		return err
	}
	l.forwarder.ForwardAsync(annotated)
	return nil
}
