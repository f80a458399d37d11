package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/yard.fusion/internal/monitoring"
)

// DropCounter records datagrams the forwarder could not queue.
type DropCounter interface {
	AddDropped()
}

// Forwarder relays annotated frames to a downstream UDP consumer without
// blocking the receive loop.
type Forwarder struct {
	conn        *net.UDPConn
	channel     chan []byte
	stats       DropCounter
	logInterval time.Duration
	address     string
	closeOnce   sync.Once
}

// NewForwarder dials address ("host:port"). A nil stats discards drop counts.
func NewForwarder(address string, stats DropCounter, logInterval time.Duration) (*Forwarder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	if stats == nil {
		stats = noopStats{}
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &Forwarder{
		conn:        conn,
		channel:     make(chan []byte, 1000),
		stats:       stats,
		logInterval: logInterval,
		address:     address,
	}, nil
}

// Start runs the send loop until ctx is cancelled. Write errors are
// aggregated and logged once per interval.
func (f *Forwarder) Start(ctx context.Context) {
	go func() {
		failed := 0
		var lastErr error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-f.channel:
				if !ok {
					return
				}
				if _, err := f.conn.Write(packet); err != nil {
					failed++
					lastErr = err
				}
			case <-ticker.C:
				if failed > 0 {
					monitoring.Warnf("dropped %d forwarded frames due to errors (latest: %v)", failed, lastErr)
					failed = 0
					lastErr = nil
				}
			}
		}
	}()
	monitoring.Logf("forwarding annotated vision frames to %s", f.address)
}

// ForwardAsync queues a copy of packet. When the queue is full the packet is
// dropped and counted.
func (f *Forwarder) ForwardAsync(packet []byte) {
	cp := make([]byte, len(packet))
	copy(cp, packet)
	select {
	case f.channel <- cp:
	default:
		f.stats.AddDropped()
	}
}

// Close stops accepting packets and closes the socket.
func (f *Forwarder) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.channel)
		err = f.conn.Close()
	})
	return err
}
