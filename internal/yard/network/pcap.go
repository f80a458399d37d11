//go:build pcap
// +build pcap

package network

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/yard.fusion/internal/monitoring"
)

// ReadPCAPFile replays the vision datagrams in a capture through l, as if
// they had arrived on udpPort. Only available with the 'pcap' build tag.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, l *VisionListener) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filter, err)
	}
	monitoring.Logf("PCAP BPF filter set: %s", filter)

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	count, rejected := 0, 0
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("PCAP replay stopping after %d frames", count)
			return ctx.Err()
		case packet := <-source.Packets():
			if packet == nil {
				monitoring.Logf("PCAP replay complete: %d frames (%d rejected) in %v", count, rejected, time.Since(start))
				return nil
			}
			udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}
			count++
			if err := l.HandleDatagram(udp.Payload); err != nil {
				rejected++
				monitoring.Warnf("PCAP frame %d rejected: %v", count, err)
			}
		}
	}
}
