//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"errors"
)

// ErrPCAPUnsupported is returned when the binary was built without pcap.
var ErrPCAPUnsupported = errors.New("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP replay")

// ReadPCAPFile is a stub; build with -tags=pcap to enable replay.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, l *VisionListener) error {
	return ErrPCAPUnsupported
}
