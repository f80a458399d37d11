//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadPCAPFile_Stub(t *testing.T) {
	t.Parallel()
	err := ReadPCAPFile(context.Background(), "capture.pcap", 5600, nil)
	assert.ErrorIs(t, err, ErrPCAPUnsupported)
}
