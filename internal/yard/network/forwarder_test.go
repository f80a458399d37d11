package network

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dropCounter struct{ n int }

func (d *dropCounter) AddDropped() { d.n++ }

func TestNewForwarder_InvalidAddress(t *testing.T) {
	t.Parallel()
	_, err := NewForwarder("not a host:port:x", nil, time.Second)
	assert.Error(t, err)
}

func TestForwarder_Relays(t *testing.T) {
	t.Parallel()
	sink := udpSink(t)
	fwd, err := NewForwarder(sink.LocalAddr().String(), nil, time.Second)
	require.NoError(t, err)
	defer fwd.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fwd.Start(ctx)

	packet := []byte(`{"camera_id":"cam-1"}`)
	fwd.ForwardAsync(packet)
	packet[2] = 'X' // the queued copy is unaffected

	assert.Equal(t, `{"camera_id":"cam-1"}`, string(readDatagram(t, sink)))
}

func TestForwarder_DropsWhenFull(t *testing.T) {
	t.Parallel()
	sink := udpSink(t)
	drops := &dropCounter{}
	fwd, err := NewForwarder(sink.LocalAddr().String(), drops, time.Second)
	require.NoError(t, err)
	defer fwd.Close()

	// Not started, so nothing drains the queue.
	for i := 0; i < cap(fwd.channel)+3; i++ {
		fwd.ForwardAsync([]byte("x"))
	}
	assert.Equal(t, 3, drops.n)
}

func TestForwarder_CloseTwice(t *testing.T) {
	t.Parallel()
	sink := udpSink(t)
	fwd, err := NewForwarder(sink.LocalAddr().String(), nil, time.Second)
	require.NoError(t, err)
	require.NoError(t, fwd.Close())
	assert.NoError(t, fwd.Close())
}
