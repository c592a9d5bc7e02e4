package stp

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoopProcessesFramesAndStops(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	te.disablePortFast(3)
	c := te.addVlan(t, 0, 10, []PortID{3}, nil)

	loop := NewLoop(te.e, nil, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	loop.DeliverFrame(RxFrame{
		Port:  3,
		Vlan:  10,
		Frame: peerConfigFrame(t, 10, peerRoot, 0, peerRoot, MakePortIDField(128, 1), false),
	})

	// The loop owns the engine; poll its observable effect.
	require.Eventually(t, func() bool {
		return loop.Stats().RxFrames == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}

	// With the loop stopped it is safe to inspect engine state.
	assert.Equal(t, PortID(3), c.Bridge.RootPort)
	assert.Equal(t, peerRoot, c.Bridge.RootID)
}

func TestLoopLinkEvents(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	c := te.addVlan(t, 0, 10, []PortID{2}, nil)

	loop := NewLoop(te.e, nil, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	te.db.up[2] = false
	loop.DeliverLinkEvent(LinkEvent{Port: 2, Up: false})

	require.Eventually(t, func() bool {
		return loop.Stats().LinkEvents == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, PortStateDisabled, c.Port(2).State)
	assert.False(t, c.EnableMask.IsSet(2))
}

func TestLoopTicksAdvanceProtocolTime(t *testing.T) {
	te := newTestEngine(t, 8, 16)

	loop := NewLoop(te.e, nil, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return loop.Stats().Ticks >= 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestLoopDropsWhenBehind(t *testing.T) {
	te := newTestEngine(t, 8, 16)

	// Loop not running: the channel fills and overflow is counted.
	loop := NewLoop(te.e, nil, slog.New(slog.DiscardHandler))
	frame := peerConfigFrame(t, 10, peerRoot, 0, peerRoot, MakePortIDField(128, 1), false)

	for i := 0; i < rxChSize+10; i++ {
		loop.DeliverFrame(RxFrame{Port: 1, Vlan: 10, Frame: frame})
	}
	assert.Equal(t, uint64(10), loop.Stats().RxDropped)
}
