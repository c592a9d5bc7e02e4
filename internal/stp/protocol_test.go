package stp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario tests for the 802.1D engine: root election, the guard
// features, topology change propagation and PortFast.

// peerRoot is the superior neighbour used across scenarios: priority
// 8192, so it always wins the election against the default 32768.
var peerRoot = MakeBridgeID(8192, 10, MacAddr{0xAA, 0x00, 0x00, 0x00, 0x00, 0x02})

// peerSecond is a third bridge adjacent to peerRoot.
var peerSecond = MakeBridgeID(16384, 10, MacAddr{0xAA, 0x00, 0x00, 0x00, 0x00, 0x03})

func TestSingleBridgeIsRoot(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	te.disablePortFast(1, 2)
	c := te.addVlan(t, 0, 10, []PortID{1, 2}, []PortID{1})

	require.Equal(t, ClassActive, c.State)
	assert.Equal(t, c.Bridge.BridgeID, c.Bridge.RootID)
	assert.Equal(t, InvalidPortID, c.Bridge.RootPort)
	assert.Zero(t, c.Bridge.RootPathCost)

	// Both ports are designated and start the Listening walk.
	for _, port := range []PortID{1, 2} {
		assert.True(t, designatedPort(c, port))
		assert.Equal(t, PortStateListening, c.Port(port).State)
	}
	checkInvariants(t, te.e, c)

	// After two forward delays both ports forward.
	te.tickSeconds(2*int(DefaultForwardDelay) + 2)
	for _, port := range []PortID{1, 2} {
		assert.Equal(t, PortStateForwarding, c.Port(port).State)
	}
	checkInvariants(t, te.e, c)
}

func TestRootElection(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	te.disablePortFast(1, 3, 4)
	c := te.addVlan(t, 0, 10, []PortID{1, 3, 4}, nil)

	// A superior BPDU from the peer root arrives on port 3, and a
	// same-root BPDU through a second bridge arrives on port 4.
	te.e.ProcessRxBpdu(10, 3, peerConfigFrame(t, 10, peerRoot, 0, peerRoot, MakePortIDField(128, 1), false))
	te.e.ProcessRxBpdu(10, 4, peerConfigFrame(t, 10, peerRoot, 0, peerSecond, MakePortIDField(128, 2), false))

	assert.NotEqual(t, c.Bridge.BridgeID, c.Bridge.RootID)
	assert.Equal(t, peerRoot, c.Bridge.RootID)
	assert.Equal(t, PortID(3), c.Bridge.RootPort)
	assert.Equal(t, uint32(20_000), c.Bridge.RootPathCost, "1G extended path cost via port 3")

	// Root port walks to Forwarding; the alternate port blocks;
	// port 1 stays designated. The peer refreshes its BPDUs well
	// within max age so the stored information never expires.
	for i := 0; i < 4; i++ {
		te.tickSeconds(int(DefaultForwardDelay)/2 + 1)
		te.e.ProcessRxBpdu(10, 3, peerConfigFrame(t, 10, peerRoot, 0, peerRoot, MakePortIDField(128, 1), false))
		te.e.ProcessRxBpdu(10, 4, peerConfigFrame(t, 10, peerRoot, 0, peerSecond, MakePortIDField(128, 2), false))
	}
	assert.Equal(t, PortStateForwarding, c.Port(3).State)
	assert.Equal(t, PortStateBlocking, c.Port(4).State)
	assert.True(t, designatedPort(c, 1))
	checkInvariants(t, te.e, c)

	// The operational timer values came from the root's BPDU.
	assert.Equal(t, DefaultMaxAge, c.Bridge.MaxAge)
	assert.Equal(t, DefaultHelloTime, c.Bridge.HelloTime)
}

func TestRootGuard(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	te.disablePortFast(1, 5)
	c := te.addVlan(t, 0, 10, []PortID{1, 5}, nil)
	te.e.ConfigRootGuard(5, true)
	require.NoError(t, te.e.ConfigRootProtectTimeout(MinRootProtectTimeout))

	// Superior BPDU on the guarded port: Blocking, recovery timer
	// armed, election untouched.
	te.e.ProcessRxBpdu(10, 5, peerConfigFrame(t, 10, peerRoot, 0, peerRoot, MakePortIDField(128, 1), false))

	p := c.Port(5)
	assert.Equal(t, PortStateBlocking, p.State)
	assert.True(t, p.RootProtectTimer.Active())
	assert.Equal(t, c.Bridge.BridgeID, c.Bridge.RootID, "guard keeps the election untouched")
	assert.Equal(t, uint32(1), c.RxDropBpdu)

	// The published state reads ROOT-INC while the timer runs.
	te.ticks(5)
	assert.Equal(t, "ROOT-INC", te.sink.lastPortState("Ethernet5", 10))

	// After the timeout with no further superior BPDU the port walks
	// back to Forwarding.
	te.tickSeconds(int(MinRootProtectTimeout) + 1)
	assert.False(t, p.RootProtectTimer.Active())
	te.tickSeconds(2*int(DefaultForwardDelay) + 2)
	assert.Equal(t, PortStateForwarding, p.State)
	checkInvariants(t, te.e, c)
}

func TestBpduGuardDoDisable(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	c := te.addVlan(t, 0, 10, []PortID{7}, nil)
	te.e.ConfigBpduGuard(7, true, true)

	te.e.ProcessRxBpdu(10, 7, peerConfigFrame(t, 10, peerRoot, 0, peerRoot, MakePortIDField(128, 1), false))

	// Port admin-down posted, shutdown latched, no protocol work done.
	assert.Equal(t, []string{"Ethernet7"}, te.sink.adminDowns)
	assert.True(t, te.sink.guardShutdown["Ethernet7"])
	assert.True(t, te.e.protectDisabledMask.IsSet(7))
	assert.Zero(t, c.Port(7).RxConfigBpdu)
	assert.Equal(t, c.Bridge.BridgeID, c.Bridge.RootID)

	// A link up clears the latch.
	te.e.PortEvent(7, true)
	assert.False(t, te.e.protectDisabledMask.IsSet(7))
	assert.False(t, te.sink.guardShutdown["Ethernet7"])
}

func TestBpduGuardDropOnly(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	c := te.addVlan(t, 0, 10, []PortID{7}, nil)
	te.e.ConfigBpduGuard(7, true, false)

	te.e.ProcessRxBpdu(10, 7, peerConfigFrame(t, 10, peerRoot, 0, peerRoot, MakePortIDField(128, 1), false))

	// Frame dropped without disabling the port.
	assert.Empty(t, te.sink.adminDowns)
	assert.False(t, te.e.protectDisabledMask.IsSet(7))
	assert.Zero(t, c.Port(7).RxConfigBpdu)
	_, _, pvstDrops := te.e.DropCounters()
	assert.Equal(t, uint32(1), pvstDrops)
}

func TestTcnPropagation(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	// Port 2 keeps PortFast so it is Forwarding from the start; its
	// loss must still be detected as a topology change.
	te.disablePortFast(3)
	c := te.addVlan(t, 0, 10, []PortID{2, 3}, nil)
	require.Equal(t, PortStateForwarding, c.Port(2).State)

	// Become non-root via port 3.
	te.e.ProcessRxBpdu(10, 3, peerConfigFrame(t, 10, peerRoot, 0, peerRoot, MakePortIDField(128, 1), false))
	require.Equal(t, PortID(3), c.Bridge.RootPort)
	te.tx.reset()

	// Port 2 goes down: change detected, TCN sent on the root port.
	te.db.up[2] = false
	te.e.PortEvent(2, false)

	assert.True(t, c.Bridge.TopologyChangeDetected)
	assert.True(t, c.TcnTimer.Active())
	tcns := te.tx.tcnFrames()
	require.NotEmpty(t, tcns)
	assert.Equal(t, PortID(3), tcns[0].Port)

	// The TCN retransmits every hello time until acknowledged.
	te.tx.reset()
	te.tickSeconds(int(DefaultHelloTime) + 1)
	assert.NotEmpty(t, te.tx.tcnFrames())

	// The root acknowledges: pending notification cleared.
	te.e.ProcessRxBpdu(10, 3, peerConfigFrame(t, 10, peerRoot, 0, peerRoot, MakePortIDField(128, 1), true))
	assert.False(t, c.Bridge.TopologyChangeDetected)
	assert.False(t, c.TcnTimer.Active())

	te.tx.reset()
	te.tickSeconds(int(DefaultHelloTime) + 1)
	assert.Empty(t, te.tx.tcnFrames(), "no TCN after acknowledgement")
}

func TestPortFastSkipsWalk(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	c := te.addVlan(t, 0, 10, []PortID{9}, nil)

	// PortFast is on by default: the port forwards immediately.
	p := c.Port(9)
	assert.Equal(t, PortStateForwarding, p.State)
	assert.Equal(t, uint32(1), p.ForwardTransitions)

	// A received BPDU clears the operational PortFast flag.
	te.e.ProcessRxBpdu(10, 9, peerConfigFrame(t, 10, peerRoot, 0, peerRoot, MakePortIDField(128, 1), false))
	assert.False(t, te.e.fastspanMask.IsSet(9))
	assert.False(t, te.sink.portFast["Ethernet9"])

	// The admin flag restores the operational flag on link down.
	te.db.up[9] = false
	te.e.PortEvent(9, false)
	assert.True(t, te.e.fastspanMask.IsSet(9))
	assert.True(t, te.sink.portFast["Ethernet9"])
}

func TestTopologyChangeSetsFastAging(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	te.disablePortFast(1, 2)
	c := te.addVlan(t, 0, 10, []PortID{1, 2}, nil)

	// Walk both ports to Forwarding, then detect a change as root.
	te.tickSeconds(2*int(DefaultForwardDelay) + 2)
	require.Equal(t, PortStateForwarding, c.Port(1).State)

	te.db.up[2] = false
	te.e.PortEvent(2, false)

	// Root bridge: topology change flag set and fast aging published
	// on the same instance tick.
	assert.True(t, c.Bridge.TopologyChange)
	te.ticks(5)
	assert.True(t, c.FastAging)
	assert.True(t, te.sink.fastAge[10])

	// The change clears after topology change time and fast aging
	// follows.
	te.tickSeconds(int(c.Bridge.TopologyChangeTime) + 2)
	assert.False(t, c.Bridge.TopologyChange)
	assert.False(t, c.FastAging)
	assert.False(t, te.sink.fastAge[10])
}

func TestMessageAgeExpiryReclaimsRoot(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	te.disablePortFast(3)
	c := te.addVlan(t, 0, 10, []PortID{3}, nil)

	te.e.ProcessRxBpdu(10, 3, peerConfigFrame(t, 10, peerRoot, 0, peerRoot, MakePortIDField(128, 1), false))
	require.Equal(t, peerRoot, c.Bridge.RootID)

	// Without refreshing BPDUs the stored information ages out after
	// max age and the bridge reclaims the root role.
	te.tickSeconds(int(DefaultMaxAge) + 2)
	assert.Equal(t, c.Bridge.BridgeID, c.Bridge.RootID)
	assert.Equal(t, InvalidPortID, c.Bridge.RootPort)
	checkInvariants(t, te.e, c)
}

func TestInferiorBpduGetsReply(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	te.disablePortFast(1)
	c := te.addVlan(t, 0, 10, []PortID{1}, nil)
	te.tx.reset()

	// An inferior BPDU (worse priority) on a designated port triggers
	// an immediate reply asserting our information.
	inferior := MakeBridgeID(61440, 10, MacAddr{0xEE, 0x00, 0x00, 0x00, 0x00, 0x09})
	te.e.ProcessRxBpdu(10, 1, peerConfigFrame(t, 10, inferior, 0, inferior, MakePortIDField(128, 1), false))

	require.NotEmpty(t, te.tx.sent)
	assert.Equal(t, PortID(1), te.tx.sent[0].Port)
	assert.True(t, designatedPort(c, 1))
	assert.Equal(t, uint32(1), c.Port(1).RxConfigBpdu)
}

func TestHelloGeneration(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	te.disablePortFast(1)
	te.addVlan(t, 0, 10, []PortID{1}, []PortID{1})
	te.tx.reset()

	// Root bridge generates a config BPDU every hello time on each
	// designated port.
	te.tickSeconds(int(DefaultHelloTime) + 1)
	require.NotEmpty(t, te.tx.sent)
}

func TestVlan1SendsTaggedAndUntagged(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	te.disablePortFast(1)
	te.addVlan(t, 0, 1, []PortID{1}, []PortID{1})
	te.tx.reset()

	te.tickSeconds(int(DefaultHelloTime) + 1)

	var pvst, ieee int
	for _, f := range te.tx.sent {
		if IsStpDestination(f.Frame) {
			ieee++
			assert.False(t, f.Tagged, "IEEE BPDU goes untagged")
		} else {
			pvst++
			assert.False(t, f.Tagged, "untagged member carries PVST untagged")
			assert.Equal(t, VlanID(1), f.Vlan)
		}
	}
	assert.NotZero(t, pvst, "PVST BPDU expected on VLAN 1")
	assert.NotZero(t, ieee, "untagged IEEE BPDU expected alongside PVST on VLAN 1")
}

func TestUplinkFastForwardDelay(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	te.disablePortFast(1, 2)
	c := te.addVlan(t, 0, 10, []PortID{1, 2}, nil)
	te.e.ConfigFastUplink(1, true)

	// Force port 1 back to Blocking, then let it walk with the
	// UplinkFast delay: no other uplink is active, so Listening lasts
	// one second instead of the bridge forward delay.
	// Port 2 is not an uplink and keeps the slow walk.
	p := c.Port(1)
	te.e.makeBlocking(c, 1)
	require.Equal(t, PortStateBlocking, p.State)
	te.e.makeForwarding(c, 1)
	require.Equal(t, PortStateListening, p.State)

	te.tickSeconds(int(FastUplinkForwardDelay) + 1)
	assert.NotEqual(t, PortStateListening, p.State, "uplink leaves Listening after one second")
}

func TestPvstVlan1UntaggedDropped(t *testing.T) {
	te := newTestEngine(t, 8, 16)
	c := te.addVlan(t, 0, 1, []PortID{1}, []PortID{1})

	// A PVST BPDU for VLAN 1 on an untagged port is dropped; the
	// untagged IEEE BPDU is authoritative there.
	root1 := MakeBridgeID(8192, 1, MacAddr{0xAA, 0x00, 0x00, 0x00, 0x00, 0x02})
	te.e.ProcessRxBpdu(1, 1, peerConfigFrame(t, 1, root1, 0, root1, MakePortIDField(128, 1), false))

	assert.Equal(t, c.Bridge.BridgeID, c.Bridge.RootID, "dropped frame must not drive the election")
	_, _, pvstDrops := te.e.DropCounters()
	assert.Equal(t, uint32(1), pvstDrops)
}
