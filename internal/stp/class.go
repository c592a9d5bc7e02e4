package stp

import (
	"github.com/seregega/sonic-stp/internal/bitmap"
)

// -------------------------------------------------------------------------
// Modified-field bits — drive partial publication of state records
// -------------------------------------------------------------------------

// Bridge data modified-field bits.
const (
	bridgeModRootID uint32 = 1 << iota
	bridgeModRootPathCost
	bridgeModRootPort
	bridgeModMaxAge
	bridgeModHelloTime
	bridgeModForwardDelay
	bridgeModBridgeMaxAge
	bridgeModBridgeHelloTime
	bridgeModBridgeForwardDelay
	bridgeModBridgeID
	bridgeModTopologyChangeCount
	bridgeModTopologyChangeTime
	bridgeModHoldTime
)

// Port modified-field bits. The guard/fast bits are port-level flags
// that ride along the per-VLAN record.
const (
	portModPortID uint32 = 1 << iota
	portModState
	portModPathCost
	portModDesignatedRoot
	portModDesignatedCost
	portModDesignatedBridge
	portModDesignatedPort
	portModForwardTransitions
	portModBpduSent
	portModBpduReceived
	portModTcSent
	portModTcReceived
	portModPortPriority
	portModUplinkFast
	portModPortFast
	portModRootProtect
	portModBpduProtect
	portModClearStats
)

// allBits marks every field dirty.
const allBits uint32 = 0xFFFFFFFF

// -------------------------------------------------------------------------
// BridgeData — per-VLAN bridge variables (IEEE 802.1D Section 8.5.3)
// -------------------------------------------------------------------------

// BridgeData holds the per-VLAN bridge state: the elected root, the
// operational timer values learned from the root, and the locally
// administered bridge values.
type BridgeData struct {
	RootID       BridgeID
	RootPathCost uint32

	// RootPort is InvalidPortID when this bridge is the root.
	RootPort PortID

	// Operational timer values (seconds), taken from the root's BPDUs
	// on a non-root bridge and from the bridge values on the root.
	MaxAge       uint8
	HelloTime    uint8
	ForwardDelay uint8

	// Administered bridge values (seconds).
	BridgeMaxAge       uint8
	BridgeHelloTime    uint8
	BridgeForwardDelay uint8

	BridgeID BridgeID

	TopologyChangeCount uint32

	// TopologyChangeTick records the engine second at which the last
	// topology change was detected; zero until the first change, and
	// reset to zero when the root's topology change timer expires.
	TopologyChangeTick uint32

	HoldTime uint8

	TopologyChangeDetected bool
	TopologyChange         bool

	// TopologyChangeTime is max age plus forward delay: how long the
	// root keeps the topology change flag set.
	TopologyChangeTime uint8

	// ModifiedFields tracks which attributes changed since the last
	// publication flush.
	ModifiedFields uint32
}

// setModified marks bridge attributes dirty.
func (b *BridgeData) setModified(bits uint32) { b.ModifiedFields |= bits }

// -------------------------------------------------------------------------
// Port — per-VLAN per-port state (IEEE 802.1D Section 8.5.5)
// -------------------------------------------------------------------------

// Port holds the spanning tree state of one port within one instance.
type Port struct {
	PortID PortIDField
	State  PortState

	TopologyChangeAck      bool
	ConfigPending          bool
	ChangeDetectionEnabled bool
	SelfLoop               bool
	AutoConfig             bool
	OperEdge               bool

	// KernelState shadows the state last pushed to the forwarding
	// plane, avoiding redundant publications.
	KernelState KernelState

	PathCost uint32

	DesignatedRoot   BridgeID
	DesignatedCost   uint32
	DesignatedBridge BridgeID
	DesignatedPort   PortIDField

	MessageAgeTimer   Timer
	ForwardDelayTimer Timer
	HoldTimer         Timer
	RootProtectTimer  Timer

	ForwardTransitions uint32
	RxConfigBpdu       uint32
	TxConfigBpdu       uint32
	RxTcnBpdu          uint32
	TxTcnBpdu          uint32
	RxDelayedBpdu      uint32
	RxDropBpdu         uint32

	// Flags records which attributes were explicitly configured and
	// must survive auto-derivation.
	Flags uint16

	ModifiedFields uint32
}

// Explicit-configuration flags.
const (
	portFlagPriorityConfigured uint16 = 1 << iota
	portFlagPathCostConfigured
)

// setModified marks port attributes dirty.
func (p *Port) setModified(bits uint32) { p.ModifiedFields |= bits }

// reset zeroes the port record. Called when the port leaves the
// instance's control mask.
func (p *Port) reset() { *p = Port{} }

// -------------------------------------------------------------------------
// Class — one spanning tree instance (one VLAN)
// -------------------------------------------------------------------------

// Class is one per-VLAN spanning tree instance: bridge data, the three
// port membership masks, the instance timers and the dense per-port
// state array.
type Class struct {
	VlanID VlanID

	// FastAging shadows the topology change flag: while a topology
	// change is in effect the forwarding database ages entries fast.
	FastAging bool

	State ClassState

	Bridge BridgeData

	// EnableMask holds ports that are controlled and operationally up.
	// Every enabled port is also a control port.
	EnableMask *bitmap.Mask

	// ControlMask holds ports on which this instance is configured.
	ControlMask *bitmap.Mask

	// UntagMask holds control ports that carry this VLAN untagged.
	UntagMask *bitmap.Mask

	HelloTimer          Timer
	TcnTimer            Timer
	TopologyChangeTimer Timer

	// LastBpduRxTime is the engine second of the most recent BPDU, used
	// to log reception delay events.
	LastBpduRxTime uint32

	RxDropBpdu uint32

	ModifiedFields uint32

	ports []Port
}

// Instance modified-field bits.
const (
	classModVlan uint32 = 1 << 0
	classModAll  uint32 = 1 << 31
)

// newClass builds an empty (Free) instance slot sized for maxPorts.
func newClass(maxPorts int32) Class {
	return Class{
		EnableMask:  bitmap.New(maxPorts),
		ControlMask: bitmap.New(maxPorts),
		UntagMask:   bitmap.New(maxPorts),
		ports:       make([]Port, maxPorts),
	}
}

// Port returns the per-port record, or nil when port is out of range.
func (c *Class) Port(port PortID) *Port {
	if port < 0 || int(port) >= len(c.ports) {
		return nil
	}
	return &c.ports[port]
}

// free returns the slot to the Free state: masks emptied, timers
// stopped, bridge data zeroed.
func (c *Class) free() {
	c.VlanID = 0
	c.FastAging = false
	c.State = ClassFree
	c.Bridge = BridgeData{}
	c.EnableMask.Zero()
	c.ControlMask.Zero()
	c.UntagMask.Zero()
	c.HelloTimer.Stop()
	c.TcnTimer.Stop()
	c.TopologyChangeTimer.Stop()
	c.LastBpduRxTime = 0
	c.RxDropBpdu = 0
	c.ModifiedFields = 0
	for i := range c.ports {
		c.ports[i].reset()
	}
}
