package stp

import (
	"fmt"
)

// -------------------------------------------------------------------------
// Basic identifiers
// -------------------------------------------------------------------------

// VlanID identifies a VLAN. Valid range is [MinVlanID, MaxVlanID).
type VlanID uint16

// VLAN id bounds (IEEE 802.1Q).
const (
	MinVlanID VlanID = 1
	MaxVlanID VlanID = 4095

	// VlanIDInvalid marks the absence of a VLAN.
	VlanIDInvalid VlanID = MaxVlanID + 1
)

// Valid reports whether v is a usable VLAN id (1..4094).
func (v VlanID) Valid() bool { return v >= MinVlanID && v < MaxVlanID }

// PortID is the daemon-local dense port number assigned by the interface
// database. Port-channel ids live above the physical range.
type PortID int32

// InvalidPortID marks the absence of a port.
const InvalidPortID PortID = -1

// StpIndex indexes the per-VLAN instance table.
type StpIndex uint16

// StpIndexInvalid marks the absence of an instance.
const StpIndexInvalid StpIndex = 0xFFFF

// MacAddr is a 48-bit Ethernet address in wire byte order.
type MacAddr [6]byte

// String renders the address in the conventional colon-separated form.
func (m MacAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsZero reports whether the address is all zeroes.
func (m MacAddr) IsZero() bool { return m == MacAddr{} }

// Well-known group addresses (IEEE 802.1D Table 7-9, Cisco PVST+).
var (
	// BridgeGroupAddress is the destination MAC of classic IEEE BPDUs.
	BridgeGroupAddress = MacAddr{0x01, 0x80, 0xC2, 0x00, 0x00, 0x00}

	// PvstBridgeGroupAddress is the destination MAC of PVST+ BPDUs.
	PvstBridgeGroupAddress = MacAddr{0x01, 0x00, 0x0C, 0xCC, 0xCC, 0xCD}
)

// -------------------------------------------------------------------------
// BridgeID — IEEE 802.1D Section 9.2.5
// -------------------------------------------------------------------------

// BridgeID is the packed bridge identifier: a 16-bit priority word (top
// 4 bits are the configurable priority class, bottom 12 bits the VLAN id
// in extend mode or an operator-supplied system id) followed by the
// bridge MAC address. Ordering is lexicographic: priority word first,
// then MAC bytes.
type BridgeID struct {
	// PriorityWord packs priority (bits 15-12) and system id (bits 11-0).
	PriorityWord uint16

	// Mac is the bridge MAC address.
	Mac MacAddr
}

// MakeBridgeID builds a BridgeID from a bridge priority (0-65535, the
// top 4 bits are significant), a system id (the VLAN id in extend mode),
// and a MAC address.
func MakeBridgeID(priority uint16, systemID VlanID, mac MacAddr) BridgeID {
	return BridgeID{
		PriorityWord: (priority & 0xF000) | (uint16(systemID) & 0x0FFF),
		Mac:          mac,
	}
}

// Priority returns the configured priority class restored to its
// 16-bit form (multiples of 4096).
func (b BridgeID) Priority() uint16 { return b.PriorityWord & 0xF000 }

// SystemID returns the low 12 bits of the priority word.
func (b BridgeID) SystemID() uint16 { return b.PriorityWord & 0x0FFF }

// SetPriority replaces the 4-bit priority class, preserving the system id.
func (b *BridgeID) SetPriority(priority uint16) {
	b.PriorityWord = (priority & 0xF000) | (b.PriorityWord & 0x0FFF)
}

// Compare returns -1, 0 or 1 ordering b against other lexicographically:
// priority word, then MAC bytes.
func (b BridgeID) Compare(other BridgeID) int {
	switch {
	case b.PriorityWord < other.PriorityWord:
		return -1
	case b.PriorityWord > other.PriorityWord:
		return 1
	}
	for i := 0; i < len(b.Mac); i++ {
		switch {
		case b.Mac[i] < other.Mac[i]:
			return -1
		case b.Mac[i] > other.Mac[i]:
			return 1
		}
	}
	return 0
}

// Less reports whether b orders strictly before other.
func (b BridgeID) Less(other BridgeID) bool { return b.Compare(other) < 0 }

// String renders the identifier as 16 hex characters: the priority word
// followed by the MAC, the format used by published state records.
func (b BridgeID) String() string {
	return fmt.Sprintf("%04x%02x%02x%02x%02x%02x%02x",
		b.PriorityWord, b.Mac[0], b.Mac[1], b.Mac[2], b.Mac[3], b.Mac[4], b.Mac[5])
}

// zeroBridgeIDString is the published placeholder for an absent bridge id.
const zeroBridgeIDString = "0000000000000000"

// -------------------------------------------------------------------------
// PortIDField — IEEE 802.1D Section 9.2.7
// -------------------------------------------------------------------------

// PortIDField is the packed 16-bit port identifier: 4 bits of priority
// and a 12-bit port number. Ordering is on the packed word.
type PortIDField uint16

// MakePortIDField packs a port priority (0-240, multiples of 16) and a
// port number into a PortIDField.
func MakePortIDField(priority uint8, number uint16) PortIDField {
	return PortIDField(uint16(priority>>4)<<12 | (number & 0x0FFF))
}

// Number returns the 12-bit port number.
func (p PortIDField) Number() uint16 { return uint16(p) & 0x0FFF }

// Priority returns the port priority restored to its 8-bit form.
func (p PortIDField) Priority() uint8 { return uint8(uint16(p) >> 12 << 4) }

// SetPriority replaces the 4-bit priority, preserving the port number.
func (p *PortIDField) SetPriority(priority uint8) {
	*p = PortIDField(uint16(priority>>4)<<12 | uint16(*p)&0x0FFF)
}

// -------------------------------------------------------------------------
// Port states — IEEE 802.1D Section 8.4
// -------------------------------------------------------------------------

// PortState is the spanning tree state of one port in one instance.
type PortState uint8

// Port states in 802.1D order.
const (
	PortStateDisabled PortState = iota
	PortStateBlocking
	PortStateListening
	PortStateLearning
	PortStateForwarding
)

// portStateNames maps states to the strings used in published records.
var portStateNames = [5]string{
	"DISABLED",
	"BLOCKING",
	"LISTENING",
	"LEARNING",
	"FORWARDING",
}

// String returns the published-record name of the state.
func (s PortState) String() string {
	if int(s) < len(portStateNames) {
		return portStateNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// KernelState is the shadow of the port state pushed to the forwarding
// plane. Only Forwarding maps to KernelForward; every other state blocks.
type KernelState uint8

// Kernel port states.
const (
	KernelNone KernelState = iota
	KernelForward
	KernelBlocking
)

// -------------------------------------------------------------------------
// Protocol constants — IEEE 802.1D Table 8-3, plus vendor extensions
// -------------------------------------------------------------------------

// Bridge parameter defaults and bounds (seconds unless noted).
const (
	DefaultPriority uint16 = 32768
	MinPriority     uint16 = 0
	MaxPriority     uint16 = 65535

	DefaultForwardDelay uint8 = 15
	MinForwardDelay     uint8 = 4
	MaxForwardDelay     uint8 = 30

	DefaultMaxAge uint8 = 20
	MinMaxAge     uint8 = 6
	MaxMaxAge     uint8 = 40

	DefaultHelloTime uint8 = 2
	MinHelloTime     uint8 = 1
	MaxHelloTime     uint8 = 10

	DefaultHoldTime uint8 = 1

	DefaultPortPriority uint8 = 128
	MinPortPriority     uint8 = 0
	MaxPortPriority     uint8 = 240

	// MessageAgeIncrement is added to the message age on each hop.
	MessageAgeIncrement uint16 = 1

	// FastSpanForwardDelay replaces the bridge forward delay on PortFast
	// ports that are mid-walk through Listening/Learning.
	FastSpanForwardDelay uint8 = 2

	// FastUplinkForwardDelay replaces the bridge forward delay when the
	// UplinkFast conditions hold.
	FastUplinkForwardDelay uint8 = 1

	// Root-protect timeout bounds (seconds).
	DefaultRootProtectTimeout uint16 = 30
	MinRootProtectTimeout     uint16 = 5
	MaxRootProtectTimeout     uint16 = 600
)

// ClassState is the lifecycle state of one instance table slot.
type ClassState uint8

// Instance lifecycle states.
const (
	ClassFree ClassState = iota
	ClassConfig
	ClassActive
)

// String returns the lifecycle state name.
func (s ClassState) String() string {
	switch s {
	case ClassFree:
		return "FREE"
	case ClassConfig:
		return "CONFIG"
	case ClassActive:
		return "ACTIVE"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// ProtoMode selects the layer-2 protocol the daemon runs.
type ProtoMode uint8

// Protocol modes carried by bridge configuration messages.
const (
	ProtoModeNone ProtoMode = iota
	ProtoModePvst
)

// -------------------------------------------------------------------------
// Tick conversion — the scheduler tick is 100 ms; each instance is
// serviced every 5 ticks, so one instance tick is half a second and
// seconds double into ticks.
// -------------------------------------------------------------------------

// SecondsToTicks converts whole seconds to instance ticks.
func SecondsToTicks(seconds uint32) uint32 { return seconds << 1 }

// TicksToSeconds converts instance ticks to whole seconds.
func TicksToSeconds(ticks uint32) uint32 { return ticks >> 1 }
