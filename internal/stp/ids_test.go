package stp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBridgeIDOrdering(t *testing.T) {
	macA := MacAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x01}
	macB := MacAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x02}

	low := MakeBridgeID(8192, 10, macB)
	high := MakeBridgeID(32768, 10, macA)

	assert.True(t, low.Less(high), "priority word dominates the MAC")
	assert.Equal(t, -1, low.Compare(high))
	assert.Equal(t, 1, high.Compare(low))

	// Same priority word: MAC breaks the tie.
	a := MakeBridgeID(32768, 10, macA)
	b := MakeBridgeID(32768, 10, macB)
	assert.True(t, a.Less(b))
	assert.Equal(t, 0, a.Compare(a))
}

func TestBridgeIDPacking(t *testing.T) {
	mac := MacAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	id := MakeBridgeID(32768, 100, mac)

	assert.Equal(t, uint16(32768), id.Priority())
	assert.Equal(t, uint16(100), id.SystemID())
	assert.Equal(t, uint16(0x8064), id.PriorityWord)

	id.SetPriority(4096)
	assert.Equal(t, uint16(4096), id.Priority())
	assert.Equal(t, uint16(100), id.SystemID())
}

func TestBridgeIDString(t *testing.T) {
	id := MakeBridgeID(32768, 10, MacAddr{0x00, 0x98, 0x19, 0x2C, 0xE1, 0xFC})
	assert.Equal(t, "800a0098192ce1fc", id.String())
	assert.Len(t, id.String(), 16)
}

func TestPortIDFieldPacking(t *testing.T) {
	p := MakePortIDField(128, 7)
	assert.Equal(t, uint16(7), p.Number())
	assert.Equal(t, uint8(128), p.Priority())
	assert.Equal(t, PortIDField(0x8007), p)

	p.SetPriority(32)
	assert.Equal(t, uint8(32), p.Priority())
	assert.Equal(t, uint16(7), p.Number())

	// Ordering is on the packed word: lower priority wins, then number.
	assert.True(t, MakePortIDField(32, 9) < MakePortIDField(128, 3))
	assert.True(t, MakePortIDField(128, 3) < MakePortIDField(128, 9))
}

func TestVlanIDValid(t *testing.T) {
	assert.False(t, VlanID(0).Valid())
	assert.True(t, VlanID(1).Valid())
	assert.True(t, VlanID(4094).Valid())
	assert.False(t, VlanID(4095).Valid())
	assert.False(t, VlanIDInvalid.Valid())
}

func TestPortStateStrings(t *testing.T) {
	assert.Equal(t, "DISABLED", PortStateDisabled.String())
	assert.Equal(t, "BLOCKING", PortStateBlocking.String())
	assert.Equal(t, "LISTENING", PortStateListening.String())
	assert.Equal(t, "LEARNING", PortStateLearning.String())
	assert.Equal(t, "FORWARDING", PortStateForwarding.String())
}
