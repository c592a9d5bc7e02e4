package stp

import (
	"github.com/seregega/sonic-stp/internal/bitmap"
)

// DebugVector gates verbose per-packet and per-event logging. Scope can
// be narrowed to specific VLANs and ports; by default all are matched
// but the individual toggles are off.
type DebugVector struct {
	Enabled  bool
	Verbose  bool
	BpduRx   bool
	BpduTx   bool
	Event    bool
	AllVlans bool
	AllPorts bool

	VlanMask *bitmap.Mask
	PortMask *bitmap.Mask
}

// init restores factory defaults: everything matched, nothing enabled.
func (d *DebugVector) init(maxPorts int32) {
	d.Enabled = false
	d.Verbose = false
	d.BpduRx = false
	d.BpduTx = false
	d.Event = false
	d.AllVlans = true
	d.AllPorts = true
	d.VlanMask = bitmap.New(int32(MaxVlanID) + 1)
	d.PortMask = bitmap.New(maxPorts)
}

// match reports whether the vlan/port pair is inside the debug scope.
func (d *DebugVector) match(vlan VlanID, port PortID) bool {
	if !d.Enabled {
		return false
	}
	if !d.AllVlans && !d.VlanMask.IsSet(int32(vlan)) {
		return false
	}
	if !d.AllPorts && !d.PortMask.IsSet(int32(port)) {
		return false
	}
	return true
}

// MatchRx reports whether BPDU reception logging applies.
func (d *DebugVector) MatchRx(vlan VlanID, port PortID) bool {
	return d.BpduRx && d.match(vlan, port)
}

// MatchTx reports whether BPDU transmission logging applies.
func (d *DebugVector) MatchTx(vlan VlanID, port PortID) bool {
	return d.BpduTx && d.match(vlan, port)
}

// MatchEvent reports whether protocol event logging applies.
func (d *DebugVector) MatchEvent(vlan VlanID, port PortID) bool {
	return d.Event && d.match(vlan, port)
}

// Debug exposes the debug vector for the control channel.
func (e *Engine) Debug() *DebugVector { return &e.debug }
