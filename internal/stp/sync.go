package stp

import (
	"github.com/seregega/sonic-stp/internal/dbsync"
)

// This file flushes modified-field state to the publication sink. Only
// fields whose dirty bit is set are carried; everything else stays at
// its record sentinel so downstream consumers can merge.

// syncClass publishes dirty instance and port fields. Called by the
// scheduler after each instance service slot.
func (e *Engine) syncClass(c *Class) {
	e.syncBridgeData(c)

	for port := c.ControlMask.FirstSet(); port != bitmapInvalid; port = c.ControlMask.NextSet(port) {
		p := c.Port(PortID(port))
		if p != nil {
			e.syncPort(c, PortID(port), p)
		}
	}
}

// syncBridgeData publishes the per-VLAN bridge record.
func (e *Engine) syncBridgeData(c *Class) {
	if c.ModifiedFields == 0 && c.Bridge.ModifiedFields == 0 {
		return
	}

	mod := c.Bridge.ModifiedFields
	rec := dbsync.VlanTable{
		VlanID:       uint16(c.VlanID),
		RootPathCost: dbsync.UnsetU32,
		StpInstance:  uint16(e.classIndex(c)),
	}

	if mod&bridgeModRootID != 0 {
		rec.RootBridgeID = c.Bridge.RootID.String()
		if rootBridge(c) {
			rec.DesigBridgeID = rec.RootBridgeID
		} else if rp := c.Port(c.Bridge.RootPort); rp != nil {
			rec.DesigBridgeID = rp.DesignatedBridge.String()
		}
	}

	if mod&bridgeModRootPathCost != 0 {
		rec.RootPathCost = c.Bridge.RootPathCost
	}

	if mod&bridgeModRootPort != 0 {
		if rootBridge(c) {
			rec.RootPort = "Root"
			rec.DesigBridgeID = rec.RootBridgeID
		} else {
			rec.RootPort = e.ports.Name(c.Bridge.RootPort)
			if rp := c.Port(c.Bridge.RootPort); rp != nil {
				rec.DesigBridgeID = rp.DesignatedBridge.String()
			}
		}
	}

	if mod&bridgeModMaxAge != 0 {
		rec.RootMaxAge = c.Bridge.MaxAge
	}
	if mod&bridgeModHelloTime != 0 {
		rec.RootHelloTime = c.Bridge.HelloTime
	}
	if mod&bridgeModForwardDelay != 0 {
		rec.RootForwardDelay = c.Bridge.ForwardDelay
	}
	if mod&bridgeModHoldTime != 0 {
		rec.HoldTime = c.Bridge.HoldTime
	}
	if mod&bridgeModBridgeMaxAge != 0 {
		rec.MaxAge = c.Bridge.BridgeMaxAge
	}
	if mod&bridgeModBridgeHelloTime != 0 {
		rec.HelloTime = c.Bridge.BridgeHelloTime
	}
	if mod&bridgeModBridgeForwardDelay != 0 {
		rec.ForwardDelay = c.Bridge.BridgeForwardDelay
	}
	if mod&bridgeModBridgeID != 0 {
		rec.BridgeID = c.Bridge.BridgeID.String()
	}
	if mod&bridgeModTopologyChangeCount != 0 {
		rec.TopologyChangeCount = c.Bridge.TopologyChangeCount
	}
	if mod&bridgeModTopologyChangeTime != 0 && c.Bridge.TopologyChangeTick != 0 {
		rec.TopologyChangeTime = e.seconds - c.Bridge.TopologyChangeTick
	}

	c.ModifiedFields = 0
	c.Bridge.ModifiedFields = 0

	e.sink.UpdateStpClass(&rec)
}

// syncPort publishes the per-port per-VLAN record.
func (e *Engine) syncPort(c *Class, port PortID, p *Port) {
	if p.ModifiedFields == 0 {
		return
	}

	name := e.ports.Name(port)
	if name == "" {
		return
	}

	mod := p.ModifiedFields
	rec := dbsync.VlanPortTable{
		IfName:           name,
		VlanID:           uint16(c.VlanID),
		PortID:           dbsync.UnsetU16,
		PortPriority:     dbsync.UnsetI16,
		PathCost:         dbsync.UnsetU32,
		DesignatedCost:   dbsync.UnsetU32,
		RootProtectTimer: dbsync.UnsetI32,
	}

	if mod&portModPortID != 0 {
		rec.PortID = p.PortID.Number()
	}
	if mod&portModPortPriority != 0 {
		rec.PortPriority = int16(p.PortID.Priority())
	}
	if mod&portModDesignatedRoot != 0 {
		rec.DesignatedRoot = p.DesignatedRoot.String()
	}
	if mod&portModDesignatedCost != 0 {
		rec.DesignatedCost = p.DesignatedCost
	}
	if mod&portModDesignatedBridge != 0 {
		rec.DesignatedBridge = p.DesignatedBridge.String()
	}
	if mod&portModDesignatedPort != 0 {
		rec.DesignatedPort = uint16(p.DesignatedPort)
	}

	if mod&portModState != 0 {
		if value, _ := p.RootProtectTimer.Value(); value != 0 && p.State == PortStateBlocking {
			rec.PortState = rootInconsistentState
		} else if e.protectDisabledMask.IsSet(int32(port)) {
			rec.PortState = bpduDisabledState
		} else {
			rec.PortState = p.State.String()
		}

		if p.State == PortStateDisabled {
			rec.DesignatedCost = 0
			rec.DesignatedBridge = zeroBridgeIDString
			rec.DesignatedRoot = zeroBridgeIDString
		}
	}

	if mod&portModPathCost != 0 {
		rec.PathCost = p.PathCost
	}
	if mod&portModForwardTransitions != 0 {
		rec.ForwardTransitions = p.ForwardTransitions
	}
	if mod&portModBpduSent != 0 {
		rec.TxConfigBpdu = p.TxConfigBpdu
	}
	if mod&portModBpduReceived != 0 {
		rec.RxConfigBpdu = p.RxConfigBpdu
	}
	if mod&portModTcSent != 0 {
		rec.TxTcnBpdu = p.TxTcnBpdu
	}
	if mod&portModTcReceived != 0 {
		rec.RxTcnBpdu = p.RxTcnBpdu
	}

	if mod&portModRootProtect != 0 {
		if value, _ := p.RootProtectTimer.Value(); value != 0 {
			rec.RootProtectTimer = int32(uint32(e.rootProtectTimeout) - TicksToSeconds(value))
		} else {
			rec.RootProtectTimer = 0
		}
	}

	if mod&portModClearStats != 0 {
		rec.ClearStats = true
	}

	p.ModifiedFields = 0

	e.sink.UpdatePortClass(&rec)
}

// rootInconsistentState is published while Root Guard holds a port in
// Blocking with its recovery timer running.
const rootInconsistentState = "ROOT-INC"

// bpduDisabledState is published for a port that BPDU Guard shut down.
const bpduDisabledState = "BPDU-DIS"

// syncBpduCounters runs on the one-second cadence: it re-publishes the
// topology change clock and the per-port BPDU counters.
func (e *Engine) syncBpduCounters(c *Class) {
	if c.Bridge.TopologyChangeTick != 0 {
		c.Bridge.setModified(bridgeModTopologyChangeTime)
		e.syncBridgeData(c)
	}

	for port := c.ControlMask.FirstSet(); port != bitmapInvalid; port = c.ControlMask.NextSet(port) {
		p := c.Port(PortID(port))
		if p == nil {
			continue
		}
		p.setModified(portModBpduSent | portModBpduReceived | portModTcSent | portModTcReceived)
		if p.RootProtectTimer.Active() {
			p.setModified(portModRootProtect)
		}
		e.syncPort(c, PortID(port), p)
	}
}
