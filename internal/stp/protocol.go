package stp

import (
	"log/slog"
)

// This file implements the 802.1D Section 8.6/8.7 operations for one
// spanning tree instance: the election procedures, the port state walk
// and the timer expiry actions, plus the Root Guard, PortFast and
// UplinkFast extensions layered on top of them.

// -------------------------------------------------------------------------
// Predicates — IEEE 802.1D Section 8.6.2
// -------------------------------------------------------------------------

// rootBridge reports whether this bridge is the root of the instance.
func rootBridge(c *Class) bool {
	return c.Bridge.RootID == c.Bridge.BridgeID
}

// designatedPort reports whether port is the designated port for its
// segment: its stored designated bridge and port are our own.
func designatedPort(c *Class, port PortID) bool {
	p := c.Port(port)
	if p == nil {
		return false
	}
	return p.DesignatedBridge == c.Bridge.BridgeID && p.DesignatedPort == p.PortID
}

// designatedForSomePort reports whether this bridge is designated for
// any segment of the instance.
func designatedForSomePort(c *Class) bool {
	for port := c.EnableMask.FirstSet(); port != bitmapInvalid; port = c.EnableMask.NextSet(port) {
		p := c.Port(PortID(port))
		if p != nil && p.DesignatedBridge == c.Bridge.BridgeID {
			return true
		}
	}
	return false
}

// bitmapInvalid mirrors bitmap.InvalidID without the import noise at
// every call site.
const bitmapInvalid int32 = -1

// supersedesPortInfo implements the Section 8.6.2.2 comparison: does the
// received BPDU carry better (or refreshed same-source) information than
// the port currently holds.
func supersedesPortInfo(c *Class, p *Port, bpdu *ConfigBpdu) bool {
	switch bpdu.RootID.Compare(p.DesignatedRoot) {
	case -1:
		return true
	case 1:
		return false
	}
	switch {
	case bpdu.RootPathCost < p.DesignatedCost:
		return true
	case bpdu.RootPathCost > p.DesignatedCost:
		return false
	}
	switch bpdu.BridgeID.Compare(p.DesignatedBridge) {
	case -1:
		return true
	case 1:
		return false
	}
	if bpdu.BridgeID != c.Bridge.BridgeID {
		return true
	}
	return bpdu.PortID <= p.DesignatedPort
}

// -------------------------------------------------------------------------
// Transmission — IEEE 802.1D Sections 8.6.1, 8.6.3, 8.6.6
// -------------------------------------------------------------------------

// transmitConfig sends a Config BPDU on port, honouring the hold timer.
// A transmission blocked by the hold timer is marked pending and retried
// at hold expiry (Section 8.6.3.3).
func (e *Engine) transmitConfig(c *Class, port PortID) {
	p := c.Port(port)
	if p == nil {
		return
	}

	if p.HoldTimer.Active() {
		p.ConfigPending = true
		return
	}

	b := &e.configTemplate
	b.RootID = c.Bridge.RootID
	b.RootPathCost = c.Bridge.RootPathCost
	b.BridgeID = c.Bridge.BridgeID
	b.PortID = p.PortID

	if rootBridge(c) {
		b.MessageAge = 0
	} else {
		rp := c.Port(c.Bridge.RootPort)
		age := uint32(0)
		if rp != nil {
			v, _ := rp.MessageAgeTimer.Value()
			age = TicksToSeconds(v)
		}
		b.MessageAge = uint16(age) + MessageAgeIncrement
	}

	b.MaxAge = uint16(c.Bridge.MaxAge)
	b.HelloTime = uint16(c.Bridge.HelloTime)
	b.ForwardDelay = uint16(c.Bridge.ForwardDelay)
	b.TopologyChangeAck = p.TopologyChangeAck
	b.TopologyChange = c.Bridge.TopologyChange

	if b.MessageAge < b.MaxAge {
		p.TopologyChangeAck = false
		p.ConfigPending = false
		e.sendBpdu(c, port, ConfigBpduType)
		p.HoldTimer.startSeconds(0)
	}
}

// configBpduGeneration transmits a Config BPDU on every designated port
// (Section 8.6.4). Self-looped ports are skipped.
func (e *Engine) configBpduGeneration(c *Class) {
	for port := c.EnableMask.FirstSet(); port != bitmapInvalid; port = c.EnableMask.NextSet(port) {
		p := c.Port(PortID(port))
		if p == nil || p.SelfLoop {
			continue
		}
		if designatedPort(c, PortID(port)) {
			e.transmitConfig(c, PortID(port))
		}
	}
}

// reply answers a Config BPDU on a designated port (Section 8.6.5).
func (e *Engine) reply(c *Class, port PortID) {
	e.transmitConfig(c, port)
}

// transmitTcn sends a TCN BPDU on the root port (Section 8.6.6).
func (e *Engine) transmitTcn(c *Class) {
	port := c.Bridge.RootPort
	if port == InvalidPortID {
		return
	}
	e.sendBpdu(c, port, TcnBpduType)
}

// -------------------------------------------------------------------------
// Recording received information — IEEE 802.1D Sections 8.6.2, 8.6.7
// -------------------------------------------------------------------------

// recordConfigInformation stores the BPDU's vector as the port's
// designated information and restarts the message age timer from the
// received age (Section 8.6.2).
func (e *Engine) recordConfigInformation(c *Class, port PortID, bpdu *ConfigBpdu) {
	p := c.Port(port)
	if p == nil {
		return
	}
	p.DesignatedRoot = bpdu.RootID
	p.DesignatedCost = bpdu.RootPathCost
	p.DesignatedBridge = bpdu.BridgeID
	p.DesignatedPort = bpdu.PortID
	p.MessageAgeTimer.startSeconds(uint32(bpdu.MessageAge))
	p.setModified(portModDesignatedRoot | portModDesignatedCost |
		portModDesignatedBridge | portModDesignatedPort)
}

// recordConfigTimeoutValues adopts the root's timer values
// (Section 8.6.7).
func (e *Engine) recordConfigTimeoutValues(c *Class, bpdu *ConfigBpdu) {
	c.Bridge.MaxAge = uint8(bpdu.MaxAge)
	c.Bridge.HelloTime = uint8(bpdu.HelloTime)
	c.Bridge.ForwardDelay = uint8(bpdu.ForwardDelay)
	c.Bridge.TopologyChange = bpdu.TopologyChange
	c.Bridge.TopologyChangeTime = uint8(bpdu.MaxAge) + uint8(bpdu.ForwardDelay)
	c.Bridge.setModified(bridgeModMaxAge | bridgeModHelloTime | bridgeModForwardDelay)
}

// -------------------------------------------------------------------------
// Election — IEEE 802.1D Sections 8.6.8, 8.6.9, 8.6.10
// -------------------------------------------------------------------------

// rootSelection picks the root port: the enabled non-designated port
// whose {designated root, cost + path cost, designated bridge,
// designated port, port id} vector is lexicographically minimal and
// strictly better than this bridge's own identifier (Section 8.6.8).
func (e *Engine) rootSelection(c *Class) {
	rootPort := InvalidPortID
	var rp *Port

	for port := c.EnableMask.FirstSet(); port != bitmapInvalid; port = c.EnableMask.NextSet(port) {
		p := c.Port(PortID(port))
		if p == nil || designatedPort(c, PortID(port)) {
			continue
		}
		if !p.DesignatedRoot.Less(c.Bridge.BridgeID) {
			continue
		}
		if rootPort == InvalidPortID || betterRootCandidate(p, rp) {
			rootPort = PortID(port)
			rp = p
		}
	}

	c.Bridge.RootPort = rootPort
	if rootPort == InvalidPortID {
		c.Bridge.RootID = c.Bridge.BridgeID
		c.Bridge.RootPathCost = 0
	} else {
		c.Bridge.RootID = rp.DesignatedRoot
		c.Bridge.RootPathCost = rp.DesignatedCost + rp.PathCost
	}
	c.Bridge.setModified(bridgeModRootID | bridgeModRootPathCost | bridgeModRootPort)
}

// betterRootCandidate orders two root port candidates by the
// Section 8.6.8 vector.
func betterRootCandidate(a, b *Port) bool {
	switch a.DesignatedRoot.Compare(b.DesignatedRoot) {
	case -1:
		return true
	case 1:
		return false
	}
	aCost := a.DesignatedCost + a.PathCost
	bCost := b.DesignatedCost + b.PathCost
	switch {
	case aCost < bCost:
		return true
	case aCost > bCost:
		return false
	}
	switch a.DesignatedBridge.Compare(b.DesignatedBridge) {
	case -1:
		return true
	case 1:
		return false
	}
	if a.DesignatedPort != b.DesignatedPort {
		return a.DesignatedPort < b.DesignatedPort
	}
	return a.PortID < b.PortID
}

// designatedPortSelection claims segments this bridge should serve
// (Section 8.6.9): already-designated ports are refreshed; ports whose
// stored information is worse than the bridge's own vector are taken
// over via becomeDesignatedPort.
func (e *Engine) designatedPortSelection(c *Class) {
	for port := c.EnableMask.FirstSet(); port != bitmapInvalid; port = c.EnableMask.NextSet(port) {
		p := c.Port(PortID(port))
		if p == nil {
			continue
		}

		switch {
		case designatedPort(c, PortID(port)):
			// Refresh with the (possibly new) root information.
		case p.DesignatedRoot != c.Bridge.RootID:
			// Stale root information on the segment.
		case c.Bridge.RootPathCost < p.DesignatedCost:
		case c.Bridge.RootPathCost > p.DesignatedCost:
			continue
		case c.Bridge.BridgeID.Less(p.DesignatedBridge):
		case p.DesignatedBridge != c.Bridge.BridgeID:
			continue
		case p.PortID <= p.DesignatedPort:
		default:
			continue
		}

		e.becomeDesignatedPort(c, PortID(port))
	}
}

// becomeDesignatedPort stores the bridge's own vector as the port's
// designated information (Section 8.6.10).
func (e *Engine) becomeDesignatedPort(c *Class, port PortID) {
	p := c.Port(port)
	if p == nil {
		return
	}
	p.DesignatedRoot = c.Bridge.RootID
	p.DesignatedCost = c.Bridge.RootPathCost
	p.DesignatedBridge = c.Bridge.BridgeID
	p.DesignatedPort = p.PortID
	p.setModified(portModDesignatedRoot | portModDesignatedCost |
		portModDesignatedBridge | portModDesignatedPort)
}

// configurationUpdate recomputes the root and designated information
// (Section 8.6.11).
func (e *Engine) configurationUpdate(c *Class) {
	e.rootSelection(c)
	e.designatedPortSelection(c)
}

// -------------------------------------------------------------------------
// Port state selection — IEEE 802.1D Sections 8.6.11, 8.6.12, 8.6.13
// -------------------------------------------------------------------------

// portStateSelection assigns the role-driven state to every enabled
// port: root and designated ports walk towards Forwarding, all others
// block (Section 8.6.11).
func (e *Engine) portStateSelection(c *Class) {
	for port := c.EnableMask.FirstSet(); port != bitmapInvalid; port = c.EnableMask.NextSet(port) {
		p := c.Port(PortID(port))
		if p == nil {
			continue
		}

		switch {
		case PortID(port) == c.Bridge.RootPort:
			p.ConfigPending = false
			p.TopologyChangeAck = false
			e.makeForwarding(c, PortID(port))
		case designatedPort(c, PortID(port)):
			p.MessageAgeTimer.Stop()
			e.makeForwarding(c, PortID(port))
		default:
			p.ConfigPending = false
			p.TopologyChangeAck = false
			e.makeBlocking(c, PortID(port))
		}
	}
}

// makeForwarding starts the Listening walk on a blocked port
// (Section 8.6.12). PortFast ports skip the walk entirely and go
// straight to Forwarding.
func (e *Engine) makeForwarding(c *Class, port PortID) {
	p := c.Port(port)
	if p == nil || p.State != PortStateBlocking {
		return
	}

	if e.fastspanMask.IsSet(int32(port)) {
		e.setPortState(c, port, PortStateForwarding)
		p.ForwardTransitions++
		p.setModified(portModForwardTransitions)
		return
	}

	e.setPortState(c, port, PortStateListening)
	p.ForwardDelayTimer.startSeconds(0)
}

// makeBlocking blocks a port that is not Disabled (Section 8.6.13).
// Leaving Forwarding or Learning on a change-detecting port signals a
// topology change.
func (e *Engine) makeBlocking(c *Class, port PortID) {
	p := c.Port(port)
	if p == nil || p.State == PortStateDisabled || p.State == PortStateBlocking {
		return
	}

	if (p.State == PortStateForwarding || p.State == PortStateLearning) &&
		p.ChangeDetectionEnabled && !p.OperEdge {
		e.topologyChangeDetection(c)
	}

	e.setPortState(c, port, PortStateBlocking)
	p.ForwardDelayTimer.Stop()
}

// setPortState commits a port state, maintains the kernel shadow and
// publishes the forwarding-plane state when it actually changed.
func (e *Engine) setPortState(c *Class, port PortID, state PortState) {
	p := c.Port(port)
	if p == nil || p.State == state {
		return
	}

	p.State = state
	p.setModified(portModState)

	kernel := KernelBlocking
	if state == PortStateForwarding {
		kernel = KernelForward
	}

	if p.KernelState != kernel {
		p.KernelState = kernel
		if name := e.ports.Name(port); name != "" {
			e.sink.UpdatePortState(name, uint16(e.classIndex(c)), state.String())
		}
	}

	if e.debug.MatchEvent(c.VlanID, port) {
		e.log.Debug("port state change",
			slog.Uint64("vlan", uint64(c.VlanID)),
			slog.String("port", e.portName(port)),
			slog.String("state", state.String()),
		)
	}
}

// -------------------------------------------------------------------------
// Topology change — IEEE 802.1D Sections 8.6.14, 8.6.15, 8.6.16
// -------------------------------------------------------------------------

// topologyChangeDetection propagates a detected change: the root starts
// the topology change timer, every other bridge notifies its designated
// bridge through the root port (Section 8.6.14).
func (e *Engine) topologyChangeDetection(c *Class) {
	if rootBridge(c) {
		if !c.Bridge.TopologyChange {
			c.Bridge.TopologyChangeCount++
			c.Bridge.TopologyChangeTick = e.seconds
			c.Bridge.setModified(bridgeModTopologyChangeCount | bridgeModTopologyChangeTime)
		}
		c.Bridge.TopologyChange = true
		c.TopologyChangeTimer.startSeconds(0)
	} else if !c.Bridge.TopologyChangeDetected {
		c.Bridge.TopologyChangeCount++
		c.Bridge.TopologyChangeTick = e.seconds
		c.Bridge.setModified(bridgeModTopologyChangeCount | bridgeModTopologyChangeTime)
		e.transmitTcn(c)
		c.TcnTimer.startSeconds(0)
	}
	c.Bridge.TopologyChangeDetected = true
	e.metrics.IncTopologyChange()
}

// topologyChangeAcknowledged clears the pending notification once the
// designated bridge has acknowledged it (Section 8.6.15).
func (e *Engine) topologyChangeAcknowledged(c *Class) {
	c.Bridge.TopologyChangeDetected = false
	c.TcnTimer.Stop()
}

// acknowledgeTopologyChange answers a TCN with a Config BPDU carrying
// the acknowledgement bit (Section 8.6.16).
func (e *Engine) acknowledgeTopologyChange(c *Class, port PortID) {
	p := c.Port(port)
	if p == nil {
		return
	}
	p.TopologyChangeAck = true
	e.transmitConfig(c, port)
}

// -------------------------------------------------------------------------
// BPDU reception — IEEE 802.1D Sections 8.7.1, 8.7.2
// -------------------------------------------------------------------------

// receivedConfigBpdu processes a validated Config BPDU on an enabled
// port (Section 8.7.1). Root Guard and PortFast demotion were handled by
// the receive path before this point.
func (e *Engine) receivedConfigBpdu(c *Class, port PortID, bpdu *ConfigBpdu) {
	p := c.Port(port)
	if p == nil || p.State == PortStateDisabled {
		return
	}

	wasRoot := rootBridge(c)

	if supersedesPortInfo(c, p, bpdu) {
		e.recordConfigInformation(c, port, bpdu)
		e.configurationUpdate(c)
		e.portStateSelection(c)

		if !rootBridge(c) && wasRoot {
			c.HelloTimer.Stop()
			if c.Bridge.TopologyChangeDetected {
				c.TopologyChangeTimer.Stop()
				e.transmitTcn(c)
				c.TcnTimer.startSeconds(0)
			}
		}

		if port == c.Bridge.RootPort {
			e.recordConfigTimeoutValues(c, bpdu)
			e.configBpduGeneration(c)
			if bpdu.TopologyChangeAck {
				e.topologyChangeAcknowledged(c)
			}
		}
	} else if designatedPort(c, port) {
		e.reply(c, port)
	}
}

// receivedTcnBpdu processes a TCN on a designated port (Section 8.7.2):
// the change propagates up and is acknowledged down.
func (e *Engine) receivedTcnBpdu(c *Class, port PortID) {
	p := c.Port(port)
	if p == nil || p.State == PortStateDisabled {
		return
	}
	if !designatedPort(c, port) {
		return
	}
	e.topologyChangeDetection(c)
	e.acknowledgeTopologyChange(c, port)
}

// -------------------------------------------------------------------------
// Instance and port bring-up — IEEE 802.1D Sections 8.8.1 - 8.8.3
// -------------------------------------------------------------------------

// initializeStpClass assigns the bridge identity and protocol defaults
// to a freshly claimed instance (Section 8.8.1).
func (e *Engine) initializeStpClass(c *Class, vlan VlanID) {
	c.VlanID = vlan
	c.Bridge.BridgeID = MakeBridgeID(DefaultPriority, vlan, e.baseMac)

	c.Bridge.BridgeMaxAge = DefaultMaxAge
	c.Bridge.BridgeHelloTime = DefaultHelloTime
	c.Bridge.BridgeForwardDelay = DefaultForwardDelay
	c.Bridge.MaxAge = DefaultMaxAge
	c.Bridge.HelloTime = DefaultHelloTime
	c.Bridge.ForwardDelay = DefaultForwardDelay
	c.Bridge.HoldTime = DefaultHoldTime
	c.Bridge.TopologyChangeTime = DefaultMaxAge + DefaultForwardDelay

	c.Bridge.RootID = c.Bridge.BridgeID
	c.Bridge.RootPathCost = 0
	c.Bridge.RootPort = InvalidPortID

	c.Bridge.setModified(allBits)
	c.ModifiedFields |= classModVlan
}

// initializeControlPort prepares a port record when the port joins the
// instance's control mask.
func (e *Engine) initializeControlPort(c *Class, port PortID) {
	p := c.Port(port)
	if p == nil {
		return
	}
	p.reset()
	p.PortID = MakePortIDField(e.portPriority[port], uint16(port))
	if cost := e.portPathCost[port]; cost != 0 {
		p.PathCost = cost
		p.AutoConfig = false
	} else {
		p.PathCost = e.defaultPathCost(port)
		p.AutoConfig = true
	}
	p.ChangeDetectionEnabled = true
	p.setModified(allBits)
}

// initializePort puts an enabled port in its Section 8.8.1 starting
// position: designated for its own segment, Blocking, timers stopped.
func (e *Engine) initializePort(c *Class, port PortID) {
	p := c.Port(port)
	if p == nil {
		return
	}

	e.becomeDesignatedPort(c, port)
	e.setPortState(c, port, PortStateBlocking)

	p.TopologyChangeAck = false
	p.ConfigPending = false
	p.ChangeDetectionEnabled = true
	p.SelfLoop = false

	p.MessageAgeTimer.Stop()
	p.ForwardDelayTimer.Stop()
	p.HoldTimer.Stop()
}

// enablePort adds an operationally-up control port to the active
// topology (Section 8.8.2).
func (e *Engine) enablePort(c *Class, port PortID) {
	if c.EnableMask.IsSet(int32(port)) {
		return
	}
	c.EnableMask.Set(int32(port))
	e.initializePort(c, port)
	e.portStateSelection(c)
}

// disablePort removes a port from the active topology (Section 8.8.3).
// If the bridge becomes root as a result, it re-asserts its own timer
// values and signals the topology change itself.
func (e *Engine) disablePort(c *Class, port PortID) {
	if !c.EnableMask.IsSet(int32(port)) {
		return
	}
	p := c.Port(port)
	if p == nil {
		return
	}

	wasRoot := rootBridge(c)
	wasActive := p.State == PortStateForwarding || p.State == PortStateLearning

	e.becomeDesignatedPort(c, port)
	e.setPortState(c, port, PortStateDisabled)

	p.TopologyChangeAck = false
	p.ConfigPending = false
	p.ChangeDetectionEnabled = true
	p.SelfLoop = false

	p.MessageAgeTimer.Stop()
	p.ForwardDelayTimer.Stop()
	p.RootProtectTimer.Stop()

	c.EnableMask.Clear(int32(port))
	e.configurationUpdate(c)
	e.portStateSelection(c)

	if rootBridge(c) && !wasRoot {
		c.Bridge.MaxAge = c.Bridge.BridgeMaxAge
		c.Bridge.HelloTime = c.Bridge.BridgeHelloTime
		c.Bridge.ForwardDelay = c.Bridge.BridgeForwardDelay
		c.Bridge.setModified(bridgeModMaxAge | bridgeModHelloTime | bridgeModForwardDelay)

		e.topologyChangeDetection(c)
		c.TcnTimer.Stop()
		e.configBpduGeneration(c)
		c.HelloTimer.startSeconds(0)
	} else if wasActive && p.ChangeDetectionEnabled && !p.OperEdge {
		// Losing an active port changes the tree even when the root
		// role is unaffected.
		e.topologyChangeDetection(c)
	}
}

// -------------------------------------------------------------------------
// Timer expiries — IEEE 802.1D Section 8.7.3 - 8.7.8
// -------------------------------------------------------------------------

// helloTimerExpiry regenerates Config BPDUs (Section 8.7.3).
func (e *Engine) helloTimerExpiry(c *Class) {
	e.configBpduGeneration(c)
	c.HelloTimer.startSeconds(0)
}

// messageAgeTimerExpiry ages out the information held on a port
// (Section 8.7.4). Becoming root here re-asserts local timer values.
func (e *Engine) messageAgeTimerExpiry(c *Class, port PortID) {
	wasRoot := rootBridge(c)

	e.becomeDesignatedPort(c, port)
	e.configurationUpdate(c)
	e.portStateSelection(c)

	if rootBridge(c) && !wasRoot {
		c.Bridge.MaxAge = c.Bridge.BridgeMaxAge
		c.Bridge.HelloTime = c.Bridge.BridgeHelloTime
		c.Bridge.ForwardDelay = c.Bridge.BridgeForwardDelay
		c.Bridge.setModified(bridgeModMaxAge | bridgeModHelloTime | bridgeModForwardDelay)

		e.topologyChangeDetection(c)
		c.TcnTimer.Stop()
		e.configBpduGeneration(c)
		c.HelloTimer.startSeconds(0)
	}
}

// forwardingDelayTimerExpiry advances the Listening -> Learning ->
// Forwarding walk (Section 8.7.5).
func (e *Engine) forwardingDelayTimerExpiry(c *Class, port PortID) {
	p := c.Port(port)
	if p == nil {
		return
	}

	switch p.State {
	case PortStateListening:
		e.setPortState(c, port, PortStateLearning)
		p.ForwardDelayTimer.startSeconds(0)

	case PortStateLearning:
		e.setPortState(c, port, PortStateForwarding)
		p.ForwardTransitions++
		p.setModified(portModForwardTransitions)

		if (designatedForSomePort(c) || port == c.Bridge.RootPort) &&
			p.ChangeDetectionEnabled && !p.OperEdge {
			e.topologyChangeDetection(c)
		}
	}
}

// tcnTimerExpiry retransmits the pending TCN (Section 8.7.6).
func (e *Engine) tcnTimerExpiry(c *Class) {
	e.transmitTcn(c)
	c.TcnTimer.startSeconds(0)
}

// topologyChangeTimerExpiry ends the root's topology change period
// (Section 8.7.7).
func (e *Engine) topologyChangeTimerExpiry(c *Class) {
	c.Bridge.TopologyChangeDetected = false
	c.Bridge.TopologyChange = false
	c.Bridge.TopologyChangeTick = 0
	c.Bridge.setModified(bridgeModTopologyChangeTime)
}

// holdTimerExpiry releases a transmission deferred by the hold timer
// (Section 8.7.8).
func (e *Engine) holdTimerExpiry(c *Class, port PortID) {
	p := c.Port(port)
	if p != nil && p.ConfigPending {
		e.transmitConfig(c, port)
	}
}

// -------------------------------------------------------------------------
// Root Guard
// -------------------------------------------------------------------------

// rootProtectValidate rejects superior BPDUs arriving on ports that the
// operator declared as leaf-facing. A violation blocks the port and
// (re)starts the recovery timer; processing of the frame stops.
func (e *Engine) rootProtectValidate(c *Class, port PortID, bpdu *ConfigBpdu) bool {
	p := c.Port(port)
	if p == nil {
		return true
	}
	if bpdu.Type == TcnBpduType || !supersedesPortInfo(c, p, bpdu) {
		return true
	}

	e.rootProtectViolation(c, port)
	return false
}

// rootProtectViolation blocks the offending port and logs the
// inconsistency once per guard episode.
func (e *Engine) rootProtectViolation(c *Class, port PortID) {
	p := c.Port(port)
	if p == nil {
		return
	}

	e.makeBlocking(c, port)
	if !p.RootProtectTimer.Active() {
		e.log.Warn("STP: Root Guard interface "+e.portName(port)+
			", VLAN "+uitoa(uint32(c.VlanID))+" inconsistent (Received superior BPDU)",
			slog.String("interface", e.portName(port)),
			slog.Uint64("vlan", uint64(c.VlanID)),
		)
		p.setModified(portModRootProtect)
		e.metrics.IncGuardTrip(metricGuardRoot)
	}
	p.RootProtectTimer.Start(0)
}

// rootProtectTimerExpired releases a port held by Root Guard once the
// timeout elapses without further superior BPDUs.
func (e *Engine) rootProtectTimerExpired(c *Class, port PortID) {
	p := c.Port(port)
	if p == nil {
		return
	}
	if e.ports.IsUp(port) {
		e.log.Warn("STP: Root Guard interface "+e.portName(port)+
			", VLAN "+uitoa(uint32(c.VlanID))+" consistent (Timeout)",
			slog.String("interface", e.portName(port)),
			slog.Uint64("vlan", uint64(c.VlanID)),
		)
		p.setModified(portModRootProtect)
	}
	e.makeForwarding(c, port)
}

// uitoa is a tiny decimal formatter for the fixed syslog texts.
func uitoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
