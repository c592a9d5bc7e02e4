package stp

import (
	"fmt"
	"log/slog"
)

// The management adapter: instance activation, control/enable port
// membership, bridge and port parameter configuration, the global guard
// and fast masks, and statistics maintenance. Configuration message
// decoding lives in apply.go; the operations here are the engine calls
// those messages translate into.

// Port membership modes carried by configuration messages.
const (
	PortModeUntagged int8 = 0
	PortModeTagged   int8 = 1
)

// -------------------------------------------------------------------------
// Instance activation
// -------------------------------------------------------------------------

// activateStpClass moves a configured instance into the active topology:
// fresh topology change state, port roles assigned, hello generation
// started.
func (e *Engine) activateStpClass(c *Class) {
	c.State = ClassActive

	c.Bridge.TopologyChangeDetected = false
	c.Bridge.TopologyChange = false

	c.TcnTimer.Stop()
	c.TopologyChangeTimer.Stop()

	e.portStateSelection(c)
	e.configBpduGeneration(c)
	c.HelloTimer.startSeconds(0)
}

// deactivateStpClass parks an instance whose enable mask emptied.
func (e *Engine) deactivateStpClass(c *Class) {
	if c.State == ClassConfig {
		return
	}

	c.State = ClassConfig

	c.TcnTimer.Stop()
	c.TopologyChangeTimer.Stop()
	c.HelloTimer.Stop()

	if c.Bridge.TopologyChange {
		c.Bridge.TopologyChange = false
		c.Bridge.TopologyChangeDetected = false
		e.updateFastAging(c)
	}
}

// -------------------------------------------------------------------------
// VLAN instance lifecycle
// -------------------------------------------------------------------------

// CreateVlanInstance claims instance slot index for vlan and publishes
// the VLAN-to-instance binding.
func (e *Engine) CreateVlanInstance(index StpIndex, vlan VlanID) error {
	if err := e.initClass(index, vlan); err != nil {
		return err
	}
	e.sink.AddVlanToInstance(uint16(vlan), uint16(index))
	return nil
}

// ReleaseIndex tears an instance down: every control port is detached,
// the published records are removed, and the slot returns to Free.
func (e *Engine) ReleaseIndex(index StpIndex) bool {
	c := e.Class(index)
	if c == nil {
		return false
	}
	if c.State == ClassFree {
		return true
	}

	c.EnableMask.Zero()
	e.deactivateStpClass(c)

	for port := c.ControlMask.FirstSet(); port != bitmapInvalid; port = c.ControlMask.NextSet(port) {
		e.deleteControlPort(index, PortID(port), true)
	}

	e.sink.DelVlanFromInstance(uint16(c.VlanID), uint16(index))
	e.sink.DelStpClass(uint16(c.VlanID))

	e.freeClass(index)
	return true
}

// -------------------------------------------------------------------------
// Control and enable port membership
// -------------------------------------------------------------------------

// addControlPort attaches a port to an instance. Untagged-mode ports
// join the untag mask. Operationally-up ports are enabled immediately;
// down ports only publish their Disabled state.
func (e *Engine) addControlPort(index StpIndex, port PortID, mode int8) bool {
	c := e.Class(index)
	if c == nil || c.State == ClassFree {
		return false
	}

	if c.ControlMask.IsSet(int32(port)) {
		return true
	}

	c.ControlMask.Set(int32(port))
	if mode == PortModeUntagged {
		c.UntagMask.Set(int32(port))
	}

	e.initializeControlPort(c, port)

	if e.ports.IsUp(port) {
		e.addEnablePort(index, port)
	} else if name := e.ports.Name(port); name != "" {
		e.sink.UpdatePortState(name, uint16(index), PortStateDisabled.String())
	}

	if p := c.Port(port); p != nil {
		p.setModified(allBits)
	}

	return true
}

// deleteControlPort detaches a port from an instance. The port is left
// forwarding in the plane so that data traffic survives disabling the
// protocol on it; delStpPort additionally removes the published records.
func (e *Engine) deleteControlPort(index StpIndex, port PortID, delStpPort bool) bool {
	c := e.Class(index)
	if c == nil || c.State == ClassFree || !c.ControlMask.IsSet(int32(port)) {
		return false
	}

	name := e.ports.Name(port)

	if p := c.Port(port); p != nil {
		p.State = PortStateForwarding
		p.KernelState = KernelForward
		if name != "" && !delStpPort {
			e.sink.UpdatePortState(name, uint16(index), PortStateForwarding.String())
		}
	}

	e.removeEnablePort(index, port)

	if name != "" {
		if delStpPort {
			e.sink.DelPortState(name, uint16(index))
		}
		e.sink.DelPortClass(name, uint16(c.VlanID))
	}

	c.ControlMask.Clear(int32(port))
	c.UntagMask.Clear(int32(port))
	if p := c.Port(port); p != nil {
		p.reset()
	}

	return true
}

// addEnablePort brings an operationally-up control port into the active
// topology, activating the instance on its first enabled port.
func (e *Engine) addEnablePort(index StpIndex, port PortID) bool {
	c := e.Class(index)
	if c == nil {
		return false
	}
	if c.EnableMask.IsSet(int32(port)) {
		return true
	}
	if !c.ControlMask.IsSet(int32(port)) {
		e.log.Error("port not in control mask",
			slog.String("port", e.portName(port)),
			slog.Uint64("instance", uint64(index)),
		)
		return false
	}

	if c.State == ClassConfig {
		e.activateStpClass(c)
	}

	e.enablePort(c, port)
	return true
}

// removeEnablePort takes a port out of the active topology, parking the
// instance when its last enabled port leaves.
func (e *Engine) removeEnablePort(index StpIndex, port PortID) bool {
	c := e.Class(index)
	if c == nil {
		return false
	}
	if !c.EnableMask.IsSet(int32(port)) {
		return true
	}

	e.disablePort(c, port)
	if !c.EnableMask.Any() {
		e.deactivateStpClass(c)
	}
	return true
}

// -------------------------------------------------------------------------
// Bridge parameter configuration — IEEE 802.1D Section 8.8.4
// -------------------------------------------------------------------------

// setBridgePriority replaces the priority class of the bridge id.
// Designated ports advertise the new identity immediately; becoming or
// ceasing to be root runs the usual root transition actions.
func (e *Engine) setBridgePriority(c *Class, newID BridgeID) {
	wasRoot := rootBridge(c)

	for port := c.EnableMask.FirstSet(); port != bitmapInvalid; port = c.EnableMask.NextSet(port) {
		p := c.Port(PortID(port))
		if p == nil {
			continue
		}
		if designatedPort(c, PortID(port)) {
			p.DesignatedBridge = newID
			p.setModified(portModDesignatedBridge)
		}
	}

	c.Bridge.BridgeID = newID
	c.Bridge.setModified(bridgeModBridgeID)

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

// setBridgeParams applies the administered timer values operationally
// when this bridge is the root.
func (e *Engine) setBridgeParams(c *Class) {
	if !rootBridge(c) {
		return
	}
	c.Bridge.MaxAge = c.Bridge.BridgeMaxAge
	c.Bridge.HelloTime = c.Bridge.BridgeHelloTime
	c.Bridge.ForwardDelay = c.Bridge.BridgeForwardDelay
	c.Bridge.setModified(bridgeModMaxAge | bridgeModHelloTime | bridgeModForwardDelay)
}

// ConfigBridgePriority validates and applies a bridge priority.
func (e *Engine) ConfigBridgePriority(index StpIndex, priority uint16) error {
	c := e.Class(index)
	if c == nil || c.State == ClassFree {
		return ErrUnknownInstance
	}
	newID := MakeBridgeID(priority, c.VlanID, c.Bridge.BridgeID.Mac)
	e.setBridgePriority(c, newID)
	return nil
}

// ConfigBridgeMaxAge validates and applies the administered max age.
func (e *Engine) ConfigBridgeMaxAge(index StpIndex, maxAge uint16) error {
	c := e.Class(index)
	if c == nil || c.State == ClassFree {
		return ErrUnknownInstance
	}
	if maxAge < uint16(MinMaxAge) || maxAge > uint16(MaxMaxAge) {
		return fmt.Errorf("max age %d out of [%d, %d]: %w",
			maxAge, MinMaxAge, MaxMaxAge, ErrConfigRejected)
	}
	c.Bridge.BridgeMaxAge = uint8(maxAge)
	c.Bridge.TopologyChangeTime = c.Bridge.BridgeMaxAge + c.Bridge.BridgeForwardDelay
	c.Bridge.setModified(bridgeModBridgeMaxAge)
	e.setBridgeParams(c)
	return nil
}

// ConfigBridgeHelloTime validates and applies the administered hello time.
func (e *Engine) ConfigBridgeHelloTime(index StpIndex, helloTime uint16) error {
	c := e.Class(index)
	if c == nil || c.State == ClassFree {
		return ErrUnknownInstance
	}
	if helloTime < uint16(MinHelloTime) || helloTime > uint16(MaxHelloTime) {
		return fmt.Errorf("hello time %d out of [%d, %d]: %w",
			helloTime, MinHelloTime, MaxHelloTime, ErrConfigRejected)
	}
	c.Bridge.BridgeHelloTime = uint8(helloTime)
	c.Bridge.setModified(bridgeModBridgeHelloTime)
	e.setBridgeParams(c)
	return nil
}

// ConfigBridgeForwardDelay validates and applies the administered
// forward delay.
func (e *Engine) ConfigBridgeForwardDelay(index StpIndex, forwardDelay uint16) error {
	c := e.Class(index)
	if c == nil || c.State == ClassFree {
		return ErrUnknownInstance
	}
	if forwardDelay < uint16(MinForwardDelay) || forwardDelay > uint16(MaxForwardDelay) {
		return fmt.Errorf("forward delay %d out of [%d, %d]: %w",
			forwardDelay, MinForwardDelay, MaxForwardDelay, ErrConfigRejected)
	}
	c.Bridge.BridgeForwardDelay = uint8(forwardDelay)
	c.Bridge.TopologyChangeTime = c.Bridge.BridgeMaxAge + c.Bridge.BridgeForwardDelay
	c.Bridge.setModified(bridgeModBridgeForwardDelay)
	e.setBridgeParams(c)
	return nil
}

// -------------------------------------------------------------------------
// Port parameter configuration — IEEE 802.1D Sections 8.8.5, 8.8.6
// -------------------------------------------------------------------------

// setPortPriority applies a new port priority. A designated port that
// becomes better than its stored designated information re-claims the
// segment.
func (e *Engine) setPortPriority(c *Class, port PortID, priority uint8) {
	p := c.Port(port)
	if p == nil {
		return
	}

	if designatedPort(c, port) {
		p.DesignatedPort.SetPriority(priority)
	}
	p.PortID.SetPriority(priority)
	p.setModified(portModPortPriority)

	if c.Bridge.BridgeID == p.DesignatedBridge && p.PortID < p.DesignatedPort {
		e.becomeDesignatedPort(c, port)
		e.portStateSelection(c)
		p.setModified(portModDesignatedPort)
	}
}

// ConfigPortPriority validates and applies a port priority on one
// instance.
func (e *Engine) ConfigPortPriority(index StpIndex, port PortID, priority uint16, global bool) error {
	c := e.Class(index)
	if c == nil || c.State == ClassFree {
		return ErrUnknownInstance
	}
	if priority > uint16(MaxPortPriority) {
		return fmt.Errorf("port priority %d out of [%d, %d]: %w",
			priority, MinPortPriority, MaxPortPriority, ErrConfigRejected)
	}
	p := c.Port(port)
	if p == nil {
		return ErrUnknownPort
	}

	if global {
		p.Flags &^= portFlagPriorityConfigured
	} else {
		p.Flags |= portFlagPriorityConfigured
	}

	e.setPortPriority(c, port, uint8(priority))
	return nil
}

// ConfigPortPathCost validates and applies a path cost on one instance.
// autoConfig recomputes the cost from the link speed instead.
func (e *Engine) ConfigPortPathCost(index StpIndex, port PortID, autoConfig bool, pathCost uint32, global bool) error {
	c := e.Class(index)
	if c == nil || c.State == ClassFree {
		return ErrUnknownInstance
	}
	p := c.Port(port)
	if p == nil {
		return ErrUnknownPort
	}

	if autoConfig {
		pathCost = e.defaultPathCost(port)
	} else {
		minCost, maxCost := pathCostBounds(e.extendMode)
		if pathCost < minCost || pathCost > maxCost {
			return fmt.Errorf("path cost %d out of [%d, %d]: %w",
				pathCost, minCost, maxCost, ErrConfigRejected)
		}
	}

	if global {
		p.Flags &^= portFlagPathCostConfigured
	} else {
		p.Flags |= portFlagPathCostConfigured
	}

	p.PathCost = pathCost
	p.AutoConfig = autoConfig
	p.setModified(portModPathCost)

	e.configurationUpdate(c)
	e.portStateSelection(c)
	return nil
}

// -------------------------------------------------------------------------
// Change detection — IEEE 802.1D Sections 8.8.7, 8.8.8
// -------------------------------------------------------------------------

// enableChangeDetection re-arms topology change detection on a port.
func (e *Engine) enableChangeDetection(c *Class, port PortID) {
	if p := c.Port(port); p != nil {
		p.ChangeDetectionEnabled = true
	}
}

// disableChangeDetection suppresses topology change detection on a port.
func (e *Engine) disableChangeDetection(c *Class, port PortID) {
	if p := c.Port(port); p != nil {
		p.ChangeDetectionEnabled = false
	}
}

// -------------------------------------------------------------------------
// Global port flags
// -------------------------------------------------------------------------

// ConfigFastSpan sets the administrative PortFast flag; the operational
// flag follows it, also on a port that a received BPDU had demoted.
func (e *Engine) ConfigFastSpan(port PortID, enable bool) {
	if enable {
		e.fastspanAdminMask.Set(int32(port))
		if !e.fastspanMask.IsSet(int32(port)) {
			e.fastspanMask.Set(int32(port))
			e.sink.UpdatePortFast(e.ports.Name(port), true)
		}
	} else {
		e.fastspanAdminMask.Clear(int32(port))
		if e.fastspanMask.IsSet(int32(port)) {
			e.fastspanMask.Clear(int32(port))
			e.sink.UpdatePortFast(e.ports.Name(port), false)
		}
	}
}

// ConfigFastUplink sets the administrative UplinkFast flag.
func (e *Engine) ConfigFastUplink(port PortID, enable bool) {
	if enable {
		e.fastuplinkAdminMask.Set(int32(port))
	} else {
		e.fastuplinkAdminMask.Clear(int32(port))
	}
}

// ConfigBpduGuard sets the BPDU Guard masks. Releasing the guard also
// releases a latched shutdown.
func (e *Engine) ConfigBpduGuard(port PortID, enable, doDisable bool) {
	if enable {
		if doDisable {
			e.protectDoDisableMask.Set(int32(port))
		} else {
			e.protectDoDisableMask.Clear(int32(port))
		}
		e.protectMask.Set(int32(port))
	} else {
		e.protectDoDisableMask.Clear(int32(port))
		if e.protectDisabledMask.IsSet(int32(port)) {
			e.protectDisabledMask.Clear(int32(port))
			e.sink.UpdateBpduGuardShutdown(e.ports.Name(port), false)
		}
		e.protectMask.Clear(int32(port))
	}
}

// ConfigRootGuard sets the Root Guard mask. Running recovery timers are
// cleaned up by the scheduler when the mask bit disappears.
func (e *Engine) ConfigRootGuard(port PortID, enable bool) {
	if enable {
		e.rootProtectMask.Set(int32(port))
	} else {
		e.rootProtectMask.Clear(int32(port))
	}
}

// ConfigRootProtectTimeout validates and applies the guard recovery
// timeout.
func (e *Engine) ConfigRootProtectTimeout(timeout uint16) error {
	if timeout < MinRootProtectTimeout || timeout > MaxRootProtectTimeout {
		return fmt.Errorf("root guard timeout %d out of [%d, %d]: %w",
			timeout, MinRootProtectTimeout, MaxRootProtectTimeout, ErrConfigRejected)
	}
	e.rootProtectTimeout = timeout
	return nil
}

// SetExtendMode selects the 802.1t path-cost table and recomputes every
// auto-configured cost.
func (e *Engine) SetExtendMode(enable bool) {
	if e.extendMode == enable {
		return
	}
	e.extendMode = enable

	for i := range e.classes {
		c := &e.classes[i]
		if c.State == ClassFree {
			continue
		}
		for port := c.ControlMask.FirstSet(); port != bitmapInvalid; port = c.ControlMask.NextSet(port) {
			p := c.Port(PortID(port))
			if p == nil || !p.AutoConfig {
				continue
			}
			p.PathCost = e.defaultPathCost(PortID(port))
			p.setModified(portModPathCost)
		}
		if c.State == ClassActive {
			e.configurationUpdate(c)
			e.portStateSelection(c)
		}
	}
}

// SetGlobalEnable maintains the administrative port enable mask.
func (e *Engine) SetGlobalEnable(port PortID, enable bool) {
	if enable {
		e.enableAdminMask.Set(int32(port))
	} else {
		e.enableAdminMask.Clear(int32(port))
	}
}

// -------------------------------------------------------------------------
// Statistics
// -------------------------------------------------------------------------

// clearPortStatistics zeroes BPDU counters for one port, or every
// control port when port is InvalidPortID.
func (e *Engine) clearPortStatistics(c *Class, port PortID) {
	clear := func(p *Port, port PortID) {
		p.RxConfigBpdu = 0
		p.RxTcnBpdu = 0
		p.TxConfigBpdu = 0
		p.TxTcnBpdu = 0
		p.setModified(portModClearStats | portModBpduSent | portModBpduReceived |
			portModTcSent | portModTcReceived)
		if p.RootProtectTimer.Active() {
			p.setModified(portModRootProtect)
		}
		e.syncPort(c, port, p)
	}

	if port == InvalidPortID {
		for pn := c.ControlMask.FirstSet(); pn != bitmapInvalid; pn = c.ControlMask.NextSet(pn) {
			if p := c.Port(PortID(pn)); p != nil {
				clear(p, PortID(pn))
			}
		}
		return
	}
	if p := c.Port(port); p != nil {
		clear(p, port)
	}
}

// ClearStatistics zeroes BPDU counters for the given scope: a VLAN, a
// port, both, or everything (VlanIDInvalid / InvalidPortID widen the
// scope).
func (e *Engine) ClearStatistics(vlan VlanID, port PortID) {
	if vlan == VlanIDInvalid {
		for i := range e.classes {
			c := &e.classes[i]
			if c.State != ClassFree {
				e.clearPortStatistics(c, port)
			}
		}
		return
	}
	if idx, ok := e.vlanToIndex[vlan]; ok {
		c := &e.classes[idx]
		if c.State != ClassFree {
			e.clearPortStatistics(c, port)
		}
	}
}

// DropCounters returns the global frame drop counters (stp, tcn, pvst).
func (e *Engine) DropCounters() (uint32, uint32, uint32) {
	return e.stpDropCount, e.tcnDropCount, e.pvstDropCount
}
