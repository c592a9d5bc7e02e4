package stp

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/seregega/sonic-stp/internal/ipc"
)

// Configuration message application: the translation from IPC payloads
// into engine operations. Invalid messages are logged and dropped
// without mutating engine state; control requests get a single
// enumerated reply.

// protocolEnabled reports whether PVST processing is administratively on.
func (e *Engine) protocolEnabled() bool {
	return e.enabled && e.protoMode == ProtoModePvst
}

// ApplyRequest decodes and executes one IPC request. Called from the
// dispatch loop only.
func (e *Engine) ApplyRequest(req ipc.Request) {
	msg := req.Msg

	switch msg.Type {
	case ipc.MsgInitReady:
		var m ipc.InitReadyMsg
		if err := msg.Decode(&m); err != nil {
			e.logBadMessage(msg, err)
			return
		}
		if m.MaxStpInstances != e.maxInstances {
			e.log.Warn("init ready instance count differs from configured table size",
				slog.Uint64("requested", uint64(m.MaxStpInstances)),
				slog.Uint64("configured", uint64(e.maxInstances)),
			)
		}
		e.log.Info("init ready", slog.Uint64("max_instances", uint64(e.maxInstances)))

	case ipc.MsgBridgeConfig:
		var m ipc.BridgeConfigMsg
		if err := msg.Decode(&m); err != nil {
			e.logBadMessage(msg, err)
			return
		}
		e.applyBridgeConfig(&m)

	case ipc.MsgVlanConfig:
		var m ipc.VlanConfigMsg
		if err := msg.Decode(&m); err != nil {
			e.logBadMessage(msg, err)
			return
		}
		e.applyVlanConfig(&m)

	case ipc.MsgVlanPortConfig:
		var m ipc.VlanPortConfigMsg
		if err := msg.Decode(&m); err != nil {
			e.logBadMessage(msg, err)
			return
		}
		e.applyVlanPortConfig(&m)

	case ipc.MsgPortConfig:
		var m ipc.PortConfigMsg
		if err := msg.Decode(&m); err != nil {
			e.logBadMessage(msg, err)
			return
		}
		e.applyPortConfig(&m)

	case ipc.MsgVlanMemConfig:
		var m ipc.VlanMemConfigMsg
		if err := msg.Decode(&m); err != nil {
			e.logBadMessage(msg, err)
			return
		}
		e.applyVlanMemConfig(&m)

	case ipc.MsgCtl:
		var m ipc.CtlMsg
		if err := msg.Decode(&m); err != nil {
			e.logBadMessage(msg, err)
			if req.Reply != nil {
				req.Reply(&ipc.CtlReply{Status: ipc.StatusError, Output: err.Error()})
			}
			return
		}
		reply := e.handleCtl(&m)
		if req.Reply != nil {
			req.Reply(reply)
		}

	default:
		e.log.Warn("dropping unknown ipc message", slog.Int("type", int(msg.Type)))
	}
}

// logBadMessage records a dropped malformed payload.
func (e *Engine) logBadMessage(msg *ipc.Message, err error) {
	e.log.Warn("dropping invalid config message",
		slog.String("type", msg.Type.String()),
		slog.String("error", err.Error()),
	)
}

// -------------------------------------------------------------------------
// Bridge configuration
// -------------------------------------------------------------------------

// applyBridgeConfig enables or disables the protocol globally. Mode
// none keeps the engine enabled but sets the template's version octet
// to 2, which suppresses PVST transmission.
func (e *Engine) applyBridgeConfig(m *ipc.BridgeConfigMsg) {
	e.log.Info("bridge config",
		slog.Uint64("opcode", uint64(m.Opcode)),
		slog.Uint64("stp_mode", uint64(m.StpMode)),
		slog.Int64("rootguard_timeout", int64(m.RootguardTimeout)),
		slog.String("base_mac", m.BaseMacAddr),
	)

	switch m.Opcode {
	case ipc.OpcodeSet:
		e.enabled = true
		e.protoMode = ProtoMode(m.StpMode)

		if e.protoMode == ProtoModeNone {
			e.configTemplate.ProtocolVersion = RstpVersionID
		} else {
			e.configTemplate.ProtocolVersion = StpVersionID
		}

		if m.RootguardTimeout != 0 {
			if err := e.ConfigRootProtectTimeout(uint16(m.RootguardTimeout)); err != nil {
				e.log.Warn("bridge config: root guard timeout rejected",
					slog.String("error", err.Error()),
				)
			}
		}

		if m.BaseMacAddr != "" {
			hw, err := net.ParseMAC(m.BaseMacAddr)
			if err != nil || len(hw) != 6 {
				e.log.Warn("bridge config: bad base mac",
					slog.String("mac", m.BaseMacAddr),
				)
				return
			}
			copy(e.baseMac[:], hw)
		}

	case ipc.OpcodeDel:
		e.enabled = false

		for i := range e.classes {
			if e.classes[i].State == ClassFree {
				continue
			}
			e.ReleaseIndex(StpIndex(i))
		}

		e.enableMask.Zero()
		for i := range e.portPriority {
			e.portPriority[i] = DefaultPortPriority
			e.portPathCost[i] = 0
		}

	default:
		e.log.Warn("bridge config: invalid opcode", slog.Uint64("opcode", uint64(m.Opcode)))
	}
}

// -------------------------------------------------------------------------
// VLAN configuration
// -------------------------------------------------------------------------

// applyVlanConfig creates or reconfigures a VLAN instance (Set) or
// releases it (Del).
func (e *Engine) applyVlanConfig(m *ipc.VlanConfigMsg) {
	if m.InstID >= e.maxInstances {
		e.log.Error("vlan config: invalid instance id",
			slog.Uint64("inst_id", uint64(m.InstID)),
		)
		return
	}
	if !VlanID(m.VlanID).Valid() {
		e.log.Error("vlan config: invalid vlan id",
			slog.Uint64("vlan", uint64(m.VlanID)),
		)
		return
	}

	e.log.Info("vlan config",
		slog.Uint64("opcode", uint64(m.Opcode)),
		slog.Bool("new_instance", m.NewInstance),
		slog.Uint64("vlan", uint64(m.VlanID)),
		slog.Uint64("inst_id", uint64(m.InstID)),
		slog.Int("port_count", len(m.PortList)),
	)

	switch m.Opcode {
	case ipc.OpcodeSet:
		index := StpIndex(m.InstID)

		if m.NewInstance {
			if err := e.CreateVlanInstance(index, VlanID(m.VlanID)); err != nil {
				e.log.Error("vlan config: create instance",
					slog.Uint64("vlan", uint64(m.VlanID)),
					slog.String("error", err.Error()),
				)
				return
			}

			for _, attr := range m.PortList {
				port, ok := e.ports.PortByName(attr.IntfName)
				if !ok {
					e.log.Warn("vlan config: unknown interface",
						slog.String("interface", attr.IntfName),
					)
					continue
				}
				if attr.Enabled {
					e.addControlPort(index, port, attr.Mode)
				} else {
					// Protocol not enabled on the member: leave it
					// forwarding in the plane.
					e.sink.UpdatePortState(attr.IntfName, uint16(index), PortStateForwarding.String())
				}
			}
		}

		e.applyBridgeTimers(index, m)

	case ipc.OpcodeDel:
		e.ReleaseIndex(StpIndex(m.InstID))

	default:
		e.log.Warn("vlan config: invalid opcode", slog.Uint64("opcode", uint64(m.Opcode)))
	}
}

// applyBridgeTimers applies the timer/priority block of a VLAN config.
func (e *Engine) applyBridgeTimers(index StpIndex, m *ipc.VlanConfigMsg) {
	apply := func(name string, err error) {
		if err != nil {
			e.log.Warn("vlan config: "+name+" rejected",
				slog.Uint64("vlan", uint64(m.VlanID)),
				slog.String("error", err.Error()),
			)
		}
	}

	if m.ForwardDelay != 0 {
		apply("forward delay", e.ConfigBridgeForwardDelay(index, uint16(m.ForwardDelay)))
	}
	if m.HelloTime != 0 {
		apply("hello time", e.ConfigBridgeHelloTime(index, uint16(m.HelloTime)))
	}
	if m.MaxAge != 0 {
		apply("max age", e.ConfigBridgeMaxAge(index, uint16(m.MaxAge)))
	}
	if m.Priority >= 0 && m.Priority <= int(MaxPriority) {
		apply("priority", e.ConfigBridgePriority(index, uint16(m.Priority)))
	}
}

// -------------------------------------------------------------------------
// VLAN port configuration
// -------------------------------------------------------------------------

// applyVlanPortConfig configures one port within one VLAN instance.
func (e *Engine) applyVlanPortConfig(m *ipc.VlanPortConfigMsg) {
	if m.InstID >= e.maxInstances {
		e.log.Error("vlan port config: invalid instance id",
			slog.Uint64("inst_id", uint64(m.InstID)),
		)
		return
	}

	port, ok := e.ports.PortByName(m.IntfName)
	if !ok {
		e.log.Warn("vlan port config: unknown interface",
			slog.String("interface", m.IntfName),
		)
		return
	}

	index := StpIndex(m.InstID)

	if m.Priority != -1 {
		if err := e.ConfigPortPriority(index, port, uint16(m.Priority), false); err != nil {
			e.log.Warn("vlan port config: priority rejected",
				slog.String("interface", m.IntfName),
				slog.String("error", err.Error()),
			)
		}
	}
	if m.PathCost != 0 {
		if err := e.ConfigPortPathCost(index, port, false, uint32(m.PathCost), false); err != nil {
			e.log.Warn("vlan port config: path cost rejected",
				slog.String("interface", m.IntfName),
				slog.String("error", err.Error()),
			)
		}
	}
}

// -------------------------------------------------------------------------
// Port configuration
// -------------------------------------------------------------------------

// applyPortConfig configures port-wide attributes: the global enable
// flag, guard and fast features, defaults for priority and path cost,
// and the per-instance attachments.
func (e *Engine) applyPortConfig(m *ipc.PortConfigMsg) {
	port, ok := e.ports.PortByName(m.IntfName)
	if !ok {
		e.log.Warn("port config: unknown interface",
			slog.String("interface", m.IntfName),
		)
		return
	}

	e.log.Info("port config",
		slog.Uint64("opcode", uint64(m.Opcode)),
		slog.String("interface", m.IntfName),
		slog.Bool("enabled", m.Enabled),
		slog.Bool("root_guard", m.RootGuard),
		slog.Bool("bpdu_guard", m.BpduGuard),
		slog.Bool("portfast", m.PortFast),
		slog.Bool("uplink_fast", m.UplinkFast),
		slog.Int("vlan_count", len(m.VlanList)),
	)

	e.SetGlobalEnable(port, m.Enabled)

	if m.Opcode == ipc.OpcodeSet {
		if m.Priority != -1 && m.Priority <= int(MaxPortPriority) {
			e.portPriority[port] = uint8(m.Priority)
		}
		if m.PathCost != 0 {
			e.portPathCost[port] = uint32(m.PathCost)
		}

		for _, attr := range m.VlanList {
			if attr.InstID >= e.maxInstances {
				e.log.Error("port config: invalid instance id",
					slog.Uint64("inst_id", uint64(attr.InstID)),
				)
				continue
			}
			index := StpIndex(attr.InstID)

			if m.Enabled {
				e.addControlPort(index, port, attr.Mode)

				if m.Priority != -1 {
					if err := e.ConfigPortPriority(index, port, uint16(m.Priority), true); err != nil {
						e.log.Warn("port config: priority rejected", slog.String("error", err.Error()))
					}
				}
				if m.PathCost != 0 {
					if err := e.ConfigPortPathCost(index, port, false, uint32(m.PathCost), true); err != nil {
						e.log.Warn("port config: path cost rejected", slog.String("error", err.Error()))
					}
				}
			} else {
				e.deleteControlPort(index, port, false)
			}
		}

		if m.Enabled {
			e.ConfigRootGuard(port, m.RootGuard)
			e.ConfigBpduGuard(port, m.BpduGuard, m.BpduGuardDoDisable)
			e.ConfigFastSpan(port, m.PortFast)
			e.ConfigFastUplink(port, m.UplinkFast)
		}
		return
	}

	// Delete: the interface left layer-2 scope. Restore defaults and
	// detach it everywhere.
	e.portPriority[port] = DefaultPortPriority
	e.portPathCost[port] = 0

	for i := range e.classes {
		c := &e.classes[i]
		if c.State == ClassFree || !c.ControlMask.IsSet(int32(port)) {
			continue
		}
		e.deleteControlPort(StpIndex(i), port, true)
	}

	e.ConfigRootGuard(port, false)
	e.ConfigBpduGuard(port, false, false)
	e.ConfigFastUplink(port, false)
	e.sink.DelStpPort(m.IntfName)
}

// -------------------------------------------------------------------------
// VLAN member configuration
// -------------------------------------------------------------------------

// applyVlanMemConfig attaches or detaches one port on one VLAN.
func (e *Engine) applyVlanMemConfig(m *ipc.VlanMemConfigMsg) {
	if m.InstID >= e.maxInstances {
		e.log.Error("vlan member config: invalid instance id",
			slog.Uint64("inst_id", uint64(m.InstID)),
		)
		return
	}

	port, ok := e.ports.PortByName(m.IntfName)
	if !ok {
		e.log.Warn("vlan member config: unknown interface",
			slog.String("interface", m.IntfName),
		)
		return
	}

	index := StpIndex(m.InstID)

	switch m.Opcode {
	case ipc.OpcodeSet:
		if !m.Enabled {
			// Member without the protocol: forward in the plane.
			e.sink.UpdatePortState(m.IntfName, uint16(index), PortStateForwarding.String())
			return
		}
		e.addControlPort(index, port, m.Mode)
		if m.Priority != -1 {
			if err := e.ConfigPortPriority(index, port, uint16(m.Priority), false); err != nil {
				e.log.Warn("vlan member config: priority rejected", slog.String("error", err.Error()))
			}
		}
		if m.PathCost != 0 {
			if err := e.ConfigPortPathCost(index, port, false, uint32(m.PathCost), false); err != nil {
				e.log.Warn("vlan member config: path cost rejected", slog.String("error", err.Error()))
			}
		}

	case ipc.OpcodeDel:
		e.deleteControlPort(index, port, true)

	default:
		e.log.Warn("vlan member config: invalid opcode", slog.Uint64("opcode", uint64(m.Opcode)))
	}
}

// -------------------------------------------------------------------------
// Control requests
// -------------------------------------------------------------------------

// handleCtl executes a control (stpctl) request.
func (e *Engine) handleCtl(m *ipc.CtlMsg) *ipc.CtlReply {
	switch m.CmdType {
	case ipc.CtlDumpGlobal:
		return &ipc.CtlReply{Status: ipc.StatusOK, Output: e.dumpGlobal()}

	case ipc.CtlDumpAll, ipc.CtlDumpVlanAll:
		var sb strings.Builder
		sb.WriteString(e.dumpGlobal())
		for i := range e.classes {
			if e.classes[i].State != ClassFree {
				sb.WriteString(e.dumpVlan(&e.classes[i]))
			}
		}
		return &ipc.CtlReply{Status: ipc.StatusOK, Output: sb.String()}

	case ipc.CtlDumpVlan:
		if idx, ok := e.vlanToIndex[VlanID(m.VlanID)]; ok {
			return &ipc.CtlReply{Status: ipc.StatusOK, Output: e.dumpVlan(&e.classes[idx])}
		}
		return &ipc.CtlReply{Status: ipc.StatusError, Output: fmt.Sprintf("vlan %d not configured", m.VlanID)}

	case ipc.CtlDumpIntf:
		port, ok := e.ports.PortByName(m.IntfName)
		if !ok {
			return &ipc.CtlReply{Status: ipc.StatusError, Output: "unknown interface " + m.IntfName}
		}
		return &ipc.CtlReply{Status: ipc.StatusOK, Output: e.dumpIntf(port)}

	case ipc.CtlClearAll:
		e.ClearStatistics(VlanIDInvalid, InvalidPortID)
		return &ipc.CtlReply{Status: ipc.StatusOK}

	case ipc.CtlClearVlan:
		e.ClearStatistics(VlanID(m.VlanID), InvalidPortID)
		return &ipc.CtlReply{Status: ipc.StatusOK}

	case ipc.CtlClearIntf, ipc.CtlClearVlanIntf:
		port, ok := e.ports.PortByName(m.IntfName)
		if !ok {
			return &ipc.CtlReply{Status: ipc.StatusError, Output: "unknown interface " + m.IntfName}
		}
		vlan := VlanIDInvalid
		if m.CmdType == ipc.CtlClearVlanIntf {
			vlan = VlanID(m.VlanID)
		}
		e.ClearStatistics(vlan, port)
		return &ipc.CtlReply{Status: ipc.StatusOK}

	case ipc.CtlSetDebug:
		e.applyDebugOpt(&m.Dbg)
		return &ipc.CtlReply{Status: ipc.StatusOK, Output: e.dumpDebug()}

	default:
		return &ipc.CtlReply{Status: ipc.StatusError, Output: "unsupported control command"}
	}
}

// applyDebugOpt folds the optional toggles into the debug vector.
func (e *Engine) applyDebugOpt(opt *ipc.DebugOpt) {
	d := &e.debug
	if opt.Enabled != nil {
		d.Enabled = *opt.Enabled
	}
	if opt.Verbose != nil {
		d.Verbose = *opt.Verbose
	}
	if opt.BpduRx != nil {
		d.BpduRx = *opt.BpduRx
	}
	if opt.BpduTx != nil {
		d.BpduTx = *opt.BpduTx
	}
	if opt.Event != nil {
		d.Event = *opt.Event
	}
	if opt.AllPorts != nil {
		d.AllPorts = *opt.AllPorts
		if *opt.AllPorts {
			d.PortMask.Zero()
		}
	}
	if opt.AllVlans != nil {
		d.AllVlans = *opt.AllVlans
		if *opt.AllVlans {
			d.VlanMask.Zero()
		}
	}
	for _, name := range opt.Ports {
		if port, ok := e.ports.PortByName(name); ok {
			d.AllPorts = false
			d.PortMask.Set(int32(port))
		}
	}
	for _, vlan := range opt.Vlans {
		d.AllVlans = false
		d.VlanMask.Set(int32(vlan))
	}
}

// -------------------------------------------------------------------------
// Dumps
// -------------------------------------------------------------------------

// dumpGlobal renders the engine-wide state.
func (e *Engine) dumpGlobal() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "STP global\n")
	fmt.Fprintf(&sb, "  enabled            : %t\n", e.enabled)
	fmt.Fprintf(&sb, "  mode               : %d\n", e.protoMode)
	fmt.Fprintf(&sb, "  max instances      : %d\n", e.maxInstances)
	fmt.Fprintf(&sb, "  active instances   : %d\n", e.activeInstances)
	fmt.Fprintf(&sb, "  extend mode        : %t\n", e.extendMode)
	fmt.Fprintf(&sb, "  base mac           : %s\n", e.baseMac)
	fmt.Fprintf(&sb, "  root guard timeout : %d\n", e.rootProtectTimeout)
	fmt.Fprintf(&sb, "  drops stp/tcn/pvst : %d/%d/%d\n",
		e.stpDropCount, e.tcnDropCount, e.pvstDropCount)
	fmt.Fprintf(&sb, "  enable mask        : %s\n", e.enableMask)
	fmt.Fprintf(&sb, "  portfast mask      : %s\n", e.fastspanMask)
	fmt.Fprintf(&sb, "  root guard mask    : %s\n", e.rootProtectMask)
	fmt.Fprintf(&sb, "  bpdu guard mask    : %s\n", e.protectMask)
	return sb.String()
}

// dumpVlan renders one instance.
func (e *Engine) dumpVlan(c *Class) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "VLAN %d (instance %d, %s)\n", c.VlanID, e.classIndex(c), c.State)
	fmt.Fprintf(&sb, "  bridge id      : %s\n", c.Bridge.BridgeID)
	fmt.Fprintf(&sb, "  root id        : %s\n", c.Bridge.RootID)
	fmt.Fprintf(&sb, "  root path cost : %d\n", c.Bridge.RootPathCost)
	if c.Bridge.RootPort == InvalidPortID {
		fmt.Fprintf(&sb, "  root port      : Root\n")
	} else {
		fmt.Fprintf(&sb, "  root port      : %s\n", e.portName(c.Bridge.RootPort))
	}
	fmt.Fprintf(&sb, "  times          : max_age %d hello %d fwd_delay %d\n",
		c.Bridge.MaxAge, c.Bridge.HelloTime, c.Bridge.ForwardDelay)
	fmt.Fprintf(&sb, "  topo changes   : %d (tc %t, detected %t)\n",
		c.Bridge.TopologyChangeCount, c.Bridge.TopologyChange, c.Bridge.TopologyChangeDetected)

	for port := c.ControlMask.FirstSet(); port != bitmapInvalid; port = c.ControlMask.NextSet(port) {
		p := c.Port(PortID(port))
		if p == nil {
			continue
		}
		fmt.Fprintf(&sb, "  port %-12s state %-10s cost %-9d desig_bridge %s rx/tx cfg %d/%d tcn %d/%d\n",
			e.portName(PortID(port)), p.State, p.PathCost, p.DesignatedBridge,
			p.RxConfigBpdu, p.TxConfigBpdu, p.RxTcnBpdu, p.TxTcnBpdu)
	}
	return sb.String()
}

// dumpIntf renders one port across all instances.
func (e *Engine) dumpIntf(port PortID) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Interface %s (port %d)\n", e.portName(port), port)
	fmt.Fprintf(&sb, "  portfast   : admin %t oper %t\n",
		e.fastspanAdminMask.IsSet(int32(port)), e.fastspanMask.IsSet(int32(port)))
	fmt.Fprintf(&sb, "  uplinkfast : %t\n", e.fastuplinkAdminMask.IsSet(int32(port)))
	fmt.Fprintf(&sb, "  root guard : %t\n", e.rootProtectMask.IsSet(int32(port)))
	fmt.Fprintf(&sb, "  bpdu guard : %t (do-disable %t, tripped %t)\n",
		e.protectMask.IsSet(int32(port)),
		e.protectDoDisableMask.IsSet(int32(port)),
		e.protectDisabledMask.IsSet(int32(port)))

	for i := range e.classes {
		c := &e.classes[i]
		if c.State == ClassFree || !c.ControlMask.IsSet(int32(port)) {
			continue
		}
		p := c.Port(port)
		if p == nil {
			continue
		}
		fmt.Fprintf(&sb, "  vlan %-4d state %-10s role designated_port %t root_port %t\n",
			c.VlanID, p.State, designatedPort(c, port), c.Bridge.RootPort == port)
	}
	return sb.String()
}

// dumpDebug renders the debug vector.
func (e *Engine) dumpDebug() string {
	d := &e.debug
	return fmt.Sprintf(
		"debug: enabled %t verbose %t bpdu_rx %t bpdu_tx %t event %t all_ports %t all_vlans %t",
		d.Enabled, d.Verbose, d.BpduRx, d.BpduTx, d.Event, d.AllPorts, d.AllVlans)
}
