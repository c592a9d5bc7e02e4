package stp

import (
	"log/slog"
)

// BPDU transmission: template fill and fan-out. In PVST mode every
// instance sends SNAP-encapsulated BPDUs tagged per the untag mask; for
// VLAN 1 an untagged classic IEEE BPDU is additionally sent so that
// mono-spanning-tree neighbours interoperate.

// sendBpdu transmits the given BPDU type for the instance on port.
// When the configured mode is none the template's version octet is 2,
// which suppresses the PVST encapsulation and falls back to the classic
// untagged BPDU.
func (e *Engine) sendBpdu(c *Class, port PortID, kind BpduType) {
	if e.protocolEnabled() && e.configTemplate.ProtocolVersion != RstpVersionID {
		e.sendPvstBpdu(c, port, kind)
		return
	}
	e.sendStpBpdu(c, port, kind)
}

// sendStpBpdu transmits a classic untagged IEEE BPDU. Ports without an
// untagged VLAN are strictly tagged and cannot carry it.
func (e *Engine) sendStpBpdu(c *Class, port PortID, kind BpduType) {
	p := c.Port(port)
	if p == nil {
		return
	}

	vlan := e.untagVlan(port)
	if vlan == VlanIDInvalid {
		return
	}

	srcMac := e.ports.Mac(port)

	var n int
	if kind == ConfigBpduType {
		n = EncodeStpConfig(e.txBuf[:], srcMac, &e.configTemplate)
		p.TxConfigBpdu++
		e.metrics.IncBpduTx(metricKindConfig)
	} else {
		n = EncodeStpTcn(e.txBuf[:], srcMac)
		p.TxTcnBpdu++
		e.metrics.IncBpduTx(metricKindTcn)
	}

	if e.debug.MatchTx(c.VlanID, port) {
		e.log.Debug("tx stp bpdu",
			slog.String("type", bpduKindName(kind)),
			slog.Uint64("vlan", uint64(vlan)),
			slog.String("port", e.portName(port)),
		)
	}

	if err := e.tx.Send(port, vlan, e.txBuf[:n], false); err != nil {
		e.log.Error("send stp bpdu failed",
			slog.Uint64("vlan", uint64(vlan)),
			slog.String("port", e.portName(port)),
			slog.String("error", err.Error()),
		)
	}
}

// sendPvstBpdu transmits a PVST+ BPDU, tagged unless the port carries
// the VLAN untagged. For VLAN 1 the classic untagged IEEE BPDU follows.
func (e *Engine) sendPvstBpdu(c *Class, port PortID, kind BpduType) {
	p := c.Port(port)
	if p == nil {
		return
	}

	srcMac := e.ports.Mac(port)

	var n int
	if kind == ConfigBpduType {
		n = EncodePvstConfig(e.txBuf[:], srcMac, &e.configTemplate, c.VlanID)
		p.TxConfigBpdu++
		e.metrics.IncBpduTx(metricKindConfig)
	} else {
		n = EncodePvstTcn(e.txBuf[:], srcMac)
		p.TxTcnBpdu++
		e.metrics.IncBpduTx(metricKindTcn)
	}

	untagged := c.UntagMask.IsSet(int32(port))

	if e.debug.MatchTx(c.VlanID, port) {
		e.log.Debug("tx pvst bpdu",
			slog.String("type", bpduKindName(kind)),
			slog.Uint64("vlan", uint64(c.VlanID)),
			slog.String("port", e.portName(port)),
			slog.Bool("tagged", !untagged),
		)
	}

	if err := e.tx.Send(port, c.VlanID, e.txBuf[:n], !untagged); err != nil {
		e.log.Error("send pvst bpdu failed",
			slog.Uint64("vlan", uint64(c.VlanID)),
			slog.String("port", e.portName(port)),
			slog.String("error", err.Error()),
		)
	}

	// PVST+ compatibility: VLAN 1 also carries the untagged IEEE BPDU.
	if c.VlanID == 1 {
		e.sendStpBpdu(c, port, kind)
	}
}

// bpduKindName names a BPDU type for log attributes.
func bpduKindName(kind BpduType) string {
	if kind == TcnBpduType {
		return "tcn"
	}
	return "config"
}

// untagVlan returns the VLAN the port carries untagged, or
// VlanIDInvalid when the port is strictly tagged.
func (e *Engine) untagVlan(port PortID) VlanID {
	for i := range e.classes {
		c := &e.classes[i]
		if c.State != ClassFree && c.UntagMask.IsSet(int32(port)) {
			return c.VlanID
		}
	}
	return VlanIDInvalid
}

// isPortUntagged reports whether the port carries vlan untagged.
func (e *Engine) isPortUntagged(vlan VlanID, port PortID) bool {
	if idx, ok := e.vlanToIndex[vlan]; ok {
		return e.classes[idx].UntagMask.IsSet(int32(port))
	}
	return false
}

// defaultPathCost derives the port's path cost from its link speed and
// the extend-mode table.
func (e *Engine) defaultPathCost(port PortID) uint32 {
	cost := PathCostForSpeed(e.ports.SpeedMbps(port), e.extendMode)
	if cost == 0 {
		e.log.Error("zero path cost",
			slog.String("port", e.portName(port)),
			slog.Uint64("speed_mbps", uint64(e.ports.SpeedMbps(port))),
		)
	}
	return cost
}
