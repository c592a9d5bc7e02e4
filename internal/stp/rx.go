package stp

import (
	"log/slog"
)

// BPDU ingress: classification by destination group address, BPDU Guard,
// frame validation, instance lookup, and dispatch into the 802.1D
// receive procedures.

// ProcessRxBpdu is the entry point for a received BPDU frame. vlan is
// the VLAN the transport resolved from the frame's tag, or VLAN 1 for
// an untagged frame. The frame starts at the destination MAC.
func (e *Engine) ProcessRxBpdu(vlan VlanID, port PortID, frame []byte) {
	if !vlan.Valid() {
		if e.debug.MatchRx(vlan, port) {
			e.log.Debug("rx: invalid vlan",
				slog.Uint64("vlan", uint64(vlan)),
				slog.String("port", e.portName(port)),
			)
		}
		return
	}

	if IsStpDestination(frame) {
		e.rxStpBpdu(vlan, port, frame)
	} else {
		e.rxPvstBpdu(vlan, port, frame)
	}
}

// bpduGuardProcess enforces BPDU Guard on the receive port. It returns
// true when the frame must not be processed: either the port was shut
// down (do-disable) or the frame is silently dropped.
func (e *Engine) bpduGuardProcess(port PortID, vlan VlanID) bool {
	if !e.protectMask.IsSet(int32(port)) {
		return false
	}

	if e.protectDoDisableMask.IsSet(int32(port)) && !e.protectDisabledMask.IsSet(int32(port)) {
		e.protectDisabledMask.Set(int32(port))
		name := e.ports.Name(port)
		e.log.Warn("STP: BPDU Guard interface "+name+" shut down (Received BPDU)",
			slog.String("interface", name),
			slog.Uint64("vlan", uint64(vlan)),
		)
		e.sink.UpdatePortAdminState(name, false, false)
		e.sink.UpdateBpduGuardShutdown(name, true)
	}

	e.metrics.IncGuardTrip(metricGuardBpdu)
	return true
}

// rxStpBpdu handles frames addressed to the IEEE bridge group address.
// Untagged classic BPDUs, and classic BPDUs tagged with a VLAN the port
// carries untagged, are processed against the VLAN 1 instance; the
// port's untagged VLAN does not select the instance.
func (e *Engine) rxStpBpdu(vlan VlanID, port PortID, frame []byte) {
	if e.bpduGuardProcess(port, vlan) {
		return
	}

	var bpdu ConfigBpdu
	if err := DecodeStpBpdu(frame, &bpdu); err != nil {
		if e.debug.MatchRx(vlan, port) {
			e.log.Debug("rx: invalid stp bpdu",
				slog.Uint64("vlan", uint64(vlan)),
				slog.String("port", e.portName(port)),
				slog.String("error", err.Error()),
			)
		}
		e.stpDropCount++
		e.metrics.IncBpduDrop(metricDropStp)
		return
	}

	index := StpIndexInvalid
	if e.isPortUntagged(vlan, port) {
		vlan = 1
	}
	if e.protocolEnabled() {
		if idx, ok := e.vlanToIndex[vlan]; ok {
			index = idx
		}
	}

	if index == StpIndexInvalid {
		if bpdu.ProtocolVersion == StpVersionID {
			switch bpdu.Type {
			case TcnBpduType:
				e.tcnDropCount++
				e.metrics.IncBpduDrop(metricDropTcn)
			case ConfigBpduType:
				e.stpDropCount++
				e.metrics.IncBpduDrop(metricDropStp)
			}
		}
		if e.debug.MatchRx(vlan, port) {
			e.log.Debug("rx: stp not configured",
				slog.Uint64("vlan", uint64(vlan)),
				slog.String("port", e.portName(port)),
			)
		}
		return
	}

	if bpdu.Stale() {
		e.log.Info("rx: stale bpdu",
			slog.Uint64("message_age", uint64(bpdu.MessageAge)),
			slog.Uint64("max_age", uint64(bpdu.MaxAge)),
			slog.Uint64("vlan", uint64(vlan)),
			slog.String("port", e.portName(port)),
		)
		return
	}

	e.processBpdu(index, port, &bpdu)
}

// rxPvstBpdu handles frames addressed to the PVST+ group address. The
// VLAN of record comes from the trailing TLV. PVST BPDUs for VLAN 1 on
// an untagged port are dropped: the untagged IEEE BPDU is authoritative
// there.
func (e *Engine) rxPvstBpdu(vlan VlanID, port PortID, frame []byte) {
	if e.bpduGuardProcess(port, vlan) {
		if e.debug.MatchRx(vlan, port) {
			e.log.Debug("rx: pvst bpdu dropped by bpdu guard",
				slog.Uint64("vlan", uint64(vlan)),
				slog.String("port", e.portName(port)),
			)
		}
		e.pvstDropCount++
		e.metrics.IncBpduDrop(metricDropPvst)
		return
	}

	var bpdu ConfigBpdu
	tlvVlan, err := DecodePvstBpdu(frame, &bpdu)
	if err != nil {
		if e.debug.MatchRx(vlan, port) {
			e.log.Debug("rx: invalid pvst bpdu",
				slog.Uint64("vlan", uint64(vlan)),
				slog.String("port", e.portName(port)),
				slog.String("error", err.Error()),
			)
		}
		e.pvstDropCount++
		e.metrics.IncBpduDrop(metricDropPvst)
		return
	}
	if bpdu.Type != TcnBpduType {
		vlan = tlvVlan
	}

	if vlan == 1 && e.isPortUntagged(vlan, port) {
		if e.debug.MatchRx(vlan, port) {
			e.log.Debug("rx: dropping pvst bpdu for untagged vlan 1",
				slog.String("port", e.portName(port)),
			)
		}
		e.pvstDropCount++
		e.metrics.IncBpduDrop(metricDropPvst)
		return
	}

	index, ok := e.vlanToIndex[vlan]
	if !ok {
		e.pvstDropCount++
		e.metrics.IncBpduDrop(metricDropPvst)
		if e.debug.MatchRx(vlan, port) {
			e.log.Debug("rx: pvst not configured",
				slog.Uint64("vlan", uint64(vlan)),
				slog.String("port", e.portName(port)),
			)
		}
		return
	}

	if bpdu.Stale() {
		e.log.Info("rx: stale pvst bpdu",
			slog.Uint64("message_age", uint64(bpdu.MessageAge)),
			slog.Uint64("max_age", uint64(bpdu.MaxAge)),
			slog.Uint64("vlan", uint64(vlan)),
			slog.String("port", e.portName(port)),
		)
		e.pvstDropCount++
		e.metrics.IncBpduDrop(metricDropPvst)
		return
	}

	e.processBpdu(index, port, &bpdu)
}

// processBpdu runs the per-instance ingress steps shared by both
// encapsulations: PortFast demotion, Root Guard, delay accounting, then
// the 802.1D receive procedure.
func (e *Engine) processBpdu(index StpIndex, port PortID, bpdu *ConfigBpdu) {
	c := e.Class(index)
	if c == nil || c.State != ClassActive {
		return
	}
	if !c.EnableMask.IsSet(int32(port)) {
		c.RxDropBpdu++
		return
	}

	// Any valid BPDU proves the segment is not an edge: clear the
	// operational PortFast flag.
	if e.fastspanMask.IsSet(int32(port)) {
		e.fastspanMask.Clear(int32(port))
		e.sink.UpdatePortFast(e.ports.Name(port), false)
	}

	if e.rootProtectMask.IsSet(int32(port)) {
		if !e.rootProtectValidate(c, port, bpdu) {
			c.RxDropBpdu++
			return
		}
	}

	// Reception delay accounting: a gap beyond hello time + 1 between
	// BPDUs on an active instance is worth a log line.
	last := c.LastBpduRxTime
	now := e.seconds
	c.LastBpduRxTime = now
	if last != 0 && now > last && now-last > uint32(c.Bridge.HelloTime)+1 {
		if p := c.Port(port); p != nil {
			p.RxDelayedBpdu++
		}
		e.log.Info("rx delay event",
			slog.Uint64("vlan", uint64(c.VlanID)),
			slog.String("port", e.portName(port)),
			slog.Uint64("gap_seconds", uint64(now-last)),
		)
	}

	p := c.Port(port)

	if bpdu.Type == TcnBpduType {
		if p != nil {
			p.RxTcnBpdu++
			p.setModified(portModTcReceived)
		}
		e.metrics.IncBpduRx(metricKindTcn)
		e.receivedTcnBpdu(c, port)
		return
	}

	if p != nil {
		p.RxConfigBpdu++
		p.setModified(portModBpduReceived)
	}
	e.metrics.IncBpduRx(metricKindConfig)
	e.receivedConfigBpdu(c, port, bpdu)
}

// -------------------------------------------------------------------------
// Link events
// -------------------------------------------------------------------------

// PortEvent applies an operational up/down transition to every instance
// that controls the port. Down restores the administrative PortFast
// state; up clears a BPDU-guard shutdown latch. Auto-configured path
// costs are refreshed from the (possibly renegotiated) link speed.
func (e *Engine) PortEvent(port PortID, up bool) {
	e.log.Info("interface event",
		slog.String("port", e.portName(port)),
		slog.Bool("up", up),
	)

	if !up {
		e.enableMask.Clear(int32(port))
		if !e.fastspanMask.IsSet(int32(port)) && e.fastspanAdminMask.IsSet(int32(port)) {
			e.fastspanMask.Set(int32(port))
			e.sink.UpdatePortFast(e.ports.Name(port), true)
		}
	} else {
		if e.enableAdminMask.IsSet(int32(port)) {
			e.enableMask.Set(int32(port))
		}
		if e.protectDisabledMask.IsSet(int32(port)) {
			e.protectDisabledMask.Clear(int32(port))
			e.sink.UpdateBpduGuardShutdown(e.ports.Name(port), false)
		}
	}

	if e.activeInstances == 0 {
		return
	}

	pathCost := e.defaultPathCost(port)
	for i := range e.classes {
		c := &e.classes[i]
		if c.State == ClassFree || !c.ControlMask.IsSet(int32(port)) {
			continue
		}

		p := c.Port(port)
		if p == nil {
			continue
		}
		if p.AutoConfig {
			p.PathCost = pathCost
		}

		if up {
			e.addEnablePort(StpIndex(i), port)
		} else {
			e.removeEnablePort(StpIndex(i), port)
		}
		p.setModified(allBits)
	}
}
