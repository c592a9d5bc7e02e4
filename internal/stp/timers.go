package stp

import (
	"log/slog"
)

// This file drives protocol time. The dispatch loop calls Tick every
// 100 ms; instances are divided into five groups with one group serviced
// per call, so every instance runs its timers each 500 ms (the 802.1D
// half-second tick). Counter publication runs on a separate one-second
// cadence spread over ten groups.

// Tick services one instance group and the publication cadence. It is
// the only place protocol timers advance.
func (e *Engine) Tick() {
	if e.activeInstances > 0 {
		for i := int(e.tickID); i < int(e.maxInstances); i += 5 {
			c := &e.classes[i]

			if c.State == ClassActive {
				e.updateTimers(c)
			}
			if c.State == ClassActive || c.State == ClassConfig {
				e.syncClass(c)
			}
		}

		if e.bpduSyncTickID%10 == 0 {
			start := int(e.bpduSyncTickID / 10)
			for i := start; i < int(e.maxInstances); i += 10 {
				c := &e.classes[i]
				if c.State == ClassActive {
					e.syncBpduCounters(c)
				}
			}
		}
	}

	e.bpduSyncTickID++
	if e.bpduSyncTickID >= 100 {
		e.bpduSyncTickID = 0
	}

	e.tickID++
	if e.tickID >= 5 {
		e.tickID = 0
	}

	// The engine clock advances once per second (ten 100 ms ticks).
	e.tickCount++
	if e.tickCount >= 10 {
		e.tickCount = 0
		e.seconds++
	}
}

// updateTimers advances every instance and port timer once and runs the
// expiry actions. The operative forward delay is chosen per port:
// PortFast ports use the fast-span delay, UplinkFast ports transition in
// one second when no other uplink is active, everything else uses the
// bridge forward delay.
func (e *Engine) updateTimers(c *Class) {
	if c.HelloTimer.expiredSeconds(uint32(c.Bridge.HelloTime)) {
		e.helloTimerExpiry(c)
	}

	if c.TopologyChangeTimer.expiredSeconds(uint32(c.Bridge.TopologyChangeTime)) {
		e.topologyChangeTimerExpiry(c)
	}

	if c.TcnTimer.expiredSeconds(uint32(c.Bridge.HelloTime)) {
		e.tcnTimerExpiry(c)
	}

	for port := c.EnableMask.FirstSet(); port != bitmapInvalid; port = c.EnableMask.NextSet(port) {
		p := c.Port(PortID(port))
		if p == nil {
			continue
		}

		var forwardDelay uint32
		switch {
		case e.fastspanMask.IsSet(port):
			forwardDelay = uint32(FastSpanForwardDelay)
		case e.fastUplinkOK(c, PortID(port)):
			if p.State == PortStateListening {
				forwardDelay = uint32(FastUplinkForwardDelay)
			} else {
				forwardDelay = 0
			}
		default:
			forwardDelay = uint32(c.Bridge.ForwardDelay)
		}

		if p.ForwardDelayTimer.expiredSeconds(forwardDelay) {
			e.forwardingDelayTimerExpiry(c, PortID(port))
		}

		if p.MessageAgeTimer.expiredSeconds(uint32(c.Bridge.MaxAge)) {
			e.messageAgeTimerExpiry(c, PortID(port))
			e.log.Info("message age expiry",
				slog.Uint64("vlan", uint64(c.VlanID)),
				slog.String("port", e.portName(PortID(port))),
			)
			c.Bridge.setModified(allBits)
			c.ModifiedFields |= classModAll
		}

		if p.HoldTimer.expiredSeconds(uint32(c.Bridge.HoldTime)) {
			e.holdTimerExpiry(c, PortID(port))
		}

		if p.RootProtectTimer.expiredSeconds(uint32(e.rootProtectTimeout)) ||
			(p.RootProtectTimer.Active() && !e.rootProtectMask.IsSet(port)) {
			p.RootProtectTimer.Stop()
			e.rootProtectTimerExpired(c, PortID(port))
		}
	}

	e.updateFastAging(c)
}

// fastUplinkOK reports whether the UplinkFast short delay applies to
// input: the port must be configured for UplinkFast and no other
// UplinkFast port of the instance may be active (non-Blocking,
// non-Disabled).
func (e *Engine) fastUplinkOK(c *Class, input PortID) bool {
	if !e.fastuplinkAdminMask.IsSet(int32(input)) {
		return false
	}

	for port := c.EnableMask.FirstSet(); port != bitmapInvalid; port = c.EnableMask.NextSet(port) {
		if PortID(port) == input || !e.fastuplinkAdminMask.IsSet(port) {
			continue
		}
		p := c.Port(PortID(port))
		if p != nil && p.State != PortStateBlocking && p.State != PortStateDisabled {
			return false
		}
	}
	return true
}

// updateFastAging keeps the fast-aging shadow aligned with the topology
// change flag, publishing only edges.
func (e *Engine) updateFastAging(c *Class) {
	topoChange := c.Bridge.TopologyChange
	if c.FastAging == topoChange {
		return
	}
	c.FastAging = topoChange
	e.sink.UpdateFastAge(uint16(c.VlanID), topoChange)
}
