// Package dbsync publishes computed spanning tree state to external
// consumers: per-VLAN bridge records, per-port records, raw port states
// for the forwarding plane, and the auxiliary guard/fast-age signals.
//
// Records carry only the fields that changed since the previous flush;
// sentinel values (see the field comments) mark unchanged fields.
package dbsync

// BpduDisabledState is the display state of a port shut down by BPDU
// guard, alongside the regular enumerated port states and "ROOT-INC".
const BpduDisabledState = "BPDU-DIS"

// Sentinel values marking "field unchanged" in partial records.
const (
	// UnsetU16 marks an unchanged uint16 field.
	UnsetU16 uint16 = 0xFFFF

	// UnsetU32 marks an unchanged uint32 field.
	UnsetU32 uint32 = 0xFFFFFFFF

	// UnsetI16 marks an unchanged priority field.
	UnsetI16 int16 = -1

	// UnsetI32 marks an unchanged timer field.
	UnsetI32 int32 = -1
)

// VlanTable is the published per-VLAN bridge record.
type VlanTable struct {
	VlanID uint16 `json:"vlan_id"`

	// BridgeID is this bridge's identifier, 16 hex characters
	// (priority word then MAC).
	BridgeID string `json:"bridge_id,omitempty"`

	// Administered bridge timer values (seconds).
	MaxAge       uint8 `json:"max_age,omitempty"`
	HelloTime    uint8 `json:"hello_time,omitempty"`
	ForwardDelay uint8 `json:"forward_delay,omitempty"`
	HoldTime     uint8 `json:"hold_time,omitempty"`

	// TopologyChangeTime is seconds since the last topology change.
	TopologyChangeTime  uint32 `json:"topology_change_time,omitempty"`
	TopologyChangeCount uint32 `json:"topology_change_count,omitempty"`

	RootBridgeID string `json:"root_bridge_id,omitempty"`
	RootPathCost uint32 `json:"root_path_cost"`

	DesigBridgeID string `json:"desig_bridge_id,omitempty"`

	// RootPort is the interface name, or "Root" on the root bridge.
	RootPort string `json:"root_port,omitempty"`

	// Operational timer values learned from the root (seconds).
	RootMaxAge       uint8 `json:"root_max_age,omitempty"`
	RootHelloTime    uint8 `json:"root_hello_time,omitempty"`
	RootForwardDelay uint8 `json:"root_forward_delay,omitempty"`

	StpInstance uint16 `json:"stp_instance"`
}

// VlanPortTable is the published per-port per-VLAN record.
type VlanPortTable struct {
	IfName string `json:"if_name"`
	VlanID uint16 `json:"vlan_id"`

	// PortID is UnsetU16 when unchanged.
	PortID uint16 `json:"port_id"`

	// PortPriority is UnsetI16 when unchanged.
	PortPriority int16 `json:"port_priority"`

	// PathCost is UnsetU32 when unchanged.
	PathCost uint32 `json:"path_cost"`

	// PortState is empty when unchanged. Values are the enumerated
	// state names plus "ROOT-INC" while root guard holds the port and
	// "BPDU-DIS" when BPDU guard disabled it.
	PortState string `json:"port_state,omitempty"`

	// DesignatedCost is UnsetU32 when unchanged.
	DesignatedCost   uint32 `json:"designated_cost"`
	DesignatedRoot   string `json:"designated_root,omitempty"`
	DesignatedBridge string `json:"designated_bridge,omitempty"`
	DesignatedPort   uint16 `json:"designated_port,omitempty"`

	ForwardTransitions uint32 `json:"forward_transitions,omitempty"`
	TxConfigBpdu       uint32 `json:"tx_config_bpdu,omitempty"`
	RxConfigBpdu       uint32 `json:"rx_config_bpdu,omitempty"`
	TxTcnBpdu          uint32 `json:"tx_tcn_bpdu,omitempty"`
	RxTcnBpdu          uint32 `json:"rx_tcn_bpdu,omitempty"`

	// RootProtectTimer is the remaining guard seconds, or UnsetI32 when
	// unchanged.
	RootProtectTimer int32 `json:"root_protect_timer"`

	ClearStats bool `json:"clear_stats,omitempty"`
}

// Sink receives state publications from the protocol engine. All calls
// originate from the single-threaded dispatch loop; implementations may
// hand work off but must not block.
type Sink interface {
	// AddVlanToInstance and DelVlanFromInstance maintain the VLAN to
	// instance mapping consumed by the forwarding plane.
	AddVlanToInstance(vlan uint16, instance uint16)
	DelVlanFromInstance(vlan uint16, instance uint16)

	// UpdateStpClass publishes changed per-VLAN bridge fields.
	UpdateStpClass(rec *VlanTable)
	DelStpClass(vlan uint16)

	// UpdatePortClass publishes changed per-port per-VLAN fields.
	UpdatePortClass(rec *VlanPortTable)
	DelPortClass(ifName string, vlan uint16)

	// UpdatePortState pushes the raw forwarding-plane port state for an
	// instance.
	UpdatePortState(ifName string, instance uint16, state string)
	DelPortState(ifName string, instance uint16)

	// UpdateFastAge toggles fast MAC aging on a VLAN while a topology
	// change is in effect.
	UpdateFastAge(vlan uint16, enable bool)

	// UpdatePortAdminState posts an administrative up/down for a port
	// (BPDU guard shutdown path).
	UpdatePortAdminState(ifName string, up bool, physical bool)

	// UpdateBpduGuardShutdown flags a port as disabled by BPDU guard.
	UpdateBpduGuardShutdown(ifName string, shutdown bool)

	// UpdatePortFast publishes the operational PortFast flag.
	UpdatePortFast(ifName string, enabled bool)

	// DelStpPort removes every record for a port.
	DelStpPort(ifName string)

	// ClearTables wipes all published state. Called once at startup.
	ClearTables()
}

// Nop is a Sink that discards every publication.
type Nop struct{}

func (Nop) AddVlanToInstance(uint16, uint16)          {}
func (Nop) DelVlanFromInstance(uint16, uint16)        {}
func (Nop) UpdateStpClass(*VlanTable)                 {}
func (Nop) DelStpClass(uint16)                        {}
func (Nop) UpdatePortClass(*VlanPortTable)            {}
func (Nop) DelPortClass(string, uint16)               {}
func (Nop) UpdatePortState(string, uint16, string)    {}
func (Nop) DelPortState(string, uint16)               {}
func (Nop) UpdateFastAge(uint16, bool)                {}
func (Nop) UpdatePortAdminState(string, bool, bool)   {}
func (Nop) UpdateBpduGuardShutdown(string, bool)      {}
func (Nop) UpdatePortFast(string, bool)               {}
func (Nop) DelStpPort(string)                         {}
func (Nop) ClearTables()                              {}

// Tee fans every publication out to multiple sinks in order.
type Tee []Sink

func (t Tee) AddVlanToInstance(v, i uint16) {
	for _, s := range t {
		s.AddVlanToInstance(v, i)
	}
}

func (t Tee) DelVlanFromInstance(v, i uint16) {
	for _, s := range t {
		s.DelVlanFromInstance(v, i)
	}
}

func (t Tee) UpdateStpClass(rec *VlanTable) {
	for _, s := range t {
		s.UpdateStpClass(rec)
	}
}

func (t Tee) DelStpClass(v uint16) {
	for _, s := range t {
		s.DelStpClass(v)
	}
}

func (t Tee) UpdatePortClass(rec *VlanPortTable) {
	for _, s := range t {
		s.UpdatePortClass(rec)
	}
}

func (t Tee) DelPortClass(name string, v uint16) {
	for _, s := range t {
		s.DelPortClass(name, v)
	}
}

func (t Tee) UpdatePortState(name string, inst uint16, state string) {
	for _, s := range t {
		s.UpdatePortState(name, inst, state)
	}
}

func (t Tee) DelPortState(name string, inst uint16) {
	for _, s := range t {
		s.DelPortState(name, inst)
	}
}

func (t Tee) UpdateFastAge(v uint16, enable bool) {
	for _, s := range t {
		s.UpdateFastAge(v, enable)
	}
}

func (t Tee) UpdatePortAdminState(name string, up, physical bool) {
	for _, s := range t {
		s.UpdatePortAdminState(name, up, physical)
	}
}

func (t Tee) UpdateBpduGuardShutdown(name string, shutdown bool) {
	for _, s := range t {
		s.UpdateBpduGuardShutdown(name, shutdown)
	}
}

func (t Tee) UpdatePortFast(name string, enabled bool) {
	for _, s := range t {
		s.UpdatePortFast(name, enabled)
	}
}

func (t Tee) DelStpPort(name string) {
	for _, s := range t {
		s.DelStpPort(name)
	}
}

func (t Tee) ClearTables() {
	for _, s := range t {
		s.ClearTables()
	}
}
