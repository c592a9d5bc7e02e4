package dbsync

import (
	"log/slog"

	events "github.com/docker/go-events"
)

// -------------------------------------------------------------------------
// Broadcaster — go-events fan-out of state publications
// -------------------------------------------------------------------------

// Event is the envelope broadcast for every publication. Op names the
// sink method, Record carries the method-specific payload.
type Event struct {
	Op     string `json:"op"`
	Record any    `json:"record,omitempty"`
}

// Operation names carried in Event.Op.
const (
	OpAddVlanToInstance   = "add_vlan_to_instance"
	OpDelVlanFromInstance = "del_vlan_from_instance"
	OpUpdateStpClass      = "update_stp_class"
	OpDelStpClass         = "del_stp_class"
	OpUpdatePortClass     = "update_port_class"
	OpDelPortClass        = "del_port_class"
	OpUpdatePortState     = "update_port_state"
	OpDelPortState        = "del_port_state"
	OpUpdateFastAge       = "update_fast_age"
	OpUpdatePortAdmin     = "update_port_admin_state"
	OpUpdateBpduGuard     = "update_bpdu_guard_shutdown"
	OpUpdatePortFast      = "update_port_fast"
	OpDelStpPort          = "del_stp_port"
	OpClearTables         = "clear_tables"
)

// VlanInstance is the payload of instance membership events.
type VlanInstance struct {
	VlanID   uint16 `json:"vlan_id"`
	Instance uint16 `json:"instance"`
}

// PortStateRecord is the payload of raw port state events.
type PortStateRecord struct {
	IfName   string `json:"if_name"`
	Instance uint16 `json:"instance"`
	State    string `json:"state,omitempty"`
}

// FlagRecord is the payload of boolean per-port or per-VLAN events.
type FlagRecord struct {
	IfName string `json:"if_name,omitempty"`
	VlanID uint16 `json:"vlan_id,omitempty"`
	Value  bool   `json:"value"`
}

// AdminStateRecord is the payload of port admin state events.
type AdminStateRecord struct {
	IfName   string `json:"if_name"`
	Up       bool   `json:"up"`
	Physical bool   `json:"physical"`
}

// Broadcaster adapts the Sink interface onto a go-events broadcaster so
// arbitrary observers (the store, logging taps, tests) can subscribe to
// the publication stream.
type Broadcaster struct {
	bc  *events.Broadcaster
	log *slog.Logger
}

// NewBroadcaster creates an empty Broadcaster. Observers attach with Add.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		bc:  events.NewBroadcaster(),
		log: logger,
	}
}

// Add subscribes a go-events sink to the publication stream.
func (b *Broadcaster) Add(sink events.Sink) {
	if err := b.bc.Add(sink); err != nil {
		b.log.Warn("dbsync: add sink", slog.String("error", err.Error()))
	}
}

// Remove detaches a previously added sink.
func (b *Broadcaster) Remove(sink events.Sink) {
	if err := b.bc.Remove(sink); err != nil {
		b.log.Warn("dbsync: remove sink", slog.String("error", err.Error()))
	}
}

// Close shuts the underlying broadcaster down, releasing its goroutine.
func (b *Broadcaster) Close() error {
	return b.bc.Close()
}

// write broadcasts one event, logging delivery failures.
func (b *Broadcaster) write(op string, record any) {
	if err := b.bc.Write(Event{Op: op, Record: record}); err != nil {
		b.log.Warn("dbsync: broadcast",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
}

// Sink implementation.

func (b *Broadcaster) AddVlanToInstance(vlan, instance uint16) {
	b.write(OpAddVlanToInstance, VlanInstance{VlanID: vlan, Instance: instance})
}

func (b *Broadcaster) DelVlanFromInstance(vlan, instance uint16) {
	b.write(OpDelVlanFromInstance, VlanInstance{VlanID: vlan, Instance: instance})
}

func (b *Broadcaster) UpdateStpClass(rec *VlanTable) {
	b.write(OpUpdateStpClass, *rec)
}

func (b *Broadcaster) DelStpClass(vlan uint16) {
	b.write(OpDelStpClass, VlanInstance{VlanID: vlan})
}

func (b *Broadcaster) UpdatePortClass(rec *VlanPortTable) {
	b.write(OpUpdatePortClass, *rec)
}

func (b *Broadcaster) DelPortClass(ifName string, vlan uint16) {
	b.write(OpDelPortClass, VlanPortTable{IfName: ifName, VlanID: vlan})
}

func (b *Broadcaster) UpdatePortState(ifName string, instance uint16, state string) {
	b.write(OpUpdatePortState, PortStateRecord{IfName: ifName, Instance: instance, State: state})
}

func (b *Broadcaster) DelPortState(ifName string, instance uint16) {
	b.write(OpDelPortState, PortStateRecord{IfName: ifName, Instance: instance})
}

func (b *Broadcaster) UpdateFastAge(vlan uint16, enable bool) {
	b.write(OpUpdateFastAge, FlagRecord{VlanID: vlan, Value: enable})
}

func (b *Broadcaster) UpdatePortAdminState(ifName string, up, physical bool) {
	b.write(OpUpdatePortAdmin, AdminStateRecord{IfName: ifName, Up: up, Physical: physical})
}

func (b *Broadcaster) UpdateBpduGuardShutdown(ifName string, shutdown bool) {
	b.write(OpUpdateBpduGuard, FlagRecord{IfName: ifName, Value: shutdown})
}

func (b *Broadcaster) UpdatePortFast(ifName string, enabled bool) {
	b.write(OpUpdatePortFast, FlagRecord{IfName: ifName, Value: enabled})
}

func (b *Broadcaster) DelStpPort(ifName string) {
	b.write(OpDelStpPort, FlagRecord{IfName: ifName})
}

func (b *Broadcaster) ClearTables() {
	b.write(OpClearTables, nil)
}

// compile-time interface check.
var _ Sink = (*Broadcaster)(nil)
