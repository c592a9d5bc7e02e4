// Package ipc carries configuration and control messages between the
// spanning tree daemon and its clients (the config manager and stpctl)
// over a unix datagram socket. Messages are JSON-encoded envelopes: a
// type tag plus a type-specific payload.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultSocketPath is the daemon's well-known IPC endpoint.
const DefaultSocketPath = "/var/run/stpipc.sock"

// MsgType tags the envelope payload.
type MsgType int

// Message kinds.
const (
	MsgInvalid MsgType = iota
	MsgInitReady
	MsgBridgeConfig
	MsgVlanConfig
	MsgVlanPortConfig
	MsgPortConfig
	MsgVlanMemConfig
	MsgCtl
	msgMax
)

// String returns the message kind name.
func (t MsgType) String() string {
	switch t {
	case MsgInitReady:
		return "InitReady"
	case MsgBridgeConfig:
		return "BridgeConfig"
	case MsgVlanConfig:
		return "VlanConfig"
	case MsgVlanPortConfig:
		return "VlanPortConfig"
	case MsgPortConfig:
		return "PortConfig"
	case MsgVlanMemConfig:
		return "VlanMemConfig"
	case MsgCtl:
		return "Ctl"
	default:
		return fmt.Sprintf("Invalid(%d)", int(t))
	}
}

// Opcodes shared by all configuration payloads.
const (
	OpcodeDel uint8 = 0
	OpcodeSet uint8 = 1
)

// Message is the IPC envelope.
type Message struct {
	Type MsgType         `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Envelope errors.
var (
	// ErrUnknownMsgType indicates an out-of-range envelope tag.
	ErrUnknownMsgType = errors.New("unknown ipc message type")

	// ErrBadPayload indicates a payload that does not decode.
	ErrBadPayload = errors.New("bad ipc payload")
)

// NewMessage wraps a payload into an envelope.
func NewMessage(t MsgType, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return &Message{Type: t, Data: raw}, nil
}

// Decode unpacks the payload into out.
func (m *Message) Decode(out any) error {
	if m.Type <= MsgInvalid || m.Type >= msgMax {
		return fmt.Errorf("type %d: %w", m.Type, ErrUnknownMsgType)
	}
	if err := json.Unmarshal(m.Data, out); err != nil {
		return fmt.Errorf("%s: %w: %w", m.Type, ErrBadPayload, err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Configuration payloads
// -------------------------------------------------------------------------

// InitReadyMsg sizes the instance table at daemon bring-up.
type InitReadyMsg struct {
	Opcode          uint8  `json:"opcode"`
	MaxStpInstances uint16 `json:"max_stp_instances"`
}

// BridgeConfigMsg enables or disables the protocol globally.
type BridgeConfigMsg struct {
	Opcode uint8 `json:"opcode"`

	// StpMode: 0 none, 1 pvst.
	StpMode uint8 `json:"stp_mode"`

	// RootguardTimeout is the guard recovery timeout in seconds,
	// bounded [5, 600]. Zero leaves the current value.
	RootguardTimeout int32 `json:"rootguard_timeout"`

	// BaseMacAddr is the bridge base MAC, colon-separated hex.
	BaseMacAddr string `json:"base_mac_addr"`
}

// PortAttr is one port entry in a VLAN configuration.
type PortAttr struct {
	IntfName string `json:"intf_name"`

	// Mode: 0 untagged, 1 tagged.
	Mode int8 `json:"mode"`

	Enabled bool `json:"enabled"`
}

// VlanConfigMsg creates, reconfigures or deletes a VLAN instance.
type VlanConfigMsg struct {
	Opcode       uint8      `json:"opcode"`
	NewInstance  bool       `json:"new_instance"`
	VlanID       uint16     `json:"vlan_id"`
	InstID       uint16     `json:"inst_id"`
	ForwardDelay int        `json:"forward_delay"`
	HelloTime    int        `json:"hello_time"`
	MaxAge       int        `json:"max_age"`
	Priority     int        `json:"priority"`
	PortList     []PortAttr `json:"port_list,omitempty"`
}

// VlanPortConfigMsg configures one port within one VLAN.
type VlanPortConfigMsg struct {
	Opcode   uint8  `json:"opcode"`
	VlanID   uint16 `json:"vlan_id"`
	IntfName string `json:"intf_name"`
	InstID   uint16 `json:"inst_id"`
	PathCost int    `json:"path_cost"`

	// Priority is -1 when unset.
	Priority int `json:"priority"`
}

// VlanAttr is one VLAN entry in a port configuration.
type VlanAttr struct {
	InstID uint16 `json:"inst_id"`
	VlanID uint16 `json:"vlan_id"`
	Mode   int8   `json:"mode"`
}

// PortConfigMsg configures port-wide attributes and guard flags.
type PortConfigMsg struct {
	Opcode             uint8      `json:"opcode"`
	IntfName           string     `json:"intf_name"`
	Enabled            bool       `json:"enabled"`
	RootGuard          bool       `json:"root_guard"`
	BpduGuard          bool       `json:"bpdu_guard"`
	BpduGuardDoDisable bool       `json:"bpdu_guard_do_disable"`
	PortFast           bool       `json:"portfast"`
	UplinkFast         bool       `json:"uplink_fast"`
	PathCost           int        `json:"path_cost"`
	Priority           int        `json:"priority"`
	VlanList           []VlanAttr `json:"vlan_list,omitempty"`
}

// VlanMemConfigMsg configures one VLAN membership of one port.
type VlanMemConfigMsg struct {
	Opcode   uint8  `json:"opcode"`
	VlanID   uint16 `json:"vlan_id"`
	InstID   uint16 `json:"inst_id"`
	IntfName string `json:"intf_name"`
	Enabled  bool   `json:"enabled"`
	Mode     int8   `json:"mode"`
	PathCost int    `json:"path_cost"`
	Priority int    `json:"priority"`
}

// -------------------------------------------------------------------------
// Control (stpctl) payloads
// -------------------------------------------------------------------------

// CtlType enumerates stpctl commands.
type CtlType int

// Control command types.
const (
	CtlHelp CtlType = iota
	CtlDumpAll
	CtlDumpGlobal
	CtlDumpVlanAll
	CtlDumpVlan
	CtlDumpIntf
	CtlSetLogLevel
	CtlDumpNlDB
	CtlDumpNlDBIntf
	CtlDumpLoopStats
	CtlSetDebug
	CtlClearAll
	CtlClearVlan
	CtlClearIntf
	CtlClearVlanIntf
	ctlMax
)

// DebugOpt carries the debug-vector toggles for CtlSetDebug.
type DebugOpt struct {
	Enabled  *bool    `json:"enabled,omitempty"`
	Verbose  *bool    `json:"verbose,omitempty"`
	BpduRx   *bool    `json:"bpdu_rx,omitempty"`
	BpduTx   *bool    `json:"bpdu_tx,omitempty"`
	Event    *bool    `json:"event,omitempty"`
	Ports    []string `json:"ports,omitempty"`
	Vlans    []uint16 `json:"vlans,omitempty"`
	AllPorts *bool    `json:"all_ports,omitempty"`
	AllVlans *bool    `json:"all_vlans,omitempty"`
}

// CtlMsg is a control request. VlanID -1 and an empty IntfName widen
// the scope to everything.
type CtlMsg struct {
	CmdType  CtlType  `json:"cmd_type"`
	VlanID   int      `json:"vlan_id"`
	IntfName string   `json:"intf_name"`
	Level    int      `json:"level"`
	Dbg      DebugOpt `json:"dbg"`
}

// CtlReply is the daemon's answer to a control request.
type CtlReply struct {
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

// Reply status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)
