package stp

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seregega/sonic-stp/internal/dbsync"
	"github.com/seregega/sonic-stp/internal/ipc"
)

// -------------------------------------------------------------------------
// Test fixtures: fake port database, recording transport, recording sink
// -------------------------------------------------------------------------

// testBaseMac is the bridge base MAC used by every engine test.
var testBaseMac = MacAddr{0xAA, 0x00, 0x00, 0x00, 0x00, 0x01}

// testPortDB is an in-memory PortDB: EthernetN maps to port id N.
type testPortDB struct {
	maxPorts int32
	up       map[PortID]bool
	speed    map[PortID]uint32
}

func newTestPortDB(maxPorts int32) *testPortDB {
	return &testPortDB{
		maxPorts: maxPorts,
		up:       make(map[PortID]bool),
		speed:    make(map[PortID]uint32),
	}
}

func (db *testPortDB) Name(port PortID) string {
	if port < 0 || int32(port) >= db.maxPorts {
		return ""
	}
	return fmt.Sprintf("Ethernet%d", port)
}

func (db *testPortDB) PortByName(name string) (PortID, bool) {
	var n int
	if _, err := fmt.Sscanf(name, "Ethernet%d", &n); err != nil {
		return InvalidPortID, false
	}
	if int32(n) >= db.maxPorts {
		return InvalidPortID, false
	}
	return PortID(n), true
}

func (db *testPortDB) Mac(port PortID) MacAddr {
	return MacAddr{0x00, 0x11, 0x22, 0x33, 0x44, byte(port)}
}

func (db *testPortDB) SpeedMbps(port PortID) uint32 {
	if s, ok := db.speed[port]; ok {
		return s
	}
	return Speed1G
}

func (db *testPortDB) IsUp(port PortID) bool { return db.up[port] }

// testTransport records every transmitted frame.
type testTransport struct {
	sent []SentTestFrame
}

// SentTestFrame is one recorded transmission.
type SentTestFrame struct {
	Port   PortID
	Vlan   VlanID
	Frame  []byte
	Tagged bool
}

func (t *testTransport) Send(port PortID, vlan VlanID, frame []byte, tagged bool) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	t.sent = append(t.sent, SentTestFrame{Port: port, Vlan: vlan, Frame: cp, Tagged: tagged})
	return nil
}

// reset clears the recording.
func (t *testTransport) reset() { t.sent = nil }

// tcnFrames returns the recorded TCN transmissions.
func (t *testTransport) tcnFrames() []SentTestFrame {
	var out []SentTestFrame
	for _, f := range t.sent {
		payload := f.Frame[PvstBpduOffset:]
		if IsStpDestination(f.Frame) {
			payload = f.Frame[StpBpduOffset:]
		}
		if len(payload) >= 4 && BpduType(payload[3]) == TcnBpduType {
			out = append(out, f)
		}
	}
	return out
}

// testSink records the publication calls the scenarios assert on.
type testSink struct {
	dbsync.Nop

	portStates    map[string]string // "ifname|instance" -> state
	portClasses   []dbsync.VlanPortTable
	adminDowns    []string
	guardShutdown map[string]bool
	portFast      map[string]bool
	fastAge       map[uint16]bool
}

func newTestSink() *testSink {
	return &testSink{
		portStates:    make(map[string]string),
		guardShutdown: make(map[string]bool),
		portFast:      make(map[string]bool),
		fastAge:       make(map[uint16]bool),
	}
}

func (s *testSink) UpdatePortState(ifName string, instance uint16, state string) {
	s.portStates[fmt.Sprintf("%s|%d", ifName, instance)] = state
}

func (s *testSink) UpdatePortClass(rec *dbsync.VlanPortTable) {
	s.portClasses = append(s.portClasses, *rec)
}

func (s *testSink) UpdatePortAdminState(ifName string, up, _ bool) {
	if !up {
		s.adminDowns = append(s.adminDowns, ifName)
	}
}

func (s *testSink) UpdateBpduGuardShutdown(ifName string, shutdown bool) {
	s.guardShutdown[ifName] = shutdown
}

func (s *testSink) UpdatePortFast(ifName string, enabled bool) {
	s.portFast[ifName] = enabled
}

func (s *testSink) UpdateFastAge(vlan uint16, enable bool) {
	s.fastAge[vlan] = enable
}

// lastPortState returns the most recent published per-VLAN state for a
// port, from the partial-record stream.
func (s *testSink) lastPortState(ifName string, vlan uint16) string {
	state := ""
	for _, rec := range s.portClasses {
		if rec.IfName == ifName && rec.VlanID == vlan && rec.PortState != "" {
			state = rec.PortState
		}
	}
	return state
}

// -------------------------------------------------------------------------
// Harness
// -------------------------------------------------------------------------

// testEngine bundles the engine with its fakes.
type testEngine struct {
	e     *Engine
	db    *testPortDB
	tx    *testTransport
	sink  *testSink
}

// newTestEngine builds an enabled PVST engine with every port down.
func newTestEngine(t *testing.T, maxInstances uint16, maxPorts int32) *testEngine {
	t.Helper()

	db := newTestPortDB(maxPorts)
	tx := &testTransport{}
	sink := newTestSink()
	logger := slog.New(slog.DiscardHandler)

	e := NewEngine(maxInstances, maxPorts, db, tx, sink, logger)

	e.applyBridgeConfig(&ipc.BridgeConfigMsg{
		Opcode:           ipc.OpcodeSet,
		StpMode:          uint8(ProtoModePvst),
		RootguardTimeout: int32(DefaultRootProtectTimeout),
		BaseMacAddr:      testBaseMac.String(),
	})

	return &testEngine{e: e, db: db, tx: tx, sink: sink}
}

// addVlan claims an instance and attaches control ports. Ports are
// brought operationally up first. untagged lists ports carrying the
// VLAN untagged.
func (te *testEngine) addVlan(t *testing.T, index StpIndex, vlan VlanID, ports []PortID, untagged []PortID) *Class {
	t.Helper()

	for _, port := range ports {
		te.db.up[port] = true
	}

	require.NoError(t, te.e.CreateVlanInstance(index, vlan))

	isUntagged := make(map[PortID]bool, len(untagged))
	for _, port := range untagged {
		isUntagged[port] = true
	}
	for _, port := range ports {
		mode := PortModeTagged
		if isUntagged[port] {
			mode = PortModeUntagged
		}
		require.True(t, te.e.addControlPort(index, port, mode))
	}

	return te.e.Class(index)
}

// disablePortFast turns the PortFast feature off on the given ports so
// scenarios exercise the classic Listening/Learning walk.
func (te *testEngine) disablePortFast(ports ...PortID) {
	for _, port := range ports {
		te.e.ConfigFastSpan(port, false)
	}
}

// tickSeconds runs the scheduler for the given number of protocol
// seconds (ten 100 ms ticks per second).
func (te *testEngine) tickSeconds(seconds int) {
	for i := 0; i < seconds*10; i++ {
		te.e.Tick()
	}
}

// ticks runs N raw 100 ms ticks.
func (te *testEngine) ticks(n int) {
	for i := 0; i < n; i++ {
		te.e.Tick()
	}
}

// peerConfigFrame builds a PVST Config BPDU frame from a neighbour.
func peerConfigFrame(t *testing.T, vlan VlanID, root BridgeID, rootCost uint32, bridge BridgeID, portID PortIDField, tcAck bool) []byte {
	t.Helper()

	b := ConfigBpdu{
		ProtocolVersion:   StpVersionID,
		Type:              ConfigBpduType,
		TopologyChangeAck: tcAck,
		RootID:            root,
		RootPathCost:      rootCost,
		BridgeID:          bridge,
		PortID:            portID,
		MessageAge:        1,
		MaxAge:            uint16(DefaultMaxAge),
		HelloTime:         uint16(DefaultHelloTime),
		ForwardDelay:      uint16(DefaultForwardDelay),
	}
	buf := make([]byte, MaxBpduFrameSize)
	n := EncodePvstConfig(buf, MacAddr{0x00, 0xDE, 0xAD, 0xBE, 0xEF, 0x01}, &b, vlan)
	return buf[:n]
}

// checkInvariants asserts the published-state invariants on one
// instance.
func checkInvariants(t *testing.T, e *Engine, c *Class) {
	t.Helper()

	// Root bridge iff no root port.
	if c.Bridge.RootPort == InvalidPortID {
		require.Equal(t, c.Bridge.BridgeID, c.Bridge.RootID)
		require.Zero(t, c.Bridge.RootPathCost)
	}

	for port := c.EnableMask.FirstSet(); port != bitmapInvalid; port = c.EnableMask.NextSet(port) {
		p := c.Port(PortID(port))
		require.NotNil(t, p)

		// Enabled ports are never Disabled.
		require.NotEqual(t, PortStateDisabled, p.State)

		// Kernel shadow tracks the forwarding predicate.
		if p.KernelState != KernelNone {
			if p.State == PortStateForwarding {
				require.Equal(t, KernelForward, p.KernelState)
			} else {
				require.Equal(t, KernelBlocking, p.KernelState)
			}
		}

		// Designated ports carry the bridge's own vector.
		if designatedPort(c, PortID(port)) {
			require.Equal(t, c.Bridge.BridgeID, p.DesignatedBridge)
			require.Equal(t, c.Bridge.RootPathCost, p.DesignatedCost)
			require.Equal(t, c.Bridge.RootID, p.DesignatedRoot)
			require.Equal(t, p.PortID, p.DesignatedPort)
		}
	}
}
