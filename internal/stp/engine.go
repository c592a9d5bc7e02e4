package stp

import (
	"errors"
	"log/slog"

	"github.com/seregega/sonic-stp/internal/bitmap"
	"github.com/seregega/sonic-stp/internal/dbsync"
)

// -------------------------------------------------------------------------
// Collaborator interfaces
// -------------------------------------------------------------------------

// Transport sends BPDU frames on the wire. The reference implementation
// lives in internal/netio; tests substitute an in-memory transport.
type Transport interface {
	// Send transmits frame out of port. When tagged is true the frame
	// is sent with an 802.1Q tag for vlan, otherwise untagged.
	Send(port PortID, vlan VlanID, frame []byte, tagged bool) error
}

// PortDB exposes the interface database: the mapping between dense port
// ids and kernel interfaces, plus per-port attributes discovered from
// link events.
type PortDB interface {
	// Name returns the interface name for a port id, or "" if unknown.
	Name(port PortID) string

	// PortByName resolves an interface name to a port id.
	PortByName(name string) (PortID, bool)

	// Mac returns the interface MAC address.
	Mac(port PortID) MacAddr

	// SpeedMbps returns the interface speed in Mb/s.
	SpeedMbps(port PortID) uint32

	// IsUp reports whether the interface is operationally up.
	IsUp(port PortID) bool
}

// MetricsReporter receives protocol-level metric events. A Prometheus
// implementation lives in internal/metrics.
type MetricsReporter interface {
	SetActiveInstances(n int)
	IncBpduRx(kind string)
	IncBpduTx(kind string)
	IncBpduDrop(class string)
	IncTopologyChange()
	IncGuardTrip(kind string)
}

// noopMetrics discards every metric event.
type noopMetrics struct{}

func (noopMetrics) SetActiveInstances(int) {}
func (noopMetrics) IncBpduRx(string)       {}
func (noopMetrics) IncBpduTx(string)       {}
func (noopMetrics) IncBpduDrop(string)     {}
func (noopMetrics) IncTopologyChange()     {}
func (noopMetrics) IncGuardTrip(string)    {}

// Metric label values.
const (
	metricKindConfig = "config"
	metricKindTcn    = "tcn"

	metricDropStp  = "stp"
	metricDropTcn  = "tcn"
	metricDropPvst = "pvst"

	metricGuardRoot = "root"
	metricGuardBpdu = "bpdu"
)

// -------------------------------------------------------------------------
// Engine errors
// -------------------------------------------------------------------------

// Sentinel errors surfaced to the management adapter.
var (
	// ErrNoFreeInstance indicates the instance table is exhausted.
	ErrNoFreeInstance = errors.New("no free stp instance slot")

	// ErrInstanceInUse indicates the slot for a new VLAN is not Free.
	ErrInstanceInUse = errors.New("stp instance slot not free")

	// ErrUnknownInstance indicates an instance index out of range or Free.
	ErrUnknownInstance = errors.New("unknown stp instance")

	// ErrUnknownPort indicates a port id the interface database cannot
	// resolve.
	ErrUnknownPort = errors.New("unknown port")

	// ErrConfigRejected indicates an out-of-range configuration value.
	ErrConfigRejected = errors.New("configuration rejected")
)

// -------------------------------------------------------------------------
// Engine
// -------------------------------------------------------------------------

// Engine owns all spanning tree state: the instance table, the global
// port masks, the pre-assembled BPDU templates and the drop counters.
// It is not safe for concurrent use; the dispatch loop (Loop) serialises
// every entry point.
type Engine struct {
	maxInstances uint16
	maxPorts     int32

	activeInstances uint16
	classes         []Class
	vlanToIndex     map[VlanID]StpIndex

	// Pre-assembled BPDU template. Dynamic fields are filled per
	// transmission; the version octet doubles as the PVST suppression
	// switch when the configured mode is none.
	configTemplate ConfigBpdu

	tickID         uint8
	bpduSyncTickID uint8

	// seconds is the engine clock, advanced once per ten ticks.
	seconds   uint32
	tickCount uint8

	fastSpan bool
	enabled  bool
	protoMode ProtoMode

	// Global port-wide masks.
	enableMask           *bitmap.Mask
	enableAdminMask      *bitmap.Mask
	fastspanMask         *bitmap.Mask
	fastspanAdminMask    *bitmap.Mask
	fastuplinkAdminMask  *bitmap.Mask
	protectMask          *bitmap.Mask
	protectDoDisableMask *bitmap.Mask
	protectDisabledMask  *bitmap.Mask
	rootProtectMask      *bitmap.Mask

	rootProtectTimeout uint16

	stpDropCount  uint32
	tcnDropCount  uint32
	pvstDropCount uint32

	extendMode bool
	baseMac    MacAddr

	// Port-level defaults applied when a port joins an instance:
	// priority per port, and a configured path cost (zero means derive
	// from link speed).
	portPriority []uint8
	portPathCost []uint32

	txBuf [MaxBpduFrameSize]byte

	debug DebugVector

	log     *slog.Logger
	ports   PortDB
	tx      Transport
	sink    dbsync.Sink
	metrics MetricsReporter
}

// EngineOption configures optional Engine collaborators.
type EngineOption func(*Engine)

// WithMetrics attaches a MetricsReporter. A nil reporter keeps the
// default no-op implementation.
func WithMetrics(mr MetricsReporter) EngineOption {
	return func(e *Engine) {
		if mr != nil {
			e.metrics = mr
		}
	}
}

// WithExtendMode selects the 802.1t path-cost table at startup.
func WithExtendMode(extend bool) EngineOption {
	return func(e *Engine) { e.extendMode = extend }
}

// NewEngine builds an engine sized for maxInstances VLAN instances and
// maxPorts ports. All instance slots start Free; fast span is enabled
// on every port by default, matching factory behaviour.
func NewEngine(
	maxInstances uint16,
	maxPorts int32,
	ports PortDB,
	tx Transport,
	sink dbsync.Sink,
	logger *slog.Logger,
	opts ...EngineOption,
) *Engine {
	if maxPorts <= 0 {
		maxPorts = 1
	}
	if sink == nil {
		sink = dbsync.Nop{}
	}

	e := &Engine{
		maxInstances: maxInstances,
		maxPorts:     maxPorts,
		classes:      make([]Class, maxInstances),
		vlanToIndex:  make(map[VlanID]StpIndex, maxInstances),

		fastSpan:           true,
		rootProtectTimeout: DefaultRootProtectTimeout,
		extendMode:         true,

		enableMask:           bitmap.New(maxPorts),
		enableAdminMask:      bitmap.New(maxPorts),
		fastspanMask:         bitmap.New(maxPorts),
		fastspanAdminMask:    bitmap.New(maxPorts),
		fastuplinkAdminMask:  bitmap.New(maxPorts),
		protectMask:          bitmap.New(maxPorts),
		protectDoDisableMask: bitmap.New(maxPorts),
		protectDisabledMask:  bitmap.New(maxPorts),
		rootProtectMask:      bitmap.New(maxPorts),

		portPriority: make([]uint8, maxPorts),
		portPathCost: make([]uint32, maxPorts),

		log:     logger,
		ports:   ports,
		tx:      tx,
		sink:    sink,
		metrics: noopMetrics{},
	}

	for i := range e.portPriority {
		e.portPriority[i] = DefaultPortPriority
	}

	for i := range e.classes {
		e.classes[i] = newClass(maxPorts)
	}

	// Fast span defaults to on for every port until a BPDU proves the
	// segment is not an edge.
	e.fastspanMask.SetAll()
	e.fastspanAdminMask.SetAll()

	e.configTemplate.ProtocolVersion = StpVersionID
	e.configTemplate.Type = ConfigBpduType

	e.debug.init(maxPorts)

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// MaxInstances returns the instance table capacity.
func (e *Engine) MaxInstances() uint16 { return e.maxInstances }

// ActiveInstances returns the number of non-Free instances.
func (e *Engine) ActiveInstances() uint16 { return e.activeInstances }

// Seconds returns the engine clock in seconds since start.
func (e *Engine) Seconds() uint32 { return e.seconds }

// Class returns the instance at index, or nil when out of range.
func (e *Engine) Class(index StpIndex) *Class {
	if int(index) >= len(e.classes) {
		return nil
	}
	return &e.classes[index]
}

// IndexOf resolves a VLAN id to its instance index.
func (e *Engine) IndexOf(vlan VlanID) (StpIndex, bool) {
	idx, ok := e.vlanToIndex[vlan]
	return idx, ok
}

// classIndex recovers the table index of a class pointer.
func (e *Engine) classIndex(c *Class) StpIndex {
	for i := range e.classes {
		if &e.classes[i] == c {
			return StpIndex(i)
		}
	}
	return StpIndexInvalid
}

// -------------------------------------------------------------------------
// Instance lifecycle
// -------------------------------------------------------------------------

// initClass claims the slot at index for vlan and initialises its bridge
// data. The slot must be Free.
func (e *Engine) initClass(index StpIndex, vlan VlanID) error {
	c := e.Class(index)
	if c == nil {
		return ErrUnknownInstance
	}
	if c.State != ClassFree {
		return ErrInstanceInUse
	}

	c.State = ClassConfig
	e.activeInstances++
	e.metrics.SetActiveInstances(int(e.activeInstances))
	e.initializeStpClass(c, vlan)
	e.vlanToIndex[vlan] = index

	return nil
}

// freeClass returns the slot at index to the Free state.
func (e *Engine) freeClass(index StpIndex) {
	c := e.Class(index)
	if c == nil || c.State == ClassFree {
		return
	}
	delete(e.vlanToIndex, c.VlanID)
	c.free()
	e.activeInstances--
	e.metrics.SetActiveInstances(int(e.activeInstances))
}

// portName is a logging helper tolerant of unknown ports.
func (e *Engine) portName(port PortID) string {
	if name := e.ports.Name(port); name != "" {
		return name
	}
	return "?"
}
