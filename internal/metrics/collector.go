// Package stpmetrics exposes spanning tree protocol activity as
// Prometheus metrics.
package stpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus metric constants
// -------------------------------------------------------------------------

const (
	namespace = "stpd"
	subsystem = "stp"
)

// Label names.
const (
	labelKind  = "kind"
	labelClass = "class"
	labelGuard = "guard"
)

// -------------------------------------------------------------------------
// Collector
// -------------------------------------------------------------------------

// Collector holds all spanning tree Prometheus metrics.
//
// Designed for switch fleet monitoring: instance gauge for capacity
// planning, BPDU counters for protocol liveness, drop counters for
// misconfiguration alerts, guard counters for security events, and the
// topology change counter for flap detection.
type Collector struct {
	// ActiveInstances tracks the number of non-free VLAN instances.
	ActiveInstances prometheus.Gauge

	// BpduRx counts received BPDUs by kind (config, tcn).
	BpduRx *prometheus.CounterVec

	// BpduTx counts transmitted BPDUs by kind (config, tcn).
	BpduTx *prometheus.CounterVec

	// BpduDrops counts dropped frames by class (stp, tcn, pvst).
	BpduDrops *prometheus.CounterVec

	// TopologyChanges counts topology change detections.
	TopologyChanges prometheus.Counter

	// GuardTrips counts guard activations by guard kind (root, bpdu).
	GuardTrips *prometheus.CounterVec
}

// NewCollector creates a Collector registered against reg. If reg is
// nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.ActiveInstances,
		c.BpduRx,
		c.BpduTx,
		c.BpduDrops,
		c.TopologyChanges,
		c.GuardTrips,
	)

	return c
}

// newMetrics creates the metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		ActiveInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_instances",
			Help:      "Number of active per-VLAN spanning tree instances.",
		}),

		BpduRx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bpdu_rx_total",
			Help:      "Total BPDUs received, by kind.",
		}, []string{labelKind}),

		BpduTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bpdu_tx_total",
			Help:      "Total BPDUs transmitted, by kind.",
		}, []string{labelKind}),

		BpduDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bpdu_drops_total",
			Help:      "Total BPDU frames dropped, by frame class.",
		}, []string{labelClass}),

		TopologyChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "topology_changes_total",
			Help:      "Total topology change detections across instances.",
		}),

		GuardTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "guard_trips_total",
			Help:      "Total guard activations, by guard kind.",
		}, []string{labelGuard}),
	}
}

// -------------------------------------------------------------------------
// stp.MetricsReporter implementation
// -------------------------------------------------------------------------

// SetActiveInstances records the current instance count.
func (c *Collector) SetActiveInstances(n int) {
	c.ActiveInstances.Set(float64(n))
}

// IncBpduRx counts one received BPDU.
func (c *Collector) IncBpduRx(kind string) {
	c.BpduRx.WithLabelValues(kind).Inc()
}

// IncBpduTx counts one transmitted BPDU.
func (c *Collector) IncBpduTx(kind string) {
	c.BpduTx.WithLabelValues(kind).Inc()
}

// IncBpduDrop counts one dropped frame.
func (c *Collector) IncBpduDrop(class string) {
	c.BpduDrops.WithLabelValues(class).Inc()
}

// IncTopologyChange counts one topology change detection.
func (c *Collector) IncTopologyChange() {
	c.TopologyChanges.Inc()
}

// IncGuardTrip counts one guard activation.
func (c *Collector) IncGuardTrip(kind string) {
	c.GuardTrips.WithLabelValues(kind).Inc()
}
