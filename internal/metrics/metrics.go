// Package metrics exposes Prometheus metrics for the ET daemon, adapted
// from the teacher's infrastructure/monitoring/metrics.go: a struct of
// promauto-constructed collectors plus a JSON-friendly snapshot guarded
// by its own mutex, generalized from HTTP/app/session metrics to
// station/conductor/event metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/stat"
)

// Metrics holds every Prometheus collector the daemon reports.
type Metrics struct {
	EventsInTotal  *prometheus.CounterVec // label: station
	EventsOutTotal *prometheus.CounterVec // label: station
	PrescaleReject *prometheus.CounterVec // label: station

	StationListLength *prometheus.GaugeVec // labels: station, direction(in|out)
	AttachmentsActive prometheus.Gauge
	StationsActive    prometheus.Gauge

	ConductorBatchSize    *prometheus.HistogramVec // label: station
	ConductorBatchLatency *prometheus.HistogramVec // label: station

	ConnectionsActive prometheus.Gauge

	startTime time.Time
	mu        sync.RWMutex
	snapshot  Snapshot
}

// Snapshot is a JSON-serializable point-in-time view for the admin HTTP
// surface's /api/sys endpoint.
type Snapshot struct {
	UptimeSeconds     float64
	StationsActive    int64
	AttachmentsActive int64
	ConnectionsActive int64
}

// Conductor is the narrow view of Metrics a conductor needs, so
// internal/conductor does not have to import the whole struct.
type Conductor struct{ m *Metrics }

// ForConductor returns the conductor-facing view.
func (m *Metrics) ForConductor() *Conductor { return &Conductor{m: m} }

// ObserveBatch records one drain-and-route batch's size and latency.
func (c *Conductor) ObserveBatch(station string, size int, elapsed time.Duration) {
	c.m.ConductorBatchSize.WithLabelValues(station).Observe(float64(size))
	c.m.ConductorBatchLatency.WithLabelValues(station).Observe(elapsed.Seconds())
}

// ObservePrescaleReject counts one event decimated away by a station's
// prescale setting (spec.md §4.3).
func (c *Conductor) ObservePrescaleReject(station string) {
	c.m.PrescaleReject.WithLabelValues(station).Inc()
}

// ObserveListLength reports one station list's current length, direction
// is "in" or "out".
func (c *Conductor) ObserveListLength(station, direction string, n int) {
	c.m.StationListLength.WithLabelValues(station, direction).Set(float64(n))
}

// New constructs and registers every collector.
func New() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		EventsInTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "et_events_in_total",
			Help: "Total events put by attachments onto a station's output list.",
		}, []string{"station"}),
		EventsOutTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "et_events_out_total",
			Help: "Total events removed from a station's list via get/drain.",
		}, []string{"station"}),
		PrescaleReject: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "et_prescale_rejected_total",
			Help: "Total events rejected by prescale decimation.",
		}, []string{"station"}),

		StationListLength: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "et_station_list_length",
			Help: "Current EventList length.",
		}, []string{"station", "direction"}),
		AttachmentsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "et_attachments_active",
			Help: "Number of currently bound attachments.",
		}),
		StationsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "et_stations_active",
			Help: "Number of stations in the ring.",
		}),

		ConductorBatchSize: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "et_conductor_batch_events",
			Help:    "Number of events routed per conductor batch.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"station"}),
		ConductorBatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "et_conductor_batch_latency_seconds",
			Help:    "Time to route one drained batch.",
			Buckets: prometheus.DefBuckets,
		}, []string{"station"}),

		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "et_connections_active",
			Help: "Number of currently open protocol-server connections.",
		}),
	}
	return m
}

// SetStationsActive updates the gauge and the JSON snapshot together.
func (m *Metrics) SetStationsActive(n int) {
	m.StationsActive.Set(float64(n))
	m.mu.Lock()
	m.snapshot.StationsActive = int64(n)
	m.mu.Unlock()
}

// SetAttachmentsActive updates the gauge and the JSON snapshot together.
func (m *Metrics) SetAttachmentsActive(n int) {
	m.AttachmentsActive.Set(float64(n))
	m.mu.Lock()
	m.snapshot.AttachmentsActive = int64(n)
	m.mu.Unlock()
}

// IncConnections / DecConnections track live protocol-server connections.
func (m *Metrics) IncConnections() {
	m.ConnectionsActive.Inc()
	m.mu.Lock()
	m.snapshot.ConnectionsActive++
	m.mu.Unlock()
}

func (m *Metrics) DecConnections() {
	m.ConnectionsActive.Dec()
	m.mu.Lock()
	if m.snapshot.ConnectionsActive > 0 {
		m.snapshot.ConnectionsActive--
	}
	m.mu.Unlock()
}

// Snapshot returns the current JSON-friendly view.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	snap := m.snapshot
	m.mu.RUnlock()
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}

// FairnessStats reports the mean and standard deviation of a parallel
// group's member input-list lengths (spec.md §8 S3 "fairness"
// observability), using gonum/stat rather than hand-rolled variance math.
func FairnessStats(lengths []int) (mean, stddev float64) {
	if len(lengths) == 0 {
		return 0, 0
	}
	xs := make([]float64, len(lengths))
	for i, n := range lengths {
		xs[i] = float64(n)
	}
	mean = stat.Mean(xs, nil)
	stddev = stat.StdDev(xs, nil)
	return mean, stddev
}
