// Package metrics defines the prometheus collectors of the record store
// access layer. Collectors are registered on a caller-supplied registerer so
// tests and embedding applications can keep isolated registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "civicstore"

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing, so components can take one optionally.
type Metrics struct {
	CacheLookups       *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec
	CacheEntries       prometheus.Gauge
	RemoteCalls        *prometheus.CounterVec
	RemoteDuration     *prometheus.HistogramVec
	Provisioned        *prometheus.CounterVec
	QueueDepth         prometheus.Gauge
	QueueEvents        *prometheus.CounterVec
	Intakes            *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result (hit, miss, expired).",
		}, []string{"result"}),
		CacheInvalidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Cache entries removed by invalidation, by scope (prefix, all).",
		}, []string{"scope"}),
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries currently held by the read cache.",
		}),
		RemoteCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Remote store calls by operation and error kind.",
		}, []string{"operation", "kind"}),
		RemoteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Remote store call latency by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"operation"}),
		Provisioned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provisioning_total",
			Help:      "Provisioning outcomes by resource (list, column, folder) and outcome (found, created, adopted).",
		}, []string{"resource", "outcome"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Submissions waiting in the local queue.",
		}),
		QueueEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_events_total",
			Help:      "Local queue events (enqueued, replayed, retried, dropped).",
		}, []string{"event"}),
		Intakes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intakes_total",
			Help:      "Governed intake submissions by final state.",
		}, []string{"state"}),
	}
}

// CacheLookup counts a cache lookup.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// CacheInvalidated counts removed entries.
func (m *Metrics) CacheInvalidated(scope string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.CacheInvalidations.WithLabelValues(scope).Add(float64(n))
}

// CacheSize records the current entry count.
func (m *Metrics) CacheSize(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// RemoteCall records one remote call.
func (m *Metrics) RemoteCall(op, kind string, seconds float64) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(op, kind).Inc()
	m.RemoteDuration.WithLabelValues(op).Observe(seconds)
}

// Provision records a provisioning outcome.
func (m *Metrics) Provision(resource, outcome string) {
	if m == nil {
		return
	}
	m.Provisioned.WithLabelValues(resource, outcome).Inc()
}

// Queue records a queue event and the resulting depth.
func (m *Metrics) Queue(event string, depth int) {
	if m == nil {
		return
	}
	m.QueueEvents.WithLabelValues(event).Inc()
	m.QueueDepth.Set(float64(depth))
}

// Intake records the final state of an intake submission.
func (m *Metrics) Intake(state string) {
	if m == nil {
		return
	}
	m.Intakes.WithLabelValues(state).Inc()
}
