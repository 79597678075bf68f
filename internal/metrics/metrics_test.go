package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CacheLookup("hit")
	m.CacheInvalidated("prefix", 3)
	m.CacheSize(1)
	m.RemoteCall("create_item", "transient", 0.1)
	m.Provision("list", "created")
	m.Queue("enqueued", 1)
	m.Intake("recorded")
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CacheLookup("hit")
	m.CacheLookup("hit")
	m.CacheLookup("miss")
	m.CacheInvalidated("prefix", 4)
	m.CacheInvalidated("prefix", 0)
	m.Queue("enqueued", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CacheInvalidations.WithLabelValues("prefix")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
