package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Routed("x.com")
	m.Routed("x.com")
	m.Dropped("excluded")
	m.Persisted("other")
	m.Failed("other", "UNAVAILABLE")
	m.ConnectAttempted("other", 3)
	m.ConnectAttempted("other", 0)
	m.SetQueueDepth("x.com", 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesRouted.WithLabelValues("x.com")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesDropped.WithLabelValues("excluded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsPersisted.WithLabelValues("other")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures.WithLabelValues("other", "UNAVAILABLE")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("other")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("x.com")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Routed("x.com")
		m.Dropped("excluded")
		m.Persisted("other")
		m.Failed("other", "UNAVAILABLE")
		m.ConnectAttempted("other", 1)
		m.SetQueueDepth("x.com", 1)
	})
}
